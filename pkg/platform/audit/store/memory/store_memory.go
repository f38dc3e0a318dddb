package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	id "dealflow/pkg/domain"
	audit "dealflow/pkg/platform/audit"
)

// InMemoryStore keeps audit events per deal plus an outbox queue, so the relay
// worker can run against it without Postgres.
type InMemoryStore struct {
	mu        sync.RWMutex
	events    map[id.DealID][]audit.Event
	outbox    []audit.OutboxEntry
	published map[string]time.Time
	now       func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:    make(map[id.DealID][]audit.Event),
		published: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.DealID][]audit.Event)
	s.outbox = nil
	s.published = make(map[string]time.Time)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	event = audit.Prepare(event)
	entry, err := audit.NewOutboxEntry(event, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.DealID] = append(s.events[event.DealID], event)
	s.outbox = append(s.outbox, entry)
	return nil
}

func (s *InMemoryStore) ListByDeal(_ context.Context, dealID id.DealID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[dealID]...), nil
}

// ListRecent returns the most recent N events across all deals, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, dealEvents := range s.events {
		all = append(all, dealEvents...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// PendingOutbox returns unpublished entries in insertion order.
func (s *InMemoryStore) PendingOutbox(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.OutboxEntry
	for _, e := range s.outbox {
		if _, done := s.published[e.ID]; done {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entryID := range ids {
		s.published[entryID] = at
	}
	return nil
}
