package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/sentinel"
)

func (s *Store) CreateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("event %s: %w", event.ID, sentinel.ErrConflict)
	}
	s.events[event.ID] = cloneEvent(*event)
	return nil
}

func (s *Store) GetEvent(_ context.Context, eventID id.EventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, sentinel.ErrNotFound)
	}
	out := cloneEvent(e)
	return &out, nil
}

// ListEvents returns a deal's events, newest first.
func (s *Store) ListEvents(_ context.Context, dealID id.DealID, filter models.EventFilter) ([]models.Event, error) {
	filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []models.Event{}
	for _, e := range s.events {
		if e.DealID != dealID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Processed != nil && e.Processed != *filter.Processed {
			continue
		}
		matched = append(matched, cloneEvent(e))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return page(matched, filter.Limit, filter.Offset), nil
}

func (s *Store) MarkEventProcessed(_ context.Context, eventID id.EventID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("event %s: %w", eventID, sentinel.ErrNotFound)
	}
	if err := e.MarkProcessed(at); err != nil {
		return err
	}
	s.events[eventID] = e
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
