// Package memory is the in-process implementation of every dealflow store
// port. It is the default when no database is configured and backs most
// service tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"dealflow/internal/models"
	"dealflow/internal/rules/constitution"
	id "dealflow/pkg/domain"
	strutil "dealflow/pkg/platform/strings"
)

type entityKey struct {
	kind string
	id   id.EntityID
}

type entityRecord struct {
	Status   string
	BallWith string
}

// Store keeps every record behind one RWMutex; multi-record writes such as
// CreateChain are atomic because they hold the write lock throughout.
type Store struct {
	mu            sync.RWMutex
	events        map[id.EventID]models.Event
	chains        map[id.ChainID]models.ActionChain
	actions       map[id.ChainID][]models.ProposedAction
	entities      map[entityKey]entityRecord
	activity      map[id.DealID][]models.ActivityEntry
	activityIDs   map[id.EntityID]struct{}
	constitutions map[id.DealID]*constitution.Constitution
	statusKinds   map[string]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithStatusEntities sets the entity kinds UpdateEntityStatus accepts.
func WithStatusEntities(kinds []string) Option {
	return func(s *Store) {
		kinds = strutil.DedupeAndTrimLower(kinds)
		s.statusKinds = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			s.statusKinds[k] = struct{}{}
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		events:        make(map[id.EventID]models.Event),
		chains:        make(map[id.ChainID]models.ActionChain),
		actions:       make(map[id.ChainID][]models.ProposedAction),
		entities:      make(map[entityKey]entityRecord),
		activity:      make(map[id.DealID][]models.ActivityEntry),
		activityIDs:   make(map[id.EntityID]struct{}),
		constitutions: make(map[id.DealID]*constitution.Constitution),
		statusKinds:   map[string]struct{}{"deal": {}, "checklist_item": {}},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunInTx runs fn directly; each memory operation is already atomic.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func cloneEvent(e models.Event) models.Event {
	e.Payload = maps.Clone(e.Payload)
	return e
}

func cloneAction(a models.ProposedAction) models.ProposedAction {
	a.Payload = maps.Clone(a.Payload)
	a.DependsOn = slices.Clone(a.DependsOn)
	if a.ExecutionResult != nil {
		r := *a.ExecutionResult
		r.Result = maps.Clone(r.Result)
		a.ExecutionResult = &r
	}
	return a
}
