package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"time"

	"dealflow/internal/models"
	"dealflow/internal/rules/constitution"
	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/sentinel"
)

const checklistItem = "checklist_item"

// PutEntity seeds an entity so status updates against it succeed.
func (s *Store) PutEntity(kind string, entityID id.EntityID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entityKey{kind, entityID}] = entityRecord{Status: status}
}

// EntityStatus returns the stored status and ball_with of an entity.
func (s *Store) EntityStatus(kind string, entityID id.EntityID) (status, ballWith string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entities[entityKey{kind, entityID}]
	return rec.Status, rec.BallWith, ok
}

func (s *Store) UpdateChecklistItemStatus(_ context.Context, itemID id.EntityID, status string, _ time.Time) error {
	return s.updateEntity(checklistItem, itemID, func(r *entityRecord) { r.Status = status })
}

func (s *Store) UpdateChecklistItemBallWith(_ context.Context, itemID id.EntityID, ballWith string, _ time.Time) error {
	return s.updateEntity(checklistItem, itemID, func(r *entityRecord) { r.BallWith = ballWith })
}

func (s *Store) UpdateEntityStatus(_ context.Context, entityType string, entityID id.EntityID, status string, _ time.Time) error {
	if _, ok := s.statusKinds[entityType]; !ok {
		return fmt.Errorf("status updates are not allowed for entity type %q", entityType)
	}
	return s.updateEntity(entityType, entityID, func(r *entityRecord) { r.Status = status })
}

func (s *Store) updateEntity(kind string, entityID id.EntityID, apply func(*entityRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{kind, entityID}
	rec, ok := s.entities[key]
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, entityID, sentinel.ErrNotFound)
	}
	apply(&rec)
	s.entities[key] = rec
	return nil
}

// AppendActivity is idempotent on the entry id.
func (s *Store) AppendActivity(_ context.Context, entry models.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID.IsNil() {
		entry.ID = id.NewEntityID()
	}
	if _, dup := s.activityIDs[entry.ID]; dup {
		return nil
	}
	entry.Details = maps.Clone(entry.Details)
	s.activityIDs[entry.ID] = struct{}{}
	s.activity[entry.DealID] = append(s.activity[entry.DealID], entry)
	return nil
}

// ListActivity returns a deal's activity, newest first.
func (s *Store) ListActivity(_ context.Context, dealID id.DealID, limit int) ([]models.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.ActivityEntry{}, s.activity[dealID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetConstitution(_ context.Context, dealID id.DealID) (*constitution.Constitution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.constitutions[dealID], nil
}

func (s *Store) SaveConstitution(_ context.Context, dealID id.DealID, c *constitution.Constitution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constitutions[dealID] = c
	return nil
}
