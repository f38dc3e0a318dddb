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

func (s *Store) CreateChain(_ context.Context, chain *models.ActionChain, actions []models.ProposedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chains[chain.ID]; exists {
		return fmt.Errorf("chain %s: %w", chain.ID, sentinel.ErrConflict)
	}
	stored := make([]models.ProposedAction, len(actions))
	for i, a := range actions {
		stored[i] = cloneAction(a)
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].SequenceOrder < stored[j].SequenceOrder })
	s.chains[chain.ID] = *chain
	s.actions[chain.ID] = stored
	return nil
}

func (s *Store) GetChain(_ context.Context, chainID id.ChainID) (*models.ActionChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %s: %w", chainID, sentinel.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) ListChainsByEvent(_ context.Context, eventID id.EventID) ([]models.ActionChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.ActionChain{}
	for _, c := range s.chains {
		if c.TriggerEventID == eventID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListPendingChains orders by significance descending, then age.
func (s *Store) ListPendingChains(_ context.Context, filter models.QueueFilter) ([]models.ActionChain, error) {
	filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.ActionChain{}
	for _, c := range s.chains {
		if c.Status != models.ChainPending {
			continue
		}
		if filter.DealID != nil && c.DealID != *filter.DealID {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Significance != out[j].Significance {
			return out[i].Significance > out[j].Significance
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) ListRecentlyApproved(_ context.Context, limit int) ([]models.ActionChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.ActionChain{}
	for _, c := range s.chains {
		if c.Status == models.ChainApproved && c.ApprovedAt != nil {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ApprovedAt.After(*out[j].ApprovedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountPendingByTier(_ context.Context) (map[models.Tier]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Tier]int)
	for _, c := range s.chains {
		if c.Status == models.ChainPending {
			counts[c.ApprovalTier]++
		}
	}
	return counts, nil
}

func (s *Store) UpdateChain(_ context.Context, chain *models.ActionChain, expected models.ChainStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.chains[chain.ID]
	if !ok {
		return fmt.Errorf("chain %s: %w", chain.ID, sentinel.ErrNotFound)
	}
	if current.Status != expected {
		return fmt.Errorf("chain %s no longer %s: %w", chain.ID, expected, sentinel.ErrConflict)
	}
	s.chains[chain.ID] = *chain
	return nil
}

func (s *Store) ExpirePendingBefore(_ context.Context, cutoff time.Time) ([]models.ActionChain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := []models.ActionChain{}
	for chainID, c := range s.chains {
		if c.Status == models.ChainPending && c.CreatedAt.Before(cutoff) {
			c.Status = models.ChainExpired
			s.chains[chainID] = c
			expired = append(expired, c)
		}
	}
	return expired, nil
}

func (s *Store) ListActions(_ context.Context, chainID id.ChainID) ([]models.ProposedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.actions[chainID]
	out := make([]models.ProposedAction, len(stored))
	for i, a := range stored {
		out[i] = cloneAction(a)
	}
	return out, nil
}

func (s *Store) GetAction(_ context.Context, chainID id.ChainID, actionID id.ActionID) (*models.ProposedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.actions[chainID] {
		if a.ID == actionID {
			out := cloneAction(a)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("action %s in chain %s: %w", actionID, chainID, sentinel.ErrNotFound)
}

func (s *Store) UpdateAction(_ context.Context, action *models.ProposedAction, expected models.ActionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.actions[action.ChainID]
	for i, a := range stored {
		if a.ID != action.ID {
			continue
		}
		if a.Status != expected {
			return fmt.Errorf("action %s no longer %s: %w", action.ID, expected, sentinel.ErrConflict)
		}
		stored[i] = cloneAction(*action)
		return nil
	}
	return fmt.Errorf("action %s in chain %s: %w", action.ID, action.ChainID, sentinel.ErrNotFound)
}
