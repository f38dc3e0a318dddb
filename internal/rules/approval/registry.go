package approval

import (
	"errors"
	"sync"

	id "dealflow/pkg/domain"
)

// Registry holds the active policy per scope and picks the most specific one
// for a request: deal, then user, then role, then default.
type Registry struct {
	mu       sync.RWMutex
	fallback *Policy
	byScope  map[Scope]*Policy
}

// NewRegistry requires a default-scoped policy as the fallback.
func NewRegistry(fallback *Policy) (*Registry, error) {
	if fallback == nil {
		return nil, errors.New("registry requires a default policy")
	}
	if fallback.Scope().Type != ScopeDefault {
		return nil, errors.New("registry fallback must have default scope")
	}
	return &Registry{fallback: fallback, byScope: make(map[Scope]*Policy)}, nil
}

// Register installs or replaces the policy for its scope. Registering a
// default-scoped policy replaces the fallback.
func (r *Registry) Register(p *Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Scope().Type == ScopeDefault {
		r.fallback = p
		return
	}
	r.byScope[p.Scope()] = p
}

// Remove drops the policy for scope. The default policy cannot be removed.
func (r *Registry) Remove(scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byScope, scope)
}

// Select returns the most specific policy for the given deal, actor and role.
// Nil actor or empty role skip their scopes.
func (r *Registry) Select(dealID id.DealID, actor id.UserID, role string) *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := []Scope{{Type: ScopeDeal, ID: dealID.String()}}
	if !actor.IsNil() {
		candidates = append(candidates, Scope{Type: ScopeUser, ID: actor.String()})
	}
	if role != "" {
		candidates = append(candidates, Scope{Type: ScopeRole, ID: role})
	}
	for _, s := range candidates {
		if p, ok := r.byScope[s]; ok {
			return p
		}
	}
	return r.fallback
}

// Default returns the fallback policy.
func (r *Registry) Default() *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}
