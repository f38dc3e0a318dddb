// Package consequence maps events to the follow-up work they imply.
//
// A Catalog is an immutable, versioned set of ranked entries. Resolve scans
// entries in ascending rank; the order of the slice a catalog was built from
// does not matter.
package consequence

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"dealflow/internal/models"
	"dealflow/internal/rules/predicate"
)

// Priority is how urgently a consequence should be acted on.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityHigh      Priority = "high"
	PriorityNormal    Priority = "normal"
	PriorityLow       Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityImmediate, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Consequence is one prescribed follow-up. It is never stored on its own; the
// orchestrator materializes it into a ProposedAction.
type Consequence struct {
	Type     models.ActionType `json:"type" yaml:"type"`
	Target   string            `json:"target" yaml:"target"`
	Action   string            `json:"action" yaml:"action"`
	Priority Priority          `json:"priority" yaml:"priority"`
}

// Entry fires its consequences when an event of type Trigger arrives and every
// condition holds against the event payload.
type Entry struct {
	Rank         int
	Trigger      models.EventType
	Conditions   []predicate.Condition
	Consequences []Consequence
}

// Catalog is the read-only consequence table loaded at process start.
type Catalog struct {
	version string
	entries []Entry
}

// NewCatalog validates entries and freezes them in rank order.
func NewCatalog(version string, entries []Entry) (*Catalog, error) {
	if strings.TrimSpace(version) == "" {
		return nil, errors.New("catalog version is required")
	}
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int { return cmp.Compare(a.Rank, b.Rank) })

	seen := make(map[int]struct{}, len(sorted))
	for _, e := range sorted {
		if _, dup := seen[e.Rank]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate rank %d", version, e.Rank)
		}
		seen[e.Rank] = struct{}{}
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("catalog %s: entry rank %d: %w", version, e.Rank, err)
		}
	}

	frozen := make([]Entry, len(sorted))
	for i, e := range sorted {
		frozen[i] = Entry{
			Rank:         e.Rank,
			Trigger:      e.Trigger,
			Conditions:   slices.Clone(e.Conditions),
			Consequences: slices.Clone(e.Consequences),
		}
	}
	return &Catalog{version: version, entries: frozen}, nil
}

// MustCatalog is NewCatalog for catalogs defined in code.
func MustCatalog(version string, entries []Entry) *Catalog {
	c, err := NewCatalog(version, entries)
	if err != nil {
		panic(err)
	}
	return c
}

func validateEntry(e Entry) error {
	if !e.Trigger.IsValid() {
		return fmt.Errorf("unknown trigger %q", e.Trigger)
	}
	if len(e.Consequences) == 0 {
		return errors.New("no consequences")
	}
	for _, c := range e.Conditions {
		if err := predicate.Validate(c); err != nil {
			return err
		}
	}
	for i, c := range e.Consequences {
		if !c.Type.IsValid() {
			return fmt.Errorf("consequence %d: unknown action type %q", i, c.Type)
		}
		if strings.TrimSpace(c.Action) == "" {
			return fmt.Errorf("consequence %d: empty action description", i)
		}
		if !c.Priority.IsValid() {
			return fmt.Errorf("consequence %d: unknown priority %q", i, c.Priority)
		}
	}
	return nil
}

func (c *Catalog) Version() string { return c.version }

// Entries returns a copy of the entries in rank order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		e.Conditions = slices.Clone(e.Conditions)
		e.Consequences = slices.Clone(e.Consequences)
		out[i] = e
	}
	return out
}

// Triggers lists the event types with at least one entry.
func (c *Catalog) Triggers() []models.EventType {
	var out []models.EventType
	for _, e := range c.entries {
		if !slices.Contains(out, e.Trigger) {
			out = append(out, e.Trigger)
		}
	}
	return out
}

// Resolve returns the consequences of every matching entry, in rank order and
// then within-entry order. No match yields an empty, non-nil slice.
func Resolve(catalog *Catalog, event *models.Event) []Consequence {
	out := []Consequence{}
	if catalog == nil || event == nil {
		return out
	}
	var ctx predicate.Context
	for _, e := range catalog.entries {
		if e.Trigger != event.Type {
			continue
		}
		if len(e.Conditions) > 0 {
			if ctx == nil {
				ctx = predicate.FromPayload(event.Payload)
			}
			if !predicate.All(e.Conditions, ctx) {
				continue
			}
		}
		out = append(out, e.Consequences...)
	}
	return out
}
