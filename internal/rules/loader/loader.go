// Package loader reads consequence catalogs, approval policies and deal
// constitutions from YAML files.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"dealflow/internal/models"
	"dealflow/internal/rules/approval"
	"dealflow/internal/rules/consequence"
	"dealflow/internal/rules/constitution"
	"dealflow/internal/rules/predicate"
	id "dealflow/pkg/domain"
)

type conditionDoc struct {
	Field string   `yaml:"field"`
	Eq    any      `yaml:"eq"`
	In    []any    `yaml:"in"`
	Gte   *float64 `yaml:"gte"`
}

type entryDoc struct {
	Rank         int                       `yaml:"rank"`
	Trigger      string                    `yaml:"trigger"`
	Conditions   []conditionDoc            `yaml:"conditions"`
	Consequences []consequence.Consequence `yaml:"consequences"`
}

type catalogDoc struct {
	Version string     `yaml:"version"`
	Entries []entryDoc `yaml:"entries"`
}

type ruleDoc struct {
	Rank        int            `yaml:"rank"`
	ActionType  string         `yaml:"action_type"`
	Conditions  []conditionDoc `yaml:"conditions"`
	Tier        int            `yaml:"tier"`
	Description string         `yaml:"description"`
}

type policyDoc struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	ScopeType   string    `yaml:"scope_type"`
	ScopeID     string    `yaml:"scope_id"`
	Rules       []ruleDoc `yaml:"rules"`
}

type policiesDoc struct {
	Policies []policyDoc `yaml:"policies"`
}

type constitutionDoc struct {
	DealID                    string `yaml:"deal_id"`
	constitution.Constitution `yaml:",inline"`
}

type constitutionsDoc struct {
	Constitutions []constitutionDoc `yaml:"constitutions"`
}

func decodeStrict(raw []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*consequence.Catalog, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(raw []byte) (*consequence.Catalog, error) {
	var doc catalogDoc
	if err := decodeStrict(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	entries := make([]consequence.Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		conds, err := toConditions(e.Conditions)
		if err != nil {
			return nil, fmt.Errorf("catalog entry rank %d: %w", e.Rank, err)
		}
		entries = append(entries, consequence.Entry{
			Rank:         e.Rank,
			Trigger:      models.EventType(e.Trigger),
			Conditions:   conds,
			Consequences: e.Consequences,
		})
	}
	return consequence.NewCatalog(doc.Version, entries)
}

// LoadPolicies reads a policies file.
func LoadPolicies(path string) ([]*approval.Policy, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePolicies(raw)
}

// ParsePolicies decodes and validates every policy in the document.
func ParsePolicies(raw []byte) ([]*approval.Policy, error) {
	var doc policiesDoc
	if err := decodeStrict(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	out := make([]*approval.Policy, 0, len(doc.Policies))
	for _, p := range doc.Policies {
		rules := make([]approval.Rule, 0, len(p.Rules))
		for _, r := range p.Rules {
			conds, err := toConditions(r.Conditions)
			if err != nil {
				return nil, fmt.Errorf("policy %q rule rank %d: %w", p.Name, r.Rank, err)
			}
			rules = append(rules, approval.Rule{
				Rank:        r.Rank,
				ActionType:  models.ActionType(r.ActionType),
				Conditions:  conds,
				Tier:        models.Tier(r.Tier),
				Description: r.Description,
			})
		}
		scope := approval.Scope{Type: approval.ScopeType(p.ScopeType), ID: p.ScopeID}
		policy, err := approval.NewPolicy(p.Name, p.Description, scope, rules)
		if err != nil {
			return nil, err
		}
		out = append(out, policy)
	}
	return out, nil
}

// LoadConstitutions reads a constitutions file keyed by deal.
func LoadConstitutions(path string) (map[id.DealID]*constitution.Constitution, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConstitutions(raw)
}

func ParseConstitutions(raw []byte) (map[id.DealID]*constitution.Constitution, error) {
	var doc constitutionsDoc
	if err := decodeStrict(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode constitutions: %w", err)
	}
	out := make(map[id.DealID]*constitution.Constitution, len(doc.Constitutions))
	for _, c := range doc.Constitutions {
		dealID, err := id.ParseDealID(c.DealID)
		if err != nil {
			return nil, fmt.Errorf("constitution deal_id %q: %w", c.DealID, err)
		}
		con := c.Constitution
		if err := con.Validate(); err != nil {
			return nil, fmt.Errorf("constitution for deal %s: %w", dealID, err)
		}
		out[dealID] = &con
	}
	return out, nil
}

func toConditions(docs []conditionDoc) ([]predicate.Condition, error) {
	out := make([]predicate.Condition, 0, len(docs))
	for _, d := range docs {
		set := 0
		if d.Eq != nil {
			set++
		}
		if d.In != nil {
			set++
		}
		if d.Gte != nil {
			set++
		}
		if set != 1 {
			return nil, fmt.Errorf("condition on %q: exactly one of eq, in, gte is required", d.Field)
		}

		switch {
		case d.Eq != nil:
			v, ok := predicate.FromAny(d.Eq)
			if !ok {
				return nil, fmt.Errorf("condition on %q: eq must be a scalar", d.Field)
			}
			out = append(out, predicate.Eq{Field: d.Field, Value: v})
		case d.In != nil:
			members := make([]predicate.Value, 0, len(d.In))
			for _, raw := range d.In {
				v, ok := predicate.FromAny(raw)
				if !ok {
					return nil, fmt.Errorf("condition on %q: in members must be scalars", d.Field)
				}
				members = append(members, v)
			}
			out = append(out, predicate.In{Field: d.Field, Values: members})
		default:
			out = append(out, predicate.Gte{Field: d.Field, Min: *d.Gte})
		}
	}
	return out, nil
}
