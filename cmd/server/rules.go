package main

import (
	"context"
	"fmt"
	"log/slog"

	"dealflow/internal/platform/config"
	"dealflow/internal/rules/approval"
	"dealflow/internal/rules/consequence"
	"dealflow/internal/rules/constitution"
	"dealflow/internal/rules/loader"
	id "dealflow/pkg/domain"
)

type ruleSet struct {
	catalog       *consequence.Catalog
	policies      *approval.Registry
	constitutions map[id.DealID]*constitution.Constitution
}

// loadRules reads the configured rule files. Missing paths fall back to the
// built-in catalog and the default partner policy.
func loadRules(cfg config.RulesConfig) (*ruleSet, error) {
	rs := &ruleSet{catalog: consequence.DefaultCatalog()}
	if cfg.CatalogFile != "" {
		catalog, err := loader.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		rs.catalog = catalog
	}

	registry, err := approval.NewRegistry(approval.DefaultPartnerPolicy())
	if err != nil {
		return nil, err
	}
	if cfg.PoliciesFile != "" {
		policies, err := loader.LoadPolicies(cfg.PoliciesFile)
		if err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		for _, p := range policies {
			registry.Register(p)
		}
	}
	rs.policies = registry

	if cfg.ConstitutionsFile != "" {
		constitutions, err := loader.LoadConstitutions(cfg.ConstitutionsFile)
		if err != nil {
			return nil, fmt.Errorf("load constitutions: %w", err)
		}
		rs.constitutions = constitutions
	}
	return rs, nil
}

type constitutionWriter interface {
	SaveConstitution(ctx context.Context, dealID id.DealID, c *constitution.Constitution) error
}

func seedConstitutions(ctx context.Context, store constitutionWriter, constitutions map[id.DealID]*constitution.Constitution, log *slog.Logger) error {
	for dealID, c := range constitutions {
		if err := store.SaveConstitution(ctx, dealID, c); err != nil {
			return fmt.Errorf("seed constitution for deal %s: %w", dealID, err)
		}
	}
	if len(constitutions) > 0 {
		log.Info("seeded partner constitutions", "count", len(constitutions))
	}
	return nil
}
