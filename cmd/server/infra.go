package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"dealflow/internal/approval"
	"dealflow/internal/deallock"
	"dealflow/internal/executor"
	"dealflow/internal/orchestrator"
	"dealflow/internal/platform/config"
	"dealflow/internal/platform/kafka/consumer"
	"dealflow/internal/platform/kafka/producer"
	"dealflow/internal/platform/postgres"
	"dealflow/internal/platform/redis"
	"dealflow/internal/rules/constitution"
	"dealflow/internal/store/memory"
	pgstore "dealflow/internal/store/postgres"
	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/audit"
	auditconsumer "dealflow/pkg/platform/audit/consumer"
	auditmemory "dealflow/pkg/platform/audit/store/memory"
	auditpostgres "dealflow/pkg/platform/audit/store/postgres"
)

// dealStore is everything the services need from the deal database. Both the
// memory and the Postgres store satisfy it.
type dealStore interface {
	orchestrator.Store
	orchestrator.ConstitutionSource
	orchestrator.ActivityReader
	approval.Store
	executor.Store
	auditconsumer.ActivityStore
	SaveConstitution(ctx context.Context, dealID id.DealID, c *constitution.Constitution) error
}

// auditStore is the audit log plus its relay-facing outbox.
type auditStore interface {
	audit.Store
	audit.Outbox
}

type backends struct {
	db       *sql.DB
	redis    *redis.Client
	store    dealStore
	audit    auditStore
	locker   orchestrator.DealLocker
	producer *producer.Producer
	consumer *consumer.Consumer
}

// openInfra connects to the configured backends. Without DATABASE_URL every
// store stays in memory.
func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	in := &backends{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		in.db = db
		if err := pgstore.Migrate(ctx, db); err != nil {
			in.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		in.store = pgstore.New(db,
			pgstore.WithTxTimeout(cfg.Database.TxTimeout),
			pgstore.WithStatusEntities(cfg.Workflow.StatusEntities),
		)
		in.audit = auditpostgres.New(db)
		log.Info("using postgres stores")
	} else {
		in.store = memory.New(memory.WithStatusEntities(cfg.Workflow.StatusEntities))
		in.audit = auditmemory.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	switch cfg.Workflow.DealLock {
	case "", "none":
	case "memory":
		in.locker = deallock.NewMemory(deallock.DefaultWait)
	case "redis":
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			in.Close()
			return nil, err
		}
		if client == nil {
			in.Close()
			return nil, errors.New("redis deal lock requires REDIS_URL")
		}
		in.redis = client
		in.locker = deallock.NewRedis(client, cfg.Workflow.DealLockTTL, deallock.DefaultWait)
	default:
		in.Close()
		return nil, fmt.Errorf("unknown deal lock %q", cfg.Workflow.DealLock)
	}
	log.Info("deal lock configured", "mode", cfg.Workflow.DealLock)

	return in, nil
}

// Health pings every connected backend.
func (in *backends) Health(ctx context.Context) error {
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if in.producer != nil {
		if err := in.producer.Ping(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

func (in *backends) Close() {
	if in.consumer != nil {
		in.consumer.Close()
	}
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
