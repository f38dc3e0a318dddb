package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dealflow/internal/approval"
	"dealflow/internal/executor"
	"dealflow/internal/orchestrator"
	orchmetrics "dealflow/internal/orchestrator/metrics"
	"dealflow/internal/platform/config"
	"dealflow/internal/platform/httpserver"
	"dealflow/internal/platform/kafka/admin"
	"dealflow/internal/platform/kafka/consumer"
	"dealflow/internal/platform/kafka/producer"
	"dealflow/internal/platform/logger"
	"dealflow/internal/platform/metrics"
	"dealflow/pkg/platform/audit"
	"dealflow/pkg/platform/audit/publisher"
	"dealflow/pkg/platform/audit/publishers/compliance"
	"dealflow/pkg/platform/audit/publishers/ops"
	"dealflow/pkg/platform/audit/worker"

	auditconsumer "dealflow/pkg/platform/audit/consumer"
)

const (
	opsBreakerThreshold = 5
	opsBreakerCooldown  = 30 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and runs the
// background workers until a signal arrives. Business logic lives in the
// internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rules, err := loadRules(cfg.Rules)
	if err != nil {
		return err
	}

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	if err := seedConstitutions(ctx, infra.store, rules.constitutions, log); err != nil {
		return err
	}

	reg := metrics.NewRegistry()

	auditPublisher := publisher.NewPublisher(infra.audit,
		publisher.WithAsyncBuffer(cfg.Workflow.AuditBuffer),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()
	sampler := ops.NewSampler(cfg.Workflow.OpsSampleRate)
	for _, action := range []audit.AuditEvent{audit.EventActionFailed, audit.EventConstitutionalViolation} {
		sampler.SetRate(string(action), 1)
	}
	tracker := ops.NewTracker(auditPublisher,
		ops.WithSampler(sampler),
		ops.WithCircuitBreaker(ops.NewCircuitBreaker(opsBreakerThreshold, opsBreakerCooldown)),
		ops.WithMetrics(ops.NewMetrics(reg)),
		ops.WithLogger(log),
	)
	complianceAuditor := compliance.New(infra.audit,
		compliance.WithMetrics(compliance.NewMetrics(reg)),
		compliance.WithLogger(log),
	)

	exec := executor.New(infra.store,
		executor.WithAuditor(tracker),
		executor.WithMetrics(executor.NewMetrics(reg)),
		executor.WithLogger(log),
	)

	orchOpts := []orchestrator.Option{
		orchestrator.WithConstitutions(infra.store),
		orchestrator.WithActivityReader(infra.store),
		orchestrator.WithAuditor(tracker),
		orchestrator.WithMetrics(orchmetrics.New(reg)),
		orchestrator.WithLogger(log),
	}
	if infra.locker != nil {
		orchOpts = append(orchOpts, orchestrator.WithDealLocker(infra.locker))
	}
	orch, err := orchestrator.New(infra.store, rules.catalog, rules.policies, exec, orchOpts...)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	reviews, err := approval.New(infra.store, exec, complianceAuditor,
		approval.WithAuditor(tracker),
		approval.WithMetrics(approval.NewMetrics(reg)),
		approval.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("build approval service: %w", err)
	}

	router := newRouter(routerDeps{
		orchestrator: orch,
		approval:     reviews,
		validator:    newTokenValidator(cfg.Server),
		registry:     reg,
		httpMetrics:  metrics.New(reg),
		health:       infra.Health,
		logger:       log,
	})
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)

	g, gctx := errgroup.WithContext(ctx)
	if len(cfg.Kafka.Brokers) > 0 {
		if err := startKafka(gctx, g, cfg.Kafka, infra, log); err != nil {
			return err
		}
	} else {
		log.Info("kafka not configured; audit outbox is not relayed")
	}
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		return sweepExpired(gctx, reviews, cfg.Workflow.ChainTTL, cfg.Workflow.ExpiryInterval, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("dealflow stopped")
	return nil
}

// startKafka bootstraps the audit topic and starts the outbox relay and the
// activity consumer on g.
func startKafka(ctx context.Context, g *errgroup.Group, cfg config.KafkaConfig, infra *backends, log *slog.Logger) error {
	if err := admin.EnsureTopics(ctx, cfg.Brokers, cfg.Partitions, cfg.Replication, cfg.AuditTopic); err != nil {
		return err
	}

	prod, err := producer.New(cfg.Brokers)
	if err != nil {
		return err
	}
	infra.producer = prod
	relay := worker.NewRelay(infra.audit, prod, cfg.AuditTopic, cfg.RelayInterval, cfg.RelayBatchSize, log)
	g.Go(func() error { return relay.Run(ctx) })

	topics := auditconsumer.NewRouter(log, nil)
	topics.Register(cfg.AuditTopic, auditconsumer.NewActivityHandler(infra.store, log))
	cons, err := consumer.New(consumer.Config{
		Brokers: cfg.Brokers,
		Group:   cfg.ConsumerGroup,
		Topics:  topics.Topics(),
	}, log)
	if err != nil {
		return err
	}
	infra.consumer = cons
	g.Go(func() error { return cons.Run(ctx, topics) })
	return nil
}

// sweepExpired expires stale pending chains every interval.
func sweepExpired(ctx context.Context, reviews *approval.Service, ttl, interval time.Duration, log *slog.Logger) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := reviews.ExpireStale(ctx, ttl); err != nil && ctx.Err() == nil {
				log.WarnContext(ctx, "chain expiry sweep failed", "error", err)
			}
		}
	}
}
