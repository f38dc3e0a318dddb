package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	approvalhandler "dealflow/internal/approval/handler"
	jwttoken "dealflow/internal/jwt_token"
	orchhandler "dealflow/internal/orchestrator/handler"
	"dealflow/internal/platform/config"
	"dealflow/internal/platform/metrics"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/platform/middleware/auth"
	"dealflow/pkg/platform/middleware/request"
	"dealflow/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

type routerDeps struct {
	orchestrator orchhandler.Service
	approval     approvalhandler.Service
	validator    auth.JWTValidator
	registry     *prometheus.Registry
	httpMetrics  *metrics.Metrics
	health       func(ctx context.Context) error
	logger       *slog.Logger
}

func newTokenValidator(cfg config.Server) auth.JWTValidator {
	svc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	return jwttoken.NewJWTServiceAdapter(svc)
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(deps.httpMetrics.Instrument)

	r.Get("/healthz", healthHandler(deps.health, deps.logger))
	r.Handle("/metrics", metrics.Handler(deps.registry))

	orchhandler.New(deps.orchestrator, deps.logger, deps.validator).Register(r)
	approvalhandler.New(deps.approval, deps.logger, deps.validator).Register(r)
	return r
}

func healthHandler(check func(ctx context.Context) error, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			log.WarnContext(ctx, "health check failed", "error", err)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "dependency unavailable"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
