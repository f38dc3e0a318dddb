package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealflow/internal/models"
	"dealflow/internal/orchestrator"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/platform/middleware/auth"
	"dealflow/pkg/requestcontext"
)

// Service defines the interface for event operations.
type Service interface {
	Emit(ctx context.Context, req orchestrator.EmitRequest) (*orchestrator.Result, error)
	ListEvents(ctx context.Context, dealID id.DealID, filter models.EventFilter) ([]models.Event, error)
	EventDetail(ctx context.Context, eventID id.EventID) (*orchestrator.EventDetail, error)
	ListActivity(ctx context.Context, dealID id.DealID, limit int) ([]models.ActivityEntry, error)
}

// Handler wires event endpoints to the orchestrator. Producers may emit
// anonymously; a bearer token, when sent, names the actor and role used to
// select the approval policy.
type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator auth.JWTValidator
}

func New(service Service, logger *slog.Logger, jwtValidator auth.JWTValidator) *Handler {
	return &Handler{
		service:      service,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register mounts event endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/deals/{dealID}", func(r chi.Router) {
		r.Use(auth.OptionalAuth(h.jwtValidator, h.logger))
		r.Post("/events", h.HandleEmit)
		r.Get("/events", h.HandleListEvents)
		r.Get("/events/{eventID}", h.HandleGetEvent)
		r.Get("/activity", h.HandleListActivity)
	})
}

// HandleEmit handles POST /deals/{dealID}/events.
func (h *Handler) HandleEmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	dealID, err := id.ParseDealID(chi.URLParam(r, "dealID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[EmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Emit(ctx, req.toDomain(dealID, requestcontext.UserID(ctx), requestcontext.Role(ctx)))
	if err != nil {
		h.logger.ErrorContext(ctx, "emit failed",
			"request_id", requestID,
			"deal_id", dealID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if result.Degraded() {
		h.logger.WarnContext(ctx, "event accepted with diagnostics",
			"request_id", requestID,
			"event_id", result.Event.ID,
			"diagnostics", len(result.Diagnostics),
		)
	}
	httputil.WriteJSON(w, http.StatusCreated, FromResult(result))
}

// HandleListEvents handles GET /deals/{dealID}/events.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dealID, err := id.ParseDealID(chi.URLParam(r, "dealID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.service.ListEvents(ctx, dealID, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "list events failed",
			"request_id", requestcontext.RequestID(ctx),
			"deal_id", dealID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EventListResponse{Events: events, Count: len(events)})
}

// HandleGetEvent handles GET /deals/{dealID}/events/{eventID}.
func (h *Handler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dealID, err := id.ParseDealID(chi.URLParam(r, "dealID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	detail, err := h.service.EventDetail(ctx, eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// An event is only visible under its own deal.
	if detail.Event.DealID != dealID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "event not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// HandleListActivity handles GET /deals/{dealID}/activity.
func (h *Handler) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dealID, err := id.ParseDealID(chi.URLParam(r, "dealID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.service.ListActivity(ctx, dealID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ActivityResponse{Entries: entries})
}
