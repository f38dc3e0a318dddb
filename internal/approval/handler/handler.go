package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealflow/internal/approval"
	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/platform/middleware/auth"
	"dealflow/pkg/requestcontext"
)

// Service defines the interface for reviewer operations.
type Service interface {
	ListQueue(ctx context.Context, filter models.QueueFilter) ([]models.ChainDetail, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
	GetChain(ctx context.Context, chainID id.ChainID) (*approval.ChainView, error)
	ApproveChain(ctx context.Context, chainID id.ChainID, actor id.UserID) (*models.ChainDetail, error)
	RejectChain(ctx context.Context, chainID id.ChainID, actor id.UserID, reason string) (*models.ChainDetail, error)
	ApproveAction(ctx context.Context, chainID id.ChainID, actionID id.ActionID, actor id.UserID) (*models.ChainDetail, error)
	ModifyAction(ctx context.Context, chainID id.ChainID, actionID id.ActionID, actor id.UserID, patch map[string]any) (*models.ChainDetail, error)
	RejectAction(ctx context.Context, chainID id.ChainID, actionID id.ActionID, actor id.UserID, reason string) (*models.ChainDetail, error)
}

// Handler serves the approval queue. Every route requires a bearer token;
// the token subject is the reviewer recorded on decisions.
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

// Register registers the approval routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/approval-queue", func(r chi.Router) {
		r.Use(auth.RequireAuth(h.jwtValidator, h.logger))
		r.Get("/", h.HandleListQueue)
		r.Get("/stats", h.HandleStats)
		r.Get("/{chainID}", h.HandleGetChain)
		r.Post("/{chainID}/approve", h.HandleApproveChain)
		r.Post("/{chainID}/reject", h.HandleRejectChain)
		r.Post("/{chainID}/actions/{actionID}/approve", h.HandleApproveAction)
		r.Post("/{chainID}/actions/{actionID}/reject", h.HandleRejectAction)
		r.Post("/{chainID}/actions/{actionID}/modify", h.HandleModifyAction)
	})
}

// HandleListQueue handles GET /approval-queue.
func (h *Handler) HandleListQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseQueueFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	chains, err := h.service.ListQueue(ctx, filter)
	if err != nil {
		h.logError(ctx, "list approval queue failed", err)
		httputil.WriteError(w, err)
		return
	}
	filter.Normalize()
	httputil.WriteJSON(w, http.StatusOK, QueueResponse{
		Chains: chains,
		Count:  len(chains),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// HandleStats handles GET /approval-queue/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.logError(ctx, "approval stats failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleGetChain handles GET /approval-queue/{chainID}.
func (h *Handler) HandleGetChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chainID, err := id.ParseChainID(chi.URLParam(r, "chainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.GetChain(ctx, chainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleApproveChain handles POST /approval-queue/{chainID}/approve.
func (h *Handler) HandleApproveChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chainID, actor, ok := h.chainAndActor(w, r)
	if !ok {
		return
	}
	detail, err := h.service.ApproveChain(ctx, chainID, actor)
	h.writeDecision(w, r, "chain approval failed", detail, err)
}

// HandleRejectChain handles POST /approval-queue/{chainID}/reject.
func (h *Handler) HandleRejectChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chainID, actor, ok := h.chainAndActor(w, r)
	if !ok {
		return
	}
	req, ok := decodeOptional[RejectRequest](w, r, h.logger)
	if !ok {
		return
	}
	detail, err := h.service.RejectChain(ctx, chainID, actor, req.Reason)
	h.writeDecision(w, r, "chain rejection failed", detail, err)
}

// HandleApproveAction handles POST /approval-queue/{chainID}/actions/{actionID}/approve.
func (h *Handler) HandleApproveAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chainID, actionID, actor, ok := h.actionAndActor(w, r)
	if !ok {
		return
	}
	detail, err := h.service.ApproveAction(ctx, chainID, actionID, actor)
	h.writeDecision(w, r, "action approval failed", detail, err)
}

// HandleRejectAction handles POST /approval-queue/{chainID}/actions/{actionID}/reject.
func (h *Handler) HandleRejectAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chainID, actionID, actor, ok := h.actionAndActor(w, r)
	if !ok {
		return
	}
	req, ok := decodeOptional[RejectRequest](w, r, h.logger)
	if !ok {
		return
	}
	detail, err := h.service.RejectAction(ctx, chainID, actionID, actor, req.Reason)
	h.writeDecision(w, r, "action rejection failed", detail, err)
}

// HandleModifyAction handles POST /approval-queue/{chainID}/actions/{actionID}/modify.
func (h *Handler) HandleModifyAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	chainID, actionID, actor, ok := h.actionAndActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ModifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	detail, err := h.service.ModifyAction(ctx, chainID, actionID, actor, req.Payload)
	h.writeDecision(w, r, "action modification failed", detail, err)
}

func (h *Handler) chainAndActor(w http.ResponseWriter, r *http.Request) (id.ChainID, id.UserID, bool) {
	chainID, err := id.ParseChainID(chi.URLParam(r, "chainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ChainID{}, id.UserID{}, false
	}
	actor := requestcontext.UserID(r.Context())
	if actor.IsNil() {
		// RequireAuth guarantees an actor; reaching here means the router is miswired.
		h.logger.ErrorContext(r.Context(), "actor missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.ChainID{}, id.UserID{}, false
	}
	return chainID, actor, true
}

func (h *Handler) actionAndActor(w http.ResponseWriter, r *http.Request) (id.ChainID, id.ActionID, id.UserID, bool) {
	chainID, actor, ok := h.chainAndActor(w, r)
	if !ok {
		return id.ChainID{}, id.ActionID{}, id.UserID{}, false
	}
	actionID, err := id.ParseActionID(chi.URLParam(r, "actionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ChainID{}, id.ActionID{}, id.UserID{}, false
	}
	return chainID, actionID, actor, true
}

func (h *Handler) writeDecision(w http.ResponseWriter, r *http.Request, msg string, detail *models.ChainDetail, err error) {
	if err != nil {
		h.logError(r.Context(), msg, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
