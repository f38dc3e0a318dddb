package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/requestcontext"
)

const maxReasonLength = 1000

// RejectRequest is the optional body of reject endpoints.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RejectRequest) Validate() error {
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}

// ModifyRequest carries the payload fields a reviewer overrides.
type ModifyRequest struct {
	Payload map[string]any `json:"payload"`
}

func (r *ModifyRequest) Normalize() {}

func (r *ModifyRequest) Validate() error {
	if r == nil || len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}

// decodeOptional decodes a body that may be empty. An empty body yields the
// zero request.
func decodeOptional[T any, PT interface {
	*T
	httputil.Preparable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(r.Context(), "failed to decode request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return nil, false
	}
	p := PT(&req)
	p.Normalize()
	if err := p.Validate(); err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return &req, true
}

func parseQueueFilter(q url.Values) (models.QueueFilter, error) {
	var f models.QueueFilter
	if raw := q.Get("deal_id"); raw != "" {
		dealID, err := id.ParseDealID(raw)
		if err != nil {
			return f, err
		}
		f.DealID = &dealID
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return f, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		f.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return f, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer")
		}
		f.Offset = offset
	}
	return f, nil
}
