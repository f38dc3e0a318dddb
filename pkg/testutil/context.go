package testutil

import (
	"net/http"

	id "dealflow/pkg/domain"
	"dealflow/pkg/requestcontext"
)

// WithActor marks the request as authenticated by actor, as the auth
// middleware would.
func WithActor(req *http.Request, actor id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), actor))
}

// WithActorRole is WithActor plus a role claim.
func WithActorRole(req *http.Request, actor id.UserID, role string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), actor)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}
