// Package auth authenticates approval actors from bearer tokens.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/requestcontext"
)

// JWTValidator validates a raw token and returns its claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is the transport-neutral view of a validated token.
type JWTClaims struct {
	UserID string
	Role   string
}

// RequireAuth rejects requests without a valid bearer token and stores the
// actor (and role) in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}
			authenticated, err := authenticate(r, validator, logger, token)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, authenticated)
		})
	}
}

// OptionalAuth lets anonymous requests through untouched. A request that
// presents a bearer token must present a valid one; its actor and role are
// stored as RequireAuth does.
func OptionalAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}
			authenticated, err := authenticate(r, validator, logger, token)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, authenticated)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func authenticate(r *http.Request, validator JWTValidator, logger *slog.Logger, token string) (*http.Request, error) {
	ctx := r.Context()
	claims, err := validator.ValidateToken(token)
	if err != nil {
		logger.WarnContext(ctx, "unauthorized access - invalid token",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")
	}
	actor, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	ctx = requestcontext.WithUserID(ctx, actor)
	ctx = requestcontext.WithRole(ctx, claims.Role)
	return r.WithContext(ctx), nil
}
