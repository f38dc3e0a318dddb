// Package requestcontext provides HTTP-independent accessors for request-scoped
// values.
//
// Middleware sets these values; services read them. Keeping the package free of
// net/http lets the orchestrator and approval services import it without
// pulling in transport code.
//
//	actor := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "dealflow/pkg/domain"
)

type (
	userIDKey      struct{}
	roleKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported keys for tests that build contexts with context.WithValue.
var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyRole        = roleKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// UserID returns the authenticated actor, or the nil ID when unauthenticated.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// Role returns the actor's role claim (for example "partner"), used when
// selecting a role-scoped approval policy.
func Role(ctx context.Context) string {
	if role, ok := ctx.Value(ContextKeyRole).(string); ok {
		return role
	}
	return ""
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the request-scoped time, falling back to time.Now() for
// contexts that never passed through the request-time middleware (workers,
// the expiry sweeper, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the clock for everything downstream of ctx.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
