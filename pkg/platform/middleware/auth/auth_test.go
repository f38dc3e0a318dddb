package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "dealflow/pkg/domain"
	"dealflow/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) { return s.claims, s.err }

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	actor := id.NewUserID()

	var seen id.UserID
	var seenRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.UserID(r.Context())
		seenRole = requestcontext.Role(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireAuth(stubValidator{}, logger)(next).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		RequireAuth(stubValidator{err: errors.New("bad")}, logger)(next).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token sets actor", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer ok")
		w := httptest.NewRecorder()
		v := stubValidator{claims: &JWTClaims{UserID: actor.String(), Role: "partner"}}
		RequireAuth(v, logger)(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, actor, seen)
		assert.Equal(t, "partner", seenRole)
	})
}

func TestOptionalAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	actor := id.NewUserID()

	var seen id.UserID
	var seenRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.UserID(r.Context())
		seenRole = requestcontext.Role(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	valid := stubValidator{claims: &JWTClaims{UserID: actor.String(), Role: "partner"}}

	t.Run("anonymous producer passes through", func(t *testing.T) {
		seen, seenRole = id.UserID{}, ""
		w := httptest.NewRecorder()
		OptionalAuth(valid, logger)(next).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, seen.IsNil())
		assert.Empty(t, seenRole)
	})

	t.Run("valid token sets actor and role", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer ok")
		w := httptest.NewRecorder()
		OptionalAuth(valid, logger)(next).ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, actor, seen)
		assert.Equal(t, "partner", seenRole)
	})

	t.Run("presented token must be valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		OptionalAuth(stubValidator{err: errors.New("bad")}, logger)(next).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non-bearer scheme is rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		w := httptest.NewRecorder()
		OptionalAuth(valid, logger)(next).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
