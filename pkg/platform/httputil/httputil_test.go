package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "dealflow/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body, "error_description")
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, io.ErrUnexpectedEOF)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("invalid state maps to conflict with description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidState, "chain is not pending"))

		require.Equal(t, http.StatusConflict, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "invalid_state", body["error"])
		assert.Equal(t, "chain is not pending", body["error_description"])
	})
}

type sampleRequest struct {
	Name string `json:"name"`
}

func (r *sampleRequest) Normalize() { r.Name = strings.TrimSpace(r.Name) }

func (r *sampleRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("normalizes and validates", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"  closing  "}`))
		w := httptest.NewRecorder()

		req, ok := DecodeAndPrepare[sampleRequest](w, r, logger, r.Context(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "closing", req.Name)
	})

	t.Run("malformed JSON is a bad request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[sampleRequest](w, r, logger, r.Context(), "req-2")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure is reported", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"   "}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[sampleRequest](w, r, logger, r.Context(), "req-3")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "name is required")
	})
}
