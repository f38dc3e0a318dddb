package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/deals/{dealID}/events", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/deals/"+id+"/events", nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/deals/{dealID}/events", http.MethodGet, "418")))

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "dealflow_http_requests_total"))
	assert.True(t, strings.Contains(rr.Body.String(), "go_goroutines"))
}

func TestNilMetricsPassesThrough(t *testing.T) {
	var m *Metrics
	called := false
	h := m.Instrument(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
