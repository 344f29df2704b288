package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func serveWithChi(handler http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics())
	r.Get("/api/v1/session", handler)
	r.Patch("/api/v1/profile", handler)
	return r
}

func TestPrometheusMetrics_CountsByRoutePattern(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/session", "200")
	before := testutil.ToFloat64(counter)

	r := serveWithChi(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}

func TestPrometheusMetrics_RecordsErrorStatus(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues(http.MethodPatch, "/api/v1/profile", "503")
	before := testutil.ToFloat64(counter)

	serveWithChi(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/api/v1/profile", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestPrometheusMetrics_DefaultStatusIs200(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/session", "200")
	before := testutil.ToFloat64(counter)

	serveWithChi(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestPrometheusMetrics_InFlightDuringRequest(t *testing.T) {
	var seen float64
	serveWithChi(func(w http.ResponseWriter, r *http.Request) {
		seen = testutil.ToFloat64(httpRequestsInFlight)
	}).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	assert.GreaterOrEqual(t, seen, float64(1))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight))
}

func TestStatusRecorder_FirstWriteHeaderWins(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusCreated, rec.statusCode)
	assert.NotNil(t, rec.Unwrap())
}
