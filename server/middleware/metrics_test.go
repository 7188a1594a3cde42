package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/coral-p2025/coral/server/metrics"
	"github.com/coral-p2025/coral/server/middleware"
)

func TestPrometheusMetrics(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedCode   int
		expectedStatus string
		errorType      string
	}{
		{
			name: "success request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			expectedCode:   http.StatusOK,
			expectedStatus: "200",
		},
		{
			name: "implicit success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html></html>"))
			},
			expectedCode:   http.StatusOK,
			expectedStatus: "200",
		},
		{
			name: "client error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			expectedCode:   http.StatusNotFound,
			expectedStatus: "404",
			errorType:      "client_error",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			expectedCode:   http.StatusInternalServerError,
			expectedStatus: "500",
			errorType:      "server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewMetrics()

			r := chi.NewRouter()
			r.Use(middleware.PrometheusMetrics(m))
			r.Get("/v1/blobs/{id}", tt.handler)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/blobs/1234", nil))

			assert.Equal(t, tt.expectedCode, rec.Code)

			// Series are keyed by the route pattern, not the path.
			assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/blobs/{id}", tt.expectedStatus)))
			assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
			assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveRequests.WithLabelValues("http")))

			if tt.errorType != "" {
				assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(tt.errorType)))
			}
		})
	}
}

func TestPrometheusMetricsUnroutedPath(t *testing.T) {
	m := metrics.NewMetrics()
	handler := middleware.PrometheusMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/health", "200")))
}
