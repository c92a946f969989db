package accesslog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zircuit-labs/pod-identity/cmd/config"
	"github.com/zircuit-labs/pod-identity/cmd/handlers"
	"github.com/zircuit-labs/pod-identity/cmd/logger"
	"github.com/zircuit-labs/pod-identity/cmd/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccessLog(t *testing.T, m metrics.Client, trustForwarded bool) (*AccessLog, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	a := New(logger.NewWithWriter(logger.DefaultConfig(), &buf), m, trustForwarded)
	return a, &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestMiddlewareLogsRequest(t *testing.T) {
	t.Setenv(handlers.PodNameEnvVar, "worker-7")
	a, buf := newTestAccessLog(t, nil, false)

	handler := a.Middleware(http.HandlerFunc(handlers.PodNameHandler))

	req := httptest.NewRequest(http.MethodGet, handlers.PodNameRoute, nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("User-Agent", "curl/8.4.0")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pod_name":"worker-7"}`, w.Body.String())

	entry := lastEntry(t, buf)
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, handlers.PodNameRoute, entry["path"])
	assert.Equal(t, "192.168.1.1", entry["client_ip"])
	assert.Equal(t, "curl/8.4.0", entry["user_agent"])
	assert.Equal(t, "worker-7", entry["pod_name"])
	assert.Equal(t, float64(200), entry["status_code"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), entry["request_id"])
}

func TestMiddlewareDoesNotAlterResponse(t *testing.T) {
	a, _ := newTestAccessLog(t, nil, false)

	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "short and stout", w.Body.String())
}

func TestMiddlewareRequestID(t *testing.T) {
	a, _ := newTestAccessLog(t, nil, false)

	var seen string
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		id := w.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err, "generated request ID should be a UUID, got %q", id)
		assert.Equal(t, id, seen)
	})

	t.Run("echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "trace-123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "trace-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "trace-123", seen)
	})

	t.Run("rejected when too long", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("a", maxRequestIDLength+1))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
		assert.NoError(t, err)
	})
}

func TestMiddlewareRecordsMetrics(t *testing.T) {
	client, err := metrics.NewClient(&config.MetricsConfig{Enabled: true, Namespace: "test_identity"})
	require.NoError(t, err)
	pc := client.(*metrics.PrometheusClient)

	a, _ := newTestAccessLog(t, pc, false)

	router := mux.NewRouter()
	router.HandleFunc(handlers.PodNameRoute, handlers.PodNameHandler).Methods(http.MethodGet)
	handler := a.Middleware(router)

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, handlers.PodNameRoute, nil))
	}
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, handlers.PodNameRoute, nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	expected := `
# HELP test_identity_http_requests_total http.requests_total
# TYPE test_identity_http_requests_total counter
test_identity_http_requests_total{method="GET",route="/get-podname",status="200"} 3
test_identity_http_requests_total{method="GET",route="unmatched",status="404"} 1
test_identity_http_requests_total{method="POST",route="unmatched",status="405"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(pc.Registry(), strings.NewReader(expected), "test_identity_http_requests_total"))
}

func TestRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/items/{id}", func(http.ResponseWriter, *http.Request) {}).Methods(http.MethodGet)

	assert.Equal(t, "/items/{id}", routeTemplate(router, httptest.NewRequest(http.MethodGet, "/items/7", nil)))
	assert.Equal(t, "unmatched", routeTemplate(router, httptest.NewRequest(http.MethodDelete, "/items/7", nil)))
	assert.Equal(t, "unmatched", routeTemplate(router, httptest.NewRequest(http.MethodGet, "/other", nil)))
	assert.Equal(t, "unmatched", routeTemplate(nil, httptest.NewRequest(http.MethodGet, "/items/7", nil)))
}

func TestMiddlewareUsesInjectedClock(t *testing.T) {
	a, buf := newTestAccessLog(t, nil, false)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	a.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 250 * time.Millisecond)
	}

	a.Middleware(http.HandlerFunc(handlers.PodNameHandler)).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, handlers.PodNameRoute, nil))

	assert.Equal(t, "250ms", lastEntry(t, buf)["duration"])
}

func TestClientIPTrust(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")

	untrusted, _ := newTestAccessLog(t, nil, false)
	assert.Equal(t, "127.0.0.1", untrusted.clientIP(req))

	trusted, _ := newTestAccessLog(t, nil, true)
	assert.Equal(t, "203.0.113.1", trusted.clientIP(req))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		xRealIP       string
		expectedIP    string
	}{
		{
			name:       "Simple RemoteAddr",
			remoteAddr: "192.168.1.1:12345",
			expectedIP: "192.168.1.1",
		},
		{
			name:          "X-Forwarded-For header",
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.1",
			expectedIP:    "203.0.113.1",
		},
		{
			name:       "X-Real-IP header",
			remoteAddr: "127.0.0.1:12345",
			xRealIP:    "203.0.113.2",
			expectedIP: "203.0.113.2",
		},
		{
			name:          "X-Forwarded-For with multiple IPs",
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.3,192.168.1.1",
			expectedIP:    "203.0.113.3",
		},
		{
			name:          "Invalid X-Forwarded-For falls through",
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "garbage",
			expectedIP:    "127.0.0.1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.4",
			expectedIP: "192.168.1.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}

			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.expectedIP, getClientIP(req))
		})
	}
}

func TestParseFirstIP(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"192.168.1.1", "192.168.1.1"},
		{"192.168.1.1,192.168.1.2", "192.168.1.1"},
		{"203.0.113.1, 192.168.1.1", "203.0.113.1"},
		{"invalid,192.168.1.1", ""},
		{"", ""},
		{"not-an-ip", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseFirstIP(tt.input))
		})
	}
}

func TestStatusRecorderDefaults(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	assert.Equal(t, http.StatusOK, rec.Status())

	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusNotFound, rec.Status())
}
