package accesslog

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zircuit-labs/pod-identity/cmd/handlers"
	"github.com/zircuit-labs/pod-identity/cmd/logger"
	"github.com/zircuit-labs/pod-identity/cmd/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	// RequestIDHeader carries the request ID in both directions
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLength = 128
)

// AccessLog logs every completed request and records request metrics
type AccessLog struct {
	log            *logger.Logger
	metrics        metrics.Client
	trustForwarded bool
	now            func() time.Time
}

// New creates an access logger. A nil metrics client disables metrics.
func New(log *logger.Logger, m metrics.Client, trustForwarded bool) *AccessLog {
	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = &metrics.NoOpClient{}
	}
	return &AccessLog{
		log:            log,
		metrics:        m,
		trustForwarded: trustForwarded,
		now:            time.Now,
	}
}

// Middleware returns an HTTP middleware that logs the request once the
// wrapped handler returns. Status and body are passed through untouched.
// When next is a *mux.Router, its routes label the request metrics.
func (a *AccessLog) Middleware(next http.Handler) http.Handler {
	router, _ := next.(*mux.Router)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := a.now()

		requestID := incomingRequestID(r)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(logger.ContextWithRequestID(r.Context(), requestID))

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		duration := a.now().Sub(start)
		status := rec.Status()

		a.log.LogRequest(logger.RequestInfo{
			Method:     r.Method,
			Path:       r.URL.Path,
			ClientIP:   a.clientIP(r),
			UserAgent:  r.UserAgent(),
			RequestID:  requestID,
			PodName:    handlers.LookupPodName(),
			StatusCode: status,
			Duration:   duration,
		})

		route := routeTemplate(router, r)
		a.metrics.Incr("http.requests_total", []string{
			"route:" + route,
			"method:" + r.Method,
			fmt.Sprintf("status:%d", status),
		}, 1)
		a.metrics.Timing("http.request_duration_seconds", duration, []string{
			"route:" + route,
			"method:" + r.Method,
		}, 1)
	})
}

// incomingRequestID accepts a caller supplied ID if it is short and printable
func incomingRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if id == "" || len(id) > maxRequestIDLength {
		return ""
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return id
}

// routeTemplate keeps metric label cardinality bounded. Requests that no
// route fully matches (404, 405) share the "unmatched" label.
func routeTemplate(router *mux.Router, r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil && router != nil {
		var match mux.RouteMatch
		if router.Match(r, &match) && match.MatchErr == nil {
			route = match.Route
		}
	}
	if route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func (a *AccessLog) clientIP(r *http.Request) string {
	if a.trustForwarded {
		return getClientIP(r)
	}
	return remoteHost(r)
}

// getClientIP extracts the real client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (most common)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	xri := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseFirstIP extracts the first valid IP from a comma-separated list
func parseFirstIP(ips string) string {
	first, _, _ := strings.Cut(ips, ",")
	first = strings.TrimSpace(first)
	if net.ParseIP(first) != nil {
		return first
	}
	return ""
}
