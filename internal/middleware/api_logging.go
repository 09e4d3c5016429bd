package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gatehouse-backend/internal/metrics"
)

const unmatchedRoute = "unmatched"

// RequestLogger logs every API request and records it in the request
// metrics, labelled by route template rather than raw path.
type RequestLogger struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func NewRequestLogger(logger *zap.Logger, m *metrics.Metrics) *RequestLogger {
	return &RequestLogger{
		logger:  logger.With(zap.String("component", "http")),
		metrics: m,
	}
}

// Handler returns the middleware handler
func (m *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipLogging(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		route := routeTemplate(r)
		m.metrics.ObserveRequest(r.Method, route, wrapped.statusCode, duration)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", sanitizePath(r.URL.Path)),
			zap.Int("status", wrapped.statusCode),
			zap.Int("bytes", wrapped.bytesWritten),
			zap.Duration("duration", duration),
			zap.String("client_ip", getClientIP(r)),
		}
		switch {
		case wrapped.statusCode >= 500:
			m.logger.Error("request failed", fields...)
		case wrapped.statusCode >= 400:
			m.logger.Warn("request rejected", fields...)
		default:
			m.logger.Info("request", fields...)
		}
	})
}

// routeTemplate returns the mux path template so metrics are not
// labelled with session or image ids.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tpl
}

// shouldSkipLogging returns true for paths that shouldn't be logged
func shouldSkipLogging(path string) bool {
	skipPaths := []string{
		"/health",
		"/metrics",
		"/favicon.ico",
	}

	for _, skip := range skipPaths {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}

	return false
}

// sanitizePath truncates very long paths.
func sanitizePath(path string) string {
	if len(path) > 500 {
		path = path[:500]
	}
	return path
}
