package util

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type responseMeta struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (m *responseMeta) WriteHeader(statusCode int) {
	m.status = statusCode
	m.ResponseWriter.WriteHeader(statusCode)
}

func (m *responseMeta) Write(p []byte) (int, error) {
	n, err := m.ResponseWriter.Write(p)
	m.bytes += int64(n)
	return n, err
}

// WithRequestLog emits one structured log line per HTTP request, carrying
// the request id so lines correlate with error responses.
func WithRequestLog(service string, next http.Handler) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		meta := &responseMeta{ResponseWriter: w}
		next.ServeHTTP(meta, r)
		status := meta.status
		if status == 0 {
			status = http.StatusOK
		}
		slog.Info(
			"http_request",
			"service", service,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", meta.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ClientIP(r, nil),
			"request_id", RequestIDFromRequest(r),
		)
	})
}
