package util

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDHeader carries the correlation id on requests and responses.
const RequestIDHeader = "X-Request-Id"

// WithRequestID honors an incoming correlation id or mints one, writes it to
// the response header, and stores it in the request context.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = NewID()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the correlation id, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestIDFromRequest returns the correlation id of an HTTP request.
func RequestIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return RequestIDFromContext(r.Context())
}
