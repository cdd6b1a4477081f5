package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDKeepsIncomingValue(t *testing.T) {
	const incoming = "req-abc-123"
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != incoming {
		t.Fatalf("context id = %q, want %q", seen, incoming)
	}
	if got := rec.Header().Get(RequestIDHeader); got != incoming {
		t.Fatalf("response header = %q, want %q", got, incoming)
	}
}

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if seen == "" {
		t.Fatal("expected generated id in context")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("header %q does not match context id %q", rec.Header().Get(RequestIDHeader), seen)
	}
}
