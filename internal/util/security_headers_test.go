package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveWithSecurityHeaders(t *testing.T, mutate func(*http.Request)) http.Header {
	t.Helper()
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Header()
}

func TestSecurityHeadersOnPlainHTTP(t *testing.T) {
	headers := serveWithSecurityHeaders(t, nil)

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for name, value := range want {
		if got := headers.Get(name); got != value {
			t.Fatalf("%s = %q, want %q", name, got, value)
		}
	}
	if headers.Get("Content-Security-Policy") == "" {
		t.Fatal("expected a CSP header")
	}
	if got := headers.Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS on plain http = %q, want unset", got)
	}
}

func TestSecurityHeadersHSTSBehindTLSProxy(t *testing.T) {
	headers := serveWithSecurityHeaders(t, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "https")
	})
	if headers.Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS when forwarded proto is https")
	}
}
