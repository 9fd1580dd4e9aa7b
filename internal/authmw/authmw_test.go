package authmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linnemanlabs/go-core/log"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets", http.NoBody)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuard_ValidToken(t *testing.T) {
	t.Parallel()

	h := Guard("secret-token-123", log.Nop())(okHandler)

	for _, auth := range []string{"Bearer secret-token-123", "bearer secret-token-123", "BEARER  secret-token-123 "} {
		if rec := serve(h, auth); rec.Code != http.StatusOK {
			t.Errorf("%q: status = %d, want %d", auth, rec.Code, http.StatusOK)
		}
	}
}

func TestGuard_Rejects(t *testing.T) {
	t.Parallel()

	h := Guard("correct-token", nil)(okHandler)

	tests := []struct {
		name string
		auth string
	}{
		{"missing header", ""},
		{"Basic auth", "Basic dXNlcjpwYXNz"},
		{"no scheme", "correct-token"},
		{"empty credential", "Bearer "},
		{"wrong token", "Bearer wrong-token"},
		{"partial match", "Bearer correct"},
		{"token with suffix", "Bearer correct-token-extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(h, tt.auth)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != challenge {
				t.Errorf("WWW-Authenticate = %q, want %q", got, challenge)
			}
		})
	}
}

func TestGuard_EmptyTokenDisablesAuth(t *testing.T) {
	t.Parallel()

	h := Guard("", nil)(okHandler)

	if rec := serve(h, ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestGuard_PassesRequestThrough(t *testing.T) {
	t.Parallel()

	var called bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})

	rec := serve(Guard("tok", log.Nop())(inner), "Bearer tok")

	if !called {
		t.Error("inner handler was not called")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}
