package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// passHandler answers 200 "ok".
var passHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok")) //nolint:errcheck
})

func call(t *testing.T, h http.Handler, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/goals", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware_ModeNone_PassesThrough(t *testing.T) {
	h := APIKeyMiddleware("none", "x-api-key", "secret")(passHandler)
	// No key on the request: still passes because mode != "apikey".
	if rec := call(t, h, "x-api-key", ""); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKeyMiddleware_EmptyKey_PassesThrough(t *testing.T) {
	// key="" means auth is not configured → allow all.
	h := APIKeyMiddleware("apikey", "x-api-key", "")(passHandler)
	if rec := call(t, h, "x-api-key", ""); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKeyMiddleware_CorrectKey_Passes(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "supersecret")(passHandler)
	rec := call(t, h, "x-api-key", "supersecret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body: got %q, want ok", rec.Body.String())
	}
}

func TestAPIKeyMiddleware_HeaderCaseInsensitive(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "supersecret")(passHandler)
	if rec := call(t, h, "X-Api-Key", "supersecret"); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKeyMiddleware_Rejects(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "supersecret")(passHandler)
	for name, key := range map[string]string{"missing": "", "wrong": "nope", "prefix": "supersecre"} {
		rec := call(t, h, "x-api-key", key)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status got %d, want 401", name, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: Content-Type got %q", name, ct)
		}
	}
}
