package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/somerville/nbhd-map/internal/logger"
	"github.com/somerville/nbhd-map/internal/middleware"
	"golang.org/x/crypto/bcrypt"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// call wraps a simple 200-OK handler in mw and records one request.
func call(t *testing.T, mw func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(ok)).ServeHTTP(rec, req)
	return rec
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodGet, "/neighborhoods", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	rec := call(t, mw, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("expected origin to be echoed, got %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Errorf("expected Vary: Origin")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-Data-Status") {
		t.Errorf("expected X-Data-Status to be exposed")
	}
}

func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodGet, "/neighborhoods", nil)
	req.Header.Set("Origin", "https://evil.example")

	rec := call(t, mw, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow-origin header, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected request to pass through, got %d", rec.Code)
	}
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/neighborhoods", nil)
	req.Header.Set("Origin", "https://anyone.example")

	rec := call(t, mw, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected *, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Errorf("wildcard must not allow credentials")
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodOptions, "/admin/neighborhoods/reload", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	rec := call(t, mw, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func hash(t *testing.T, token string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestAdminTokenMiddleware(t *testing.T) {
	mw := middleware.AdminTokenMiddleware(hash(t, "s3cret"))

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "guess", http.StatusForbidden},
		{"valid", "s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/admin/neighborhoods/reload", nil)
		if tc.token != "" {
			req.Header.Set("X-Admin-Token", tc.token)
		}
		if rec := call(t, mw, req); rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestAdminTokenMiddleware_Disabled(t *testing.T) {
	mw := middleware.AdminTokenMiddleware("")
	req := httptest.NewRequest(http.MethodPost, "/admin/neighborhoods/reload", nil)
	req.Header.Set("X-Admin-Token", "")

	if rec := call(t, mw, req); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 2)

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/neighborhoods", nil)
		req.RemoteAddr = addr
		return call(t, rl.Middleware, req).Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1:5000"); code != http.StatusOK {
			t.Fatalf("request %d within burst: expected 200, got %d", i, code)
		}
	}
	if code := send("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the burst is spent, got %d", code)
	}
	if code := send("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("other clients keep their own bucket, got %d", code)
	}
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	rl := middleware.NewRateLimiter(0.5, 1)
	req := httptest.NewRequest(http.MethodGet, "/neighborhoods", nil)

	call(t, rl.Middleware, req)
	rec := call(t, rl.Middleware, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Errorf("expected Retry-After 3, got %q", got)
	}
}

func TestRateLimiter_SweepKeepsActiveVisitors(t *testing.T) {
	rl := middleware.NewRateLimiter(10, 10)
	req := httptest.NewRequest(http.MethodGet, "/neighborhoods", nil)
	call(t, rl.Middleware, req)

	if n := rl.Sweep(); n != 0 {
		t.Errorf("expected recent visitor to survive the sweep, dropped %d", n)
	}
}

func TestAccessLogKeepsStatus(t *testing.T) {
	mw := middleware.AccessLog(logger.Nop())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418 to pass through, got %d", rec.Code)
	}
}

func TestInstrumentUnderChi(t *testing.T) {
	r := chi.NewRouter()
	r.Use(middleware.Instrument)
	r.Get("/neighborhoods/{id}", ok)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/neighborhoods/3", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
