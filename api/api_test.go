package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/account"
	"github.com/xraph/rvoc/api"
	"github.com/xraph/rvoc/password"
	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/store/memory"
	"github.com/xraph/rvoc/vocab"
)

func init() { gin.SetMode(gin.TestMode) }

var testParams = password.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type server struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
}

func newServer(t *testing.T, mutate func(*rvoc.Config), p api.Pinger) *server {
	t.Helper()
	cfg := rvoc.DefaultConfig()
	cfg.HTTP.LoginRateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}
	if p == nil {
		p = pinger{}
	}
	st := memory.New()
	accounts := account.NewService(st, password.NewHasher(testParams, "pepper"), cfg, nil)
	sessions := session.NewManager(st, nil)
	return &server{t: t, handler: api.New(accounts, sessions, st, p, cfg).Handler()}
}

// do sends a request carrying the current session cookie and keeps any
// cookie the response sets.
func (s *server) do(method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			s.cookie = nil
		} else {
			s.cookie = c
		}
	}
	return rec
}

func creds(user, pass string) string {
	b, _ := json.Marshal(api.CredentialsRequest{Username: user, Password: pass})
	return string(b)
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil, nil)
	wantStatus(t, s.do(http.MethodGet, "/healthz", ""), http.StatusOK)
	wantStatus(t, s.do(http.MethodGet, "/readyz", ""), http.StatusOK)

	down := newServer(t, nil, pinger{err: errors.New("connection refused")})
	wantStatus(t, down.do(http.MethodGet, "/healthz", ""), http.StatusOK)
	wantStatus(t, down.do(http.MethodGet, "/readyz", ""), http.StatusServiceUnavailable)
}

func TestSignup(t *testing.T) {
	s := newServer(t, nil, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"created", creds("tim", "secret-password"), http.StatusCreated},
		{"duplicate", creds("tim", "other-password"), http.StatusConflict},
		{"short password", creds("tom", "short"), http.StatusBadRequest},
		{"padded username", creds(" tom", "secret-password"), http.StatusBadRequest},
		{"missing field", `{"username":"tom"}`, http.StatusBadRequest},
		{"not json", `tom`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantStatus(t, s.do(http.MethodPost, "/accounts", tt.body), tt.want)
		})
	}
}

func TestLoginSessionLifecycle(t *testing.T) {
	s := newServer(t, nil, nil)
	wantStatus(t, s.do(http.MethodPost, "/accounts", creds("tim", "secret-password")), http.StatusCreated)

	wantStatus(t, s.do(http.MethodGet, "/accounts/me", ""), http.StatusUnauthorized)
	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "wrong-password")), http.StatusUnauthorized)
	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("nobody", "secret-password")), http.StatusUnauthorized)

	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "secret-password")), http.StatusOK)
	if s.cookie == nil {
		t.Fatal("login did not set a session cookie")
	}
	if !s.cookie.HttpOnly {
		t.Error("session cookie is not HttpOnly")
	}
	first := s.cookie

	rec := s.do(http.MethodGet, "/accounts/me", "")
	wantStatus(t, rec, http.StatusOK)
	var me api.AccountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.Username != "tim" {
		t.Errorf("username = %q, want tim", me.Username)
	}

	// A second login rotates the session id.
	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "secret-password")), http.StatusOK)
	if s.cookie.Value == first.Value {
		t.Error("session id was not rotated")
	}
	rotated := s.cookie
	s.cookie = first
	wantStatus(t, s.do(http.MethodGet, "/accounts/me", ""), http.StatusUnauthorized)
	s.cookie = rotated

	wantStatus(t, s.do(http.MethodPost, "/accounts/logout", ""), http.StatusNoContent)
	if s.cookie != nil {
		t.Error("logout did not clear the cookie")
	}
	s.cookie = rotated
	wantStatus(t, s.do(http.MethodGet, "/accounts/me", ""), http.StatusUnauthorized)
}

func TestLoginWithStaleCookieCreatesSession(t *testing.T) {
	s := newServer(t, nil, nil)
	wantStatus(t, s.do(http.MethodPost, "/accounts", creds("tim", "secret-password")), http.StatusCreated)

	s.cookie = &http.Cookie{Name: rvoc.DefaultConfig().Sessions.CookieName, Value: "c3RhbGUtc2Vzc2lvbi1pZA"}
	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "secret-password")), http.StatusOK)
	wantStatus(t, s.do(http.MethodGet, "/accounts/me", ""), http.StatusOK)
}

func TestDeleteAccount(t *testing.T) {
	s := newServer(t, nil, nil)
	wantStatus(t, s.do(http.MethodPost, "/accounts", creds("tim", "secret-password")), http.StatusCreated)
	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "secret-password")), http.StatusOK)
	held := s.cookie

	wantStatus(t, s.do(http.MethodDelete, "/accounts/me", ""), http.StatusNoContent)

	s.cookie = held
	wantStatus(t, s.do(http.MethodGet, "/accounts/me", ""), http.StatusUnauthorized)
	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "secret-password")), http.StatusUnauthorized)
}

func TestReferenceData(t *testing.T) {
	s := newServer(t, nil, nil)

	rec := s.do(http.MethodGet, "/languages", "")
	wantStatus(t, rec, http.StatusOK)
	var langs []vocab.Language
	if err := json.Unmarshal(rec.Body.Bytes(), &langs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(langs) == 0 {
		t.Error("no languages")
	}

	rec = s.do(http.MethodGet, "/word-types", "")
	wantStatus(t, rec, http.StatusOK)
	var types []vocab.WordType
	if err := json.Unmarshal(rec.Body.Bytes(), &types); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(types) == 0 {
		t.Error("no word types")
	}
}

func TestLoginRateLimitPerClient(t *testing.T) {
	s := newServer(t, func(c *rvoc.Config) {
		c.HTTP.LoginRateLimit = 0.001
		c.HTTP.LoginRateBurst = 2
	}, nil)

	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "secret-password")), http.StatusUnauthorized)
	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "secret-password")), http.StatusUnauthorized)
	wantStatus(t, s.do(http.MethodPost, "/accounts/login", creds("tim", "secret-password")), http.StatusTooManyRequests)

	// Other routes are not limited.
	wantStatus(t, s.do(http.MethodGet, "/languages", ""), http.StatusOK)
}

func TestRequestID(t *testing.T) {
	s := newServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(api.HeaderRequestID); !strings.HasPrefix(got, "req_") {
		t.Errorf("generated request id = %q, want req_ prefix", got)
	}

	const client = "6f1c2a8e-3b5d-4c7e-9a0b-1d2e3f4a5b6c"
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(api.HeaderRequestID, client)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(api.HeaderRequestID); got != client {
		t.Errorf("request id = %q, want %q", got, client)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(api.HeaderRequestID, "<script>")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(api.HeaderRequestID); !strings.HasPrefix(got, "req_") {
		t.Errorf("request id = %q, want a generated one", got)
	}
}
