package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/automataweaver/backend/internal/auth/authtest"
	"github.com/automataweaver/backend/internal/auth/google"
	"github.com/automataweaver/backend/internal/auth/local"
	"github.com/automataweaver/backend/internal/auth/token"
	"github.com/automataweaver/backend/internal/auth/user"
	"github.com/automataweaver/backend/internal/platform/config"
	"github.com/automataweaver/backend/internal/platform/requestctx"
	"github.com/automataweaver/backend/internal/session"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*session.Session)}
}

func (s *memSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	clone := *sess
	return &clone, nil
}

func (s *memSessionStore) Put(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *memSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastTouched = at
	}
	return nil
}

func (s *memSessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memSessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// recordingRenderer captures the last render call instead of executing
// templates.
type recordingRenderer struct {
	name string
	data pageData
}

func (r *recordingRenderer) Render(w http.ResponseWriter, name string, data any) error {
	r.name = name
	r.data, _ = data.(pageData)
	fmt.Fprintf(w, "page:%s", name)
	return nil
}

type testEnv struct {
	server   *Server
	users    *authtest.UserStore
	sessions *memSessionStore
	renderer *recordingRenderer
	tokens   *token.Issuer
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	users := authtest.NewUserStore()
	store := newMemSessionStore()
	renderer := &recordingRenderer{}
	issuer := token.NewIssuer("token-secret")

	opts := Options{
		Config: config.Config{
			FrontendURL:   "https://app.example.com",
			Environment:   "development",
			SessionSecret: "session-secret",
			TokenSecret:   "token-secret",
			Port:          8080,
		},
		Sessions: session.NewManager(store, "session-secret", false),
		Users:    users,
		Local:    local.NewVerifier(users, bcrypt.MinCost),
		Tokens:   issuer,
		Renderer: renderer,
	}
	opts.Google = google.NewProvider("client-id", "client-secret", "https://backend.example.com/api/auth/google/callback")
	opts.Resolver = google.NewResolver(users)
	if mutate != nil {
		mutate(&opts)
	}

	return &testEnv{
		server:   New(opts),
		users:    users,
		sessions: store,
		renderer: renderer,
		tokens:   issuer,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// sessionCookie extracts the session cookie a response set. The last write
// wins, matching browser behavior when a handler rotates the session.
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			found = c
		}
	}
	return found
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func seedLocalUser(t *testing.T, users *authtest.UserStore, username, password string) user.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return users.Seed(user.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["environment"] != "development" {
		t.Errorf("environment = %v, want development", body["environment"])
	}
	stamp, _ := body["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", stamp, err)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Errorf("Allow-Headers %q is missing Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := seedLocalUser(t, env.users, "ada", "hunter2")

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"ada","password":"hunter2"}`))
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if raw, _ := body["token"].(string); raw == "" {
		t.Error("token is empty")
	} else if subject, err := env.tokens.Verify(raw); err != nil || subject != seeded.ID {
		t.Errorf("token subject = %q, %v, want %q", subject, err, seeded.ID)
	}
	profile, _ := body["user"].(map[string]any)
	if profile["username"] != "ada" {
		t.Errorf("user = %v", body["user"])
	}

	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("no session cookie set")
	}
	stored, err := env.sessions.Get(context.Background(), strings.SplitN(cookie.Value, ".", 2)[0])
	if err != nil || stored == nil {
		t.Fatalf("stored session: %v, %v", stored, err)
	}
	if stored.UserID != seeded.ID {
		t.Errorf("session user = %q, want %q", stored.UserID, seeded.ID)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	seedLocalUser(t, env.users, "ada", "hunter2")

	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"username":"ada","password":"nope"}`},
		{"unknown user", `{"username":"ghost","password":"hunter2"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tc.body)))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			body := decodeBody(t, rec)
			if body["message"] != genericAuthFailure {
				t.Errorf("message = %v, want %q", body["message"], genericAuthFailure)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/register",
		strings.NewReader(`{"username":"grace","email":"grace@example.com","password":"s3cret"}`))
	rec := env.do(req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if env.users.Len() != 1 {
		t.Fatalf("stored users = %d, want 1", env.users.Len())
	}
	stored, err := env.users.FindByUsername(context.Background(), "grace")
	if err != nil || stored == nil {
		t.Fatalf("stored user: %v, %v", stored, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
	if sessionCookie(rec) == nil {
		t.Error("no session cookie set")
	}
}

func TestRegisterConflict(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"same username", `{"username":"grace","email":"other@example.com","password":"new"}`},
		{"padded username", `{"username":"  grace  ","email":"other@example.com","password":"new"}`},
		{"same email different case", `{"username":"other","email":"Grace@Example.com","password":"new"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			seedLocalUser(t, env.users, "grace", "old")

			rec := env.do(httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(tc.body)))
			if rec.Code != http.StatusConflict {
				t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusConflict, rec.Body.String())
			}
			if env.users.Len() != 1 {
				t.Errorf("stored users = %d, want 1", env.users.Len())
			}
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	seedLocalUser(t, env.users, "ada", "hunter2")

	login := env.do(httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"ada","password":"hunter2"}`)))
	cookie := sessionCookie(login)
	if cookie == nil {
		t.Fatal("login set no cookie")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	cleared := sessionCookie(rec)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("logout did not expire the cookie: %+v", cleared)
	}
	stored, _ := env.sessions.Get(context.Background(), strings.SplitN(cookie.Value, ".", 2)[0])
	if stored != nil {
		t.Error("session record survived logout")
	}
}

func TestBearerTokenIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := seedLocalUser(t, env.users, "ada", "hunter2")

	signed, err := env.tokens.Issue(seeded.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if env.renderer.name != "landing" {
		t.Fatalf("rendered %q, want landing", env.renderer.name)
	}
	if env.renderer.data.CurrentUser == nil || env.renderer.data.CurrentUser.ID != seeded.ID {
		t.Errorf("current user = %+v, want %q", env.renderer.data.CurrentUser, seeded.ID)
	}
}

func TestStaleIdentityDegradesToAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)
	seeded := seedLocalUser(t, env.users, "ada", "hunter2")

	login := env.do(httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"ada","password":"hunter2"}`)))
	cookie := sessionCookie(login)
	if cookie == nil {
		t.Fatal("login set no cookie")
	}
	signed, err := env.tokens.Issue(seeded.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	// The account vanishes while the session and token are still live.
	env.users.Remove(seeded.ID)

	t.Run("session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		rec := env.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if env.renderer.data.CurrentUser != nil {
			t.Errorf("current user = %+v, want anonymous", env.renderer.data.CurrentUser)
		}
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := env.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if env.renderer.data.CurrentUser != nil {
			t.Errorf("current user = %+v, want anonymous", env.renderer.data.CurrentUser)
		}
	})
}

func TestRecovery(t *testing.T) {
	panicRoutes := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("automata table corrupted")
	})

	t.Run("development exposes detail", func(t *testing.T) {
		env := newTestEnv(t, func(opts *Options) {
			opts.AutomataRoutes = panicRoutes
		})
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/automata/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
		}
		body := decodeBody(t, rec)
		if body["message"] != "An unexpected error occurred" {
			t.Errorf("message = %v", body["message"])
		}
		if body["error"] != "automata table corrupted" {
			t.Errorf("error = %v, want panic detail", body["error"])
		}
	})

	t.Run("production hides detail", func(t *testing.T) {
		env := newTestEnv(t, func(opts *Options) {
			opts.Config.Environment = "production"
			opts.AutomataRoutes = panicRoutes
		})
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/automata/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
		}
		body := decodeBody(t, rec)
		detail, ok := body["error"].(map[string]any)
		if !ok || len(detail) != 0 {
			t.Errorf("error = %v, want empty object", body["error"])
		}
	})
}

func TestMountedRoutesSeeIdentity(t *testing.T) {
	env := newTestEnv(t, func(opts *Options) {
		opts.UserRoutes = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := requestctx.UserFromContext(r.Context())
			if current == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": current.Username})
		})
	})
	seeded := seedLocalUser(t, env.users, "ada", "hunter2")

	login := env.do(httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"ada","password":"hunter2"}`)))
	cookie := sessionCookie(login)
	if cookie == nil {
		t.Fatal("login set no cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["username"] != seeded.Username {
		t.Errorf("username = %v, want %q", body["username"], seeded.Username)
	}
}

func TestGoogleFlow(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			if r.FormValue("code") != "auth-code" {
				http.Error(w, "bad code", http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "provider-token", "expires_in": 3600})
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer provider-token" {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"sub":   "google-sub-1",
				"name":  "Ada Lovelace",
				"email": "Ada@Example.com",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer provider.Close()

	env := newTestEnv(t, func(opts *Options) {
		opts.Google = &google.Provider{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			CallbackURL:  "https://backend.example.com/api/auth/google/callback",
			AuthURL:      provider.URL + "/auth",
			TokenURL:     provider.URL + "/token",
			UserInfoURL:  provider.URL + "/userinfo",
		}
	})

	start := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/google", nil))
	if start.Code != http.StatusFound {
		t.Fatalf("start status = %d, want %d", start.Code, http.StatusFound)
	}
	cookie := sessionCookie(start)
	if cookie == nil {
		t.Fatal("start set no session cookie")
	}
	location, err := url.Parse(start.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse consent redirect: %v", err)
	}
	state := location.Query().Get("state")
	if state == "" {
		t.Fatal("consent redirect has no state")
	}

	callback := httptest.NewRequest(http.MethodGet,
		"/api/auth/google/callback?code=auth-code&state="+url.QueryEscape(state), nil)
	callback.AddCookie(cookie)
	rec := env.do(callback)
	if rec.Code != http.StatusFound {
		t.Fatalf("callback status = %d, want %d: %s", rec.Code, http.StatusFound, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != "/redirect" {
		t.Errorf("callback redirect = %q, want /redirect", got)
	}

	created, err := env.users.FindByGoogleIDOrEmail(context.Background(), "google-sub-1", "")
	if err != nil || created == nil {
		t.Fatalf("created user: %v, %v", created, err)
	}
	if created.Email != "ada@example.com" {
		t.Errorf("email = %q, want lowercased", created.Email)
	}

	renewed := sessionCookie(rec)
	if renewed == nil {
		t.Fatal("callback set no session cookie")
	}
	if renewed.Value == cookie.Value {
		t.Error("callback did not rotate the session id")
	}
}

func TestGoogleCallbackStateMismatch(t *testing.T) {
	env := newTestEnv(t, nil)

	start := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/google", nil))
	cookie := sessionCookie(start)
	if cookie == nil {
		t.Fatal("start set no session cookie")
	}

	callback := httptest.NewRequest(http.MethodGet,
		"/api/auth/google/callback?code=auth-code&state=forged", nil)
	callback.AddCookie(cookie)
	rec := env.do(callback)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLandingShowsFlash(t *testing.T) {
	env := newTestEnv(t, nil)
	seedLocalUser(t, env.users, "ada", "hunter2")

	login := env.do(httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"ada","password":"hunter2"}`)))
	cookie := sessionCookie(login)
	if cookie == nil {
		t.Fatal("login set no cookie")
	}

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.AddCookie(cookie)
	env.do(first)
	if len(env.renderer.data.Success) != 1 {
		t.Fatalf("first render success flashes = %v, want one", env.renderer.data.Success)
	}

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.AddCookie(cookie)
	env.do(second)
	if len(env.renderer.data.Success) != 0 {
		t.Errorf("flash survived a second render: %v", env.renderer.data.Success)
	}
}
