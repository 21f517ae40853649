package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/synced-select/internal/entry"
	"github.com/nerrad567/synced-select/internal/infrastructure/config"
	"github.com/nerrad567/synced-select/internal/infrastructure/logging"
	"github.com/nerrad567/synced-select/internal/syncedselect"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakeEntries is an in-memory EntryService.
type fakeEntries struct {
	mu        sync.Mutex
	entries   map[string]*entry.Status
	loaded    map[string]bool
	listeners []entry.StateListener
	selected  []string
	excluded  []string
	listErr   error
	panicList bool
}

func newFakeEntries() *fakeEntries {
	return &fakeEntries{
		entries: make(map[string]*entry.Status),
		loaded:  make(map[string]bool),
	}
}

func (f *fakeEntries) add(id, name string, options ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = &entry.Status{
		Entry:  entry.Entry{ID: id, Name: name, Entities: []string{"select.a", "select.b"}},
		Loaded: true,
		State:  syncedselect.ProxyState{Options: options},
	}
	f.loaded[id] = true
}

func (f *fakeEntries) List(context.Context) ([]entry.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicList {
		panic("boom")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]entry.Status, 0, len(f.entries))
	for _, s := range f.entries {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeEntries) Get(_ context.Context, id string) (*entry.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entry.ErrEntryNotFound, id)
	}
	out := *s
	return &out, nil
}

func (f *fakeEntries) Create(_ context.Context, name string, entities []string) (*entry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", entry.ErrInvalidEntry)
	}
	for _, s := range f.entries {
		if s.Name == name {
			return nil, fmt.Errorf("%w: %q", entry.ErrEntryExists, name)
		}
	}
	id := fmt.Sprintf("e%d", len(f.entries)+1)
	f.entries[id] = &entry.Status{
		Entry:  entry.Entry{ID: id, Name: name, Entities: entities},
		Loaded: true,
		State:  syncedselect.ProxyState{Options: []string{}},
	}
	f.loaded[id] = true
	e := f.entries[id].Entry
	return &e, nil
}

func (f *fakeEntries) UpdateOptions(_ context.Context, id string, entities []string) (*entry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entry.ErrEntryNotFound, id)
	}
	s.Entities = entities
	e := s.Entry
	return &e, nil
}

func (f *fakeEntries) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[id]; !ok {
		return fmt.Errorf("%w: %s", entry.ErrEntryNotFound, id)
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeEntries) Select(_ context.Context, id, option string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", entry.ErrEntryNotFound, id)
	}
	if !f.loaded[id] {
		return fmt.Errorf("%w: %s", entry.ErrNotLoaded, id)
	}
	offered := false
	for _, o := range s.State.Options {
		if o == option {
			offered = true
		}
	}
	if !offered {
		return fmt.Errorf("%w: %q", entry.ErrOptionNotOffered, option)
	}
	f.selected = append(f.selected, id+"="+option)
	return nil
}

func (f *fakeEntries) Refresh(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entry.ErrEntryNotFound, id)
	}
	return s.State.Options, nil
}

func (f *fakeEntries) Candidates(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excluded = append(f.excluded, id)
	if id != "" {
		if _, ok := f.entries[id]; !ok {
			return nil, fmt.Errorf("%w: %s", entry.ErrEntryNotFound, id)
		}
	}
	return []string{"select.a", "select.b"}, nil
}

func (f *fakeEntries) AddStateListener(fn entry.StateListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *fakeEntries) emit(id string, state syncedselect.ProxyState) {
	f.mu.Lock()
	ls := append([]entry.StateListener{}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range ls {
		fn(id, state)
	}
}

type fakeHealth struct{ connected bool }

func (f fakeHealth) IsConnected() bool { return f.connected }

type fakePinger struct{ err error }

func (f fakePinger) HealthCheck(context.Context) error { return f.err }

func testDeps(entries EntryService) Deps {
	return Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testSecret,
				AccessTokenTTL: 15,
			},
		},
		Logger:  logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		Entries: entries,
		Version: "test",
	}
}

// testServer creates a Server backed by a fake entry service with a running hub.
func testServer(t *testing.T) (*Server, *fakeEntries) {
	t.Helper()

	entries := newFakeEntries()
	srv, err := New(testDeps(entries))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)
	t.Cleanup(cancel)

	return srv, entries
}

func testToken(t *testing.T) string {
	t.Helper()
	tok, err := IssueToken(testSecret, "tester", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return tok
}

// do sends an authenticated request through the router.
func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken(t))
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body %q is not JSON: %v", w.Body.String(), err)
	}
	return e
}

// ─── Constructor Tests ─────────────────────────────────────────────

func TestNew_RequiredDeps(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"no logger", func(d *Deps) { d.Logger = nil }},
		{"no entries", func(d *Deps) { d.Entries = nil }},
		{"no secret", func(d *Deps) { d.Security.JWT.Secret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps(newFakeEntries())
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestHealth_Degraded(t *testing.T) {
	deps := testDeps(newFakeEntries())
	deps.HomeAssistant = fakeHealth{connected: true}
	deps.MQTT = fakeHealth{connected: false}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var resp struct {
		Status string          `json:"status"`
		Checks map[string]bool `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if !resp.Checks["homeassistant"] || resp.Checks["mqtt"] {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestHealth_InfluxDB(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{"reachable", nil, "ok"},
		{"unreachable", errors.New("connection refused"), "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps(newFakeEntries())
			deps.InfluxDB = fakePinger{err: tt.err}
			srv, err := New(deps)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			w := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			var resp struct {
				Status string          `json:"status"`
				Checks map[string]bool `json:"checks"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if got, ok := resp.Checks["influxdb"]; !ok || got != (tt.err == nil) {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)

	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/entries", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	deps := testDeps(newFakeEntries())
	deps.Config.CORS.AllowedOrigins = []string{"https://ha.local"}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestRecovery(t *testing.T) {
	srv, entries := testServer(t)
	entries.panicList = true

	w := do(t, srv, http.MethodGet, "/api/v1/entries", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeInternal)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)

	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil))

	if w.Code != http.StatusNotFound && w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 404 or 401", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	deps := testDeps(newFakeEntries())
	deps.Security.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	router := srv.buildRouter()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		codes = append(codes, w.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("status codes = %v, want %v", codes, want)
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := newRateLimiter(60, 1)
	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")

	rl.prune(time.Now().Add(time.Minute))
	if n := rl.size(); n != 0 {
		t.Errorf("visitors after prune = %d, want 0", n)
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestAuth_Rejects(t *testing.T) {
	expired, err := IssueToken(testSecret, "tester", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	otherSecret, err := IssueToken(strings.Repeat("x", 40), "tester", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + otherSecret},
	}

	srv, _ := testServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/entries", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestAuth_QueryTokenOnlyForWebSocket(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entries?token="+testToken(t), nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for query token on REST route", w.Code)
	}
}

func TestIssueToken(t *testing.T) {
	if _, err := IssueToken("short", "x", time.Hour); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("IssueToken(short) error = %v, want ErrWeakSecret", err)
	}

	tok, err := IssueToken(testSecret, "cli", 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	subject, err := ParseToken(testSecret, tok)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if subject != "cli" {
		t.Errorf("subject = %q, want cli", subject)
	}

	if _, err := ParseToken(testSecret+"x", tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ParseToken(wrong secret) error = %v, want ErrInvalidToken", err)
	}
}

// ─── Entry Handler Tests ───────────────────────────────────────────

func TestListEntries(t *testing.T) {
	srv, entries := testServer(t)
	entries.add("e1", "TV", "HDMI 1")

	w := do(t, srv, http.MethodGet, "/api/v1/entries", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Entries []entry.Status `json:"entries"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Entries[0].ID != "e1" {
		t.Errorf("entries = %+v", resp)
	}
	if !reflect.DeepEqual(resp.Entries[0].State.Options, []string{"HDMI 1"}) {
		t.Errorf("options = %v", resp.Entries[0].State.Options)
	}
}

func TestListEntries_InternalError(t *testing.T) {
	srv, entries := testServer(t)
	entries.listErr = errors.New("disk on fire")

	w := do(t, srv, http.MethodGet, "/api/v1/entries", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "disk on fire") {
		t.Error("internal error detail leaked to client")
	}
}

func TestCreateEntry(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"created", `{"name":"Living Room","entities":["select.a","select.b"]}`, http.StatusCreated, ""},
		{"invalid json", `{"name":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"empty name", `{"name":"  ","entities":[]}`, http.StatusBadRequest, ErrCodeValidation},
		{"duplicate", `{"name":"TV","entities":[]}`, http.StatusConflict, ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, entries := testServer(t)
			entries.add("e0", "TV")

			w := do(t, srv, http.MethodPost, "/api/v1/entries", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantErr != "" {
				if e := decodeError(t, w); e.Code != tt.wantErr || e.Status != tt.wantCode {
					t.Errorf("error = %+v, want code %q", e, tt.wantErr)
				}
				return
			}

			var got entry.Status
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Name != "Living Room" || !got.Loaded {
				t.Errorf("created = %+v", got)
			}
		})
	}
}

func TestGetEntry(t *testing.T) {
	srv, entries := testServer(t)
	entries.add("e1", "TV", "a")

	w := do(t, srv, http.MethodGet, "/api/v1/entries/e1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/entries/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

func TestDeleteEntry(t *testing.T) {
	srv, entries := testServer(t)
	entries.add("e1", "TV")

	if w := do(t, srv, http.MethodDelete, "/api/v1/entries/e1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/api/v1/entries/e1", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestUpdateOptions(t *testing.T) {
	srv, entries := testServer(t)
	entries.add("e1", "TV")

	w := do(t, srv, http.MethodPut, "/api/v1/entries/e1/options", `{"entities":["select.c"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var got entry.Status
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Entities, []string{"select.c"}) {
		t.Errorf("entities = %v", got.Entities)
	}

	if w := do(t, srv, http.MethodPut, "/api/v1/entries/e1/options", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing entities status = %d, want 400", w.Code)
	}
	if w := do(t, srv, http.MethodPut, "/api/v1/entries/nope/options", `{"entities":[]}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown entry status = %d, want 404", w.Code)
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		unload   bool
		wantCode int
	}{
		{"accepted", "/api/v1/entries/e1/select", `{"option":"HDMI 2"}`, false, http.StatusAccepted},
		{"not offered", "/api/v1/entries/e1/select", `{"option":"VGA"}`, false, http.StatusBadRequest},
		{"empty option", "/api/v1/entries/e1/select", `{"option":""}`, false, http.StatusBadRequest},
		{"unknown entry", "/api/v1/entries/nope/select", `{"option":"HDMI 2"}`, false, http.StatusNotFound},
		{"not loaded", "/api/v1/entries/e1/select", `{"option":"HDMI 2"}`, true, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, entries := testServer(t)
			entries.add("e1", "TV", "HDMI 1", "HDMI 2")
			if tt.unload {
				entries.loaded["e1"] = false
			}

			w := do(t, srv, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode == http.StatusAccepted && !reflect.DeepEqual(entries.selected, []string{"e1=HDMI 2"}) {
				t.Errorf("selected = %v", entries.selected)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	srv, entries := testServer(t)
	entries.add("e1", "TV", "a", "b")

	w := do(t, srv, http.MethodPost, "/api/v1/entries/e1/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Options []string `json:"options"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(resp.Options, []string{"a", "b"}) {
		t.Errorf("options = %v", resp.Options)
	}
}

func TestListSources(t *testing.T) {
	srv, entries := testServer(t)
	entries.add("e1", "TV")

	w := do(t, srv, http.MethodGet, "/api/v1/sources?exclude_entry=e1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !reflect.DeepEqual(entries.excluded, []string{"e1"}) {
		t.Errorf("Candidates called with %v, want [e1]", entries.excluded)
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/sources?exclude_entry=nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown exclude_entry status = %d, want 404", w.Code)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestServer_HealthCheck(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ─── WebSocket Tests ───────────────────────────────────────────────

// dialWS starts the router on a test listener and opens an authenticated WebSocket.
func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?token=" + testToken(t)
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	return msg
}

func TestWebSocket_Unauthorized(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestWebSocket_ProxyStateBroadcast(t *testing.T) {
	srv, entries := testServer(t)
	ws := dialWS(t, srv)
	waitForClients(t, srv.hub, 1)

	entries.emit("e1", syncedselect.ProxyState{Options: []string{"a", "b"}})

	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelProxyState {
		t.Fatalf("message = %+v, want %s event", msg, ChannelProxyState)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok || payload["entry_id"] != "e1" {
		t.Errorf("payload = %#v", msg.Payload)
	}
}

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	srv, entries := testServer(t)
	ws := dialWS(t, srv)
	waitForClients(t, srv.hub, 1)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "u1",
		Payload: WSSubscribePayload{Channels: []string{ChannelProxyState}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeResponse || resp.ID != "u1" {
		t.Fatalf("unsubscribe response = %+v", resp)
	}

	entries.emit("e1", syncedselect.ProxyState{Options: []string{"a"}})

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	// The pong must be the next message: the broadcast was not delivered.
	if resp := readWS(t, ws); resp.Type != WSTypePong || resp.ID != "p1" {
		t.Errorf("message after unsubscribe = %+v, want pong", resp)
	}
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	srv, _ := testServer(t)
	ws := dialWS(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError {
		t.Errorf("invalid JSON response type = %s, want error", resp.Type)
	}

	if err := ws.WriteJSON(WSMessage{Type: "launch", ID: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError || resp.ID != "x" {
		t.Errorf("unknown type response = %+v, want error", resp)
	}
}

func TestHub_ClientCount(t *testing.T) {
	srv, _ := testServer(t)
	ws := dialWS(t, srv)
	waitForClients(t, srv.hub, 1)

	ws.Close()
	waitForClients(t, srv.hub, 0)
}
