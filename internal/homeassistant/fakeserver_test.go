package homeassistant

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/synced-select/internal/infrastructure/config"
)

const testToken = "test-token"

// fakeHA is a minimal Home Assistant WebSocket API server.
type fakeHA struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	states      []State
	serviceErr  *CommandError
	calls       []map[string]any
	conns       []*fakeConn
	connections int
	silent      bool
}

type fakeConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *fakeConn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func newFakeHA(t *testing.T, states ...State) *fakeHA {
	t.Helper()
	f := &fakeHA{t: t, states: states}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeHA) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &fakeConn{ws: ws}
	defer ws.Close()

	if err := conn.write(map[string]any{"type": "auth_required", "ha_version": "2024.6.0"}); err != nil {
		return
	}

	var auth map[string]any
	if err := ws.ReadJSON(&auth); err != nil {
		return
	}
	if auth["type"] != "auth" || auth["access_token"] != testToken {
		_ = conn.write(map[string]any{"type": "auth_invalid", "message": "Invalid access token or password"})
		return
	}
	if err := conn.write(map[string]any{"type": "auth_ok", "ha_version": "2024.6.0"}); err != nil {
		return
	}

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.connections++
	f.mu.Unlock()

	for {
		var msg map[string]any
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		id := msg["id"]

		f.mu.Lock()
		silent := f.silent
		f.mu.Unlock()
		if silent {
			continue
		}

		switch msg["type"] {
		case "subscribe_events":
			_ = conn.write(map[string]any{"id": id, "type": "result", "success": true, "result": nil})
		case "get_states":
			f.mu.Lock()
			states := append([]State(nil), f.states...)
			f.mu.Unlock()
			_ = conn.write(map[string]any{"id": id, "type": "result", "success": true, "result": states})
		case "ping":
			_ = conn.write(map[string]any{"id": id, "type": "pong"})
		case "call_service":
			f.mu.Lock()
			f.calls = append(f.calls, msg)
			serviceErr := f.serviceErr
			f.mu.Unlock()
			if serviceErr != nil {
				_ = conn.write(map[string]any{"id": id, "type": "result", "success": false, "error": serviceErr})
				continue
			}
			_ = conn.write(map[string]any{"id": id, "type": "result", "success": true, "result": map[string]any{"context": map[string]any{"id": "ctx"}}})
		default:
			_ = conn.write(map[string]any{"id": id, "type": "result", "success": false,
				"error": map[string]any{"code": "unknown_command", "message": "Unknown command."}})
		}
	}
}

// config returns a client configuration pointing at the fake server.
func (f *fakeHA) config(token string) *config.Config {
	return &config.Config{
		HomeAssistant: config.HomeAssistantConfig{
			URL:         f.srv.URL,
			Token:       token,
			CallTimeout: 2,
		},
	}
}

func (f *fakeHA) setStates(states ...State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
}

// sendStateChanged pushes a state_changed event on the newest connection.
func (f *fakeHA) sendStateChanged(entityID string, newState *State) {
	f.t.Helper()
	f.mu.Lock()
	if len(f.conns) == 0 {
		f.mu.Unlock()
		f.t.Fatal("no client connected")
	}
	conn := f.conns[len(f.conns)-1]
	f.mu.Unlock()

	err := conn.write(map[string]any{
		"id":   1,
		"type": "event",
		"event": map[string]any{
			"event_type": "state_changed",
			"data": map[string]any{
				"entity_id": entityID,
				"old_state": nil,
				"new_state": newState,
			},
		},
	})
	if err != nil {
		f.t.Fatalf("sending event: %v", err)
	}
}

// dropAll closes every server-side connection.
func (f *fakeHA) dropAll() {
	f.mu.Lock()
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
}

func (f *fakeHA) connectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections
}

func (f *fakeHA) serviceCalls() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.calls...)
}

func selectState(entityID, state string, options ...any) State {
	return State{
		EntityID:   entityID,
		State:      state,
		Attributes: map[string]any{"options": options},
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
