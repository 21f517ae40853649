package homeassistant

import (
	"encoding/json"
	"strings"
	"time"
)

// Message types used on the WebSocket API.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
	msgEvent        = "event"
	msgPing         = "ping"
	msgPong         = "pong"

	cmdGetStates       = "get_states"
	cmdSubscribeEvents = "subscribe_events"
	cmdCallService     = "call_service"

	eventStateChanged = "state_changed"
)

// StateUnavailable is the state string of an entity whose integration lost it.
const StateUnavailable = "unavailable"

// State is one entity state object as returned by get_states.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain returns the part of the entity ID before the first dot.
func (s State) Domain() string {
	return Domain(s.EntityID)
}

// Available reports whether the entity is not marked unavailable.
func (s State) Available() bool {
	return s.State != StateUnavailable
}

// OptionList returns attributes.options.
// ok is false when the attribute is missing or is not a list. Non-string
// items are skipped.
func (s State) OptionList() (options []string, ok bool) {
	raw, found := s.Attributes["options"]
	if !found {
		return nil, false
	}

	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, isStr := item.(string); isStr {
				out = append(out, str)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Domain returns the domain of entityID ("select" for "select.tv_input").
// It returns "" when entityID has no domain prefix.
func Domain(entityID string) string {
	domain, _, found := strings.Cut(entityID, ".")
	if !found {
		return ""
	}
	return domain
}

// incoming is any server-to-client message.
type incoming struct {
	ID        int             `json:"id"`
	Type      string          `json:"type"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result"`
	Error     *CommandError   `json:"error"`
	Event     *event          `json:"event"`
	Message   string          `json:"message"`
	HAVersion string          `json:"ha_version"`
}

type event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type stateChangedData struct {
	EntityID string `json:"entity_id"`
	OldState *State `json:"old_state"`
	NewState *State `json:"new_state"`
}

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}
