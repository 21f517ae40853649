package homeassistant

import (
	"context"
	"fmt"

	"github.com/nerrad567/synced-select/internal/syncedselect"
)

// Source entity domains that accept select_option.
const (
	DomainSelect      = "select"
	DomainInputSelect = "input_select"

	serviceSelectOption = "select_option"
)

// Sources exposes the client to the synced select core.
// It implements syncedselect.StateReader, ChangeTracker and Dispatcher.
type Sources struct {
	client *Client
}

// NewSources wraps client.
func NewSources(client *Client) *Sources {
	return &Sources{client: client}
}

var (
	_ syncedselect.StateReader   = (*Sources)(nil)
	_ syncedselect.ChangeTracker = (*Sources)(nil)
	_ syncedselect.Dispatcher    = (*Sources)(nil)
)

// SourceState reads ref from the state cache.
// An entity whose options attribute is missing or malformed has nil Options.
func (s *Sources) SourceState(ref syncedselect.SourceRef) (syncedselect.SourceState, bool) {
	st, ok := s.client.State(string(ref))
	if !ok {
		return syncedselect.SourceState{}, false
	}

	options, _ := st.OptionList()
	return syncedselect.SourceState{
		Available: st.Available(),
		Options:   options,
	}, true
}

// TrackStateChange forwards state_changed notifications for refs.
func (s *Sources) TrackStateChange(refs []syncedselect.SourceRef, handler func(syncedselect.SourceRef)) func() {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = string(r)
	}
	return s.client.TrackStateChange(ids, func(entityID string) {
		handler(syncedselect.SourceRef(entityID))
	})
}

// Dispatch calls <domain>.select_option on the command's source.
func (s *Sources) Dispatch(ctx context.Context, cmd syncedselect.Command) error {
	entityID := string(cmd.Ref)
	domain := Domain(entityID)
	if domain == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEntityID, entityID)
	}

	return s.client.CallService(ctx, domain, serviceSelectOption,
		map[string]any{"option": cmd.Value},
		map[string]any{"entity_id": entityID},
	)
}

// SelectEntityIDs lists every select and input_select entity.
func (s *Sources) SelectEntityIDs() []string {
	return s.client.EntityIDs(DomainSelect, DomainInputSelect)
}

// EntityIDsWithAttribute finds entities by a marker attribute, e.g. the
// proxy entities published for one entry.
func (s *Sources) EntityIDsWithAttribute(key, value string) []string {
	return s.client.EntityIDsWithAttribute(key, value)
}
