package entry

import (
	"time"

	"github.com/nerrad567/synced-select/internal/syncedselect"
)

// proxyObjectSuffix is appended to the slugified entry name to form the
// proxy entity's object ID ("Living Room" -> "living_room_synced_select").
const proxyObjectSuffix = "synced_select"

// ProxyAttribute is the state attribute carrying the entry ID on every
// proxy entity. It identifies the proxy even after Home Assistant renamed
// or suffixed its entity ID.
const ProxyAttribute = "synced_select_entry_id"

// Entry is one configured synced select instance.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Entities are the source entity IDs chosen at creation.
	Entities []string `json:"entities"`

	// OptionEntities replaces Entities once the entry has been reconfigured.
	// nil means never reconfigured.
	OptionEntities []string `json:"option_entities,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceEntities returns the entity IDs the entry currently drives.
func (e *Entry) SourceEntities() []string {
	if e.OptionEntities != nil {
		return e.OptionEntities
	}
	return e.Entities
}

// SourceRefs returns SourceEntities as core source refs.
func (e *Entry) SourceRefs() []syncedselect.SourceRef {
	ids := e.SourceEntities()
	refs := make([]syncedselect.SourceRef, len(ids))
	for i, id := range ids {
		refs[i] = syncedselect.SourceRef(id)
	}
	return refs
}

// ObjectID is the object part of the proxy entity ID.
func (e *Entry) ObjectID() string {
	return proxyObjectID(e.Name, e.ID)
}

// ProxyEntityID is the entity ID Home Assistant gives the proxy entity when
// nothing else holds it.
func (e *Entry) ProxyEntityID() string {
	return "select." + e.ObjectID()
}

func proxyObjectID(name, id string) string {
	slug := Slugify(name)
	if slug == "" {
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		return proxyObjectSuffix + "_" + Slugify(short)
	}
	return slug + "_" + proxyObjectSuffix
}

func (e *Entry) clone() *Entry {
	out := *e
	out.Entities = append([]string(nil), e.Entities...)
	if e.OptionEntities != nil {
		out.OptionEntities = append([]string{}, e.OptionEntities...)
	}
	return &out
}

// Status is an entry together with its live proxy state.
type Status struct {
	Entry
	ProxyEntityID string                  `json:"proxy_entity_id"`
	Loaded        bool                    `json:"loaded"`
	State         syncedselect.ProxyState `json:"state"`
}
