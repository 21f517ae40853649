package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/synced-select/internal/infrastructure/config"
)

// Availability payloads published on the status topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// DiscoveryNode is the node ID used in discovery topics so every proxy
// entity of this service lives under one branch.
const DiscoveryNode = "synced_select"

// Topics provides builders for Synced Select MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Service topics live under Prefix; Home Assistant discovery topics under
// DiscoveryPrefix:
//
//	topics := mqtt.NewTopics(cfg.MQTT)
//	topics.EntityState("0d1c...")          // syncedselect/0d1c.../state
//	topics.DiscoveryConfig("tv_synced_select")
//	// homeassistant/select/synced_select/tv_synced_select/config
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

// NewTopics returns the topic builder for cfg.
func NewTopics(cfg config.MQTTConfig) Topics {
	return Topics{
		Prefix:          strings.TrimSuffix(cfg.TopicPrefix, "/"),
		DiscoveryPrefix: strings.TrimSuffix(cfg.DiscoveryPrefix, "/"),
	}
}

// Status returns the service availability topic. It carries the LWT.
//
// Example: syncedselect/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}

// EntityState returns the state topic of a proxy entity.
//
// Example: syncedselect/0d1c.../state
func (t Topics) EntityState(entryID string) string {
	return fmt.Sprintf("%s/%s/state", t.Prefix, entryID)
}

// EntityCommand returns the command topic of a proxy entity.
//
// Example: syncedselect/0d1c.../set
func (t Topics) EntityCommand(entryID string) string {
	return fmt.Sprintf("%s/%s/set", t.Prefix, entryID)
}

// EntityAttributes returns the retained JSON attributes topic of a proxy entity.
//
// Example: syncedselect/0d1c.../attributes
func (t Topics) EntityAttributes(entryID string) string {
	return fmt.Sprintf("%s/%s/attributes", t.Prefix, entryID)
}

// AllEntityCommands returns a pattern matching every proxy command topic.
//
// Pattern: syncedselect/+/set
func (t Topics) AllEntityCommands() string {
	return fmt.Sprintf("%s/+/set", t.Prefix)
}

// EntryIDFromCommand extracts the entry ID from a command topic.
func (t Topics) EntryIDFromCommand(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// DiscoveryConfig returns the retained discovery config topic of a select entity.
//
// Example: homeassistant/select/synced_select/tv_synced_select/config
func (t Topics) DiscoveryConfig(objectID string) string {
	return fmt.Sprintf("%s/select/%s/%s/config", t.DiscoveryPrefix, DiscoveryNode, objectID)
}

// HomeAssistantStatus returns the topic Home Assistant publishes its birth
// and will messages on.
//
// Example: homeassistant/status
func (t Topics) HomeAssistantStatus() string {
	return fmt.Sprintf("%s/status", t.DiscoveryPrefix)
}
