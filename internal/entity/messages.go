package entity

import (
	"github.com/nerrad567/synced-select/internal/entry"
	"github.com/nerrad567/synced-select/internal/infrastructure/mqtt"
)

// Entity presentation in Home Assistant.
const (
	// EntityName is combined with the device (entry) name by Home Assistant,
	// e.g. "Living Room Synced Select".
	EntityName = "Synced Select"

	entityIcon   = "mdi:format-list-checks"
	manufacturer = "Synced Select"
	model        = "Synced select group"

	// payloadNone clears the current option of an MQTT select.
	payloadNone = "None"
)

// DiscoveryConfig is the Home Assistant MQTT discovery payload of a select entity.
type DiscoveryConfig struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	ObjectID            string   `json:"object_id"`
	Icon                string   `json:"icon,omitempty"`
	CommandTopic        string   `json:"command_topic"`
	StateTopic          string   `json:"state_topic"`
	JSONAttributesTopic string   `json:"json_attributes_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	PayloadAvailable    string   `json:"payload_available"`
	PayloadNotAvailable string   `json:"payload_not_available"`
	Options             []string `json:"options"`
	Device              Device   `json:"device"`
	Origin              Origin   `json:"origin"`
}

// Device groups the entity under one Home Assistant device per entry.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// Origin identifies the software publishing the discovery message.
type Origin struct {
	Name       string `json:"name"`
	SWVersion  string `json:"sw_version,omitempty"`
	SupportURL string `json:"support_url,omitempty"`
}

// NewDiscoveryConfig builds the discovery payload for e offering options.
// The unique ID is the entry ID, so renaming an entry keeps the entity.
func NewDiscoveryConfig(e *entry.Entry, options []string, topics mqtt.Topics, version string) DiscoveryConfig {
	if options == nil {
		options = []string{}
	}
	return DiscoveryConfig{
		Name:                EntityName,
		UniqueID:            e.ID,
		ObjectID:            e.ObjectID(),
		Icon:                entityIcon,
		CommandTopic:        topics.EntityCommand(e.ID),
		StateTopic:          topics.EntityState(e.ID),
		JSONAttributesTopic: topics.EntityAttributes(e.ID),
		AvailabilityTopic:   topics.Status(),
		PayloadAvailable:    mqtt.PayloadOnline,
		PayloadNotAvailable: mqtt.PayloadOffline,
		Options:             options,
		Device: Device{
			Identifiers:  []string{DeviceIdentifier(e.ID)},
			Name:         e.Name,
			Manufacturer: manufacturer,
			Model:        model,
			SWVersion:    version,
		},
		Origin: Origin{
			Name:       "synced-select",
			SWVersion:  version,
			SupportURL: "https://github.com/nerrad567/synced-select",
		},
	}
}

// DeviceIdentifier returns the device identifier of an entry.
func DeviceIdentifier(entryID string) string {
	return mqtt.DiscoveryNode + "_" + entryID
}

// attributesPayload is published on the attributes topic. Home Assistant
// exposes it as state attributes, which lets the entry manager find its
// proxy under any entity ID.
func attributesPayload(e *entry.Entry) map[string]string {
	return map[string]string{entry.ProxyAttribute: e.ID}
}
