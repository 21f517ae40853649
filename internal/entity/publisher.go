package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/synced-select/internal/entry"
	"github.com/nerrad567/synced-select/internal/infrastructure/mqtt"
	"github.com/nerrad567/synced-select/internal/syncedselect"
)

// defaultCommandTimeout bounds handling of one selection from Home Assistant.
const defaultCommandTimeout = 10 * time.Second

// MQTTClient is the subset of the MQTT client the publisher needs.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Selector applies a selection to an entry. *entry.Manager satisfies it.
type Selector interface {
	Select(ctx context.Context, entryID, option string) error
}

// Republisher announces every loaded entity again. *entry.Manager satisfies it.
type Republisher interface {
	Republish()
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Publisher exposes proxy entities to Home Assistant via MQTT discovery and
// routes their commands back to the entry manager.
//
// It implements entry.EntityPublisher.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Publisher struct {
	client         MQTTClient
	topics         mqtt.Topics
	qos            byte
	version        string
	commandTimeout time.Duration
	logger         Logger
}

// Options configures a Publisher.
type Options struct {
	Topics  mqtt.Topics
	QoS     byte
	Version string

	// CommandTimeout defaults to 10 seconds.
	CommandTimeout time.Duration
}

// NewPublisher creates a publisher on client.
func NewPublisher(client MQTTClient, opts Options) *Publisher {
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &Publisher{
		client:         client,
		topics:         opts.Topics,
		qos:            opts.QoS,
		version:        opts.Version,
		commandTimeout: timeout,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (p *Publisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Announce publishes the retained attributes and discovery config of e
// with options.
func (p *Publisher) Announce(e *entry.Entry, options []string) error {
	attrs, err := json.Marshal(attributesPayload(e))
	if err != nil {
		return fmt.Errorf("encoding attributes: %w", err)
	}
	if err := p.client.PublishRetained(p.topics.EntityAttributes(e.ID), attrs); err != nil {
		return fmt.Errorf("publishing attributes for entry %s: %w", e.ID, err)
	}

	cfg := NewDiscoveryConfig(e, options, p.topics, p.version)
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding discovery config: %w", err)
	}

	topic := p.topics.DiscoveryConfig(e.ObjectID())
	if err := p.client.PublishRetained(topic, payload); err != nil {
		return fmt.Errorf("publishing discovery config for entry %s: %w", e.ID, err)
	}

	p.logger.Debug("proxy entity announced", "entry_id", e.ID, "topic", topic, "options", len(cfg.Options))
	return nil
}

// PublishState publishes the current option of e, or None when cleared.
func (p *Publisher) PublishState(e *entry.Entry, state syncedselect.ProxyState) error {
	payload := payloadNone
	if v, ok := state.Selected(); ok {
		payload = v
	}

	if err := p.client.Publish(p.topics.EntityState(e.ID), []byte(payload), p.qos, false); err != nil {
		return fmt.Errorf("publishing state for entry %s: %w", e.ID, err)
	}
	return nil
}

// Remove clears the retained attributes and discovery config of e, which
// deletes the entity from Home Assistant.
func (p *Publisher) Remove(e *entry.Entry) error {
	if err := p.client.PublishRetained(p.topics.EntityAttributes(e.ID), []byte{}); err != nil {
		return fmt.Errorf("clearing attributes for entry %s: %w", e.ID, err)
	}

	topic := p.topics.DiscoveryConfig(e.ObjectID())
	if err := p.client.PublishRetained(topic, []byte{}); err != nil {
		return fmt.Errorf("removing discovery config for entry %s: %w", e.ID, err)
	}

	p.logger.Info("proxy entity removed", "entry_id", e.ID, "topic", topic)
	return nil
}

// Start subscribes to proxy command topics and to Home Assistant's status
// topic. Selections go to sel; a Home Assistant birth message makes rep
// announce every entity again.
//
// Subscriptions are restored by the MQTT client after a reconnect.
func (p *Publisher) Start(sel Selector, rep Republisher) error {
	if err := p.client.Subscribe(p.topics.AllEntityCommands(), p.qos, p.commandHandler(sel)); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	p.logger.Info("subscribed to proxy commands", "topic", p.topics.AllEntityCommands())

	if err := p.client.Subscribe(p.topics.HomeAssistantStatus(), p.qos, p.statusHandler(rep)); err != nil {
		return fmt.Errorf("subscribe to home assistant status: %w", err)
	}
	p.logger.Info("subscribed to home assistant status", "topic", p.topics.HomeAssistantStatus())
	return nil
}

// Stop unsubscribes from the topics Start subscribed to, so no selection
// reaches a manager that is shutting down. Errors are logged.
func (p *Publisher) Stop() {
	for _, topic := range []string{p.topics.AllEntityCommands(), p.topics.HomeAssistantStatus()} {
		if err := p.client.Unsubscribe(topic); err != nil {
			p.logger.Warn("unsubscribing", "topic", topic, "error", err)
		}
	}
}

func (p *Publisher) commandHandler(sel Selector) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		entryID, ok := p.topics.EntryIDFromCommand(topic)
		if !ok {
			return fmt.Errorf("unexpected command topic %q", topic)
		}
		option := string(payload)

		ctx, cancel := context.WithTimeout(context.Background(), p.commandTimeout)
		defer cancel()

		if err := sel.Select(ctx, entryID, option); err != nil {
			if errors.Is(err, entry.ErrEntryNotFound) {
				p.logger.Warn("command for unknown entry", "entry_id", entryID, "option", option)
				return nil
			}
			return fmt.Errorf("selecting %q on entry %s: %w", option, entryID, err)
		}
		return nil
	}
}

func (p *Publisher) statusHandler(rep Republisher) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		if string(payload) != mqtt.PayloadOnline {
			p.logger.Debug("home assistant status", "status", string(payload))
			return nil
		}
		p.logger.Info("home assistant online, republishing entities")
		rep.Republish()
		return nil
	}
}
