// Package mqtt provides MQTT client connectivity for Synced Select.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the service status topic
//   - Connection health monitoring
//
// # Architecture
//
// Proxy entities reach Home Assistant through its MQTT integration: the
// service publishes retained discovery configs, entity states and its own
// availability; Home Assistant publishes selections on the command topics.
//
//	Synced Select ↔ MQTT Broker ↔ Home Assistant (MQTT discovery)
//
// # Topics
//
//	<prefix>/status                                     online | offline (retained, LWT)
//	<prefix>/<entry id>/state                           current option or None
//	<prefix>/<entry id>/set                             selection from Home Assistant
//	<discovery>/select/synced_select/<object id>/config discovery config (retained)
//	<discovery>/status                                  Home Assistant birth/will
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is not on the same host
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllEntityCommands(), client.QoS(),
//	    func(topic string, payload []byte) error {
//	        id, _ := client.Topics().EntryIDFromCommand(topic)
//	        return mgr.Select(ctx, id, string(payload))
//	    })
package mqtt
