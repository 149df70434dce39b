// Package mqtt provides MQTT client connectivity for the state mirror.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The hub's authoritative read surface is its HTTP façade; MQTT is an
// optional mirror for consumers that prefer a bus. Every cached device
// state change is re-published as a retained message, so automations
// and dashboards can follow the fleet without polling:
//
//	matterhub/state/{device_id}   retained JSON state snapshots
//	matterhub/event/{event_type}  transient added/removed announcements
//	matterhub/system/status       hub online/offline (LWT-backed)
//
// A removed device's state topic is cleared with an empty retained
// publish.
//
// # Security Considerations
//
//   - TLS is required for any broker outside the local host (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    // mqtt.ErrDisabled when the mirror is turned off
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState("dev_12_1")
//	client.PublishRetained(topic, []byte(`{"power":true}`))
package mqtt
