package bridge

import (
	"encoding/json"

	"github.com/hearthwire/matterhub/internal/device"
)

// Publisher is the slice of the MQTT client the mirror needs.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	IsConnected() bool
}

// TopicBuilder maps a device ID to its retained state topic.
type TopicBuilder interface {
	DeviceState(deviceID string) string
}

// Mirror publishes retained device state to MQTT so external consumers
// (dashboards, automations) can read the cache without polling the HTTP
// API. It observes the event subscriber: every cache change republishes
// the device's full state on its topic, and removal clears the retained
// message by publishing an empty payload.
//
// Publish failures are logged and dropped. The mirror is an optional
// convenience sink; it must never stall the event pipeline.
type Mirror struct {
	pub    Publisher
	topics TopicBuilder
	logger Logger
}

// NewMirror creates a state mirror over the given publisher.
func NewMirror(pub Publisher, topics TopicBuilder) *Mirror {
	return &Mirror{
		pub:    pub,
		topics: topics,
		logger: noopLogger{},
	}
}

// SetLogger installs a logger. Without one, log output is discarded.
func (m *Mirror) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// IsConnected reports whether the underlying MQTT link is up.
func (m *Mirror) IsConnected() bool {
	return m.pub.IsConnected()
}

// DeviceChanged republishes the device's retained state.
func (m *Mirror) DeviceChanged(dev device.Device) {
	m.publish(dev)
}

// DeviceAdded publishes the initial retained state for a new device.
func (m *Mirror) DeviceAdded(dev device.Device) {
	m.publish(dev)
}

// DeviceRemoved clears the retained message for a dropped device.
func (m *Mirror) DeviceRemoved(dev device.Device) {
	if !m.pub.IsConnected() {
		return
	}
	topic := m.topics.DeviceState(dev.ID)
	if err := m.pub.PublishRetained(topic, nil); err != nil {
		m.logger.Warn("failed to clear retained state", "topic", topic, "error", err)
	}
}

func (m *Mirror) publish(dev device.Device) {
	if !m.pub.IsConnected() {
		return
	}

	payload, err := json.Marshal(dev)
	if err != nil {
		m.logger.Error("failed to marshal device state", "device_id", dev.ID, "error", err)
		return
	}

	topic := m.topics.DeviceState(dev.ID)
	if err := m.pub.PublishRetained(topic, payload); err != nil {
		m.logger.Warn("failed to mirror device state", "topic", topic, "error", err)
	}
}
