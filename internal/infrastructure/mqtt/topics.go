package mqtt

import "fmt"

// Topic prefixes for the MatterHub state mirror.
//
// The mirror publishes under a flat scheme: matterhub/{category}/{id}.
// State topics are retained so late subscribers see the current value;
// event topics are transient announcements.
const (
	// TopicPrefix is the base for all hub topics.
	TopicPrefix = "matterhub"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "matterhub/system"
)

// Topics provides builders for MatterHub MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("dev_12_1")
//	// Returns: "matterhub/state/dev_12_1"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: matterhub/state/dev_12_1
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// Event returns the topic for hub event announcements.
//
// Example: matterhub/event/device.added
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// SystemStatus returns the hub status topic, also used for the LWT.
//
// Example: matterhub/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: matterhub/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllEvents returns a pattern matching every event topic.
//
// Pattern: matterhub/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllTopics returns a pattern matching all hub topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: matterhub/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
