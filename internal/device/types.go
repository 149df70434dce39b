package device

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Device represents a single Matter endpoint exposed by the hub.
// One node can expose several endpoints; each endpoint that carries a
// device function (a light, a sensor) becomes its own Device.
type Device struct {
	// ID is the canonical identifier, dev_{node}_{endpoint}.
	ID string `json:"id"`

	// NodeID is the Matter node identifier assigned at commissioning.
	NodeID uint64 `json:"node_id"`

	// EndpointID is the endpoint within the node.
	EndpointID uint16 `json:"endpoint_id"`

	// Kind is the primary classification derived from the clusters the
	// endpoint implements. An endpoint showing several kinds keeps the
	// most specific one; see MoreSpecificKind.
	Kind Kind `json:"kind"`

	// Attributes holds the normalised attribute values keyed by the
	// Attr* constants. Values are bool, float64, or int after
	// normalisation; raw cluster values never appear here.
	Attributes Attributes `json:"attributes"`

	// Available reports whether the node is currently reachable.
	Available bool `json:"available"`

	// UpdatedAt is when any attribute last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// The attribute map is cloned so modifications to the copy do not
// affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields
	cpy.Attributes = deepCopyMap(d.Attributes)
	return &cpy
}

// IsLight reports whether the device exposes light control.
func (d *Device) IsLight() bool {
	return d.Kind == KindLight
}

// IsSensor reports whether the device exposes at least one sensor reading.
func (d *Device) IsSensor() bool {
	if d.Kind == KindSensor || d.Kind == KindOccupancy {
		return true
	}
	for _, key := range SensorAttributes() {
		if _, ok := d.Attributes[key]; ok {
			return true
		}
	}
	return false
}

// deepCopyMap creates a deep copy of an attribute map.
// Nested maps and slices are recursively copied.
func deepCopyMap(m Attributes) Attributes {
	if m == nil {
		return nil
	}
	cpy := make(Attributes, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, elem := range val {
			cpy[k] = deepCopyValue(elem)
		}
		return cpy
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// Attributes holds normalised attribute values as a JSON map.
//
// Examples:
//   - Light: {"power": true, "brightness": 0.75, "color_temp": 2700}
//   - Sensor: {"temperature": 21.5, "humidity": 47.2}
type Attributes map[string]any

// Light attribute keys.
const (
	// AttrPower is the on/off state (bool).
	AttrPower = "power"

	// AttrBrightness is the dim level as a fraction in [0, 1] (float64).
	AttrBrightness = "brightness"

	// AttrColorTemp is the colour temperature in Kelvin (int).
	AttrColorTemp = "color_temp"
)

// Sensor attribute keys.
const (
	// AttrTemperature is degrees Celsius (float64).
	AttrTemperature = "temperature"

	// AttrHumidity is relative humidity percent (float64).
	AttrHumidity = "humidity"

	// AttrPressure is pressure in hPa (float64).
	AttrPressure = "pressure"

	// AttrIlluminance is light level in lux (float64).
	AttrIlluminance = "illuminance"

	// AttrOccupied is occupancy detection (bool).
	AttrOccupied = "occupied"

	// AttrContact is contact sensor state, true when closed (bool).
	AttrContact = "contact"
)

// SensorAttributes returns the attribute keys that classify a device
// as a sensor.
func SensorAttributes() []string {
	return []string{
		AttrTemperature, AttrHumidity, AttrPressure,
		AttrIlluminance, AttrOccupied, AttrContact,
	}
}

// Kind represents the primary classification of a device.
type Kind string

// Kind constants. KindOccupancy is separate from KindSensor so
// presence-driven consumers can find occupancy endpoints without
// inspecting attributes.
const (
	KindLight     Kind = "light"
	KindSensor    Kind = "sensor"
	KindOccupancy Kind = "occupancy"
	KindOther     Kind = "other"
)

// AllKinds returns all valid kind values.
func AllKinds() []Kind {
	return []Kind{KindLight, KindOccupancy, KindSensor, KindOther}
}

// kindRank orders kinds from least to most specific.
var kindRank = map[Kind]int{
	KindOther:     0,
	KindSensor:    1,
	KindOccupancy: 2,
	KindLight:     3,
}

// MoreSpecificKind returns the more specific of two kinds: light wins
// over everything, occupancy wins over a plain sensor. Ties keep a, so
// a classification never flaps.
func MoreSpecificKind(a, b Kind) Kind {
	if kindRank[b] > kindRank[a] {
		return b
	}
	return a
}

// idPrefix is the leading component of every canonical device ID.
// Names starting with this prefix are reserved and cannot be aliases.
const idPrefix = "dev_"

// FormatID builds the canonical device identifier for a node/endpoint pair.
func FormatID(nodeID uint64, endpointID uint16) string {
	return fmt.Sprintf("%s%d_%d", idPrefix, nodeID, endpointID)
}

// ParseID splits a canonical identifier back into its node and endpoint.
// Returns ErrInvalidID if the string is not of the form dev_{node}_{endpoint}.
func ParseID(id string) (nodeID uint64, endpointID uint16, err error) {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	nodePart, endpointPart, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	nodeID, err = strconv.ParseUint(nodePart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	endpoint, err := strconv.ParseUint(endpointPart, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	return nodeID, uint16(endpoint), nil
}

// IsCanonicalID reports whether the string parses as a canonical device
// identifier. Used to reserve the dev_ namespace from aliases.
func IsCanonicalID(s string) bool {
	_, _, err := ParseID(s)
	return err == nil
}

// OccupancyEvent records a single occupancy transition for a device.
type OccupancyEvent struct {
	DeviceID   string    `json:"device_id"`
	Occupied   bool      `json:"occupied"`
	ObservedAt time.Time `json:"observed_at"`
}
