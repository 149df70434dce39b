package bridge

import (
	"github.com/hearthwire/matterhub/internal/device"
)

// ReadingSink is the slice of the telemetry writer the recorder needs.
type ReadingSink interface {
	WriteReading(deviceID, attribute string, value float64)
	WriteOccupancy(deviceID string, occupied bool)
}

// numericAttrs are the sensor attributes recorded as time-series points.
var numericAttrs = []string{
	device.AttrTemperature,
	device.AttrHumidity,
	device.AttrPressure,
	device.AttrIlluminance,
}

// Recorder forwards numeric sensor readings and occupancy transitions
// to a telemetry sink. It observes the event subscriber alongside the
// WebSocket hub and the MQTT mirror; writes are asynchronous inside the
// sink, so observing never blocks the event pipeline.
type Recorder struct {
	sink ReadingSink
}

// NewRecorder creates a telemetry recorder over the given sink.
func NewRecorder(sink ReadingSink) *Recorder {
	return &Recorder{sink: sink}
}

// DeviceChanged records the numeric readings present on the device.
func (r *Recorder) DeviceChanged(dev device.Device) {
	r.record(dev)
}

// DeviceAdded records the initial readings for a new device.
func (r *Recorder) DeviceAdded(dev device.Device) {
	r.record(dev)
}

// DeviceRemoved is a no-op; historical points for the device remain.
func (r *Recorder) DeviceRemoved(device.Device) {}

func (r *Recorder) record(dev device.Device) {
	if dev.Kind != device.KindSensor && dev.Kind != device.KindOccupancy {
		return
	}

	for _, attr := range numericAttrs {
		if v, ok := numericValue(dev.Attributes[attr]); ok {
			r.sink.WriteReading(dev.ID, attr, v)
		}
	}
	if occupied, ok := dev.Attributes[device.AttrOccupied].(bool); ok {
		r.sink.WriteOccupancy(dev.ID, occupied)
	}
}

// numericValue coerces the types an attribute value can arrive as.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
