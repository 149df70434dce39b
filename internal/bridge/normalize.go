package bridge

import (
	"math"
	"sort"

	"github.com/hearthwire/matterhub/internal/device"
	"github.com/hearthwire/matterhub/internal/matter"
)

// Scale divisors between raw Matter measurement values and the units the
// cache stores (°C, %, hPa).
const (
	temperatureScale = 100
	humidityScale    = 100
	pressureScale    = 10

	// occupiedBit is the occupied flag in the OccupancySensing bitmap.
	occupiedBit = 0x01

	// miredsPerKelvin converts between mireds and Kelvin: K = 1e6/mireds.
	miredsPerKelvin = 1e6
)

// NormalizeAttribute maps a raw Matter attribute onto the cache's
// attribute vocabulary.
//
// Booleans stay booleans, measurement integers become scaled floats,
// dim level becomes a [0,1] fraction, and colour temperature becomes
// Kelvin. Attributes outside the hub's cluster map return ok=false.
//
// Parameters:
//   - path: The attribute's endpoint/cluster/attribute address
//   - value: The raw value as decoded from JSON
//
// Returns:
//   - key: The device attribute key (device.Attr* constant)
//   - normalised: The converted value
//   - ok: False when the attribute is not mapped or the value is unusable
func NormalizeAttribute(path matter.AttributePath, value any) (key string, normalised any, ok bool) {
	switch {
	case path.Cluster == matter.ClusterOnOff && path.Attribute == 0:
		b, ok := asBool(value)
		if !ok {
			return "", nil, false
		}
		return device.AttrPower, b, true

	case path.Cluster == matter.ClusterLevelControl && path.Attribute == 0:
		f, ok := asFloat(value)
		if !ok {
			return "", nil, false
		}
		fraction := f / matter.MaxLevel
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		return device.AttrBrightness, fraction, true

	case path.Cluster == matter.ClusterColorControl && path.Attribute == matter.AttributeColorTemperature:
		mireds, ok := asFloat(value)
		if !ok || mireds <= 0 {
			return "", nil, false
		}
		return device.AttrColorTemp, int(math.Round(miredsPerKelvin / mireds)), true

	case path.Cluster == matter.ClusterTemperatureMeasurement && path.Attribute == 0:
		f, ok := asFloat(value)
		if !ok {
			return "", nil, false
		}
		return device.AttrTemperature, f / temperatureScale, true

	case path.Cluster == matter.ClusterRelativeHumidityMeasurement && path.Attribute == 0:
		f, ok := asFloat(value)
		if !ok {
			return "", nil, false
		}
		return device.AttrHumidity, f / humidityScale, true

	case path.Cluster == matter.ClusterPressureMeasurement && path.Attribute == 0:
		f, ok := asFloat(value)
		if !ok {
			return "", nil, false
		}
		return device.AttrPressure, f / pressureScale, true

	case path.Cluster == matter.ClusterIlluminanceMeasurement && path.Attribute == 0:
		f, ok := asFloat(value)
		if !ok {
			return "", nil, false
		}
		return device.AttrIlluminance, f, true

	case path.Cluster == matter.ClusterOccupancySensing && path.Attribute == 0:
		f, ok := asFloat(value)
		if !ok {
			return "", nil, false
		}
		return device.AttrOccupied, int(f)&occupiedBit != 0, true

	case path.Cluster == matter.ClusterBooleanState && path.Attribute == 0:
		b, ok := asBool(value)
		if !ok {
			return "", nil, false
		}
		return device.AttrContact, b, true

	default:
		return "", nil, false
	}
}

// NodeToDevices converts a node state into cache devices, one per
// endpoint that carries at least one mapped attribute. Endpoints whose
// attributes are all outside the cluster map (the root endpoint's
// descriptor data, for instance) produce nothing.
func NodeToDevices(node matter.NodeState) []device.Device {
	attrs := make(map[uint16]device.Attributes)
	clusters := make(map[uint16]map[uint32]bool)

	for pathStr, raw := range node.Attributes {
		path, err := matter.ParseAttributePath(pathStr)
		if err != nil {
			continue
		}

		key, value, ok := NormalizeAttribute(path, raw)
		if !ok {
			continue
		}

		if attrs[path.Endpoint] == nil {
			attrs[path.Endpoint] = make(device.Attributes)
			clusters[path.Endpoint] = make(map[uint32]bool)
		}
		attrs[path.Endpoint][key] = value
		clusters[path.Endpoint][path.Cluster] = true
	}

	endpoints := make([]uint16, 0, len(attrs))
	for ep := range attrs {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i] < endpoints[j] })

	devices := make([]device.Device, 0, len(endpoints))
	for _, ep := range endpoints {
		devices = append(devices, device.Device{
			ID:         device.FormatID(node.NodeID, ep),
			NodeID:     node.NodeID,
			EndpointID: ep,
			Kind:       classifyKind(clusters[ep]),
			Attributes: attrs[ep],
			Available:  node.Available,
		})
	}
	return devices
}

// KindForCluster derives the device kind a single cluster implies.
// Clusters outside the hub's map imply nothing beyond KindOther.
func KindForCluster(cluster uint32) device.Kind {
	switch cluster {
	case matter.ClusterOnOff, matter.ClusterLevelControl, matter.ClusterColorControl:
		return device.KindLight
	case matter.ClusterOccupancySensing:
		return device.KindOccupancy
	case matter.ClusterTemperatureMeasurement,
		matter.ClusterRelativeHumidityMeasurement,
		matter.ClusterPressureMeasurement,
		matter.ClusterIlluminanceMeasurement,
		matter.ClusterBooleanState:
		return device.KindSensor
	default:
		return device.KindOther
	}
}

// classifyKind folds the clusters present on an endpoint into the most
// specific kind any of them implies. Light clusters win over everything;
// occupancy sensing wins over plain measurement clusters.
func classifyKind(clusters map[uint32]bool) device.Kind {
	kind := device.KindOther
	for c := range clusters {
		kind = device.MoreSpecificKind(kind, KindForCluster(c))
	}
	return kind
}

// asFloat coerces any JSON numeric representation to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asBool coerces a boolean or a numeric flag to bool.
func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	default:
		if f, ok := asFloat(v); ok {
			return f != 0, true
		}
		return false, false
	}
}
