package api

import (
	"net/http"

	"github.com/hearthwire/matterhub/internal/device"
)

// Timestamp formats used by the read endpoints. Fixed wire contract.
const (
	timestampFormat   = "2006-01-02 15:04:05 UTC"
	historyTimeFormat = "15:04:05"
)

// deviceView is the full-state rendering used by /api/devices.
type deviceView struct {
	ID         string            `json:"id"`
	NodeID     uint64            `json:"node_id"`
	EndpointID uint16            `json:"endpoint_id"`
	Kind       device.Kind       `json:"kind"`
	Aliases    []string          `json:"aliases"`
	Available  bool              `json:"available"`
	Attributes device.Attributes `json:"attributes"`
	UpdatedAt  string            `json:"updated_at"`
}

// lightView is the trimmed rendering used by /api/lights.
type lightView struct {
	ID          string   `json:"id"`
	Aliases     []string `json:"aliases"`
	Available   bool     `json:"available"`
	Power       *bool    `json:"power,omitempty"`
	Brightness  *float64 `json:"brightness,omitempty"`
	Temperature *int     `json:"temperature,omitempty"`
}

// sensorView is the rendering used by /api/sensors and /api/sensor.
type sensorView struct {
	ID              string            `json:"id"`
	Aliases         []string          `json:"aliases"`
	Available       bool              `json:"available"`
	Readings        device.Attributes `json:"readings"`
	OccupancyActive string            `json:"occupancy_last_active,omitempty"`
}

// historyItem is one formatted occupancy transition, newest first.
type historyItem struct {
	Time   string `json:"time"`
	Active bool   `json:"active"`
}

// handleDevices returns the full device cache.
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.store.List()

	views := make([]deviceView, 0, len(devices))
	for i := range devices {
		views = append(views, s.deviceToView(&devices[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleLights returns all light devices with their control attributes.
func (s *Server) handleLights(w http.ResponseWriter, _ *http.Request) {
	lights := s.store.Lights()

	views := make([]lightView, 0, len(lights))
	for i := range lights {
		views = append(views, s.lightToView(&lights[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lights": views,
		"count":  len(views),
	})
}

// handleSensors returns all sensor devices with their latest readings.
func (s *Server) handleSensors(w http.ResponseWriter, _ *http.Request) {
	sensors := s.store.Sensors()

	views := make([]sensorView, 0, len(sensors))
	for i := range sensors {
		views = append(views, s.sensorToView(&sensors[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": views,
		"count":   len(views),
	})
}

// handleSensor returns a single sensor's state plus its formatted
// occupancy history. The id parameter accepts a canonical ID or alias.
func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("id")
	if ref == "" {
		writeBadRequest(w, "id parameter is required")
		return
	}

	id, err := s.resolver.Resolve(ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dev, err := s.store.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	history, err := s.store.History(id, 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]historyItem, 0, len(history))
	for _, ev := range history {
		items = append(items, historyItem{
			Time:   ev.ObservedAt.UTC().Format(historyTimeFormat),
			Active: ev.Occupied,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensor":  s.sensorToView(dev),
		"history": items,
	})
}

// deviceToView renders a device with its aliases for the full dump.
func (s *Server) deviceToView(dev *device.Device) deviceView {
	return deviceView{
		ID:         dev.ID,
		NodeID:     dev.NodeID,
		EndpointID: dev.EndpointID,
		Kind:       dev.Kind,
		Aliases:    s.resolver.AliasesFor(dev.ID),
		Available:  dev.Available,
		Attributes: dev.Attributes,
		UpdatedAt:  dev.UpdatedAt.UTC().Format(timestampFormat),
	}
}

// lightToView extracts the light control attributes from the cache entry.
func (s *Server) lightToView(dev *device.Device) lightView {
	v := lightView{
		ID:        dev.ID,
		Aliases:   s.resolver.AliasesFor(dev.ID),
		Available: dev.Available,
	}
	if p, ok := dev.Attributes[device.AttrPower].(bool); ok {
		v.Power = &p
	}
	if b, ok := toFloat(dev.Attributes[device.AttrBrightness]); ok {
		v.Brightness = &b
	}
	if k, ok := toFloat(dev.Attributes[device.AttrColorTemp]); ok {
		kelvin := int(k)
		v.Temperature = &kelvin
	}
	return v
}

// sensorToView extracts readings and the last-active timestamp. The
// store tracks last-active directly, so a listing never walks history.
func (s *Server) sensorToView(dev *device.Device) sensorView {
	v := sensorView{
		ID:        dev.ID,
		Aliases:   s.resolver.AliasesFor(dev.ID),
		Available: dev.Available,
		Readings:  dev.Attributes,
	}
	if ts, err := s.store.LastActive(dev.ID); err == nil && !ts.IsZero() {
		v.OccupancyActive = ts.UTC().Format(timestampFormat)
	}
	return v
}

// toFloat normalises the numeric types a cache attribute can hold.
// JSON round-trips store numbers as float64, but attributes written
// directly by the normaliser may be int.
func toFloat(v any) (float64, bool) {
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
