package api

import (
	"net/http"
	"time"
)

// handleStatus reports the bridge's runtime state: backend link health,
// traffic counters, cache and alias counts, optional sink health and
// the managed server supervisor, when one is running.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := s.backend.Stats()
	info := s.backend.ServerInfo()

	backend := map[string]any{
		"connected":        stats.Connected,
		"reconnecting":     stats.Reconnecting,
		"commands_sent":    stats.CommandsSent,
		"events_received":  stats.EventsReceived,
		"events_dropped":   stats.EventsDropped,
		"errors_total":     stats.ErrorsTotal,
		"reconnects_total": stats.ReconnectsTotal,
	}
	if !stats.LastActivity.IsZero() {
		backend["last_activity"] = stats.LastActivity.UTC().Format(timestampFormat)
	}
	if info.FabricID != 0 {
		backend["fabric_id"] = info.FabricID
		backend["sdk_version"] = info.SDKVersion
		backend["schema_version"] = info.SchemaVersion
	}

	resp := map[string]any{
		"version":      s.version,
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
		"devices":      s.store.Count(),
		"aliases":      s.resolver.Count(),
		"ws_clients":   s.Hub().ClientCount(),
		"backend":      backend,
	}

	if s.matterd != nil {
		resp["matterd"] = s.matterd.Stats()
	}
	if s.mirror != nil {
		resp["mirror"] = map[string]any{"connected": s.mirror.IsConnected()}
	}
	if s.telemetry != nil {
		resp["telemetry"] = map[string]any{"connected": s.telemetry.IsConnected()}
	}

	writeJSON(w, http.StatusOK, resp)
}
