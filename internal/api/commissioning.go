package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/hearthwire/matterhub/internal/matter"
)

// shareWindowSeconds is how long an opened commissioning window stays
// available for the new commissioner.
const shareWindowSeconds = 300

// qrPNGSize is the pixel size of the rendered pairing QR code.
const qrPNGSize = 256

// handleRegister commissions a new device onto the fabric.
//
// Query parameters:
//   - code: Matter setup code (11-digit manual or MT: QR payload), required
//   - ip: target device IP for on-network commissioning, optional
//   - name: friendly name to bind once the device appears, optional
//
// The handler blocks until the session reaches a terminal state: 200
// with the bound device on success, 400 on an invalid code, 502 when
// the backend rejects the attempt and 504 when the session times out.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		writeBadRequest(w, "code parameter is required")
		return
	}

	result, err := s.coordinator.Register(r.Context(), code, q.Get("ip"), q.Get("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"session_id": result.SessionID,
		"state":      string(result.State),
		"node_id":    result.NodeID,
		"id":         result.CanonicalID,
	}
	if result.Name != "" {
		resp["name"] = result.Name
	}
	if result.NamingWarning != "" {
		resp["warning"] = result.NamingWarning
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleShare opens a commissioning window on an already-owned node so
// another controller can join it to its own fabric.
//
// Query parameters:
//   - id: canonical device ID or alias, required
//   - format: "json" (default) for pairing codes, "qr" for a PNG image
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
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

	raw, err := s.backend.SendCommand(r.Context(), matter.CmdOpenCommissioningWindow,
		matter.OpenCommissioningWindowArgs(dev.NodeID, shareWindowSeconds))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var params matter.CommissioningParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		s.logger.Error("malformed commissioning window response", "device_id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBackend, "malformed backend response")
		return
	}

	s.logger.Info("commissioning window opened",
		"device_id", id,
		"node_id", dev.NodeID,
		"window_seconds", shareWindowSeconds)

	if r.URL.Query().Get("format") == "qr" {
		s.writeShareQR(w, id, params)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":             id,
		"node_id":        dev.NodeID,
		"setup_pin_code": params.SetupPinCode,
		"manual_code":    params.SetupManualCode,
		"qr_code":        params.SetupQRCode,
		"window_seconds": shareWindowSeconds,
	})
}

// writeShareQR renders the pairing payload as a PNG image. The QR
// payload is preferred; the manual code is a scannable fallback when
// the backend omits it.
func (s *Server) writeShareQR(w http.ResponseWriter, id string, params matter.CommissioningParameters) {
	payload := params.SetupQRCode
	if payload == "" {
		payload = params.SetupManualCode
	}
	if payload == "" {
		writeError(w, http.StatusBadGateway, ErrCodeBackend, "backend returned no pairing code")
		return
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, qrPNGSize)
	if err != nil {
		s.logger.Error("QR encoding failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(png)
}
