package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// setRequest is the POST body for /api/set. GET requests carry the same
// fields as query parameters. Brightness and temperature are both
// optional; a request with neither validates the target only.
type setRequest struct {
	ID          string   `json:"id"`
	Brightness  *float64 `json:"brightness,omitempty"`
	Temperature *int     `json:"temperature,omitempty"`
}

// handleSet dispatches a light control command. The id parameter
// accepts a canonical ID or alias.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseSetRequest(w, r)
	if !ok {
		return
	}

	id, err := s.resolver.Resolve(req.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.dispatcher.SetLight(r.Context(), id, req.Brightness, req.Temperature); err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{"id": id, "ok": true}
	if req.Brightness != nil {
		resp["brightness"] = *req.Brightness
	}
	if req.Temperature != nil {
		resp["temperature"] = *req.Temperature
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseSetRequest decodes the control request from either a JSON body
// or query parameters, writing an error response on failure.
func (s *Server) parseSetRequest(w http.ResponseWriter, r *http.Request) (setRequest, bool) {
	var req setRequest

	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return req, false
		}
	} else {
		q := r.URL.Query()
		req.ID = q.Get("id")

		if raw := q.Get("brightness"); raw != "" {
			b, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				writeBadRequest(w, "brightness must be a number")
				return req, false
			}
			req.Brightness = &b
		}
		if raw := q.Get("temperature"); raw != "" {
			k, err := strconv.Atoi(raw)
			if err != nil {
				writeBadRequest(w, "temperature must be an integer")
				return req, false
			}
			req.Temperature = &k
		}
	}

	if req.ID == "" {
		writeBadRequest(w, "id parameter is required")
		return req, false
	}
	return req, true
}
