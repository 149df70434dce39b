package api

import (
	"encoding/json"
	"net/http"
)

// nameRequest is the POST body for /api/name. GET requests carry the
// same fields as query parameters.
type nameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleName assigns a friendly name to a device. The id parameter
// accepts a canonical ID or an existing alias; re-assigning a name a
// device already holds is a no-op success.
func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest

	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	} else {
		req.ID = r.URL.Query().Get("id")
		req.Name = r.URL.Query().Get("name")
	}

	if req.ID == "" {
		writeBadRequest(w, "id parameter is required")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name parameter is required")
		return
	}

	id, err := s.resolver.Assign(req.ID, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info("alias assigned", "device_id", id, "alias", req.Name)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"name":    req.Name,
		"aliases": s.resolver.AliasesFor(id),
	})
}
