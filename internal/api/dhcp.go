package api

import (
	"net/http"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/dhcp"
)

// handleDHCPEvent applies one lease hook notification.
//
// Events for MACs that match no known kind are answered with 200 and
// status "rejected"; the hook script does not retry those.
func (s *Server) handleDHCPEvent(w http.ResponseWriter, r *http.Request) {
	var ev dhcp.Event
	if err := decodeBody(r, &ev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.ingester.HandleEvent(r.Context(), ev)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	body := map[string]any{
		"status": res.Outcome,
	}
	if res.Kind != "" {
		body["kind"] = res.Kind
	}
	if res.Hostname != "" {
		body["hostname"] = res.Hostname
	}
	if res.Device != nil {
		body["device"] = res.Device
	}
	writeJSON(w, http.StatusOK, body)
}
