package api

import (
	"net/http"
	"strings"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

// handleEventsSSE streams registry changes as Server-Sent Events.
func (s *Server) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	kinds, err := parseKinds(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.sse.Serve(w, r, kinds...)
}

// handleEventsWS streams registry changes over a WebSocket.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	kinds, err := parseKinds(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.ws.Serve(w, r, kinds...)
}

// parseKinds reads the ?kind= filter. It accepts repeated parameters and
// comma-separated lists. No filter means every kind.
func parseKinds(r *http.Request) ([]device.Kind, error) {
	var kinds []device.Kind
	for _, v := range r.URL.Query()["kind"] {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			k, err := device.ParseKind(part)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}
