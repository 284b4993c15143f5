package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

// handleListSettings returns heartbeat and retention settings for every kind.
func (s *Server) handleListSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.All())
}

// handleGetSettings returns the settings for one kind.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	kind, err := device.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	k, err := s.settings.Get(kind)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

// handlePutSettings replaces the settings for one kind. Fields omitted from
// the body keep their current values. The new interval applies from the
// prober's next cycle.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	kind, err := device.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	k, err := s.settings.Get(kind)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := decodeBody(r, &k); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.settings.Set(kind, k); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	updated, _ := s.settings.Get(kind)
	s.logger.Info("settings updated", "kind", kind,
		"heartbeat_enabled", updated.Heartbeat.Enabled,
		"interval", updated.Heartbeat.Interval,
		"method", updated.Heartbeat.Method,
		"retention_enabled", updated.Retention.Enabled,
	)
	writeJSON(w, http.StatusOK, updated)
}
