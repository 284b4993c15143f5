package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
)

type plugModeRequest struct {
	Mode string `json:"mode"`
}

type plugSwitchRequest struct {
	On *bool `json:"on"`
}

// handleSetPlugMode records the operating mode of a plug.
func (s *Server) handleSetPlugMode(w http.ResponseWriter, r *http.Request) {
	var req plugModeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	mode, err := device.ParsePlugMode(req.Mode)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	d, err := s.service.SetPlugMode(r.Context(), chi.URLParam(r, "mac"), mode)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleSetPlugSwitch turns a plug relay on or off.
func (s *Server) handleSetPlugSwitch(w http.ResponseWriter, r *http.Request) {
	var req plugSwitchRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeBadRequest(w, "on is required")
		return
	}

	res, err := s.service.SetPlugSwitch(r.Context(), chi.URLParam(r, "mac"), *req.On)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
