package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/presence"
)

// registerDeviceRequest is the body of POST /devices.
type registerDeviceRequest struct {
	MAC       string `json:"mac"`
	Kind      string `json:"kind"`
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`
}

// handleListDevices returns all devices, optionally filtered by ?kind=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var kind device.Kind
	if q := r.URL.Query().Get("kind"); q != "" {
		k, err := device.ParseKind(q)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		kind = k
	}

	devices := s.service.Devices(kind)
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by MAC.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.Device(chi.URLParam(r, "mac"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleRegisterDevice creates or updates a device by hand.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Kind) == "" {
		s.writeDomainError(w, r, device.ErrKindRequired)
		return
	}
	kind, err := device.ParseKind(req.Kind)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	d, err := s.service.RegisterDevice(r.Context(), presence.Registration{
		MAC:       req.MAC,
		Kind:      kind,
		Hostname:  req.Hostname,
		IPAddress: req.IPAddress,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleRemoveDevice deletes a device. Its identity history is kept.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.RemoveDevice(r.Context(), chi.URLParam(r, "mac"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": d,
	})
}

// handleDeviceHistory returns the remembered identity for a MAC, which
// survives removal of the device itself.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	mac, err := device.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	entry, ok := s.registry.History(mac)
	if !ok {
		writeNotFound(w, "no history for "+mac)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleDeviceStats returns registry counts by kind.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     stats.Total,
		"by_kind":   stats.ByKind,
		"connected": stats.Connected,
		"history":   stats.History,
	})
}

// handleForceHeartbeat probes every device now and returns the result.
func (s *Server) handleForceHeartbeat(w http.ResponseWriter, r *http.Request) {
	devices := s.service.ForceHeartbeatCheck(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}
