package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/dhcp"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/plug"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeBadGateway     = "bad_gateway"
	ErrCodeGatewayTimeout = "gateway_timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a sentinel error from the core packages to an HTTP
// status. Unknown errors become 500 and are logged.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, plug.ErrPlugNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrInvalidMAC),
		errors.Is(err, device.ErrKindRequired),
		errors.Is(err, device.ErrInvalidKind),
		errors.Is(err, device.ErrInvalidStatus),
		errors.Is(err, device.ErrInvalidMode),
		errors.Is(err, device.ErrNotPlug),
		errors.Is(err, dhcp.ErrMalformedEvent):
		writeBadRequest(w, err.Error())
	case errors.Is(err, settings.ErrInvalid):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, plug.ErrPlugNotConnected):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, plug.ErrPlugTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeGatewayTimeout, err.Error())
	case errors.Is(err, plug.ErrPlugConnectionRefused),
		errors.Is(err, plug.ErrPlugUnexpectedResponse):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	default:
		s.logger.Error("unhandled error in HTTP handler",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
