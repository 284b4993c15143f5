package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a MAC is not in the registry.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidMAC is returned when a MAC address is empty or malformed.
	ErrInvalidMAC = errors.New("device: invalid MAC address")

	// ErrKindRequired is returned when creating a device without a kind.
	ErrKindRequired = errors.New("device: kind required")

	// ErrInvalidKind is returned when a kind value is not recognised.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidMode is returned when a plug mode is not recognised.
	ErrInvalidMode = errors.New("device: invalid plug mode")

	// ErrNotPlug is returned when a plug-only field is set on another kind.
	ErrNotPlug = errors.New("device: not a plug")

	// ErrStale is returned by conditional mutations when the stored device
	// no longer matches the state the caller observed.
	ErrStale = errors.New("device: changed since observed")
)
