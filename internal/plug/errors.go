package plug

import "errors"

var (
	// ErrPlugNotFound is returned when no plug with the MAC is registered.
	ErrPlugNotFound = errors.New("plug: not found")

	// ErrPlugNotConnected is returned when the plug is offline or has no address.
	ErrPlugNotConnected = errors.New("plug: not connected")

	// ErrPlugTimeout is returned when the plug did not answer in time.
	ErrPlugTimeout = errors.New("plug: request timed out")

	// ErrPlugConnectionRefused is returned when the plug refused the connection
	// or could not be reached at all.
	ErrPlugConnectionRefused = errors.New("plug: connection refused")

	// ErrPlugUnexpectedResponse is returned for non-200 or undecodable replies.
	ErrPlugUnexpectedResponse = errors.New("plug: unexpected response")
)
