package heartbeat

import "errors"

var (
	// ErrNoAddress is reported for devices without a known IP address.
	ErrNoAddress = errors.New("heartbeat: device has no ip address")

	// ErrUnknownMethod is reported when settings carry an unsupported method.
	ErrUnknownMethod = errors.New("heartbeat: unknown probe method")

	// ErrNoReply is reported when an ICMP probe received no reply.
	ErrNoReply = errors.New("heartbeat: no echo reply")
)
