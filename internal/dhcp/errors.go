package dhcp

import "errors"

// ErrMalformedEvent is returned for events with no usable MAC or an
// unknown action. The registry is not touched.
var ErrMalformedEvent = errors.New("dhcp: malformed event")
