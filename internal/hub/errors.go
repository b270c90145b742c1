// Package hub defines the error taxonomy surfaced to clients and logged by
// internal failure paths.
package hub

import "errors"

// Sentinel errors for every failure the hub can surface. Handlers wrap these
// with fmt.Errorf("%w: ...") to add context; errorCode strips it back off for
// the wire.
var (
	ErrAuthentication     = errors.New("authentication failed")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrRoomFull           = errors.New("room full")
	ErrInvalidRoomName    = errors.New("invalid room name")
	ErrDeliveryFailed     = errors.New("delivery failed")
	ErrAdapterUnavailable = errors.New("fan-out adapter unavailable")
)

// errorCode maps a hub error to the short code carried by error events.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "AUTHENTICATION_ERROR"
	case errors.Is(err, ErrRateLimitExceeded):
		return "RATE_LIMIT_EXCEEDED"
	case errors.Is(err, ErrInvalidMessage):
		return "INVALID_MESSAGE_FORMAT"
	case errors.Is(err, ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, ErrInvalidRoomName):
		return "INVALID_ROOM_NAME"
	case errors.Is(err, ErrDeliveryFailed):
		return "DELIVERY_ERROR"
	case errors.Is(err, ErrAdapterUnavailable):
		return "ADAPTER_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
