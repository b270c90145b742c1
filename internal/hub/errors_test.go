package hub

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrorCode verifies the sentinel-to-wire-code mapping, including wrapped
// errors and the internal fallback.
func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{ErrAuthentication, "AUTHENTICATION_ERROR"},
		{ErrRateLimitExceeded, "RATE_LIMIT_EXCEEDED"},
		{ErrInvalidMessage, "INVALID_MESSAGE_FORMAT"},
		{ErrRoomFull, "ROOM_FULL"},
		{ErrInvalidRoomName, "INVALID_ROOM_NAME"},
		{ErrDeliveryFailed, "DELIVERY_ERROR"},
		{ErrAdapterUnavailable, "ADAPTER_UNAVAILABLE"},
		{fmt.Errorf("%w: lobby is at its limit", ErrRoomFull), "ROOM_FULL"},
		{errors.New("disk exploded"), "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, errorCode(tc.err), "wrong code for %v", tc.err)
	}
}
