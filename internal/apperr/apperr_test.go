package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := New(KindSlotConflict, "time slot already booked")
	wrapped := fmt.Errorf("create booking: %w", base)

	assert.Equal(t, KindSlotConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindSlotConflict))
	assert.False(t, Is(wrapped, KindNotFound))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindStoreUnavailable, KindOf(errors.New("connection reset")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(KindStoreUnavailable, cause, "load machine")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "load machine: dial tcp: timeout", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		kind     Kind
		expected int
	}{
		{KindInvalidInput, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindSessionNotFound, http.StatusNotFound},
		{KindSlotConflict, http.StatusConflict},
		{KindStationOccupied, http.StatusConflict},
		{KindSessionAlreadyEnded, http.StatusConflict},
		{KindInvalidTransition, http.StatusConflict},
		{KindUnauthorized, http.StatusForbidden},
		{KindStoreUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.expected, HTTPStatus(tc.kind))
		})
	}
}
