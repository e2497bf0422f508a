package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoErrOk(t *testing.T) {
	result := NoErrOK(1, map[string]any{"testkey": "testvalue"})

	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.NotZero(t, result.Timestamp, "expected Timestamp to be set")
	assert.Equal(t, http.StatusOK, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, map[string]any{"testkey": "testvalue"}, result.Response.Data, "expected Data to match")
}

func TestResponseConstructors(t *testing.T) {
	tcases := []struct {
		name         string
		result       *ServerMessage
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "accepted",
			result:       NoErrAccepted(1),
			expectedCode: http.StatusAccepted,
		},
		{
			name:         "room not found",
			result:       ErrRoomNotFound(1),
			expectedCode: http.StatusNotFound,
			expectedErr:  "room not found",
		},
		{
			name:         "internal error",
			result:       ErrInternalError(1),
			expectedCode: http.StatusInternalServerError,
			expectedErr:  "internal server error",
		},
		{
			name:         "service unavailable",
			result:       ErrServiceUnavailable(1),
			expectedCode: http.StatusServiceUnavailable,
			expectedErr:  "service unavailable",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotNil(t, tc.result, "expected result to be non-nil")
			assert.NotNil(t, tc.result.Response, "expected response to be non-nil")
			assert.Equal(t, 1, tc.result.Id, "expected Id to match")
			assert.NotZero(t, tc.result.Timestamp, "expected Timestamp to be set")
			assert.Equal(t, tc.expectedCode, tc.result.Response.ResponseCode, "expected ResponseCode to match")
			assert.Equal(t, tc.expectedErr, tc.result.Response.Error, "expected Error message to match")
		})
	}
}

func TestErrInvalidMessage(t *testing.T) {
	result := ErrInvalidMessage(-1)
	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 0, result.Id, "expected Id to be zero for unparseable messages")
	assert.Equal(t, http.StatusBadRequest, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "invalid message format", result.Response.Error, "expected Error message to match")

	resultWithId := ErrInvalidMessage(42)
	assert.Equal(t, 42, resultWithId.Id, "expected Id to be set when provided")
}
