package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad input")
	assert.Equal(t, ErrCodeInvalidInput, err.Code)
	assert.Contains(t, err.Error(), "bad input")
	assert.False(t, err.Retryable)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk exploded")
	err := Wrap(cause, ErrCodeStoreQuery, "query failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeStoreQuery, GetCode(err))
	assert.False(t, IsRetryable(err))
}

func TestWrapRetryable(t *testing.T) {
	err := WrapRetryable(errors.New("timeout"), ErrCodeTransportTimeout, "relay write timed out")
	assert.True(t, IsRetryable(err))
}

func TestGetCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("anonymous")))
}

func TestWithUserMessage(t *testing.T) {
	err := New(ErrCodeMediaTooLarge, "file exceeds cap").
		WithUserMessage("Attachment is too large to send")

	assert.Equal(t, "Attachment is too large to send", GetUserMessage(err))

	// A plain error falls back to a generic user message.
	assert.NotEmpty(t, GetUserMessage(errors.New("internal detail")))
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeStoreQuery, "query failed").
		WithContext("table", "messages").
		WithContext("attempt", 2)

	require.NotNil(t, err.Context)
	assert.Equal(t, "messages", err.Context["table"])
	assert.Equal(t, 2, err.Context["attempt"])
}
