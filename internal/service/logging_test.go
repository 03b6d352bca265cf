package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizers_Default(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "***4567", SanitizeUserID(ctx, "user-1234567"))
	assert.Equal(t, "***", SanitizeUserID(ctx, "ab"))
	assert.Equal(t, "***m-42", SanitizeRoomID(ctx, "big-long-room-42"))
	assert.Equal(t, "[hidden]", SanitizeContent(ctx, "the secret message"))
}

func TestSanitizers_Verbose(t *testing.T) {
	ctx := context.WithValue(context.Background(), VerboseContextKey, true)

	assert.Equal(t, "user-1234567", SanitizeUserID(ctx, "user-1234567"))
	assert.Equal(t, "big-long-room-42", SanitizeRoomID(ctx, "big-long-room-42"))
	assert.Equal(t, "short preview", SanitizeContent(ctx, "short preview"))

	long := "0123456789012345678901234567890123456789"
	assert.Equal(t, long[:32]+"...", SanitizeContent(ctx, long))
}

func TestIsVerboseLoggingEnabled(t *testing.T) {
	assert.False(t, IsVerboseLoggingEnabled(context.Background()))
	assert.False(t, IsVerboseLoggingEnabled(nil))
	assert.True(t, IsVerboseLoggingEnabled(context.WithValue(context.Background(), VerboseContextKey, true)))
	assert.False(t, IsVerboseLoggingEnabled(context.WithValue(context.Background(), VerboseContextKey, "yes")))
}
