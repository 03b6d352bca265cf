package service

import (
	"context"

	"lxmchat/internal/constants"
)

type contextKey string

// VerboseContextKey enables full identifiers and message previews in logs.
// Without it, identifiers are truncated and content is hidden.
const VerboseContextKey contextKey = "verbose_logging"

func IsVerboseLoggingEnabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, ok := ctx.Value(VerboseContextKey).(bool)
	return ok && v
}

// SanitizeUserID masks a user identifier for logging unless verbose logging
// is enabled.
func SanitizeUserID(ctx context.Context, userID string) string {
	if IsVerboseLoggingEnabled(ctx) {
		return userID
	}
	return maskIdentifier(userID)
}

// SanitizeRoomID masks a room identifier for logging unless verbose logging
// is enabled. Room identifiers can embed peer addresses.
func SanitizeRoomID(ctx context.Context, roomID string) string {
	if IsVerboseLoggingEnabled(ctx) {
		return roomID
	}
	return maskIdentifier(roomID)
}

// SanitizeContent hides message content in logs. Even verbose logging only
// reveals a short preview.
func SanitizeContent(ctx context.Context, content string) string {
	if !IsVerboseLoggingEnabled(ctx) {
		return "[hidden]"
	}
	const previewLen = 32
	if len(content) > previewLen {
		return content[:previewLen] + "..."
	}
	return content
}

func maskIdentifier(id string) string {
	if len(id) <= constants.DefaultIDMaskLength {
		return "***"
	}
	return "***" + id[len(id)-constants.DefaultIDMaskLength:]
}
