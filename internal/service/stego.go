package service

import (
	"context"

	"lxmchat/internal/container"
)

// PeerContext identifies the remote party for the crypto layer.
type PeerContext struct {
	UserID string
}

// RoomContext carries the room identity and its container binding into the
// encode/decode pipeline.
type RoomContext struct {
	RoomID  string
	Binding container.Binding
}

// Pipeline is the injected crypto+stego encode/decode pair. Encode turns
// plaintext or file bytes into a framed container blob; Decode reverses it,
// validating the room binding before any payload is trusted. Both are
// opaque async calls that may fail; failures are non-fatal to the
// controller.
type Pipeline interface {
	Encode(ctx context.Context, payload []byte, peer PeerContext, kind string, room RoomContext) ([]byte, error)
	Decode(ctx context.Context, containerBytes []byte, sender PeerContext, kind string, room RoomContext) ([]byte, error)
}
