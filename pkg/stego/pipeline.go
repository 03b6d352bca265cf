// Package stego provides the default crypto+stego pipeline: payloads are
// sealed with a per-room symmetric key and framed by the container codec.
// The controller only sees the Pipeline interface, so deployments with a
// different key-agreement scheme can swap this out wholesale.
package stego

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"lxmchat/internal/container"
	apperrors "lxmchat/internal/errors"
	"lxmchat/internal/service"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize   = 32
	nonceSize = 24
	// Key stretching cost for the room secret.
	kdfIterations = 100000
)

// SecretboxPipeline seals payloads with nacl/secretbox using a key derived
// from a shared room secret. The sealed blob is random-nonce || ciphertext,
// wrapped in the container framing.
type SecretboxPipeline struct {
	secret []byte
	rand   io.Reader

	mu   sync.Mutex
	keys map[string]*[keySize]byte
}

// NewSecretboxPipeline builds a pipeline around the shared room secret.
// The secret must have been exchanged out of band.
func NewSecretboxPipeline(secret string) (*SecretboxPipeline, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("room secret must be at least 16 characters, got %d", len(secret))
	}
	return &SecretboxPipeline{
		secret: []byte(secret),
		rand:   rand.Reader,
		keys:   make(map[string]*[keySize]byte),
	}, nil
}

// roomKey derives the room's symmetric key, caching it after the first
// derivation. Binding the room id into the derivation keeps keys distinct
// across rooms sharing a secret.
func (p *SecretboxPipeline) roomKey(roomID string) *[keySize]byte {
	p.mu.Lock()
	if key, ok := p.keys[roomID]; ok {
		p.mu.Unlock()
		return key
	}
	p.mu.Unlock()

	salt := sha256.Sum256([]byte("lxmchat/room/" + roomID))
	derived := pbkdf2.Key(p.secret, salt[:], kdfIterations, keySize, sha256.New)

	var key [keySize]byte
	copy(key[:], derived)

	p.mu.Lock()
	p.keys[roomID] = &key
	p.mu.Unlock()
	return &key
}

// Encode seals payload for the room and frames the result.
func (p *SecretboxPipeline) Encode(_ context.Context, payload []byte, _ service.PeerContext, _ string, room service.RoomContext) ([]byte, error) {
	if len(payload) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeStegoEncode, "empty payload")
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(p.rand, nonce[:]); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStegoEncode, "failed to generate nonce")
	}

	sealed := secretbox.Seal(nonce[:], payload, &nonce, p.roomKey(room.RoomID))

	framed, err := container.Encode(sealed, room.Binding)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStegoEncode, "failed to frame container")
	}
	return framed, nil
}

// Decode validates the container framing against the room binding and
// opens the sealed payload.
func (p *SecretboxPipeline) Decode(_ context.Context, containerBytes []byte, _ service.PeerContext, _ string, room service.RoomContext) ([]byte, error) {
	binding := room.Binding
	sealed, err := container.Decode(containerBytes, &binding)
	if err != nil {
		if container.IsBindingMismatch(err) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeRoomBindingReject, "container bound to a different room")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeContainerDecode, "failed to decode container")
	}

	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, apperrors.New(apperrors.ErrCodeStegoDecode, "sealed payload too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	payload, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, p.roomKey(room.RoomID))
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeStegoDecode, "failed to open sealed payload")
	}
	return payload, nil
}
