package stego

import (
	"context"
	"testing"

	"lxmchat/internal/container"
	apperrors "lxmchat/internal/errors"
	"lxmchat/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "shared-room-secret-0123456789"

func testRoom(binding container.Binding) service.RoomContext {
	return service.RoomContext{RoomID: "room-1", Binding: binding}
}

func TestPipeline_RoundTrip(t *testing.T) {
	p, err := NewSecretboxPipeline(testSecret)
	require.NoError(t, err)

	room := testRoom(container.Binding{ContainerType: 1, PayloadFormat: 2, TemplateID: 3, SlotID: 4})
	peer := service.PeerContext{UserID: "bob"}

	blob, err := p.Encode(context.Background(), []byte("the plaintext"), peer, "text", room)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "the plaintext")

	got, err := p.Decode(context.Background(), blob, peer, "text", room)
	require.NoError(t, err)
	assert.Equal(t, []byte("the plaintext"), got)
}

func TestPipeline_RejectsShortSecret(t *testing.T) {
	_, err := NewSecretboxPipeline("short")
	assert.Error(t, err)
}

func TestPipeline_EmptyPayload(t *testing.T) {
	p, err := NewSecretboxPipeline(testSecret)
	require.NoError(t, err)

	_, err = p.Encode(context.Background(), nil, service.PeerContext{}, "text", testRoom(container.Binding{}))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStegoEncode, apperrors.GetCode(err))
}

func TestPipeline_BindingMismatchRejected(t *testing.T) {
	p, err := NewSecretboxPipeline(testSecret)
	require.NoError(t, err)

	sendRoom := testRoom(container.Binding{ContainerType: 1, TemplateID: 3})
	recvRoom := testRoom(container.Binding{ContainerType: 1, TemplateID: 9})

	blob, err := p.Encode(context.Background(), []byte("bound payload"), service.PeerContext{}, "text", sendRoom)
	require.NoError(t, err)

	_, err = p.Decode(context.Background(), blob, service.PeerContext{}, "text", recvRoom)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRoomBindingReject, apperrors.GetCode(err))
}

func TestPipeline_TamperedCiphertextRejected(t *testing.T) {
	p, err := NewSecretboxPipeline(testSecret)
	require.NoError(t, err)

	room := testRoom(container.Binding{ContainerType: 1})
	blob, err := p.Encode(context.Background(), []byte("integrity matters"), service.PeerContext{}, "text", room)
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xFF

	_, err = p.Decode(context.Background(), blob, service.PeerContext{}, "text", room)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStegoDecode, apperrors.GetCode(err))
}

func TestPipeline_WrongRoomKeyFails(t *testing.T) {
	p, err := NewSecretboxPipeline(testSecret)
	require.NoError(t, err)

	binding := container.Binding{ContainerType: 1}
	blob, err := p.Encode(context.Background(), []byte("scoped to room-1"), service.PeerContext{}, "text",
		service.RoomContext{RoomID: "room-1", Binding: binding})
	require.NoError(t, err)

	// Same binding, different room id: the derived key differs.
	_, err = p.Decode(context.Background(), blob, service.PeerContext{}, "text",
		service.RoomContext{RoomID: "room-2", Binding: binding})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStegoDecode, apperrors.GetCode(err))
}

func TestPipeline_TruncatedContainerRejected(t *testing.T) {
	p, err := NewSecretboxPipeline(testSecret)
	require.NoError(t, err)

	room := testRoom(container.Binding{})
	_, err = p.Decode(context.Background(), []byte("tiny"), service.PeerContext{}, "text", room)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeContainerDecode, apperrors.GetCode(err))
}
