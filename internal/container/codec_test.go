package container

import (
	"encoding/binary"
	"testing"

	"lxmchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	binding := Binding{ContainerType: 1, PayloadFormat: 2, TemplateID: 3, SlotID: 4}
	payload := []byte("sealed ciphertext bytes")

	framed, err := Encode(payload, binding)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+len(payload), len(framed))
	assert.Equal(t, Magic, framed[:8])

	got, err := Decode(framed, &binding)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEncode_EmptyPayload(t *testing.T) {
	_, err := Encode(nil, Binding{})
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Encode([]byte{}, Binding{})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestDecode_TooShort(t *testing.T) {
	for _, size := range []int{0, 1, 8, 15} {
		_, err := Decode(make([]byte, size), nil)
		assert.ErrorIs(t, err, ErrTooShort, "size %d", size)
	}
}

func TestDecode_LegacyRawPassthrough(t *testing.T) {
	// No magic tag: the input is a pre-framing raw payload and must come
	// back unchanged, even with a binding configured.
	raw := []byte("0123456789abcdefXYZ")
	binding := Binding{ContainerType: 9}

	got, err := Decode(raw, &binding)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestDecode_TruncatedPayload(t *testing.T) {
	binding := Binding{ContainerType: 1, PayloadFormat: 1, TemplateID: 1, SlotID: 1}
	framed, err := Encode([]byte("full payload"), binding)
	require.NoError(t, err)

	// Declare more bytes than remain after the header.
	binary.BigEndian.PutUint32(framed[12:16], uint32(len(framed)))

	_, err = Decode(framed, &binding)
	var truncated *TruncatedPayloadError
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, uint32(len(framed)), truncated.Declared)
	assert.Equal(t, len(framed)-HeaderSize, truncated.Remaining)
}

func TestDecode_TrailingBytesTolerated(t *testing.T) {
	binding := Binding{ContainerType: 1}
	payload := []byte("exact")
	framed, err := Encode(payload, binding)
	require.NoError(t, err)

	padded := append(framed, 0xAA, 0xBB, 0xCC)
	got, err := Decode(padded, &binding)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecode_BindingMismatch(t *testing.T) {
	sent := Binding{ContainerType: 1, PayloadFormat: 2, TemplateID: 3, SlotID: 4}
	framed, err := Encode([]byte("payload"), sent)
	require.NoError(t, err)

	cases := []struct {
		name     string
		expected Binding
		field    string
	}{
		{"containerType", Binding{ContainerType: 7, PayloadFormat: 2, TemplateID: 3, SlotID: 4}, "containerType"},
		{"payloadFormat", Binding{ContainerType: 1, PayloadFormat: 7, TemplateID: 3, SlotID: 4}, "payloadFormat"},
		{"templateId", Binding{ContainerType: 1, PayloadFormat: 2, TemplateID: 7, SlotID: 4}, "templateId"},
		{"slotId", Binding{ContainerType: 1, PayloadFormat: 2, TemplateID: 3, SlotID: 7}, "slotId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(framed, &tc.expected)
			require.Error(t, err)
			assert.True(t, IsBindingMismatch(err))

			var bm *BindingMismatchError
			require.ErrorAs(t, err, &bm)
			assert.Equal(t, tc.field, bm.Field)
		})
	}
}

func TestDecode_NoBindingSkipsValidation(t *testing.T) {
	framed, err := Encode([]byte("payload"), Binding{ContainerType: 42})
	require.NoError(t, err)

	got, err := Decode(framed, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestBindingFromConfig_MasksTo8Bits(t *testing.T) {
	b := BindingFromConfig(models.RoomBindingConfig{
		ContainerType: 5,
		PayloadFormat: 6,
		TemplateID:    0x1FF, // 511 truncates to 255
		SlotID:        256,   // truncates to 0
	})
	assert.Equal(t, uint8(5), b.ContainerType)
	assert.Equal(t, uint8(6), b.PayloadFormat)
	assert.Equal(t, uint8(0xFF), b.TemplateID)
	assert.Equal(t, uint8(0), b.SlotID)
}

func TestEncodeDecode_LargePayloadLength(t *testing.T) {
	binding := Binding{}
	payload := make([]byte, 70000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	framed, err := Encode(payload, binding)
	require.NoError(t, err)
	assert.Equal(t, uint32(70000), binary.BigEndian.Uint32(framed[12:16]))

	got, err := Decode(framed, &binding)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
