// Package container implements the framed binary format wrapped around the
// opaque ciphertext blob exchanged over the room transport. The codec is a
// pure framing layer; it has no knowledge of encryption.
//
// Layout: magic(8) || containerType(1) || payloadFormat(1) || templateId(1)
// || slotId(1) || payloadLength(4, big-endian) || payload.
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"lxmchat/internal/models"
)

// Magic identifies the framing version.
var Magic = []byte("LXMSTEG1")

// HeaderSize is the fixed portion of every framed container.
const HeaderSize = 16

var (
	// ErrEmptyPayload is returned by Encode for a zero-length payload.
	ErrEmptyPayload = errors.New("container: empty payload")

	// ErrTooShort is returned by Decode when the input is below the fixed
	// header length. Inputs of at least HeaderSize bytes without the magic
	// tag are treated as legacy raw payloads instead.
	ErrTooShort = errors.New("container: input shorter than fixed header")
)

// TruncatedPayloadError reports a length field that exceeds the bytes
// actually present. A mismatch is a hard decode failure, never a silent
// truncation.
type TruncatedPayloadError struct {
	Declared  uint32
	Remaining int
}

func (e *TruncatedPayloadError) Error() string {
	return fmt.Sprintf("container: truncated payload: header declares %d bytes, %d remain", e.Declared, e.Remaining)
}

// BindingMismatchError reports an inbound container whose room-binding
// fields do not match the session's expected binding. The payload must be
// discarded, not decrypted.
type BindingMismatchError struct {
	Field string
	Want  uint8
	Got   uint8
}

func (e *BindingMismatchError) Error() string {
	return fmt.Sprintf("container: room binding mismatch on %s: want %d, got %d", e.Field, e.Want, e.Got)
}

// IsBindingMismatch reports whether err is a room-binding rejection.
func IsBindingMismatch(err error) bool {
	var bm *BindingMismatchError
	return errors.As(err, &bm)
}

// Binding is the room-binding tuple a transport session expects inbound
// containers to carry.
type Binding struct {
	ContainerType uint8
	PayloadFormat uint8
	TemplateID    uint8
	SlotID        uint8
}

// BindingFromConfig masks the configured placement parameters to 8 bits.
// Out-of-range values are truncated, not rejected.
func BindingFromConfig(cfg models.RoomBindingConfig) Binding {
	return Binding{
		ContainerType: cfg.ContainerType,
		PayloadFormat: cfg.PayloadFormat,
		TemplateID:    uint8(cfg.TemplateID & 0xff),
		SlotID:        uint8(cfg.SlotID & 0xff),
	}
}

// Encode frames payload with the given binding. Deterministic and pure;
// the only allocation is the output buffer.
func Encode(payload []byte, b Binding) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	out := make([]byte, HeaderSize+len(payload))
	copy(out, Magic)
	out[8] = b.ContainerType
	out[9] = b.PayloadFormat
	out[10] = b.TemplateID
	out[11] = b.SlotID
	binary.BigEndian.PutUint32(out[12:16], uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Decode extracts the payload from a framed container. Inputs that do not
// start with the magic tag are returned unchanged as legacy raw payloads.
// When expected is non-nil, every binding field is validated and any
// mismatch rejects the payload.
func Decode(data []byte, expected *Binding) ([]byte, error) {
	if len(data) < HeaderSize {
		return nil, ErrTooShort
	}

	if !bytes.Equal(data[:8], Magic) {
		// Pre-framing payloads were sent raw; pass them through.
		return data, nil
	}

	got := Binding{
		ContainerType: data[8],
		PayloadFormat: data[9],
		TemplateID:    data[10],
		SlotID:        data[11],
	}
	payloadLen := binary.BigEndian.Uint32(data[12:16])

	remaining := len(data) - HeaderSize
	if int64(payloadLen) > int64(remaining) {
		return nil, &TruncatedPayloadError{Declared: payloadLen, Remaining: remaining}
	}

	if expected != nil {
		if err := matchBinding(*expected, got); err != nil {
			return nil, err
		}
	}

	return data[HeaderSize : HeaderSize+int(payloadLen)], nil
}

func matchBinding(want, got Binding) error {
	if want.ContainerType != got.ContainerType {
		return &BindingMismatchError{Field: "containerType", Want: want.ContainerType, Got: got.ContainerType}
	}
	if want.PayloadFormat != got.PayloadFormat {
		return &BindingMismatchError{Field: "payloadFormat", Want: want.PayloadFormat, Got: got.PayloadFormat}
	}
	if want.TemplateID != got.TemplateID {
		return &BindingMismatchError{Field: "templateId", Want: want.TemplateID, Got: got.TemplateID}
	}
	if want.SlotID != got.SlotID {
		return &BindingMismatchError{Field: "slotId", Want: want.SlotID, Got: got.SlotID}
	}
	return nil
}
