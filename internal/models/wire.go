package models

import (
	"encoding/json"
	"fmt"
)

// Frame types exchanged with the relay. Every wire message carries a type
// tag; inbound payloads are decoded into exactly one of the variants below
// before any field access.
const (
	FrameHello     = "hello"
	FramePing      = "ping"
	FramePong      = "pong"
	FrameContainer = "container"
	FrameRead      = "read"
	FrameAck       = "ack"
	FrameRTC       = "rtc"
)

// HelloFrame announces a session to the relay after the socket opens.
type HelloFrame struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	Ts        int64  `json:"ts"`
}

// PingFrame is the heartbeat probe.
type PingFrame struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

// ContainerFrame carries a framed steganographic container, base64 encoded.
type ContainerFrame struct {
	Type            string `json:"type"`
	ID              string `json:"id,omitempty"`
	RoomID          string `json:"roomId"`
	From            string `json:"from"`
	MessageType     string `json:"messageType"`
	ContainerBase64 string `json:"containerBase64"`
	FileName        string `json:"fileName,omitempty"`
	Extension       string `json:"extension,omitempty"`
	ClientMsgID     int64  `json:"clientMsgId,omitempty"`
	Ts              int64  `json:"ts"`
}

// ReadFrame reports the caller's read position for a room.
type ReadFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Ts     int64  `json:"ts"`
}

// AckFrame correlates a client message id to a delivery status.
type AckFrame struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	ClientMsgID int64  `json:"clientMsgId,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Ts          int64  `json:"ts,omitempty"`
}

// RTCFrame carries call signaling through the room socket.
type RTCFrame struct {
	Type       string          `json:"type"`
	RoomID     string          `json:"roomId"`
	From       string          `json:"from"`
	To         string          `json:"to,omitempty"`
	CallID     string          `json:"callId,omitempty"`
	SignalType string          `json:"signalType"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Ts         int64           `json:"ts"`
}

// InboundFrame is the decoded form of one relay frame: exactly one of the
// variant pointers is non-nil, discriminated by Kind.
type InboundFrame struct {
	Kind      string
	Pong      *PingFrame
	Ack       *AckFrame
	Container *ContainerFrame
	RTC       *RTCFrame
}

type frameEnvelope struct {
	Type string `json:"type"`
}

// DecodeInboundFrame parses a relay text frame into a tagged variant.
// Unknown types and malformed JSON return an error; the transport drops
// those without surfacing them.
func DecodeInboundFrame(data []byte) (*InboundFrame, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case FramePong:
		var f PingFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("malformed pong frame: %w", err)
		}
		return &InboundFrame{Kind: FramePong, Pong: &f}, nil
	case FrameAck:
		var f AckFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("malformed ack frame: %w", err)
		}
		return &InboundFrame{Kind: FrameAck, Ack: &f}, nil
	case FrameContainer:
		var f ContainerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("malformed container frame: %w", err)
		}
		return &InboundFrame{Kind: FrameContainer, Container: &f}, nil
	case FrameRTC:
		var f RTCFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("malformed rtc frame: %w", err)
		}
		return &InboundFrame{Kind: FrameRTC, RTC: &f}, nil
	default:
		return nil, fmt.Errorf("unknown frame type: %q", env.Type)
	}
}
