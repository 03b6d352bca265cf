package models

import (
	"fmt"
	"time"
)

// DeliveryStatus is the outgoing-message delivery state. The declaration
// order is the rank order used for monotonic updates: a status update that
// ranks below the current status is discarded.
type DeliveryStatus int

const (
	StatusFailed DeliveryStatus = iota - 1
	StatusLocal
	StatusQueued
	StatusSending
	StatusSent
	StatusDelivered
	StatusRead
)

var statusNames = map[DeliveryStatus]string{
	StatusFailed:    "failed",
	StatusLocal:     "local",
	StatusQueued:    "queued",
	StatusSending:   "sending",
	StatusSent:      "sent",
	StatusDelivered: "delivered",
	StatusRead:      "read",
}

func (s DeliveryStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParseDeliveryStatus converts the persisted text form back to a status.
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return StatusLocal, fmt.Errorf("unknown delivery status: %q", s)
}

// UpgradableTo reports whether moving from s to next is a rank upgrade.
// StatusFailed never passes this check; the retry subsystem sets it
// explicitly, outside the rank rule.
func (s DeliveryStatus) UpgradableTo(next DeliveryStatus) bool {
	return next > s
}

// Terminal reports whether the message has left the retry pool for good.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusFailed || s == StatusDelivered || s == StatusRead
}

// NormalizeAckKind maps an inbound ack kind to a delivery status.
// Unrecognized kinds default to delivered; acks can never set failed.
func NormalizeAckKind(kind string) DeliveryStatus {
	switch kind {
	case "sent":
		return StatusSent
	case "delivered":
		return StatusDelivered
	case "read":
		return StatusRead
	default:
		return StatusDelivered
	}
}

// Direction marks where a message originated.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// ContentType is the application payload kind carried by a message.
type ContentType string

const (
	ContentText   ContentType = "text"
	ContentImage  ContentType = "image"
	ContentVideo  ContentType = "video"
	ContentAudio  ContentType = "audio"
	ContentVoice  ContentType = "voice"
	ContentFile   ContentType = "file"
	ContentSystem ContentType = "system"
)

// IsMedia reports whether the content references a local media file.
func (c ContentType) IsMedia() bool {
	switch c {
	case ContentImage, ContentVideo, ContentAudio, ContentVoice, ContentFile:
		return true
	}
	return false
}

// Message is the durable per-room message record. ID is a locally assigned
// surrogate key and doubles as the client message id on the wire.
type Message struct {
	ID                int64          `db:"id"`
	RoomID            string         `db:"room_id"`
	SenderID          string         `db:"sender_id"`
	Timestamp         time.Time      `db:"timestamp"`
	Direction         Direction      `db:"direction"`
	ContentType       ContentType    `db:"content_type"`
	Body              string         `db:"body"`
	LocalPath         *string        `db:"local_path"`
	DeliveryStatus    DeliveryStatus `db:"delivery_status"`
	SendAttempts      int            `db:"send_attempts"`
	LastSendTimestamp time.Time      `db:"last_send_timestamp"`
	LastError         string         `db:"last_error"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}
