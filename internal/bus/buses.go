package bus

import (
	"sync"

	"lxmchat/internal/models"

	"github.com/sirupsen/logrus"
)

// ContainerBus fans out inbound container frames to room controllers.
type ContainerBus = Bus[models.ContainerFrame]

// AckBus fans out inbound delivery acknowledgements.
type AckBus = Bus[models.AckFrame]

func NewContainerBus(logger *logrus.Logger) *ContainerBus {
	return New[models.ContainerFrame]("container", logger)
}

func NewAckBus(logger *logrus.Logger) *AckBus {
	return New[models.AckFrame]("ack", logger)
}

// RTCBus fans out call signaling frames and keeps the most recent offer per
// room so a subscriber attaching mid-call still sees the pending offer.
type RTCBus struct {
	*Bus[models.RTCFrame]

	mu        sync.Mutex
	lastOffer map[string]models.RTCFrame
}

func NewRTCBus(logger *logrus.Logger) *RTCBus {
	return &RTCBus{
		Bus:       New[models.RTCFrame]("rtc", logger),
		lastOffer: make(map[string]models.RTCFrame),
	}
}

// Publish records offer frames for replay before fanning out. A hangup
// clears the cached offer for its room.
func (b *RTCBus) Publish(frame models.RTCFrame) {
	b.mu.Lock()
	switch frame.SignalType {
	case "offer":
		b.lastOffer[frame.RoomID] = frame
	case "hangup", "cancel":
		delete(b.lastOffer, frame.RoomID)
	}
	b.mu.Unlock()

	b.Bus.Publish(frame)
}

// SubscribeWithReplay registers a handler and immediately replays the cached
// offer for roomID, if any.
func (b *RTCBus) SubscribeWithReplay(roomID string, fn Handler[models.RTCFrame]) func() {
	cancel := b.Subscribe(fn)

	b.mu.Lock()
	offer, ok := b.lastOffer[roomID]
	b.mu.Unlock()
	if ok {
		b.deliver(fn, offer)
	}

	return cancel
}

// LastOffer returns the cached offer for roomID, if present.
func (b *RTCBus) LastOffer(roomID string) (models.RTCFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	offer, ok := b.lastOffer[roomID]
	return offer, ok
}
