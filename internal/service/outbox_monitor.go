package service

import (
	"context"
	"sync"
	"time"

	"lxmchat/internal/metrics"

	"github.com/sirupsen/logrus"
)

// StaleCounter reports how many outgoing messages have sat in "sent"
// longer than the threshold without an ack.
type StaleCounter interface {
	GetStaleMessageCount(ctx context.Context, threshold time.Duration) (int, error)
}

// OutboxMonitor periodically sweeps every room's outbox and watches for
// messages stuck awaiting delivery acks.
type OutboxMonitor struct {
	controllers    []*RoomController
	staleCounter   StaleCounter
	sweepInterval  time.Duration
	staleThreshold time.Duration
	logger         *logrus.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewOutboxMonitor(
	controllers []*RoomController,
	staleCounter StaleCounter,
	sweepInterval, staleThreshold time.Duration,
	logger *logrus.Logger,
) *OutboxMonitor {
	return &OutboxMonitor{
		controllers:    controllers,
		staleCounter:   staleCounter,
		sweepInterval:  sweepInterval,
		staleThreshold: staleThreshold,
		logger:         logger,
	}
}

// Start launches the sweep loop. Safe to call once; Stop ends it.
func (m *OutboxMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.logger.WithField("interval", m.sweepInterval).Info("Starting outbox monitor")

	go func() {
		// First sweep right away so messages queued before a restart go
		// out as soon as their rooms are up.
		m.sweep(ctx)

		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}()
}

func (m *OutboxMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *OutboxMonitor) sweep(ctx context.Context) {
	for _, c := range m.controllers {
		if err := c.RetryPending(ctx); err != nil {
			m.logger.WithError(err).WithField("room", SanitizeRoomID(ctx, c.RoomID())).
				Error("Outbox sweep failed for room")
		}
	}

	if m.staleCounter == nil {
		return
	}
	stale, err := m.staleCounter.GetStaleMessageCount(ctx, m.staleThreshold)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to count stale sent messages")
		return
	}
	metrics.SetGauge("outbox_stale_sent", float64(stale), nil, "Sent messages without a delivery ack past threshold")
	if stale > 0 {
		m.logger.WithFields(logrus.Fields{
			"count":     stale,
			"threshold": m.staleThreshold,
		}).Warn("Messages stuck awaiting delivery acks")
	}
}
