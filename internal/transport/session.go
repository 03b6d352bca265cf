package transport

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"lxmchat/internal/bus"
	"lxmchat/internal/metrics"
	"lxmchat/internal/models"

	"github.com/sirupsen/logrus"
)

// State is the session connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

const writeTimeout = 10 * time.Second

type sessionConfig struct {
	heartbeatInterval    time.Duration
	heartbeatTimeout     time.Duration
	reconnectBase        time.Duration
	reconnectMax         time.Duration
	reconnectJitter      time.Duration
	reconnectMaxAttempts int
}

// Session is the live duplex-connection state machine scoped to one room.
// Exactly one session exists per room; the Registry enforces that.
//
// While disconnected, outbound containers and signals queue FIFO and the
// read receipt coalesces to the highest timestamp. Everything flushes in
// that order when the socket opens.
type Session struct {
	roomID    string
	userID    string
	sessionID string
	endpoint  string

	dialer     Dialer
	cfg        sessionConfig
	logger     *logrus.Logger
	containers *bus.ContainerBus
	acks       *bus.AckBus
	rtc        *bus.RTCBus
	lifecycle  *LifecycleMonitor

	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	state             State
	conn              Conn
	manuallyClosed    bool
	reconnectPending  bool
	reconnectAttempts int
	lastPong          time.Time
	reconnectTimer    *time.Timer
	heartbeatStop     chan struct{}
	pendingContainers []models.ContainerFrame
	pendingSignals    []models.RTCFrame
	pendingReadTs     int64
}

// RoomID returns the room this session serves.
func (s *Session) RoomID() string {
	return s.roomID
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QueueDepth returns the number of frames waiting for a connection.
func (s *Session) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := len(s.pendingContainers) + len(s.pendingSignals)
	if s.pendingReadTs > 0 {
		depth++
	}
	return depth
}

func (s *Session) connect() {
	s.mu.Lock()
	if s.manuallyClosed || s.state == StateConnecting || s.state == StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	conn, err := s.dialer.Dial(s.ctx, s.endpoint)
	if err != nil {
		s.logger.WithError(err).WithField("room", sanitizeRoomID(s.roomID)).Warn("Relay dial failed")
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if s.manuallyClosed {
		s.mu.Unlock()
		_ = conn.Close("session disposed")
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.reconnectAttempts = 0
	s.lastPong = time.Now()
	stop := make(chan struct{})
	s.heartbeatStop = stop

	// Hello and queue flush happen under the session lock so frames queued
	// while disconnected hit the wire before any send racing the flush.
	s.writeLocked(conn, models.HelloFrame{
		Type:      models.FrameHello,
		RoomID:    s.roomID,
		UserID:    s.userID,
		SessionID: s.sessionID,
		Ts:        time.Now().UnixMilli(),
	})
	s.flushLocked(conn)
	s.mu.Unlock()

	metrics.IncrementCounter("transport_connects", map[string]string{"room": sanitizeRoomID(s.roomID)}, "Successful relay connections")
	s.logger.WithFields(logrus.Fields{
		"room":    sanitizeRoomID(s.roomID),
		"session": s.sessionID,
	}).Info("Room transport open")

	go s.heartbeatLoop(conn, stop)
	go s.readLoop(conn)
}

// writeLocked marshals and writes one frame. Callers hold s.mu.
func (s *Session) writeLocked(conn Conn, frame interface{}) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal outbound frame")
		return false
	}

	wctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()

	if err := conn.Write(wctx, data); err != nil {
		s.logger.WithError(err).WithField("room", sanitizeRoomID(s.roomID)).Debug("Outbound frame write failed")
		return false
	}
	return true
}

// flushLocked drains the pending queues in order: containers, signals,
// then the coalesced read receipt. Callers hold s.mu. Frames that fail to
// write stay queued for the next flush.
func (s *Session) flushLocked(conn Conn) {
	for len(s.pendingContainers) > 0 {
		frame := s.pendingContainers[0]
		if !s.writeLocked(conn, frame) {
			return
		}
		s.pendingContainers = s.pendingContainers[1:]
	}

	for len(s.pendingSignals) > 0 {
		frame := s.pendingSignals[0]
		if !s.writeLocked(conn, frame) {
			return
		}
		s.pendingSignals = s.pendingSignals[1:]
	}

	if s.pendingReadTs > 0 {
		frame := models.ReadFrame{
			Type:   models.FrameRead,
			RoomID: s.roomID,
			UserID: s.userID,
			Ts:     s.pendingReadTs,
		}
		if s.writeLocked(conn, frame) {
			s.pendingReadTs = 0
		}
	}
}

// SendContainer transmits frame immediately when the socket is open, or
// queues it and reports false. A false return means "queued for later",
// not an error; callers track their own status accordingly.
func (s *Session) SendContainer(frame models.ContainerFrame) bool {
	frame.Type = models.FrameContainer

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateOpen && s.conn != nil {
		if s.writeLocked(s.conn, frame) {
			metrics.IncrementCounter("transport_containers_sent", nil, "Containers written to the relay")
			return true
		}
	}

	s.pendingContainers = append(s.pendingContainers, frame)
	metrics.SetGauge("transport_pending_containers", float64(len(s.pendingContainers)),
		map[string]string{"room": sanitizeRoomID(s.roomID)}, "Containers queued while disconnected")
	return false
}

// SendSignal transmits or queues a call-signaling frame.
func (s *Session) SendSignal(frame models.RTCFrame) bool {
	frame.Type = models.FrameRTC

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateOpen && s.conn != nil {
		if s.writeLocked(s.conn, frame) {
			return true
		}
	}

	s.pendingSignals = append(s.pendingSignals, frame)
	return false
}

// SendReadReceipt transmits the read position, or coalesces it into the
// single pending timestamp (only the most recent read position matters).
func (s *Session) SendReadReceipt(ts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateOpen && s.conn != nil {
		frame := models.ReadFrame{
			Type:   models.FrameRead,
			RoomID: s.roomID,
			UserID: s.userID,
			Ts:     ts,
		}
		if s.writeLocked(s.conn, frame) {
			return true
		}
	}

	if ts > s.pendingReadTs {
		s.pendingReadTs = ts
	}
	return false
}

func (s *Session) readLoop(conn Conn) {
	for {
		data, err := conn.Read(s.ctx)
		if err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		s.dispatch(data)
	}
}

// dispatch routes one inbound frame. Malformed or unknown frames are
// dropped with a log line; the dispatch loop must never crash on bad input.
func (s *Session) dispatch(data []byte) {
	frame, err := models.DecodeInboundFrame(data)
	if err != nil {
		metrics.IncrementCounter("transport_frames_dropped", nil, "Inbound frames dropped as malformed")
		s.logger.WithError(err).WithField("room", sanitizeRoomID(s.roomID)).Debug("Dropping inbound frame")
		return
	}

	switch frame.Kind {
	case models.FramePong:
		s.mu.Lock()
		s.lastPong = time.Now()
		s.mu.Unlock()
	case models.FrameAck:
		s.acks.Publish(*frame.Ack)
	case models.FrameContainer:
		s.containers.Publish(*frame.Container)
	case models.FrameRTC:
		s.rtc.Publish(*frame.RTC)
	}
}

func (s *Session) heartbeatLoop(conn Conn, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != conn || s.state != StateOpen {
				s.mu.Unlock()
				return
			}
			silence := time.Since(s.lastPong)
			if silence > s.cfg.heartbeatTimeout {
				s.mu.Unlock()
				// Half-open connection: close proactively so the read
				// loop fails fast and the reconnect path takes over.
				s.logger.WithFields(logrus.Fields{
					"room":    sanitizeRoomID(s.roomID),
					"silence": silence,
				}).Warn("Heartbeat timeout, closing socket")
				metrics.IncrementCounter("transport_heartbeat_timeouts", nil, "Sockets closed for missed pongs")
				_ = conn.Close("heartbeat timeout")
				return
			}
			s.writeLocked(conn, models.PingFrame{Type: models.FramePing, Ts: time.Now().UnixMilli()})
			s.mu.Unlock()
		}
	}
}

func (s *Session) handleDisconnect(conn Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		// A newer connection already replaced this one.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateDisconnected
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	manual := s.manuallyClosed
	s.mu.Unlock()

	_ = conn.Close("disconnected")

	if manual {
		return
	}

	s.logger.WithError(err).WithField("room", sanitizeRoomID(s.roomID)).Warn("Room transport disconnected")
	metrics.IncrementCounter("transport_disconnects", nil, "Unplanned socket drops")
	s.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer, or defers when backgrounded.
func (s *Session) scheduleReconnect() {
	active := s.lifecycle.Active()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manuallyClosed || s.reconnectTimer != nil || s.state != StateDisconnected {
		return
	}

	if !active {
		s.reconnectPending = true
		s.logger.WithField("room", sanitizeRoomID(s.roomID)).Debug("App backgrounded, deferring reconnect")
		return
	}

	if s.reconnectAttempts < s.cfg.reconnectMaxAttempts {
		s.reconnectAttempts++
	}
	attempt := s.reconnectAttempts

	delay := time.Duration(attempt)*s.cfg.reconnectBase + randomJitter(s.cfg.reconnectJitter)
	if delay > s.cfg.reconnectMax {
		delay = s.cfg.reconnectMax
	}

	s.logger.WithFields(logrus.Fields{
		"room":    sanitizeRoomID(s.roomID),
		"attempt": attempt,
		"delay":   delay,
	}).Info("Scheduling reconnect")

	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.reconnectTimer = nil
		s.mu.Unlock()
		s.connect()
	})
}

// fireDeferredReconnect runs a reconnect that was deferred while the app
// was backgrounded. No-op when already connected or not deferred.
func (s *Session) fireDeferredReconnect() {
	s.mu.Lock()
	fire := s.reconnectPending && !s.manuallyClosed && s.state == StateDisconnected
	s.reconnectPending = false
	s.mu.Unlock()

	if fire {
		go s.connect()
	}
}

// dispose tears the session down: timers cancelled, queues discarded,
// socket closed, no further reconnects. Discarding the queues is safe
// because queued outgoing messages are persisted and retried on the next
// room entry.
func (s *Session) dispose() {
	s.mu.Lock()
	s.manuallyClosed = true
	s.state = StateClosing
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	conn := s.conn
	s.conn = nil
	s.pendingContainers = nil
	s.pendingSignals = nil
	s.pendingReadTs = 0
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close("session disposed")
	}
	s.cancel()

	s.logger.WithField("room", sanitizeRoomID(s.roomID)).Info("Room transport disposed")
}

func randomJitter(window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(window)))
	if err != nil {
		return window / 2
	}
	return time.Duration(n.Int64())
}
