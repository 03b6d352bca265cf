package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"lxmchat/internal/bus"
	"lxmchat/internal/constants"
	"lxmchat/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry owns the sessions-by-room map. It is an explicit object created
// at startup and handed to whatever needs to send; there is no package
// global.
type Registry struct {
	relayURL  string
	authToken string
	dialer    Dialer
	cfg       sessionConfig
	logger    *logrus.Logger

	containers *bus.ContainerBus
	acks       *bus.AckBus
	rtc        *bus.RTCBus
	lifecycle  *LifecycleMonitor

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session

	unsubLifecycle func()
}

// SessionInfo is a diagnostic snapshot of one live session.
type SessionInfo struct {
	RoomID     string `json:"roomId"`
	State      string `json:"state"`
	QueueDepth int    `json:"queueDepth"`
}

func NewRegistry(
	cfg models.TransportConfig,
	relayURL, authToken string,
	dialer Dialer,
	containers *bus.ContainerBus,
	acks *bus.AckBus,
	rtc *bus.RTCBus,
	lifecycle *LifecycleMonitor,
	logger *logrus.Logger,
) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		relayURL:   relayURL,
		authToken:  authToken,
		dialer:     dialer,
		cfg:        sessionConfigFrom(cfg),
		logger:     logger,
		containers: containers,
		acks:       acks,
		rtc:        rtc,
		lifecycle:  lifecycle,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*Session),
	}

	r.unsubLifecycle = lifecycle.OnChange(func(state LifecycleState) {
		if state != LifecycleActive {
			return
		}
		r.mu.Lock()
		sessions := make([]*Session, 0, len(r.sessions))
		for _, s := range r.sessions {
			sessions = append(sessions, s)
		}
		r.mu.Unlock()

		for _, s := range sessions {
			s.fireDeferredReconnect()
		}
	})

	return r
}

func sessionConfigFrom(cfg models.TransportConfig) sessionConfig {
	out := sessionConfig{
		heartbeatInterval:    time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
		heartbeatTimeout:     time.Duration(cfg.HeartbeatTimeoutSec) * time.Second,
		reconnectBase:        time.Duration(cfg.ReconnectBaseMs) * time.Millisecond,
		reconnectMax:         time.Duration(cfg.ReconnectMaxMs) * time.Millisecond,
		reconnectJitter:      time.Duration(cfg.ReconnectJitterMs) * time.Millisecond,
		reconnectMaxAttempts: cfg.ReconnectMaxAttempts,
	}
	if out.heartbeatInterval <= 0 {
		out.heartbeatInterval = constants.DefaultHeartbeatIntervalSec * time.Second
	}
	if out.heartbeatTimeout <= 0 {
		out.heartbeatTimeout = constants.DefaultHeartbeatTimeoutSec * time.Second
	}
	if out.reconnectBase <= 0 {
		out.reconnectBase = constants.DefaultReconnectBaseMs * time.Millisecond
	}
	if out.reconnectMax <= 0 {
		out.reconnectMax = constants.DefaultReconnectMaxMs * time.Millisecond
	}
	if out.reconnectJitter <= 0 {
		out.reconnectJitter = constants.DefaultReconnectJitterMs * time.Millisecond
	}
	if out.reconnectMaxAttempts <= 0 {
		out.reconnectMaxAttempts = constants.DefaultReconnectMaxAttempts
	}
	return out
}

// Ensure returns the session for roomID, creating and connecting one if
// absent. A second call for the same room is a no-op returning the live
// session.
func (r *Registry) Ensure(roomID, userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[roomID]; ok {
		return s
	}

	ctx, cancel := context.WithCancel(r.ctx)
	s := &Session{
		roomID:     roomID,
		userID:     userID,
		sessionID:  uuid.NewString(),
		endpoint:   r.endpointFor(roomID),
		dialer:     r.dialer,
		cfg:        r.cfg,
		logger:     r.logger,
		containers: r.containers,
		acks:       r.acks,
		rtc:        r.rtc,
		lifecycle:  r.lifecycle,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateDisconnected,
	}
	r.sessions[roomID] = s

	go s.connect()
	return s
}

// Get returns the live session for roomID, if any.
func (r *Registry) Get(roomID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[roomID]
	return s, ok
}

// Dispose tears down the session for roomID and removes it. Idempotent.
func (r *Registry) Dispose(roomID string) {
	r.mu.Lock()
	s, ok := r.sessions[roomID]
	if ok {
		delete(r.sessions, roomID)
	}
	r.mu.Unlock()

	if ok {
		s.dispose()
	}
}

// Close disposes every session and detaches from the lifecycle monitor.
func (r *Registry) Close() {
	if r.unsubLifecycle != nil {
		r.unsubLifecycle()
	}

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.dispose()
	}
	r.cancel()
}

// Sessions returns a diagnostic snapshot of all live sessions.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, SessionInfo{
			RoomID:     sanitizeRoomID(s.roomID),
			State:      s.State().String(),
			QueueDepth: s.QueueDepth(),
		})
	}
	return infos
}

func (r *Registry) endpointFor(roomID string) string {
	q := url.Values{}
	q.Set("roomId", roomID)
	q.Set("token", r.authToken)
	return r.relayURL + "?" + q.Encode()
}

// sanitizeRoomID shortens room ids for logs; room ids can embed peer
// identifiers.
func sanitizeRoomID(roomID string) string {
	if len(roomID) <= constants.DefaultIDMaskLength {
		return roomID
	}
	return "***" + roomID[len(roomID)-constants.DefaultIDMaskLength:]
}
