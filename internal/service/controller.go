package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lxmchat/internal/bus"
	apperrors "lxmchat/internal/errors"
	"lxmchat/internal/media"
	"lxmchat/internal/metrics"
	"lxmchat/internal/models"
	"lxmchat/internal/retry"
	"lxmchat/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MessageStore is the durable store the controller reconciles against.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessageByID(ctx context.Context, id int64) (*models.Message, error)
	GetMessagesForRoom(ctx context.Context, roomID string, limit int, beforeTs *time.Time) ([]*models.Message, error)
	GetPendingOutgoingMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
	UpdateMessageDeliveryStatus(ctx context.Context, id int64, status models.DeliveryStatus) (bool, error)
	BumpSendAttempt(ctx context.Context, id int64, status models.DeliveryStatus, lastError string) error
	MarkMessageFailed(ctx context.Context, id int64, lastError string) error
	MarkRoomRead(ctx context.Context, roomID string) error
}

// RoomTransport is the per-room session surface the controller sends
// through. Sends report whether the frame went out immediately; a false
// return means it was queued for the next flush.
type RoomTransport interface {
	SendContainer(frame models.ContainerFrame) bool
	SendReadReceipt(ts int64) bool
}

// OutboxOptions bounds the retry sweep for one room.
type OutboxOptions struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	BatchSize   int
}

// RoomController drives one room: outgoing sends, the offline outbox,
// inbound container ingestion and delivery-status reconciliation. One
// controller per configured room, created at startup.
type RoomController struct {
	roomID   string
	userID   string
	peer     PeerContext
	roomCtx  RoomContext
	store    MessageStore
	trans    RoomTransport
	pipeline Pipeline
	media    *media.Validator
	mediaDir string
	outbox   OutboxOptions
	logger   *apperrors.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	lastError     *UserFacingError
	readWatermark int64
	statusCache   map[int64]models.DeliveryStatus
	unsubs        []func()
}

func NewRoomController(
	roomID, userID, peerID string,
	roomCtx RoomContext,
	store MessageStore,
	trans RoomTransport,
	pipeline Pipeline,
	mediaValidator *media.Validator,
	mediaDir string,
	outbox OutboxOptions,
	containers *bus.ContainerBus,
	acks *bus.AckBus,
	observer Observer,
	logger *logrus.Logger,
) *RoomController {
	ctx, cancel := context.WithCancel(context.Background())

	if observer == nil {
		observer = NopObserver{}
	}

	c := &RoomController{
		roomID:      roomID,
		userID:      userID,
		peer:        PeerContext{UserID: peerID},
		roomCtx:     roomCtx,
		store:       store,
		trans:       trans,
		pipeline:    pipeline,
		media:       mediaValidator,
		mediaDir:    mediaDir,
		outbox:      outbox,
		logger:      apperrors.WrapLogger(logger),
		observer:    observer,
		ctx:         ctx,
		cancel:      cancel,
		statusCache: make(map[int64]models.DeliveryStatus),
	}

	c.unsubs = append(c.unsubs,
		containers.Subscribe(c.handleInboundContainer),
		acks.Subscribe(c.handleAck),
	)
	return c
}

func (c *RoomController) RoomID() string {
	return c.roomID
}

// SendText persists an outgoing text message, surfaces it optimistically,
// then encodes and hands it to the transport. The message survives in the
// outbox whatever happens after persistence.
func (c *RoomController) SendText(ctx context.Context, body string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "message body is empty")
	}

	msg := c.newOutgoingMessage(models.ContentText, body, nil)
	if err := c.store.InsertMessage(ctx, msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStoreQuery, "failed to persist outgoing message")
	}
	c.observer.OnMessage(msg)

	c.attemptSend(ctx, msg, []byte(body))
	return msg, nil
}

// SendMedia persists an outgoing media message referencing localPath, then
// validates, encodes and sends the file bytes. A missing or oversized file
// fails the message terminally.
func (c *RoomController) SendMedia(ctx context.Context, localPath string, kind models.ContentType) (*models.Message, error) {
	if !kind.IsMedia() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("content type %q does not carry media", kind))
	}

	msg := c.newOutgoingMessage(kind, filepath.Base(localPath), &localPath)
	if err := c.store.InsertMessage(ctx, msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStoreQuery, "failed to persist outgoing message")
	}
	c.observer.OnMessage(msg)

	payload, err := c.media.Read(localPath)
	if err != nil {
		c.failTerminally(ctx, msg.ID, err)
		return msg, err
	}

	c.attemptSend(ctx, msg, payload)
	return msg, nil
}

func (c *RoomController) newOutgoingMessage(kind models.ContentType, body string, localPath *string) *models.Message {
	return &models.Message{
		RoomID:         c.roomID,
		SenderID:       c.userID,
		Timestamp:      time.Now(),
		Direction:      models.DirectionOutgoing,
		ContentType:    kind,
		Body:           body,
		LocalPath:      localPath,
		DeliveryStatus: models.StatusLocal,
	}
}

// attemptSend runs one encode+send attempt and records its outcome. A
// crypto failure leaves the message local with a surfaced error; a
// transport write or queue results in sent or queued respectively. The
// attempt counter advances regardless of outcome.
func (c *RoomController) attemptSend(ctx context.Context, msg *models.Message, payload []byte) {
	ctx, span := tracing.StartSpan(ctx, "message.send",
		attribute.String("messageType", string(msg.ContentType)),
		attribute.Int("attempt", msg.SendAttempts+1),
	)
	defer span.End()

	blob, err := c.pipeline.Encode(ctx, payload, c.peer, string(msg.ContentType), c.roomCtx)
	if err != nil {
		appErr := apperrors.Wrap(err, apperrors.ErrCodeStegoEncode, "container encode failed").
			WithUserMessage("Could not protect this message. It was not sent.")
		tracing.RecordError(ctx, appErr)
		if dbErr := c.store.BumpSendAttempt(ctx, msg.ID, models.StatusLocal, appErr.Error()); dbErr != nil {
			c.logger.WithError(dbErr).Error("Failed to record send attempt")
		}
		c.surfaceError("Message not sent", appErr)
		metrics.IncrementCounter("send_encode_failures", map[string]string{"room": SanitizeRoomID(ctx, c.roomID)}, "Container encode failures")
		return
	}

	frame := models.ContainerFrame{
		Type:            models.FrameContainer,
		ID:              uuid.NewString(),
		RoomID:          c.roomID,
		From:            c.userID,
		MessageType:     string(msg.ContentType),
		ContainerBase64: base64.StdEncoding.EncodeToString(blob),
		ClientMsgID:     msg.ID,
		Ts:              time.Now().UnixMilli(),
	}
	if msg.LocalPath != nil {
		frame.FileName = filepath.Base(*msg.LocalPath)
		frame.Extension = strings.TrimPrefix(filepath.Ext(*msg.LocalPath), ".")
	}

	status := models.StatusQueued
	if c.trans.SendContainer(frame) {
		status = models.StatusSent
	}

	if err := c.store.BumpSendAttempt(ctx, msg.ID, status, ""); err != nil {
		c.logger.WithError(err).Error("Failed to record send attempt")
	}

	c.applyCachedStatus(msg.ID, status)
	if msg.DeliveryStatus.UpgradableTo(status) {
		msg.DeliveryStatus = status
	}
	msg.SendAttempts++
	c.observer.OnStatusChange(msg.ID, status)

	metrics.IncrementCounter("messages_send_attempts", map[string]string{
		"type":   string(msg.ContentType),
		"status": status.String(),
	}, "Outgoing send attempts by outcome")
}

// RetryPending sweeps the room's outbox: due messages are re-encoded and
// re-sent, messages past the attempt cap or with unusable media are failed
// terminally. One broken message never blocks the rest of the batch.
func (c *RoomController) RetryPending(ctx context.Context) error {
	msgs, err := c.store.GetPendingOutgoingMessages(ctx, c.roomID, c.outbox.BatchSize)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStoreQuery, "failed to load pending messages")
	}

	now := time.Now()
	for _, msg := range msgs {
		if msg.SendAttempts >= c.outbox.MaxAttempts {
			c.failTerminally(ctx, msg.ID, apperrors.New(apperrors.ErrCodeTimeout,
				fmt.Sprintf("gave up after %d attempts", msg.SendAttempts)))
			continue
		}

		if !msg.LastSendTimestamp.IsZero() {
			due := msg.LastSendTimestamp.Add(retry.DelayForAttempts(c.outbox.BackoffBase, c.outbox.BackoffMax, msg.SendAttempts))
			if now.Before(due) {
				continue
			}
		}

		var payload []byte
		if msg.ContentType.IsMedia() {
			if msg.LocalPath == nil {
				c.failTerminally(ctx, msg.ID, apperrors.New(apperrors.ErrCodeMediaMissing, "media message has no local path"))
				continue
			}
			payload, err = c.media.Read(*msg.LocalPath)
			if err != nil {
				c.failTerminally(ctx, msg.ID, err)
				continue
			}
		} else {
			payload = []byte(msg.Body)
		}

		c.attemptSend(ctx, msg, payload)
	}
	return nil
}

// failTerminally moves a message to failed, the only path allowed to set
// that status.
func (c *RoomController) failTerminally(ctx context.Context, id int64, cause error) {
	if err := c.store.MarkMessageFailed(ctx, id, cause.Error()); err != nil {
		c.logger.WithError(err).WithField("messageId", id).Error("Failed to mark message failed")
		return
	}
	c.failCached(id)
	c.observer.OnStatusChange(id, models.StatusFailed)
	c.surfaceError("Message failed", cause)
	metrics.IncrementCounter("messages_failed", map[string]string{"reason": string(apperrors.GetCode(cause))}, "Messages failed terminally")
}

// handleInboundContainer ingests one container frame published by the
// transport. Frames for other rooms are ignored; binding mismatches and
// undecodable payloads are dropped without surfacing.
func (c *RoomController) handleInboundContainer(frame models.ContainerFrame) {
	if frame.RoomID != c.roomID {
		return
	}
	ctx, span := tracing.StartSpan(c.ctx, "message.receive",
		attribute.String("messageType", frame.MessageType),
	)
	defer span.End()

	blob, err := base64.StdEncoding.DecodeString(frame.ContainerBase64)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.WithError(err).WithField("room", SanitizeRoomID(ctx, c.roomID)).Warn("Dropping container with invalid base64")
		return
	}

	payload, err := c.pipeline.Decode(ctx, blob, PeerContext{UserID: frame.From}, frame.MessageType, c.roomCtx)
	if err != nil {
		code := apperrors.GetCode(err)
		tracing.RecordError(ctx, err)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"room": SanitizeRoomID(ctx, c.roomID),
			"code": code,
		}).Warn("Dropping undecodable container")
		metrics.IncrementCounter("containers_dropped", map[string]string{"code": string(code)}, "Inbound containers dropped")
		return
	}

	kind := models.ContentType(frame.MessageType)
	msg := &models.Message{
		RoomID:         c.roomID,
		SenderID:       frame.From,
		Timestamp:      time.UnixMilli(frame.Ts),
		Direction:      models.DirectionIncoming,
		ContentType:    kind,
		DeliveryStatus: models.StatusDelivered,
	}
	if kind.IsMedia() {
		path, err := c.materializeMedia(payload, frame.Extension)
		if err != nil {
			c.logger.WithError(err).Error("Failed to write incoming media file")
			return
		}
		msg.LocalPath = &path
		msg.Body = frame.FileName
	} else {
		msg.Body = string(payload)
	}

	if err := c.store.InsertMessage(ctx, msg); err != nil {
		c.logger.WithError(err).Error("Failed to persist incoming message")
		return
	}
	c.observer.OnMessage(msg)
	metrics.IncrementCounter("messages_received", map[string]string{"type": string(kind)}, "Incoming messages ingested")

	c.advanceReadWatermark(ctx, frame.Ts)
}

// advanceReadWatermark sends a coalesced read receipt: only a timestamp
// beyond the high-water mark produces a new receipt.
func (c *RoomController) advanceReadWatermark(ctx context.Context, ts int64) {
	c.mu.Lock()
	if ts <= c.readWatermark {
		c.mu.Unlock()
		return
	}
	c.readWatermark = ts
	c.mu.Unlock()

	c.trans.SendReadReceipt(ts)
	if err := c.store.MarkRoomRead(ctx, c.roomID); err != nil {
		c.logger.WithError(err).Warn("Failed to mark room read")
	}
}

// handleAck reconciles a delivery ack against the store and the in-memory
// cache. Acks without a resolvable client message id are ignored; unknown
// kinds count as delivered. The monotonic rank rule is enforced by the
// store, so a late lower-ranked ack is a no-op.
func (c *RoomController) handleAck(frame models.AckFrame) {
	if frame.RoomID != "" && frame.RoomID != c.roomID {
		return
	}
	if frame.ClientMsgID == 0 {
		return
	}

	status := models.NormalizeAckKind(frame.Kind)
	applied, err := c.store.UpdateMessageDeliveryStatus(c.ctx, frame.ClientMsgID, status)
	if err != nil {
		c.logger.WithError(err).WithField("messageId", frame.ClientMsgID).Warn("Failed to apply delivery ack")
		return
	}
	if !applied {
		return
	}

	c.applyCachedStatus(frame.ClientMsgID, status)
	c.observer.OnStatusChange(frame.ClientMsgID, status)
	metrics.IncrementCounter("delivery_acks", map[string]string{"status": status.String()}, "Delivery acks applied")
}

// applyCachedStatus mirrors the store's rank rule into the in-memory
// cache so observers never see a downgrade.
func (c *RoomController) applyCachedStatus(id int64, status models.DeliveryStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.statusCache[id]
	if ok && !current.UpgradableTo(status) {
		return
	}
	c.statusCache[id] = status
}

// failCached force-sets the cache to failed, bypassing the rank rule the
// same way MarkMessageFailed does in the store. Only failTerminally calls
// it; the cache and the store must agree on terminal failures.
func (c *RoomController) failCached(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCache[id] = models.StatusFailed
}

// CachedStatus returns the last status the controller saw for a message.
func (c *RoomController) CachedStatus(id int64) (models.DeliveryStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statusCache[id]
	return s, ok
}

// History returns the room's messages, newest first.
func (c *RoomController) History(ctx context.Context, limit int, beforeTs *time.Time) ([]*models.Message, error) {
	return c.store.GetMessagesForRoom(ctx, c.roomID, limit, beforeTs)
}

// LastError returns the current user-facing error slot, if set.
func (c *RoomController) LastError() *UserFacingError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastError == nil {
		return nil
	}
	e := *c.lastError
	return &e
}

// ClearError empties the error slot after the presentation layer has shown
// it.
func (c *RoomController) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = nil
}

func (c *RoomController) surfaceError(title string, err error) {
	ufe := UserFacingError{
		Title:   title,
		Message: apperrors.GetUserMessage(err),
		Kind:    apperrors.GetCode(err),
	}
	c.mu.Lock()
	c.lastError = &ufe
	c.mu.Unlock()
	c.observer.OnError(ufe)
}

func (c *RoomController) materializeMedia(payload []byte, extension string) (string, error) {
	name := uuid.NewString()
	if extension != "" {
		name += "." + extension
	}
	path := filepath.Join(c.mediaDir, name)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return path, nil
}

// Close detaches the controller from the buses and cancels its background
// context. The store and transport outlive it.
func (c *RoomController) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.cancel()
}
