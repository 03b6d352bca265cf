package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lxmchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func outgoingText(roomID, body string) *models.Message {
	return &models.Message{
		RoomID:         roomID,
		SenderID:       "alice",
		Timestamp:      time.Now(),
		Direction:      models.DirectionOutgoing,
		ContentType:    models.ContentText,
		Body:           body,
		DeliveryStatus: models.StatusLocal,
	}
}

func TestInsertAndGetMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	path := "/media/photo.jpg"
	msg := outgoingText("room-1", "hello")
	msg.LocalPath = &path

	require.NoError(t, db.InsertMessage(ctx, msg))
	require.NotZero(t, msg.ID)

	got, err := db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, "room-1", got.RoomID)
	assert.Equal(t, models.StatusLocal, got.DeliveryStatus)
	require.NotNil(t, got.LocalPath)
	assert.Equal(t, path, *got.LocalPath)
	assert.True(t, got.LastSendTimestamp.IsZero())
}

func TestGetMessageByID_Absent(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetMessageByID(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateMessageDeliveryStatus_Monotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := outgoingText("room-1", "track me")
	require.NoError(t, db.InsertMessage(ctx, msg))

	// Upward moves apply.
	for _, status := range []models.DeliveryStatus{models.StatusQueued, models.StatusSent, models.StatusDelivered} {
		applied, err := db.UpdateMessageDeliveryStatus(ctx, msg.ID, status)
		require.NoError(t, err)
		assert.True(t, applied, "%s should apply", status)
	}

	// A late lower-ranked update is discarded without error.
	applied, err := db.UpdateMessageDeliveryStatus(ctx, msg.ID, models.StatusSent)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.DeliveryStatus)
}

func TestUpdateMessageDeliveryStatus_RefusesFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := outgoingText("room-1", "unfailable via acks")
	require.NoError(t, db.InsertMessage(ctx, msg))

	applied, err := db.UpdateMessageDeliveryStatus(ctx, msg.ID, models.StatusFailed)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocal, got.DeliveryStatus)
}

func TestUpdateMessageDeliveryStatus_MissingMessage(t *testing.T) {
	db := newTestDB(t)
	_, err := db.UpdateMessageDeliveryStatus(context.Background(), 999, models.StatusSent)
	assert.Error(t, err)
}

func TestBumpSendAttempt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := outgoingText("room-1", "retry me")
	require.NoError(t, db.InsertMessage(ctx, msg))

	require.NoError(t, db.BumpSendAttempt(ctx, msg.ID, models.StatusQueued, "relay unreachable"))

	got, err := db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SendAttempts)
	assert.Equal(t, models.StatusQueued, got.DeliveryStatus)
	assert.Equal(t, "relay unreachable", got.LastError)
	assert.False(t, got.LastSendTimestamp.IsZero())

	// Attempts keep counting even when the status cannot move upward.
	_, err = db.UpdateMessageDeliveryStatus(ctx, msg.ID, models.StatusDelivered)
	require.NoError(t, err)
	require.NoError(t, db.BumpSendAttempt(ctx, msg.ID, models.StatusSent, ""))

	got, err = db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SendAttempts)
	assert.Equal(t, models.StatusDelivered, got.DeliveryStatus)
}

func TestMarkMessageFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := outgoingText("room-1", "doomed")
	require.NoError(t, db.InsertMessage(ctx, msg))

	require.NoError(t, db.MarkMessageFailed(ctx, msg.ID, "gave up after 10 attempts"))

	got, err := db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.DeliveryStatus)
	assert.Equal(t, "gave up after 10 attempts", got.LastError)

	assert.Error(t, db.MarkMessageFailed(ctx, 999, "missing"))
}

func TestGetPendingOutgoingMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pending := outgoingText("room-1", "pending")
	require.NoError(t, db.InsertMessage(ctx, pending))

	delivered := outgoingText("room-1", "delivered")
	require.NoError(t, db.InsertMessage(ctx, delivered))
	_, err := db.UpdateMessageDeliveryStatus(ctx, delivered.ID, models.StatusDelivered)
	require.NoError(t, err)

	failed := outgoingText("room-1", "failed")
	require.NoError(t, db.InsertMessage(ctx, failed))
	require.NoError(t, db.MarkMessageFailed(ctx, failed.ID, "nope"))

	incoming := &models.Message{
		RoomID: "room-1", SenderID: "bob", Timestamp: time.Now(),
		Direction: models.DirectionIncoming, ContentType: models.ContentText,
		Body: "inbound", DeliveryStatus: models.StatusDelivered,
	}
	require.NoError(t, db.InsertMessage(ctx, incoming))

	otherRoom := outgoingText("room-2", "elsewhere")
	require.NoError(t, db.InsertMessage(ctx, otherRoom))

	msgs, err := db.GetPendingOutgoingMessages(ctx, "room-1", 80)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, pending.ID, msgs[0].ID)
}

func TestGetMessagesForRoom_NewestFirstWithPagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var ids []int64
	for i := 0; i < 5; i++ {
		msg := outgoingText("room-1", "msg")
		msg.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.InsertMessage(ctx, msg))
		ids = append(ids, msg.ID)
	}

	msgs, err := db.GetMessagesForRoom(ctx, "room-1", 3, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, ids[4], msgs[0].ID)
	assert.Equal(t, ids[2], msgs[2].ID)

	before := base.Add(2 * time.Minute)
	older, err := db.GetMessagesForRoom(ctx, "room-1", 10, &before)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, ids[1], older[0].ID)
	assert.Equal(t, ids[0], older[1].ID)
}

func TestMarkRoomRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	incoming := &models.Message{
		RoomID: "room-1", SenderID: "bob", Timestamp: time.Now(),
		Direction: models.DirectionIncoming, ContentType: models.ContentText,
		Body: "unread", DeliveryStatus: models.StatusDelivered,
	}
	require.NoError(t, db.InsertMessage(ctx, incoming))

	outgoing := outgoingText("room-1", "mine")
	require.NoError(t, db.InsertMessage(ctx, outgoing))

	require.NoError(t, db.MarkRoomRead(ctx, "room-1"))

	gotIn, err := db.GetMessageByID(ctx, incoming.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, gotIn.DeliveryStatus)

	// Outgoing messages are untouched; their read state comes from acks.
	gotOut, err := db.GetMessageByID(ctx, outgoing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocal, gotOut.DeliveryStatus)
}

func TestGetStaleMessageCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	stale := outgoingText("room-1", "stuck")
	stale.DeliveryStatus = models.StatusSent
	stale.LastSendTimestamp = time.Now().Add(-time.Hour)
	require.NoError(t, db.InsertMessage(ctx, stale))

	fresh := outgoingText("room-1", "recent")
	fresh.DeliveryStatus = models.StatusSent
	fresh.LastSendTimestamp = time.Now()
	require.NoError(t, db.InsertMessage(ctx, fresh))

	count, err := db.GetStaleMessageCount(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCleanupOldRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := outgoingText("room-1", "recent enough")
	require.NoError(t, db.InsertMessage(ctx, msg))

	require.NoError(t, db.CleanupOldRecords(ctx, 30))

	got, err := db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
