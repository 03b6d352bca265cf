package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"lxmchat/internal/migrations"
	"lxmchat/internal/models"
	"lxmchat/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the durable message store. It is the single source of truth
// for delivery status: every status write goes through the monotonic-rank
// rule here before any in-memory cache sees it.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateLocalPath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.GetInitialSchema()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// InsertMessage persists msg and assigns its surrogate id. The body is
// stored encrypted when at-rest encryption is enabled.
func (d *Database) InsertMessage(ctx context.Context, msg *models.Message) error {
	encryptedBody, err := d.encryptor.EncryptIfEnabled(msg.Body)
	if err != nil {
		return fmt.Errorf("failed to encrypt message body: %w", err)
	}

	var encryptedPath *string
	if msg.LocalPath != nil {
		encrypted, err := d.encryptor.EncryptIfEnabled(*msg.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to encrypt local path: %w", err)
		}
		encryptedPath = &encrypted
	}

	query := `
		INSERT INTO messages (
			room_id, sender_id, timestamp, direction, content_type,
			body, local_path, delivery_status, send_attempts,
			last_send_timestamp, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var lastSend interface{}
	if !msg.LastSendTimestamp.IsZero() {
		lastSend = msg.LastSendTimestamp
	}

	return retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, query,
			msg.RoomID,
			msg.SenderID,
			msg.Timestamp,
			msg.Direction,
			msg.ContentType,
			encryptedBody,
			encryptedPath,
			msg.DeliveryStatus.String(),
			msg.SendAttempts,
			lastSend,
			msg.LastError,
		)
		if err != nil {
			return err
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted message id: %w", err)
		}
		msg.ID = id
		return nil
	}, "insert message")
}

const messageColumns = `
	id, room_id, sender_id, timestamp, direction, content_type,
	body, local_path, delivery_status, send_attempts,
	last_send_timestamp, last_error, created_at, updated_at
`

func (d *Database) scanMessage(scan func(dest ...interface{}) error) (*models.Message, error) {
	msg := &models.Message{}
	var encryptedBody, statusText string
	var encryptedPath *string
	var lastSend sql.NullTime

	err := scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.Timestamp,
		&msg.Direction,
		&msg.ContentType,
		&encryptedBody,
		&encryptedPath,
		&statusText,
		&msg.SendAttempts,
		&lastSend,
		&msg.LastError,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Body, err = d.encryptor.DecryptIfEnabled(encryptedBody)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message body: %w", err)
	}

	if encryptedPath != nil {
		decrypted, err := d.encryptor.DecryptIfEnabled(*encryptedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt local path: %w", err)
		}
		msg.LocalPath = &decrypted
	}

	msg.DeliveryStatus, err = models.ParseDeliveryStatus(statusText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse delivery status: %w", err)
	}

	if lastSend.Valid {
		msg.LastSendTimestamp = lastSend.Time
	}

	return msg, nil
}

// GetMessageByID retrieves one message, or nil when absent.
func (d *Database) GetMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`

	row := d.db.QueryRowContext(ctx, query, id)
	msg, err := d.scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessagesForRoom returns up to limit messages for roomID, newest first.
// When beforeTs is non-nil only messages strictly older are returned, which
// is how history pagination walks backwards.
func (d *Database) GetMessagesForRoom(ctx context.Context, roomID string, limit int, beforeTs *time.Time) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id = ?`
	args := []interface{}{roomID}

	if beforeTs != nil {
		query += ` AND timestamp < ?`
		args = append(args, *beforeTs)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query room messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room messages: %w", err)
	}

	return messages, nil
}

// GetPendingOutgoingMessages returns the newest-bounded batch of outgoing
// messages still eligible for retry: everything outgoing that is neither
// terminally failed nor confirmed delivered/read.
func (d *Database) GetPendingOutgoingMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = ? AND direction = ?
		  AND delivery_status NOT IN (?, ?, ?)
		ORDER BY id DESC LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query,
		roomID, models.DirectionOutgoing,
		models.StatusDelivered.String(), models.StatusRead.String(), models.StatusFailed.String(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending messages: %w", err)
	}

	return messages, nil
}

// UpdateMessageDeliveryStatus applies status under the monotonic-rank rule
// and reports whether the update took effect. StatusFailed is rejected
// here: inbound acks can never fail a message, only the retry subsystem
// may, via MarkMessageFailed.
func (d *Database) UpdateMessageDeliveryStatus(ctx context.Context, id int64, status models.DeliveryStatus) (bool, error) {
	if status == models.StatusFailed {
		return false, nil
	}

	return d.applyStatus(ctx, id, status)
}

func (d *Database) applyStatus(ctx context.Context, id int64, status models.DeliveryStatus) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentText string
	err = tx.QueryRowContext(ctx, `SELECT delivery_status FROM messages WHERE id = ?`, id).Scan(&currentText)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("no message found with id: %d", id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read current status: %w", err)
	}

	current, err := models.ParseDeliveryStatus(currentText)
	if err != nil {
		return false, fmt.Errorf("failed to parse current status: %w", err)
	}

	if !current.UpgradableTo(status) {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE messages SET delivery_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status.String(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update delivery status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit status update: %w", err)
	}

	return true, nil
}

// BumpSendAttempt records one transmission attempt: attempts, last send
// time and last error are always written; the status only moves if it
// ranks upward.
func (d *Database) BumpSendAttempt(ctx context.Context, id int64, status models.DeliveryStatus, lastError string) error {
	err := retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx,
			`UPDATE messages
			 SET send_attempts = send_attempts + 1,
			     last_send_timestamp = ?,
			     last_error = ?,
			     updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			time.Now(), lastError, id,
		)
		return execErr
	}, "bump send attempt")
	if err != nil {
		return fmt.Errorf("failed to bump send attempt: %w", err)
	}

	if status != models.StatusFailed {
		if _, err := d.applyStatus(ctx, id, status); err != nil {
			return err
		}
	}

	return nil
}

// MarkMessageFailed sets the terminal failed state. Only the retry
// subsystem calls this.
func (d *Database) MarkMessageFailed(ctx context.Context, id int64, lastError string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE messages
		 SET delivery_status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		models.StatusFailed.String(), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no message found with id: %d", id)
	}

	return nil
}

// MarkRoomRead marks every incoming message in the room as read.
func (d *Database) MarkRoomRead(ctx context.Context, roomID string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE messages
		 SET delivery_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE room_id = ? AND direction = ? AND delivery_status != ?`,
		models.StatusRead.String(), roomID, models.DirectionIncoming, models.StatusRead.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark room read: %w", err)
	}
	return nil
}

// GetStaleMessageCount counts outgoing messages stuck in sent without a
// delivery confirmation for longer than threshold.
func (d *Database) GetStaleMessageCount(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)

	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE direction = ? AND delivery_status = ? AND last_send_timestamp < ?`,
		models.DirectionOutgoing, models.StatusSent.String(), cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale messages: %w", err)
	}

	return count, nil
}

// CleanupOldRecords deletes messages older than the retention window.
func (d *Database) CleanupOldRecords(ctx context.Context, retentionDays int) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM messages WHERE created_at < datetime('now', '-' || ? || ' days')`,
		retentionDays,
	)
	if err != nil {
		return fmt.Errorf("failed to cleanup old records: %w", err)
	}
	return nil
}
