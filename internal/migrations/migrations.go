package migrations

// The schema ships embedded: the store runs on-device and there is no
// repo-relative scripts directory to read at runtime.
const initialSchema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    room_id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    direction TEXT NOT NULL,
    content_type TEXT NOT NULL,
    body TEXT,
    local_path TEXT,
    delivery_status TEXT NOT NULL DEFAULT 'local',
    send_attempts INTEGER NOT NULL DEFAULT 0,
    last_send_timestamp TIMESTAMP,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_room_ts
    ON messages(room_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_messages_room_outbox
    ON messages(room_id, direction, delivery_status);
`

// GetInitialSchema returns the initial database schema.
func GetInitialSchema() string {
	return initialSchema
}
