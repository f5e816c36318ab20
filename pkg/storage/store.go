// Package storage persists message history in SQLite. The router keeps
// its routing state in memory; history is the only state that survives
// a restart.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fieldlink/meshlink/pkg/protocol"
	"github.com/fieldlink/meshlink/pkg/router"
)

// StoredMessage is one history row.
type StoredMessage struct {
	MessageID    string                `json:"message_id"`
	ChannelID    string                `json:"channel_id"`
	SenderID     string                `json:"sender_id"`
	DeviceID     string                `json:"device_id,omitempty"`
	Content      string                `json:"content"`
	Timestamp    int64                 `json:"timestamp"`
	Status       router.DeliveryStatus `json:"status"`
	IsOutgoing   bool                  `json:"is_outgoing"`
	IsMeshOrigin bool                  `json:"is_mesh_origin"`
	MediaURL     string                `json:"media_url,omitempty"`
	MediaType    string                `json:"media_type,omitempty"`
}

// MessageStore implements the router's history contract on SQLite.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore opens (or creates) the history database.
func NewMessageStore(dbPath string) (*MessageStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	s := &MessageStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MessageStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT UNIQUE NOT NULL,
		channel_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		device_id TEXT,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		is_outgoing INTEGER NOT NULL,
		is_mesh_origin INTEGER NOT NULL DEFAULT 0,
		media_url TEXT,
		media_type TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}
	return nil
}

// Close closes the database connection.
func (s *MessageStore) Close() error {
	return s.db.Close()
}

// SaveMessage stores a message. Saving an id that already exists is a
// no-op, so replayed messages never duplicate history.
func (s *MessageStore) SaveMessage(msg protocol.WireMessage, status router.DeliveryStatus, outgoing bool) error {
	var mediaURL, mediaType string
	if msg.Media != nil {
		mediaURL = msg.Media.URL
		mediaType = msg.Media.MimeType
	}

	query := `
		INSERT OR IGNORE INTO messages (
			message_id, channel_id, sender_id, device_id,
			content, timestamp, status, is_outgoing, is_mesh_origin,
			media_url, media_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(
		query,
		msg.ID,
		msg.ChannelID,
		msg.SenderID,
		msg.DeviceID,
		msg.Content,
		msg.Timestamp,
		string(status),
		boolToInt(outgoing),
		boolToInt(msg.IsMeshOrigin),
		mediaURL,
		mediaType,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %v", err)
	}
	return nil
}

// UpdateStatus moves a message to a new delivery state.
func (s *MessageStore) UpdateStatus(messageID string, status router.DeliveryStatus) error {
	result, err := s.db.Exec(
		`UPDATE messages SET status = ? WHERE message_id = ?`,
		string(status), messageID,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %v", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("message not found: %s", messageID)
	}
	return nil
}

// GetMessage retrieves one message by id.
func (s *MessageStore) GetMessage(messageID string) (*StoredMessage, error) {
	row := s.db.QueryRow(
		`SELECT message_id, channel_id, sender_id, device_id, content,
			timestamp, status, is_outgoing, is_mesh_origin, media_url, media_type
		 FROM messages WHERE message_id = ?`,
		messageID,
	)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message not found: %s", messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %v", err)
	}
	return msg, nil
}

// ListChannelMessages returns up to limit messages for a channel in
// timestamp order, oldest first.
func (s *MessageStore) ListChannelMessages(channelID string, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT message_id, channel_id, sender_id, device_id, content,
			timestamp, status, is_outgoing, is_mesh_origin, media_url, media_type
		 FROM messages WHERE channel_id = ?
		 ORDER BY timestamp ASC, id ASC LIMIT ?`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %v", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %v", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of messages in the given state.
func (s *MessageStore) CountByStatus(status router.DeliveryStatus) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE status = ?`,
		string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %v", err)
	}
	return n, nil
}

// PruneBefore deletes messages older than the cutoff and returns the
// number removed.
func (s *MessageStore) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM messages WHERE timestamp < ?`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune messages: %v", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*StoredMessage, error) {
	var msg StoredMessage
	var outgoing, meshOrigin int
	var deviceID, mediaURL, mediaType sql.NullString
	var status string

	err := row.Scan(
		&msg.MessageID, &msg.ChannelID, &msg.SenderID, &deviceID,
		&msg.Content, &msg.Timestamp, &status, &outgoing, &meshOrigin,
		&mediaURL, &mediaType,
	)
	if err != nil {
		return nil, err
	}

	msg.DeviceID = deviceID.String
	msg.Status = router.DeliveryStatus(status)
	msg.IsOutgoing = outgoing != 0
	msg.IsMeshOrigin = meshOrigin != 0
	msg.MediaURL = mediaURL.String
	msg.MediaType = mediaType.String
	return &msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
