package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pixelfold/pixchat-server/internal/store"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	avatar_url    TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	sender_id       TEXT NOT NULL REFERENCES profiles(id),
	recipient_id    TEXT NOT NULL REFERENCES profiles(id),
	text            TEXT NOT NULL DEFAULT '',
	attachment_url  TEXT NOT NULL DEFAULT '',
	attachment_kind TEXT NOT NULL DEFAULT '',
	read            BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_pair
	ON messages (sender_id, recipient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_unread
	ON messages (recipient_id, read);

CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	recipient_id TEXT NOT NULL REFERENCES profiles(id),
	actor_id     TEXT NOT NULL REFERENCES profiles(id),
	kind         TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply an alternative schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== ProfileStore implementation ====

const profileColumns = `id, username, display_name, avatar_url, password_hash, created_at`

func scanProfile(row interface{ Scan(...any) error }) (*store.Profile, error) {
	var p store.Profile
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.DisplayName,
		&p.AvatarURL,
		&p.PasswordHash,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

// CreateProfile creates a new profile with hashed password.
func (s *SQLiteStore) CreateProfile(ctx context.Context, username, passwordHash, displayName string) (*store.Profile, error) {
	id := newRowID()
	query := `
		INSERT INTO profiles (id, username, display_name, password_hash)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, username, displayName, passwordHash); err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return s.GetProfileByID(ctx, id)
}

// GetProfileByID retrieves a profile by ID.
func (s *SQLiteStore) GetProfileByID(ctx context.Context, id string) (*store.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`
	return scanProfile(s.db.QueryRowContext(ctx, query, id))
}

// GetProfileByUsername retrieves a profile by username.
func (s *SQLiteStore) GetProfileByUsername(ctx context.Context, username string) (*store.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE username = ?`
	return scanProfile(s.db.QueryRowContext(ctx, query, username))
}

// ListProfiles lists all profiles except the given one, ordered by username.
func (s *SQLiteStore) ListProfiles(ctx context.Context, excludeID string) ([]*store.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE id != ?
		ORDER BY username
	`
	rows, err := s.db.QueryContext(ctx, query, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*store.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SearchProfiles finds profiles, excluding the given one, whose username or
// display name contains the query, case-insensitively.
func (s *SQLiteStore) SearchProfiles(ctx context.Context, query, excludeID string) ([]*store.Profile, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	sqlQuery := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE id != ? AND (lower(username) LIKE ? OR lower(display_name) LIKE ?)
		ORDER BY username
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, excludeID, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*store.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ==== MessageStore implementation ====

const messageColumns = `id, sender_id, recipient_id, text, attachment_url, attachment_kind, read, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var m store.Message
	var kind string
	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.RecipientID,
		&m.Text,
		&m.AttachmentURL,
		&kind,
		&m.Read,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.AttachmentKind = store.AttachmentKind(kind)
	return &m, nil
}

// InsertMessage persists a new message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (id, sender_id, recipient_id, text, attachment_url, attachment_kind, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.SenderID,
		msg.RecipientID,
		msg.Text,
		msg.AttachmentURL,
		string(msg.AttachmentKind),
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListConversation returns all messages between the two identities, in either
// direction, ordered by creation time ascending.
func (s *SQLiteStore) ListConversation(ctx context.Context, userA, userB string) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?)
		   OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListMessagesForUser returns all messages the user sent or received, ordered
// by creation time ascending.
func (s *SQLiteStore) ListMessagesForUser(ctx context.Context, userID string) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkConversationRead sets read=true on unread messages sent by senderID to
// recipientID. The flag is monotonic, so repeating the call is a no-op.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, recipientID, senderID string) (int64, error) {
	query := `
		UPDATE messages
		SET read = 1
		WHERE recipient_id = ? AND sender_id = ? AND read = 0
	`
	res, err := s.db.ExecContext(ctx, query, recipientID, senderID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MarkMessageRead sets read=true on a single message, only when the given
// identity is its recipient. Idempotent.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID, recipientID string) error {
	query := `
		UPDATE messages
		SET read = 1
		WHERE id = ? AND recipient_id = ? AND read = 0
	`
	if _, err := s.db.ExecContext(ctx, query, messageID, recipientID); err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// UnreadCounts returns, per sender, the number of unread messages addressed
// to the recipient.
func (s *SQLiteStore) UnreadCounts(ctx context.Context, recipientID string) (map[string]int, error) {
	query := `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE recipient_id = ? AND read = 0
		GROUP BY sender_id
	`
	rows, err := s.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("query unread counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

// ==== NotificationStore implementation ====

// InsertNotification persists a notification record.
func (s *SQLiteStore) InsertNotification(ctx context.Context, n *store.Notification) error {
	if n.ID == "" {
		n.ID = newRowID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO notifications (id, recipient_id, actor_id, kind, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, n.ID, n.RecipientID, n.ActorID, string(n.Kind), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientID string) ([]*store.Notification, error) {
	query := `
		SELECT id, recipient_id, actor_id, kind, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifs []*store.Notification
	for rows.Next() {
		var n store.Notification
		var kind string
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &kind, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = store.NotificationKind(kind)
		notifs = append(notifs, &n)
	}
	return notifs, rows.Err()
}
