package store

import (
	"context"
	"time"
)

// Profile represents a user identity as seen by the messaging subsystem.
type Profile struct {
	ID           string
	Username     string
	DisplayName  string
	AvatarURL    string
	PasswordHash string
	CreatedAt    time.Time
}

// AttachmentKind is the closed set of media kinds a message can carry.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentFile  AttachmentKind = "file"
)

// Message represents a persisted direct message.
// A message is immutable after creation except for the Read flag, which
// transitions false->true exactly once and only for the recipient.
type Message struct {
	ID             string
	SenderID       string
	RecipientID    string
	Text           string
	AttachmentURL  string
	AttachmentKind AttachmentKind
	Read           bool
	CreatedAt      time.Time
}

// HasAttachment reports whether the message carries a media reference.
func (m *Message) HasAttachment() bool {
	return m.AttachmentURL != ""
}

// NotificationKind defines the kinds of notifications this subsystem emits.
type NotificationKind string

const (
	NotificationMessage NotificationKind = "message"
)

// Notification is an insert-only side-channel record consumed by the
// notifications feature outside this subsystem.
type Notification struct {
	ID          string
	RecipientID string
	ActorID     string
	Kind        NotificationKind
	CreatedAt   time.Time
}

// ProfileStore handles profile persistence.
type ProfileStore interface {
	// CreateProfile creates a new profile with hashed password.
	CreateProfile(ctx context.Context, username, passwordHash, displayName string) (*Profile, error)

	// GetProfileByID retrieves a profile by ID.
	GetProfileByID(ctx context.Context, id string) (*Profile, error)

	// GetProfileByUsername retrieves a profile by username.
	GetProfileByUsername(ctx context.Context, username string) (*Profile, error)

	// ListProfiles lists all profiles except the given one.
	ListProfiles(ctx context.Context, excludeID string) ([]*Profile, error)

	// SearchProfiles finds profiles, excluding the given one, whose username
	// or display name contains the query, case-insensitively.
	SearchProfiles(ctx context.Context, query, excludeID string) ([]*Profile, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a new message.
	InsertMessage(ctx context.Context, msg *Message) error

	// ListConversation returns all messages between the two identities, in
	// either direction, ordered by creation time ascending.
	ListConversation(ctx context.Context, userA, userB string) ([]*Message, error)

	// ListMessagesForUser returns all messages the user sent or received,
	// ordered by creation time ascending. Used to derive contact previews.
	ListMessagesForUser(ctx context.Context, userID string) ([]*Message, error)

	// MarkConversationRead sets read=true on unread messages sent by senderID
	// to recipientID. Returns the number of rows updated. Idempotent.
	MarkConversationRead(ctx context.Context, recipientID, senderID string) (int64, error)

	// MarkMessageRead sets read=true on a single message, only if the given
	// identity is its recipient. Idempotent.
	MarkMessageRead(ctx context.Context, messageID, recipientID string) error

	// UnreadCounts returns, per sender, the number of unread messages
	// addressed to the recipient.
	UnreadCounts(ctx context.Context, recipientID string) (map[string]int, error)
}

// NotificationStore handles the notification side channel.
type NotificationStore interface {
	// InsertNotification persists a notification record.
	InsertNotification(ctx context.Context, n *Notification) error

	// ListNotifications returns a recipient's notifications, newest first.
	ListNotifications(ctx context.Context, recipientID string) ([]*Notification, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ProfileStore
	MessageStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
