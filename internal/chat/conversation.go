package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pixelfold/pixchat-server/internal/blob"
	"github.com/pixelfold/pixchat-server/internal/metrics"
	"github.com/pixelfold/pixchat-server/internal/realtime"
	"github.com/pixelfold/pixchat-server/internal/store"
)

var (
	// ErrNotAuthenticated is returned when no current identity is known.
	// Checked before any network or storage call.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrEmptyMessage rejects a send with neither text nor attachment.
	ErrEmptyMessage = errors.New("message needs text or an attachment")
	// ErrSelfMessage rejects sending a message to oneself.
	ErrSelfMessage = errors.New("cannot message yourself")
)

// Service is the conversation store: it produces the ordered message list
// between two identities, keeps it fresh, and persists outgoing messages.
type Service struct {
	store  store.Store
	blobs  blob.Store
	broker *realtime.Broker
	log    *zerolog.Logger

	mu    sync.Mutex
	cache map[string][]*store.Message
}

// NewService wires a conversation service.
func NewService(st store.Store, blobs blob.Store, broker *realtime.Broker, logger *zerolog.Logger) *Service {
	return &Service{
		store:  st,
		blobs:  blobs,
		broker: broker,
		log:    logger,
		cache:  make(map[string][]*store.Message),
	}
}

// cacheKey scopes cached threads by both identities so a stale response for
// a previously selected peer can never overwrite another peer's state.
func cacheKey(currentID, peerID string) string {
	return currentID + "|" + peerID
}

// Load returns the ordered conversation between the current identity and the
// peer, oldest first. An empty peerID is a valid "no conversation selected"
// state and yields an empty result without error. After a successful load,
// inbound unread messages are marked read asynchronously; a failure there is
// logged and never surfaced to the caller.
func (s *Service) Load(ctx context.Context, currentID, peerID string) ([]*store.Message, error) {
	if currentID == "" {
		return nil, ErrNotAuthenticated
	}
	if peerID == "" {
		return nil, nil
	}

	key := cacheKey(currentID, peerID)
	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		out := make([]*store.Message, len(cached))
		copy(out, cached)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	msgs, err := s.store.ListConversation(ctx, currentID, peerID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = msgs
	s.mu.Unlock()

	if hasUnreadFrom(msgs, currentID, peerID) {
		go s.markRead(currentID, peerID)
	}

	out := make([]*store.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func hasUnreadFrom(msgs []*store.Message, currentID, peerID string) bool {
	for _, m := range msgs {
		if m.RecipientID == currentID && m.SenderID == peerID && !m.Read {
			return true
		}
	}
	return false
}

// markRead flips the read flag on inbound messages. Fire-and-forget: the
// flag is monotonic so concurrent marking from other sessions is idempotent.
func (s *Service) markRead(currentID, peerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := s.store.MarkConversationRead(ctx, currentID, peerID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("user_id", currentID).
			Str("peer_id", peerID).
			Msg("failed to mark conversation read")
		return
	}
	if n > 0 {
		s.Invalidate(currentID, peerID)
	}
}

// MarkMessageRead marks a single inbound message read. Used when a realtime
// insert arrives while its thread is already open.
func (s *Service) MarkMessageRead(ctx context.Context, currentID, messageID string) error {
	if currentID == "" {
		return ErrNotAuthenticated
	}
	return s.store.MarkMessageRead(ctx, messageID, currentID)
}

// Invalidate drops the cached thread for the pair so the next Load re-fetches.
func (s *Service) Invalidate(currentID, peerID string) {
	s.mu.Lock()
	delete(s.cache, cacheKey(currentID, peerID))
	delete(s.cache, cacheKey(peerID, currentID))
	s.mu.Unlock()
}

// Send validates, uploads and persists one outgoing message. The attachment
// upload must complete before the message row is written; an upload failure
// aborts the whole send so no message with a broken link is ever created.
// The notification insert is best-effort and never rolls back the message.
func (s *Service) Send(ctx context.Context, currentID, peerID, text string, att *Attachment) (*store.Message, error) {
	if currentID == "" {
		return nil, ErrNotAuthenticated
	}
	if peerID == "" {
		return nil, fmt.Errorf("send: missing recipient")
	}
	if peerID == currentID {
		return nil, ErrSelfMessage
	}
	text = strings.TrimSpace(text)
	if text == "" && att == nil {
		return nil, ErrEmptyMessage
	}

	msg := &store.Message{
		ID:          uuid.NewString(),
		SenderID:    currentID,
		RecipientID: peerID,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}

	if att != nil {
		if err := att.Validate(); err != nil {
			return nil, err
		}
		url, err := s.uploadAttachment(ctx, currentID, peerID, att)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		msg.AttachmentURL = url
		msg.AttachmentKind = att.Kind()
	}

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	metrics.MessagesSent.Inc()
	if att != nil {
		metrics.AttachmentsUploaded.WithLabelValues(string(msg.AttachmentKind)).Inc()
	}

	s.notifyPeer(currentID, peerID)
	s.Invalidate(currentID, peerID)
	s.broker.PublishInsert(msg)

	return msg, nil
}

// uploadAttachment stores the attachment bytes under the pair-scoped bucket.
func (s *Service) uploadAttachment(ctx context.Context, currentID, peerID string, att *Attachment) (string, error) {
	name := uuid.NewString()
	if ext := filepath.Ext(att.Name); ext != "" {
		name += ext
	}
	return s.blobs.Put(ctx, pairBucket(currentID, peerID), name, bytes.NewReader(att.Data))
}

// pairBucket mirrors the unordered-pair typing channel key so storage paths
// are stable regardless of message direction.
func pairBucket(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm-" + a + "-" + b
}

// notifyPeer writes the notification side-channel record. Failures are
// logged only; message delivery already succeeded.
func (s *Service) notifyPeer(currentID, peerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.store.InsertNotification(ctx, &store.Notification{
		RecipientID: peerID,
		ActorID:     currentID,
		Kind:        store.NotificationMessage,
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("actor_id", currentID).
			Str("recipient_id", peerID).
			Msg("failed to insert notification")
	}
}
