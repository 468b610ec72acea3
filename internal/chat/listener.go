package chat

import (
	"context"
	"sync"
	"time"

	"github.com/pixelfold/pixchat-server/internal/realtime"
	"github.com/pixelfold/pixchat-server/internal/store"
)

// ListenerOptions configures how realtime inserts are routed.
type ListenerOptions struct {
	// OpenPeer is the peer whose thread is initially open, if any.
	OpenPeer string

	// OnThreadRefresh fires when an insert lands in the open thread, after
	// the cached conversation has been invalidated.
	OnThreadRefresh func(peerID string)

	// OnNotice fires for inserts from any other sender; the open thread is
	// left untouched.
	OnNotice func(msg *store.Message)
}

// Listener is the per-screen realtime change subscription: it detects
// messages addressed to the current identity in near-real-time and either
// refreshes the open thread or surfaces a lightweight notice. Exactly one
// subscription exists per active screen; Close must run on every exit path.
type Listener struct {
	svc       *Service
	currentID string
	handle    *realtime.Handle
	opts      ListenerOptions

	mu       sync.Mutex
	openPeer string
}

// Listen opens the insert subscription for the current identity.
func (s *Service) Listen(currentID string, opts ListenerOptions) (*Listener, error) {
	if currentID == "" {
		return nil, ErrNotAuthenticated
	}

	l := &Listener{
		svc:       s,
		currentID: currentID,
		opts:      opts,
		openPeer:  opts.OpenPeer,
	}
	l.handle = s.broker.SubscribeInserts(currentID, l.onInsert)
	return l, nil
}

// SetOpenPeer switches which thread counts as open while listening.
func (l *Listener) SetOpenPeer(peerID string) {
	l.mu.Lock()
	l.openPeer = peerID
	l.mu.Unlock()
}

// Close tears down the subscription. Idempotent.
func (l *Listener) Close() {
	l.handle.Close()
}

func (l *Listener) onInsert(msg *store.Message) {
	l.mu.Lock()
	openPeer := l.openPeer
	l.mu.Unlock()

	if msg.SenderID == openPeer {
		// The thread is open, so the message is considered seen immediately.
		l.svc.Invalidate(l.currentID, openPeer)
		go l.markSeen(msg.ID)
		if l.opts.OnThreadRefresh != nil {
			l.opts.OnThreadRefresh(openPeer)
		}
		return
	}

	if l.opts.OnNotice != nil {
		l.opts.OnNotice(msg)
	}
}

// markSeen is fire-and-forget; the read flag is monotonic and the next Load
// reconciles anything missed.
func (l *Listener) markSeen(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.svc.MarkMessageRead(ctx, l.currentID, messageID); err != nil {
		l.svc.log.Warn().Err(err).
			Str("user_id", l.currentID).
			Str("message_id", messageID).
			Msg("failed to mark realtime message read")
	}
}
