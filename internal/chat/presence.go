package chat

import (
	"sync"
	"time"

	"github.com/pixelfold/pixchat-server/internal/metrics"
	"github.com/pixelfold/pixchat-server/internal/realtime"
)

const (
	// DefaultTypingTTL is the quiet window after which a received typing
	// signal auto-clears if no further signal arrives.
	DefaultTypingTTL = 3 * time.Second

	// DefaultTypingDebounce spaces outgoing typing broadcasts so a keystroke
	// burst produces one signal, not one per keystroke.
	DefaultTypingDebounce = time.Second
)

// Tracker holds ephemeral per-peer typing state on the receiving side. A
// received isTyping=true expires to false after the quiet window, modeling
// expiry without relying on a "stopped typing" signal being delivered.
type Tracker struct {
	ttl      time.Duration
	onChange func(peerID string, typing bool)

	mu     sync.Mutex
	typing map[string]bool
	timers map[string]*time.Timer
}

// NewTracker creates a tracker with the given quiet window. onChange, if
// non-nil, is invoked whenever a peer's typing state flips.
func NewTracker(ttl time.Duration, onChange func(peerID string, typing bool)) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Tracker{
		ttl:      ttl,
		onChange: onChange,
		typing:   make(map[string]bool),
		timers:   make(map[string]*time.Timer),
	}
}

// Observe feeds a received typing signal into the tracker, resetting the
// expiry timer on each new signal.
func (t *Tracker) Observe(sig realtime.TypingSignal) {
	t.mu.Lock()
	peer := sig.UserID

	if !sig.IsTyping {
		t.clearLocked(peer)
		changed := t.typing[peer]
		delete(t.typing, peer)
		t.mu.Unlock()
		if changed && t.onChange != nil {
			t.onChange(peer, false)
		}
		return
	}

	wasTyping := t.typing[peer]
	t.typing[peer] = true
	t.clearLocked(peer)
	t.timers[peer] = time.AfterFunc(t.ttl, func() { t.expire(peer) })
	t.mu.Unlock()

	if !wasTyping && t.onChange != nil {
		t.onChange(peer, true)
	}
}

// IsTyping is a pure read of local ephemeral state; it never blocks.
func (t *Tracker) IsTyping(peerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing[peerID]
}

// Stop cancels all pending expiry timers.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for peer := range t.timers {
		t.clearLocked(peer)
	}
	t.typing = make(map[string]bool)
}

func (t *Tracker) expire(peerID string) {
	t.mu.Lock()
	wasTyping := t.typing[peerID]
	delete(t.typing, peerID)
	delete(t.timers, peerID)
	t.mu.Unlock()

	if wasTyping && t.onChange != nil {
		t.onChange(peerID, false)
	}
}

func (t *Tracker) clearLocked(peerID string) {
	if timer, ok := t.timers[peerID]; ok {
		timer.Stop()
		delete(t.timers, peerID)
	}
}

// Notifier publishes outgoing typing signals, debounced per conversation
// pair. Delivery is best-effort and unacknowledged.
type Notifier struct {
	broker   *realtime.Broker
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewNotifier creates a notifier with the given debounce interval.
func NewNotifier(broker *realtime.Broker, interval time.Duration) *Notifier {
	if interval <= 0 {
		interval = DefaultTypingDebounce
	}
	return &Notifier{
		broker:   broker,
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// NotifyTyping broadcasts isTyping=true to the pair channel unless a signal
// was already sent within the debounce interval.
func (n *Notifier) NotifyTyping(fromID, toID string) {
	if fromID == "" || toID == "" {
		return
	}

	key := realtime.PairKey(fromID, toID) + "|" + fromID
	now := time.Now()

	n.mu.Lock()
	if last, ok := n.last[key]; ok && now.Sub(last) < n.interval {
		n.mu.Unlock()
		return
	}
	// Entries past the debounce window no longer suppress anything, so the
	// map stays bounded by currently active conversations.
	for k, ts := range n.last {
		if now.Sub(ts) >= n.interval {
			delete(n.last, k)
		}
	}
	n.last[key] = now
	n.mu.Unlock()

	n.broker.PublishTyping(fromID, toID, true)
	metrics.TypingSignals.Inc()
}
