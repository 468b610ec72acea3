package realtime

import (
	"sync"

	"github.com/pixelfold/pixchat-server/internal/metrics"
	"github.com/pixelfold/pixchat-server/internal/store"
)

// TypingSignal is the ephemeral typing payload. It is never persisted.
type TypingSignal struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// subBuffer is the per-subscriber event buffer size. Events beyond it are
// dropped; live push is best-effort and history stays authoritative.
const subBuffer = 8

// Handle is a cancellable subscription. Close is idempotent and must run on
// all exit paths of the subscribing screen.
type Handle struct {
	once    sync.Once
	release func()
}

// Close tears down the subscription.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.once.Do(h.release)
}

type insertSub struct {
	ch   chan *store.Message
	done chan struct{}
}

type typingSub struct {
	ch   chan TypingSignal
	done chan struct{}
}

// Broker is the in-process realtime fabric: a per-recipient insert change
// feed and ephemeral typing channels keyed by the unordered identity pair.
type Broker struct {
	mu      sync.RWMutex
	inserts map[string]map[*insertSub]struct{}
	typing  map[string]map[*typingSub]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		inserts: make(map[string]map[*insertSub]struct{}),
		typing:  make(map[string]map[*typingSub]struct{}),
	}
}

// SubscribeInserts delivers newly stored messages addressed to recipientID.
// fn runs on a dedicated goroutine per subscription, in delivery order.
func (b *Broker) SubscribeInserts(recipientID string, fn func(*store.Message)) *Handle {
	sub := &insertSub{
		ch:   make(chan *store.Message, subBuffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.inserts[recipientID] == nil {
		b.inserts[recipientID] = make(map[*insertSub]struct{})
	}
	b.inserts[recipientID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case msg := <-sub.ch:
				fn(msg)
			case <-sub.done:
				return
			}
		}
	}()

	return &Handle{release: func() {
		b.mu.Lock()
		delete(b.inserts[recipientID], sub)
		if len(b.inserts[recipientID]) == 0 {
			delete(b.inserts, recipientID)
		}
		b.mu.Unlock()
		close(sub.done)
	}}
}

// PublishInsert fans a stored message out to the recipient's feed.
func (b *Broker) PublishInsert(msg *store.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.inserts[msg.RecipientID] {
		select {
		case sub.ch <- msg:
		default:
			// Drop if slow consumer.
			metrics.RealtimeDrops.Inc()
		}
	}
}

// SubscribeTyping delivers typing signals exchanged between the two
// identities. Signals sent by selfID are filtered out on delivery.
func (b *Broker) SubscribeTyping(selfID, peerID string, fn func(TypingSignal)) *Handle {
	key := PairKey(selfID, peerID)
	sub := &typingSub{
		ch:   make(chan TypingSignal, subBuffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.typing[key] == nil {
		b.typing[key] = make(map[*typingSub]struct{})
	}
	b.typing[key][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case sig := <-sub.ch:
				if sig.UserID != selfID {
					fn(sig)
				}
			case <-sub.done:
				return
			}
		}
	}()

	return &Handle{release: func() {
		b.mu.Lock()
		delete(b.typing[key], sub)
		if len(b.typing[key]) == 0 {
			delete(b.typing, key)
		}
		b.mu.Unlock()
		close(sub.done)
	}}
}

// PublishTyping broadcasts a typing signal on the pair channel. At-most-once
// delivery; no acknowledgment.
func (b *Broker) PublishTyping(fromID, toID string, isTyping bool) {
	sig := TypingSignal{UserID: fromID, IsTyping: isTyping}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.typing[PairKey(fromID, toID)] {
		select {
		case sub.ch <- sig:
		default:
			metrics.RealtimeDrops.Inc()
		}
	}
}
