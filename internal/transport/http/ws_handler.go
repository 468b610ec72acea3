package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/pixelfold/pixchat-server/internal/auth"
	"github.com/pixelfold/pixchat-server/internal/chat"
	"github.com/pixelfold/pixchat-server/internal/config"
	"github.com/pixelfold/pixchat-server/internal/metrics"
	"github.com/pixelfold/pixchat-server/internal/proto"
	"github.com/pixelfold/pixchat-server/internal/realtime"
	"github.com/pixelfold/pixchat-server/internal/store"
)

// WSHandler upgrades HTTP connections into realtime conversation screens:
// one insert subscription plus a typing channel per socket, torn down with
// the socket on every exit path.
type WSHandler struct {
	svc         *chat.Service
	notifier    *chat.Notifier
	broker      *realtime.Broker
	authService *auth.Service
	cfg         config.Config
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(
	svc *chat.Service,
	notifier *chat.Notifier,
	broker *realtime.Broker,
	authService *auth.Service,
	cfg config.Config,
	logger *zerolog.Logger,
) stdhttp.Handler {
	return &WSHandler{
		svc:         svc,
		notifier:    notifier,
		broker:      broker,
		authService: authService,
		cfg:         cfg,
		log:         logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	session, err := h.newSession(claims.UserID, r.URL.Query().Get("peer"))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", claims.UserID).Msg("ws session init error")
		return
	}
	defer session.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// authenticate accepts the token either as a query parameter (browser
// WebSocket clients cannot set headers) or a bearer header.
func (h *WSHandler) authenticate(r *stdhttp.Request) (*auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = after
		}
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return h.authService.ValidateToken(token)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *wsSession) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		switch inbound.Type {
		case proto.InboundTypeOpen:
			var open proto.OpenData
			if err := json.Unmarshal(inbound.Data, &open); err != nil {
				return err
			}
			session.setOpenPeer(open.Peer)
		case proto.InboundTypeTyping:
			var typing proto.TypingData
			if err := json.Unmarshal(inbound.Data, &typing); err != nil {
				return err
			}
			if typing.Peer == "" {
				session.push(proto.Outbound{
					Type:  proto.OutboundTypeError,
					Error: &proto.Error{Code: "bad_request", Msg: "peer is required"},
				})
				continue
			}
			h.notifier.NotifyTyping(session.userID, typing.Peer)
		default:
			session.push(proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "invalid_message", Msg: "unknown message type"},
			})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *wsSession) error {
	for {
		select {
		case outbound := <-session.events:
			if err := wsjson.Write(ctx, conn, outbound); err != nil {
				h.log.Error().Err(err).Str("user_id", session.userID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wsSession holds the per-socket realtime resources: the insert listener,
// the typing subscription for the open pair, and the typing expiry tracker.
type wsSession struct {
	h      *WSHandler
	userID string
	events chan proto.Outbound

	listener *chat.Listener
	tracker  *chat.Tracker

	mu           sync.Mutex
	openPeer     string
	typingHandle *realtime.Handle
}

func (h *WSHandler) newSession(userID, openPeer string) (*wsSession, error) {
	session := &wsSession{
		h:      h,
		userID: userID,
		events: make(chan proto.Outbound, 32),
	}

	session.tracker = chat.NewTracker(h.cfg.TypingTTL, func(peerID string, typing bool) {
		session.push(proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameTyping,
			Data:  proto.EventTyping{User: peerID, IsTyping: typing},
		})
	})

	listener, err := h.svc.Listen(userID, chat.ListenerOptions{
		OpenPeer:        openPeer,
		OnThreadRefresh: session.onThreadRefresh,
		OnNotice:        session.onNotice,
	})
	if err != nil {
		session.tracker.Stop()
		return nil, err
	}
	session.listener = listener

	session.subscribeTyping(openPeer)
	session.openPeer = openPeer
	return session, nil
}

// push enqueues an outbound event, dropping it if the socket is slow.
func (s *wsSession) push(out proto.Outbound) {
	select {
	case s.events <- out:
	default:
		metrics.RealtimeDrops.Inc()
	}
}

// onThreadRefresh re-fetches the full ordered thread and pushes it, so a
// burst of inserts converges to a consistent order even under out-of-order
// delivery.
func (s *wsSession) onThreadRefresh(peerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgs, err := s.h.svc.Load(ctx, s.userID, peerID)
	if err != nil {
		s.h.log.Warn().Err(err).
			Str("user_id", s.userID).
			Str("peer_id", peerID).
			Msg("failed to refresh thread")
		return
	}

	s.push(proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventNameThread,
		Data:  threadToEvent(peerID, msgs),
	})
}

func (s *wsSession) onNotice(msg *store.Message) {
	s.push(proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventNameNotice,
		Data:  noticeToEvent(msg),
	})
}

// setOpenPeer switches the open conversation: the listener routes the new
// peer's inserts into the thread, and the typing channel is re-keyed.
func (s *wsSession) setOpenPeer(peerID string) {
	s.mu.Lock()
	if s.openPeer == peerID {
		s.mu.Unlock()
		return
	}
	s.openPeer = peerID
	s.mu.Unlock()

	s.listener.SetOpenPeer(peerID)
	s.subscribeTyping(peerID)

	if peerID != "" {
		s.onThreadRefresh(peerID)
	}
}

func (s *wsSession) subscribeTyping(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.typingHandle != nil {
		s.typingHandle.Close()
		s.typingHandle = nil
	}
	s.tracker.Stop()

	if peerID == "" {
		return
	}
	s.typingHandle = s.h.broker.SubscribeTyping(s.userID, peerID, s.tracker.Observe)
}

// close releases all per-session realtime resources. Idempotent.
func (s *wsSession) close() {
	s.listener.Close()

	s.mu.Lock()
	if s.typingHandle != nil {
		s.typingHandle.Close()
		s.typingHandle = nil
	}
	s.mu.Unlock()

	s.tracker.Stop()
}
