package session

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/swapnest/chat-engine/internal/conversation"
	"github.com/swapnest/chat-engine/internal/identity"
	"github.com/swapnest/chat-engine/internal/protocol"
	"github.com/swapnest/chat-engine/internal/ratelimit"
	"github.com/swapnest/chat-engine/internal/ws"
)

// Route prefixes served by the hub.
const (
	ChatPathPrefix  = "/ws/chat/"
	InboxPathPrefix = "/ws/inbox/"
)

// opTimeout bounds the store/Redis work done on connect and disconnect.
const opTimeout = 3 * time.Second

// Hub owns the mapping from live WebSocket connections to sessions. It is
// the ws server's connect/message/disconnect callback target.
type Hub struct {
	deps     Deps
	registry *Store // optional live-session registry
	server   *ws.Server

	mu      sync.RWMutex
	chats   map[string]*Session
	inboxes map[string]*InboxSession
}

// NewHub creates a Hub. The registry may be nil.
func NewHub(deps Deps, registry *Store) *Hub {
	return &Hub{
		deps:     deps,
		registry: registry,
		chats:    make(map[string]*Session),
		inboxes:  make(map[string]*InboxSession),
	}
}

// SetServer assigns the ws server reference. This supports the
// initialization pattern where the hub is created before the server (since
// the server constructor takes the hub's callbacks).
func (h *Hub) SetServer(server *ws.Server) {
	h.server = server
}

// connSink adapts a ws connection to the session Sink. Sends go through the
// server so write deadlines apply.
type connSink struct {
	server *ws.Server
	connID string
}

func (s connSink) Send(data []byte) error {
	return s.server.SendMessage(s.connID, data)
}

// OnConnect routes a newly upgraded connection to a session by path.
// Connections that fail validation are refused: an error frame is sent and
// the connection removed without any subscription having been made.
func (h *Hub) OnConnect(c *ws.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch {
	case strings.HasPrefix(c.Path, ChatPathPrefix):
		h.openChat(ctx, c, strings.TrimSuffix(strings.TrimPrefix(c.Path, ChatPathPrefix), "/"))
	case strings.HasPrefix(c.Path, InboxPathPrefix):
		h.openInbox(ctx, c, strings.TrimSuffix(strings.TrimPrefix(c.Path, InboxPathPrefix), "/"))
	default:
		h.refuse(c, "unknown_route", "unknown websocket route")
	}
}

func (h *Hub) openChat(ctx context.Context, c *ws.Connection, room string) {
	if c.UserID <= 0 {
		h.refuse(c, "unauthenticated", "missing user identity")
		return
	}
	if !h.allowConnect(ctx, c.UserID) {
		h.refuse(c, "rate_limited", "too many connections")
		return
	}

	sess := New(c.ID, c.UserID, h.deps, connSink{server: h.server, connID: c.ID})
	if err := sess.Join(ctx, room); err != nil {
		h.refuse(c, joinErrorCode(err), "cannot join conversation")
		return
	}

	h.mu.Lock()
	h.chats[c.ID] = sess
	h.mu.Unlock()

	if h.registry != nil {
		if err := h.registry.Register(ctx, c.ID, c.UserID, KindConversation, sess.Conversation().ID); err != nil {
			log.Printf("hub: register session %s: %v", c.ID, err)
		}
	}
}

func (h *Hub) openInbox(ctx context.Context, c *ws.Connection, rawUserID string) {
	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil || userID <= 0 {
		h.refuse(c, "invalid_route", "inbox route requires a numeric user id")
		return
	}
	if userID != c.UserID {
		h.refuse(c, "forbidden", "inbox belongs to another user")
		return
	}
	if !h.allowConnect(ctx, userID) {
		h.refuse(c, "rate_limited", "too many connections")
		return
	}

	sess := NewInbox(c.ID, userID, h.deps, connSink{server: h.server, connID: c.ID})
	if err := sess.Join(ctx); err != nil {
		h.refuse(c, "join_failed", "cannot join inbox")
		return
	}

	h.mu.Lock()
	h.inboxes[c.ID] = sess
	h.mu.Unlock()

	if h.registry != nil {
		if err := h.registry.Register(ctx, c.ID, userID, KindInbox, 0); err != nil {
			log.Printf("hub: register inbox session %s: %v", c.ID, err)
		}
	}
}

// OnMessage dispatches an inbound frame to the connection's session.
func (h *Hub) OnMessage(c *ws.Connection, data []byte) {
	h.mu.RLock()
	chat := h.chats[c.ID]
	inbox := h.inboxes[c.ID]
	h.mu.RUnlock()

	switch {
	case chat != nil:
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		err := chat.HandleFrame(ctx, data)
		cancel()
		if err != nil {
			// The session closed itself (protocol violation); drop the
			// underlying connection too.
			log.Printf("hub: session %s: %v", c.ID, err)
			h.server.RemoveConnection(c)
			return
		}
		if h.registry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			_ = h.registry.Touch(ctx, c.ID)
			cancel()
		}
	case inbox != nil:
		h.handleInboxFrame(inbox, data)
	default:
		// No session: the connection was refused earlier.
	}
}

// handleInboxFrame answers keepalive pings; inbox sessions accept nothing
// else from the client.
func (h *Hub) handleInboxFrame(s *InboxSession, data []byte) {
	msgType, _, err := protocol.ParseClientMessage(data)
	if err != nil || msgType != protocol.TypePing {
		return
	}
	if pong, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{}); err == nil {
		_ = s.sink.Send(pong)
	}
}

// OnDisconnect tears down the session bound to a closed connection.
func (h *Hub) OnDisconnect(connID string) {
	h.mu.Lock()
	chat := h.chats[connID]
	inbox := h.inboxes[connID]
	delete(h.chats, connID)
	delete(h.inboxes, connID)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if chat != nil {
		chat.Close(ctx)
	}
	if inbox != nil {
		inbox.Close(ctx)
	}
	if h.registry != nil && (chat != nil || inbox != nil) {
		if err := h.registry.Deregister(ctx, connID); err != nil {
			log.Printf("hub: deregister session %s: %v", connID, err)
		}
	}
}

// allowConnect applies the connection rate limit. The limiter fails open on
// backend errors.
func (h *Hub) allowConnect(ctx context.Context, userID int64) bool {
	if h.deps.Limiter == nil {
		return true
	}
	allowed, err := h.deps.Limiter.Allow(ctx, strconv.FormatInt(userID, 10), ratelimit.RuleConnect)
	return err != nil || allowed
}

// refuse sends an error frame and drops the connection.
func (h *Hub) refuse(c *ws.Connection, code, text string) {
	if frame, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: text,
	}); err == nil {
		_ = c.WriteMessage(frame)
	}
	log.Printf("hub: refused connection %s path=%s: %s", c.ID, c.Path, code)
	h.server.RemoveConnection(c)
}

// joinErrorCode maps a Join failure to a client-visible error code.
func joinErrorCode(err error) string {
	switch {
	case errors.Is(err, conversation.ErrInvalidParticipants):
		return "invalid_participants"
	case errors.Is(err, identity.ErrNotFound):
		return "unknown_participant"
	default:
		return "join_failed"
	}
}
