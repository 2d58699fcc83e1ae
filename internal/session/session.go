// Package session implements the per-connection lifecycle of the
// conversation engine: a Session joins exactly one conversation, relays
// validated messages through the store and broker, and tears itself down
// idempotently on disconnect. A new connection is always a new session;
// there is no reconnect-in-place.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swapnest/chat-engine/internal/broker"
	"github.com/swapnest/chat-engine/internal/conversation"
	"github.com/swapnest/chat-engine/internal/identity"
	"github.com/swapnest/chat-engine/internal/message"
	"github.com/swapnest/chat-engine/internal/metrics"
	"github.com/swapnest/chat-engine/internal/presence"
	"github.com/swapnest/chat-engine/internal/protocol"
	"github.com/swapnest/chat-engine/internal/ratelimit"
)

// State is the session lifecycle phase.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Sink delivers server frames to the session's client connection.
type Sink interface {
	Send(data []byte) error
}

// Limiter throttles per-user actions. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Deps bundles the collaborators a Session operates on.
type Deps struct {
	Directory  conversation.Directory
	Identities identity.Directory // optional; nil skips identity checks
	Messages   message.Store
	Presence   presence.Tracker
	Broker     broker.Broker
	Limiter    Limiter // optional; nil disables throttling
}

// Session is the state machine bound to one open conversation connection.
type Session struct {
	ID     string
	UserID int64

	deps Deps
	sink Sink

	state atomic.Int32

	mu   sync.Mutex
	conv *conversation.Conversation
	subs []broker.Topic // topics joined, for idempotent teardown

	// dispatch is the closed table of inbound event handlers, keyed by
	// protocol type.
	dispatch map[string]func(ctx context.Context, msg interface{}) error
}

// New creates a Session in StateConnecting for the authenticated user.
func New(id string, userID int64, deps Deps, sink Sink) *Session {
	s := &Session{
		ID:     id,
		UserID: userID,
		deps:   deps,
		sink:   sink,
	}
	s.dispatch = map[string]func(context.Context, interface{}) error{
		protocol.TypeSendMessage: s.handleSendMessage,
		protocol.TypeTyping:      s.handleTyping,
		protocol.TypePing:        s.handlePing,
	}
	return s
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Conversation returns the resolved conversation, or nil before Join
// succeeds.
func (s *Session) Conversation() *conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// Join drives StateConnecting -> StateActive. It parses the room route,
// resolves the canonical conversation, subscribes to the conversation,
// inbox and peer-presence topics, marks the user online, and replays
// recent history. Any failure closes the session without leaving it
// half-subscribed.
func (s *Session) Join(ctx context.Context, room string) error {
	if State(s.state.Load()) != StateConnecting {
		return fmt.Errorf("session %s: join in state %s", s.ID, s.State())
	}

	pair, err := ParseConversationRoute(room)
	if err != nil {
		// Malformed route: straight to Closed, nothing was subscribed.
		s.state.Store(int32(StateClosed))
		return err
	}
	if !pair.Contains(s.UserID) {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("session %s: user %d not in room %q: %w",
			s.ID, s.UserID, room, conversation.ErrInvalidParticipants)
	}

	if s.deps.Identities != nil {
		// Unknown participants refuse the connection before any setup.
		for _, id := range []int64{pair.Low, pair.High} {
			if _, err := s.deps.Identities.Resolve(ctx, id); err != nil {
				s.state.Store(int32(StateClosed))
				return fmt.Errorf("session %s: participant %d: %w", s.ID, id, err)
			}
		}
	}

	conv, err := s.deps.Directory.ResolveOrCreate(ctx, pair.Low, pair.High)
	if err != nil {
		s.state.Store(int32(StateClosed))
		return err
	}

	s.mu.Lock()
	s.conv = conv
	s.mu.Unlock()

	if err := s.subscribe(broker.ConversationTopic(conv.ID)); err != nil {
		s.Close(ctx)
		return err
	}
	if err := s.subscribe(broker.InboxTopic(s.UserID)); err != nil {
		s.Close(ctx)
		return err
	}
	// Watch the counterpart so this client sees their online/offline frames.
	if err := s.subscribe(broker.PresenceTopic(pair.Other(s.UserID))); err != nil {
		s.Close(ctx)
		return err
	}

	if err := s.deps.Presence.SetOnline(ctx, s.UserID); err != nil {
		log.Printf("session: %s presence online: %v", s.ID, err)
	}

	if err := s.replayHistory(ctx, conv.ID); err != nil {
		log.Printf("session: %s history replay: %v", s.ID, err)
	}

	s.state.Store(int32(StateActive))
	metrics.SessionsActive.Inc()
	log.Printf("session: %s active user=%d conversation=%d", s.ID, s.UserID, conv.ID)
	return nil
}

// subscribe registers a broker subscription relaying published frames to
// the client, and records the topic for teardown.
func (s *Session) subscribe(topic broker.Topic) error {
	err := s.deps.Broker.Subscribe(topic, s.ID, func(data []byte) {
		if State(s.state.Load()) == StateClosed {
			return
		}
		if err := s.sink.Send(data); err != nil {
			log.Printf("session: %s deliver on %s: %v", s.ID, topic, err)
		}
	})
	if err != nil {
		return fmt.Errorf("session %s: subscribe %s: %w", s.ID, topic, err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, topic)
	s.mu.Unlock()
	return nil
}

// replayHistory sends the most recent messages in chronological order,
// preceded by a history marker, so a rejoining client can render the room
// without a separate fetch.
func (s *Session) replayHistory(ctx context.Context, convID int64) error {
	msgs, err := s.deps.Messages.List(ctx, convID, time.Time{}, message.DefaultListLimit)
	if err != nil {
		return err
	}

	header, err := protocol.NewServerMessage(protocol.TypeHistory, protocol.HistoryMsg{Count: len(msgs)})
	if err != nil {
		return err
	}
	if err := s.sink.Send(header); err != nil {
		return err
	}

	// List returns newest first; replay oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		frame, err := chatMessageFrame(msgs[i])
		if err != nil {
			return err
		}
		if err := s.sink.Send(frame); err != nil {
			return err
		}
	}
	return nil
}

// HandleFrame dispatches one inbound client frame. Frames outside
// StateActive are dropped. The returned error is non-nil only when the
// session was closed as a consequence (protocol violation); recoverable
// validation failures are reported to the client and return nil.
func (s *Session) HandleFrame(ctx context.Context, data []byte) error {
	if State(s.state.Load()) != StateActive {
		return nil
	}

	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("session: %s parse error: %v", s.ID, err)
		s.sendError("parse_error", "invalid message format")
		return nil
	}

	handler, ok := s.dispatch[msgType]
	if !ok {
		s.sendError("unsupported_type", "unsupported message type")
		return nil
	}
	return handler(ctx, msg)
}

// handleSendMessage persists the message and fans it out: one publish to
// the conversation topic and one summary update per participant inbox.
func (s *Session) handleSendMessage(ctx context.Context, msg interface{}) error {
	sm, ok := msg.(protocol.SendMessageMsg)
	if !ok {
		return nil
	}
	conv := s.Conversation()
	start := time.Now()

	if s.deps.Limiter != nil {
		allowed, err := s.deps.Limiter.Allow(ctx, strconv.FormatInt(s.UserID, 10), ratelimit.RuleMessage)
		// The limiter fails open on backend errors.
		if err == nil && !allowed {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			s.sendError("rate_limited", "too many messages, slow down")
			return nil
		}
	}

	persisted, err := s.deps.Messages.Append(ctx, conv, sm.SenderID, sm.ReceiverID, sm.Message)
	switch {
	case errors.Is(err, message.ErrNotAParticipant):
		// Spoofed sender or receiver: protocol violation, the session ends.
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		s.sendError("not_a_participant", "sender and receiver must belong to the conversation")
		s.Close(ctx)
		return fmt.Errorf("session %s: %w", s.ID, err)
	case errors.Is(err, message.ErrEmptyMessage):
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		s.sendError("empty_message", "message has no content")
		return nil
	case err != nil:
		// Store unavailable or content invalid: the conversation context is
		// still good, so the session stays open.
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		s.sendError("send_failed", err.Error())
		return nil
	}

	frame, err := chatMessageFrame(persisted)
	if err != nil {
		log.Printf("session: %s frame: %v", s.ID, err)
		return nil
	}
	if err := s.deps.Broker.Publish(broker.ConversationTopic(conv.ID), frame); err != nil {
		log.Printf("session: %s publish message: %v", s.ID, err)
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	metrics.PublishesTotal.WithLabelValues("conversation").Inc()

	summary := protocol.ConversationSummary{
		ConversationID: conv.ID,
		Participants:   []int64{conv.Participants.Low, conv.Participants.High},
		LastPreview:    conversation.TruncatePreview(persisted.Content),
		LastTimestamp:  persisted.SentAt.Unix(),
	}
	update, err := protocol.NewServerMessage(protocol.TypeConversationListUpdate,
		protocol.ConversationListUpdateMsg{Conversation: summary})
	if err != nil {
		log.Printf("session: %s summary frame: %v", s.ID, err)
		return nil
	}
	for _, userID := range []int64{conv.Participants.Low, conv.Participants.High} {
		if err := s.deps.Broker.Publish(broker.InboxTopic(userID), update); err != nil {
			log.Printf("session: %s publish inbox %d: %v", s.ID, userID, err)
		}
		metrics.PublishesTotal.WithLabelValues("inbox").Inc()
	}
	metrics.SendLatency.Observe(time.Since(start).Seconds())
	return nil
}

// handleTyping echoes the indicator to the conversation topic. Nothing is
// persisted; a subscriber that joins later never sees it.
func (s *Session) handleTyping(_ context.Context, msg interface{}) error {
	tm, ok := msg.(protocol.TypingMsg)
	if !ok {
		return nil
	}

	frame, err := protocol.NewServerMessage(protocol.TypeTyping, protocol.TypingMsg{
		UserID: s.UserID,
		Typing: tm.Typing,
	})
	if err != nil {
		log.Printf("session: %s typing frame: %v", s.ID, err)
		return nil
	}
	if err := s.deps.Broker.Publish(broker.ConversationTopic(s.Conversation().ID), frame); err != nil {
		log.Printf("session: %s publish typing: %v", s.ID, err)
	}
	return nil
}

// handlePing answers directly on the session's own sink.
func (s *Session) handlePing(context.Context, interface{}) error {
	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		return nil
	}
	if err := s.sink.Send(data); err != nil {
		log.Printf("session: %s pong: %v", s.ID, err)
	}
	return nil
}

// Close drives the session to StateClosed. It unsubscribes every topic the
// session joined and marks the user offline. Safe to call at any point of a
// partially completed setup, and safe to call twice.
func (s *Session) Close(ctx context.Context) {
	prev := State(s.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return
	}

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, topic := range subs {
		if err := s.deps.Broker.Unsubscribe(topic, s.ID); err != nil && !errors.Is(err, broker.ErrNotSubscribed) {
			log.Printf("session: %s unsubscribe %s: %v", s.ID, topic, err)
		}
	}

	if err := s.deps.Presence.SetOffline(ctx, s.UserID); err != nil {
		log.Printf("session: %s presence offline: %v", s.ID, err)
	}

	if prev == StateActive {
		metrics.SessionsActive.Dec()
	}
	log.Printf("session: %s closed (was %s)", s.ID, prev)
}

// sendError reports an error condition to the client. Failures are logged,
// not propagated.
func (s *Session) sendError(code, text string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: text,
	})
	if err != nil {
		log.Printf("session: %s build error frame: %v", s.ID, err)
		return
	}
	if err := s.sink.Send(data); err != nil {
		log.Printf("session: %s send error frame: %v", s.ID, err)
	}
}

// chatMessageFrame builds the broadcast frame for a persisted message.
func chatMessageFrame(m *message.Message) ([]byte, error) {
	return protocol.NewServerMessage(protocol.TypeChatMessage, protocol.ChatMessageMsg{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Timestamp:  m.SentAt.Unix(),
	})
}
