package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/swapnest/chat-engine/internal/broker"
	"github.com/swapnest/chat-engine/internal/protocol"
)

// InboxSession is the list-only session variant: it subscribes to the
// user's inbox topic and relays conversation-list updates, so a client can
// show a live conversation list without opening any room.
type InboxSession struct {
	ID     string
	UserID int64

	deps  Deps
	sink  Sink
	state atomic.Int32
}

// NewInbox creates an InboxSession in StateConnecting.
func NewInbox(id string, userID int64, deps Deps, sink Sink) *InboxSession {
	return &InboxSession{ID: id, UserID: userID, deps: deps, sink: sink}
}

// State reports the current lifecycle phase.
func (s *InboxSession) State() State {
	return State(s.state.Load())
}

// Join subscribes to the inbox topic and sends the current conversation
// list as an initial snapshot, newest activity first.
func (s *InboxSession) Join(ctx context.Context) error {
	if State(s.state.Load()) != StateConnecting {
		return fmt.Errorf("session %s: inbox join in state %s", s.ID, s.State())
	}

	err := s.deps.Broker.Subscribe(broker.InboxTopic(s.UserID), s.ID, func(data []byte) {
		if State(s.state.Load()) == StateClosed {
			return
		}
		if err := s.sink.Send(data); err != nil {
			log.Printf("session: inbox %s deliver: %v", s.ID, err)
		}
	})
	if err != nil {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("session %s: subscribe inbox: %w", s.ID, err)
	}

	if err := s.sendSnapshot(ctx); err != nil {
		log.Printf("session: inbox %s snapshot: %v", s.ID, err)
	}

	s.state.Store(int32(StateActive))
	log.Printf("session: inbox %s active user=%d", s.ID, s.UserID)
	return nil
}

// sendSnapshot pushes one conversation_list_update frame per existing
// conversation so the client starts from the current state.
func (s *InboxSession) sendSnapshot(ctx context.Context) error {
	summaries, err := s.deps.Directory.ListForUser(ctx, s.UserID)
	if err != nil {
		return err
	}
	for _, sum := range summaries {
		frame, err := protocol.NewServerMessage(protocol.TypeConversationListUpdate,
			protocol.ConversationListUpdateMsg{Conversation: protocol.ConversationSummary{
				ConversationID: sum.ConversationID,
				Participants:   sum.Participants,
				LastPreview:    sum.LastPreview,
				LastTimestamp:  sum.LastTimestamp,
			}})
		if err != nil {
			return err
		}
		if err := s.sink.Send(frame); err != nil {
			return err
		}
	}
	return nil
}

// Close unsubscribes from the inbox topic. Idempotent.
func (s *InboxSession) Close(context.Context) {
	prev := State(s.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return
	}

	if err := s.deps.Broker.Unsubscribe(broker.InboxTopic(s.UserID), s.ID); err != nil &&
		!errors.Is(err, broker.ErrNotSubscribed) {
		log.Printf("session: inbox %s unsubscribe: %v", s.ID, err)
	}
	log.Printf("session: inbox %s closed", s.ID)
}
