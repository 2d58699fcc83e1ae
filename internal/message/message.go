// Package message provides the durable append-only message log scoped to a
// conversation. Appends validate participant membership, assign timestamps
// that never move backwards within a conversation, and pass content through
// the injected codec before persistence.
package message

import (
	"context"
	"errors"
	"time"

	"github.com/swapnest/chat-engine/internal/conversation"
)

var (
	// ErrNotAParticipant is returned when the sender or receiver is not a
	// member of the owning conversation.
	ErrNotAParticipant = errors.New("not a participant")

	// ErrEmptyMessage is returned for a message with no content.
	ErrEmptyMessage = errors.New("empty message")
)

// DefaultListLimit is the page size used when a caller passes limit <= 0.
const DefaultListLimit = 30

// Message is one immutable entry in a conversation's log. Content is held
// decoded (plaintext); the codec applies only at the storage boundary.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"timestamp"`
}

// Store is the append-only message log.
type Store interface {
	// Append validates and persists a new message. The returned message
	// carries the server-assigned id and timestamp.
	Append(ctx context.Context, conv *conversation.Conversation, senderID, receiverID int64, content string) (*Message, error)

	// List returns up to limit messages sent at or before the cursor,
	// newest first (timestamp desc, id desc as tiebreak). A zero cursor
	// starts from the newest message.
	List(ctx context.Context, conversationID int64, before time.Time, limit int) ([]*Message, error)
}

// checkAppend runs the shared validation for Append implementations.
func checkAppend(conv *conversation.Conversation, senderID, receiverID int64, content string) error {
	if !conv.Participants.Contains(senderID) || !conv.Participants.Contains(receiverID) {
		return ErrNotAParticipant
	}
	return Validate(content)
}
