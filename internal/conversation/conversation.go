// Package conversation maps unordered participant pairs to canonical
// conversation records. For any two users there is at most one conversation,
// found by AND-semantics lookup on the canonical pair: both participants
// must match, never either.
package conversation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidParticipants is returned for a self-pair or malformed
	// participant ids.
	ErrInvalidParticipants = errors.New("invalid participants")

	// ErrNotFound is returned when no conversation exists for the given id.
	ErrNotFound = errors.New("conversation not found")
)

// Conversation is a 1:1 thread between exactly two participants.
type Conversation struct {
	ID           int64
	Participants Pair
	CreatedAt    time.Time
}

// Summary is the derived per-conversation preview used for inbox
// (conversation-list) updates. It is computed on demand, never persisted.
type Summary struct {
	ConversationID int64   `json:"conversation_id"`
	Participants   []int64 `json:"participants"`
	LastPreview    string  `json:"last_message_preview"`
	LastTimestamp  int64   `json:"last_message_timestamp"`
}

// PreviewLimit caps the number of characters carried in a Summary preview.
const PreviewLimit = 120

// Directory resolves participant pairs to conversations, creating them
// lazily on first contact.
type Directory interface {
	// ResolveOrCreate returns the unique conversation for the pair,
	// creating it if none exists. Two concurrent calls for the same pair
	// must yield the same conversation.
	ResolveOrCreate(ctx context.Context, a, b int64) (*Conversation, error)

	// Get looks up a conversation by id.
	Get(ctx context.Context, id int64) (*Conversation, error)

	// ListForUser returns summaries of every conversation the user
	// participates in, most recent activity first.
	ListForUser(ctx context.Context, userID int64) ([]Summary, error)
}

// TruncatePreview shortens message content to PreviewLimit runes for use in
// a Summary.
func TruncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLimit {
		return content
	}
	return string(runes[:PreviewLimit])
}
