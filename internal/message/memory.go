package message

import (
	"context"
	"sync"
	"time"

	"github.com/swapnest/chat-engine/internal/conversation"
)

// MemoryStore is an in-process Store for tests and single-node development.
// Appends within one conversation serialize on the store lock, so timestamp
// assignment is monotonically non-decreasing per conversation just like the
// SQL store.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byConv map[int64][]*Message
	lastAt map[int64]time.Time

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		byConv: make(map[int64][]*Message),
		lastAt: make(map[int64]time.Time),
		now:    time.Now,
	}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, conv *conversation.Conversation, senderID, receiverID int64, content string) (*Message, error) {
	if err := checkAppend(conv, senderID, receiverID, content); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	if last, ok := s.lastAt[conv.ID]; ok && at.Before(last) {
		at = last
	}
	s.lastAt[conv.ID] = at

	msg := &Message{
		ID:             s.nextID,
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		SentAt:         at,
	}
	s.nextID++
	s.byConv[conv.ID] = append(s.byConv[conv.ID], msg)
	return msg, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, conversationID int64, before time.Time, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.byConv[conversationID]
	out := make([]*Message, 0, limit)
	// The log is already in (sent_at, id) ascending order; walk backwards
	// for newest-first.
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		m := log[i]
		if !before.IsZero() && m.SentAt.After(before) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// Last reports the newest message of a conversation, for summary previews.
// The signature matches conversation.LastMessageFunc.
func (s *MemoryStore) Last(conversationID int64) (string, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.byConv[conversationID]
	if len(log) == 0 {
		return "", time.Time{}, false
	}
	m := log[len(log)-1]
	return m.Content, m.SentAt, true
}
