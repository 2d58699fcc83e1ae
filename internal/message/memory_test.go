package message

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/swapnest/chat-engine/internal/conversation"
)

func testConversation(t *testing.T, a, b int64) *conversation.Conversation {
	t.Helper()
	pair, err := conversation.NewPair(a, b)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	return &conversation.Conversation{ID: 1, Participants: pair, CreatedAt: time.Now()}
}

func TestAppendRejectsNonParticipants(t *testing.T) {
	s := NewMemoryStore()
	conv := testConversation(t, 1, 2)
	ctx := context.Background()

	cases := []struct {
		name             string
		sender, receiver int64
	}{
		{"sender outside", 9, 2},
		{"receiver outside", 1, 9},
		{"both outside", 9, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Append(ctx, conv, tc.sender, tc.receiver, "hi")
			if !errors.Is(err, ErrNotAParticipant) {
				t.Errorf("expected ErrNotAParticipant, got %v", err)
			}
		})
	}
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	s := NewMemoryStore()
	conv := testConversation(t, 1, 2)

	_, err := s.Append(context.Background(), conv, 1, 2, "")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	conv := testConversation(t, 1, 2)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := s.Append(ctx, conv, 1, 2, fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := s.List(ctx, conv.ID, time.Time{}, 30)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "msg-5" {
		t.Errorf("expected newest first, got %q", msgs[0].Content)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].SentAt.After(msgs[i-1].SentAt) {
			t.Errorf("timestamps must be non-increasing at index %d", i)
		}
		if msgs[i].ID >= msgs[i-1].ID {
			t.Errorf("ids must be strictly descending at index %d", i)
		}
	}
}

func TestListHonorsLimit(t *testing.T) {
	s := NewMemoryStore()
	conv := testConversation(t, 1, 2)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		s.Append(ctx, conv, 1, 2, "m")
	}

	msgs, err := s.List(ctx, conv.ID, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != DefaultListLimit {
		t.Errorf("expected default limit %d, got %d", DefaultListLimit, len(msgs))
	}
}

func TestListCursor(t *testing.T) {
	s := NewMemoryStore()
	conv := testConversation(t, 1, 2)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := 0
	s.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	}

	for n := 1; n <= 6; n++ {
		s.Append(ctx, conv, 1, 2, fmt.Sprintf("msg-%d", n))
	}

	// Cursor at message 4's timestamp: messages 5 and 6 are excluded.
	msgs, err := s.List(ctx, conv.ID, base.Add(4*time.Second), 30)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages at or before cursor, got %d", len(msgs))
	}
	if msgs[0].Content != "msg-4" {
		t.Errorf("expected msg-4 first, got %q", msgs[0].Content)
	}
}

func TestTimestampsMonotonicUnderClockSkew(t *testing.T) {
	s := NewMemoryStore()
	conv := testConversation(t, 1, 2)
	ctx := context.Background()

	times := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC), // clock stepped back
		time.Date(2026, 3, 1, 12, 0, 20, 0, time.UTC),
	}
	i := 0
	s.now = func() time.Time { t := times[i]; i++; return t }

	for n := 0; n < 3; n++ {
		if _, err := s.Append(ctx, conv, 1, 2, "m"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, _ := s.List(ctx, conv.ID, time.Time{}, 30)
	// Newest first: must be non-increasing despite the skewed clock.
	for j := 1; j < len(msgs); j++ {
		if msgs[j].SentAt.After(msgs[j-1].SentAt) {
			t.Fatalf("timestamp order violated: %v after %v", msgs[j].SentAt, msgs[j-1].SentAt)
		}
	}
}

func TestListEmptyConversation(t *testing.T) {
	s := NewMemoryStore()
	msgs, err := s.List(context.Background(), 42, time.Time{}, 30)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestLast(t *testing.T) {
	s := NewMemoryStore()
	conv := testConversation(t, 1, 2)
	ctx := context.Background()

	if _, _, ok := s.Last(conv.ID); ok {
		t.Error("Last on empty conversation should report ok=false")
	}

	s.Append(ctx, conv, 1, 2, "first")
	s.Append(ctx, conv, 2, 1, "second")

	content, _, ok := s.Last(conv.ID)
	if !ok || content != "second" {
		t.Errorf("expected latest content %q, got %q (ok=%v)", "second", content, ok)
	}
}
