package presence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/swapnest/chat-engine/internal/broker"
	"github.com/swapnest/chat-engine/internal/protocol"
)

func TestSetOnlineCreatesRecord(t *testing.T) {
	tr := NewMemoryTracker(nil)
	ctx := context.Background()

	if _, err := tr.Get(ctx, 7); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}

	if err := tr.SetOnline(ctx, 7); err != nil {
		t.Fatalf("set online: %v", err)
	}

	rec, err := tr.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.IsOnline {
		t.Error("expected online")
	}
	if rec.LastSeen.IsZero() {
		t.Error("last_seen should be set")
	}
}

func TestSetOfflineUpdatesLastSeen(t *testing.T) {
	tr := NewMemoryTracker(nil)
	ctx := context.Background()

	times := []time.Time{
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	i := 0
	tr.now = func() time.Time { t := times[i]; i++; return t }

	tr.SetOnline(ctx, 3)
	tr.SetOffline(ctx, 3)

	rec, _ := tr.Get(ctx, 3)
	if rec.IsOnline {
		t.Error("expected offline")
	}
	if !rec.LastSeen.Equal(times[1]) {
		t.Errorf("expected last_seen %v, got %v", times[1], rec.LastSeen)
	}
}

func TestLastSeenNeverMovesBackwards(t *testing.T) {
	tr := NewMemoryTracker(nil)
	ctx := context.Background()

	times := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), // clock stepped back
	}
	i := 0
	tr.now = func() time.Time { t := times[i]; i++; return t }

	tr.SetOnline(ctx, 5)
	tr.SetOffline(ctx, 5)

	rec, _ := tr.Get(ctx, 5)
	if !rec.LastSeen.Equal(times[0]) {
		t.Errorf("last_seen moved backwards: %v", rec.LastSeen)
	}
}

func TestIdempotentTransitions(t *testing.T) {
	tr := NewMemoryTracker(nil)
	ctx := context.Background()

	tr.SetOnline(ctx, 9)
	tr.SetOnline(ctx, 9)

	rec, err := tr.Get(ctx, 9)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.IsOnline {
		t.Error("double SetOnline should leave user online")
	}
}

func TestTransitionsBroadcastOnPresenceTopic(t *testing.T) {
	b := broker.NewLocal()
	tr := NewMemoryTracker(b)
	ctx := context.Background()

	var events []protocol.PresenceMsg
	b.Subscribe(broker.PresenceTopic(4), "watcher", func(data []byte) {
		var e protocol.PresenceMsg
		if err := json.Unmarshal(data, &e); err != nil {
			t.Errorf("unmarshal: %v", err)
			return
		}
		events = append(events, e)
	})

	tr.SetOnline(ctx, 4)
	tr.SetOffline(ctx, 4)
	tr.SetOnline(ctx, 8) // different user, different topic

	if len(events) != 2 {
		t.Fatalf("expected 2 events for user 4, got %d", len(events))
	}
	for _, e := range events {
		if e.Type != protocol.TypePresence {
			t.Errorf("expected wire type %q, got %q", protocol.TypePresence, e.Type)
		}
		if e.LastSeen == 0 {
			t.Errorf("last_seen missing in event: %+v", e)
		}
	}
	if !events[0].Online || events[1].Online {
		t.Errorf("expected online then offline, got %+v", events)
	}
	if events[0].UserID != 4 || events[1].UserID != 4 {
		t.Errorf("wrong user in events: %+v", events)
	}
}
