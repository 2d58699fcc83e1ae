package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestResolveOrCreateOrderIndependent(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	c1, err := d.ResolveOrCreate(ctx, 7, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := d.ResolveOrCreate(ctx, 3, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c3, err := d.ResolveOrCreate(ctx, 7, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c1.ID != c2.ID || c2.ID != c3.ID {
		t.Errorf("expected one conversation, got ids %d, %d, %d", c1.ID, c2.ID, c3.ID)
	}
}

func TestResolveOrCreateRejectsSelfPair(t *testing.T) {
	d := NewMemoryDirectory()
	_, err := d.ResolveOrCreate(context.Background(), 4, 4)
	if !errors.Is(err, ErrInvalidParticipants) {
		t.Errorf("expected ErrInvalidParticipants, got %v", err)
	}
}

func TestResolveOrCreateDistinctPairs(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	c1, _ := d.ResolveOrCreate(ctx, 1, 2)
	c2, _ := d.ResolveOrCreate(ctx, 1, 3)
	c3, _ := d.ResolveOrCreate(ctx, 2, 3)

	ids := map[int64]bool{c1.ID: true, c2.ID: true, c3.ID: true}
	if len(ids) != 3 {
		t.Errorf("expected 3 distinct conversations, got %d", len(ids))
	}
}

// A user in several conversations must never cause cross-matching: the
// lookup requires both participants, not either.
func TestResolveOrCreateRequiresBothParticipants(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	ab, _ := d.ResolveOrCreate(ctx, 1, 2)
	ac, _ := d.ResolveOrCreate(ctx, 1, 3)

	again, _ := d.ResolveOrCreate(ctx, 1, 3)
	if again.ID != ac.ID {
		t.Errorf("expected conversation %d for (1,3), got %d", ac.ID, again.ID)
	}
	if again.ID == ab.ID {
		t.Error("lookup for (1,3) matched the (1,2) conversation")
	}
}

func TestResolveOrCreateConcurrent(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	const workers = 32
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			a, b := int64(7), int64(3)
			if i%2 == 0 {
				a, b = b, a
			}
			conv, err := d.ResolveOrCreate(ctx, a, b)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got conversation %d, expected %d", i, ids[i], ids[0])
		}
	}
}

func TestGet(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	created, _ := d.ResolveOrCreate(ctx, 5, 9)
	got, err := d.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Participants != created.Participants {
		t.Errorf("participants mismatch: %+v vs %+v", got.Participants, created.Participants)
	}

	if _, err := d.Get(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListForUserOrdering(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	c1, _ := d.ResolveOrCreate(ctx, 1, 2)
	c2, _ := d.ResolveOrCreate(ctx, 1, 3)
	d.ResolveOrCreate(ctx, 2, 3) // user 1 not a member

	base := time.Now()
	d.LastMessage = func(convID int64) (string, time.Time, bool) {
		switch convID {
		case c1.ID:
			return "older message", base.Add(-time.Hour), true
		case c2.ID:
			return "newer message", base, true
		}
		return "", time.Time{}, false
	}

	summaries, err := d.ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ConversationID != c2.ID {
		t.Errorf("expected newest-activity conversation first, got %d", summaries[0].ConversationID)
	}
	if summaries[0].LastPreview != "newer message" {
		t.Errorf("unexpected preview: %q", summaries[0].LastPreview)
	}
}
