package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LastMessageFunc reports the latest message preview and timestamp for a
// conversation, used by MemoryDirectory to build summaries. ok is false when
// the conversation has no messages yet.
type LastMessageFunc func(convID int64) (preview string, at time.Time, ok bool)

// MemoryDirectory is an in-process Directory used for tests and single-node
// development. Semantics match PGDirectory: canonical-pair lookup, atomic
// creation, at most one conversation per pair.
type MemoryDirectory struct {
	mu     sync.Mutex
	nextID int64
	byPair map[Pair]*Conversation
	byID   map[int64]*Conversation

	// LastMessage, when set, supplies summary previews. Without it
	// summaries carry an empty preview and the creation time.
	LastMessage LastMessageFunc
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		nextID: 1,
		byPair: make(map[Pair]*Conversation),
		byID:   make(map[int64]*Conversation),
	}
}

// ResolveOrCreate implements Directory.
func (d *MemoryDirectory) ResolveOrCreate(_ context.Context, a, b int64) (*Conversation, error) {
	pair, err := NewPair(a, b)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if conv, ok := d.byPair[pair]; ok {
		return conv, nil
	}

	conv := &Conversation{
		ID:           d.nextID,
		Participants: pair,
		CreatedAt:    time.Now(),
	}
	d.nextID++
	d.byPair[pair] = conv
	d.byID[conv.ID] = conv
	return conv, nil
}

// Get implements Directory.
func (d *MemoryDirectory) Get(_ context.Context, id int64) (*Conversation, error) {
	d.mu.Lock()
	conv, ok := d.byID[id]
	d.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}

// ListForUser implements Directory.
func (d *MemoryDirectory) ListForUser(_ context.Context, userID int64) ([]Summary, error) {
	d.mu.Lock()
	var convs []*Conversation
	for _, c := range d.byID {
		if c.Participants.Contains(userID) {
			convs = append(convs, c)
		}
	}
	last := d.LastMessage
	d.mu.Unlock()

	summaries := make([]Summary, 0, len(convs))
	for _, c := range convs {
		s := Summary{
			ConversationID: c.ID,
			Participants:   []int64{c.Participants.Low, c.Participants.High},
			LastTimestamp:  c.CreatedAt.Unix(),
		}
		if last != nil {
			if preview, at, ok := last(c.ID); ok {
				s.LastPreview = TruncatePreview(preview)
				s.LastTimestamp = at.Unix()
			}
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastTimestamp != summaries[j].LastTimestamp {
			return summaries[i].LastTimestamp > summaries[j].LastTimestamp
		}
		return summaries[i].ConversationID > summaries[j].ConversationID
	})
	return summaries, nil
}
