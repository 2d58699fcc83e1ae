package conversation

import "fmt"

// Pair is an unordered pair of participant ids normalized to a canonical
// order (Low < High). All directory lookups and topic keys are derived from
// the canonical form, so (A,B) and (B,A) always address the same
// conversation.
type Pair struct {
	Low  int64
	High int64
}

// NewPair canonicalizes two participant ids. Equal ids are rejected: a user
// cannot open a conversation with themselves.
func NewPair(a, b int64) (Pair, error) {
	if a <= 0 || b <= 0 {
		return Pair{}, fmt.Errorf("conversation: non-positive participant id: %w", ErrInvalidParticipants)
	}
	if a == b {
		return Pair{}, fmt.Errorf("conversation: self-pair %d: %w", a, ErrInvalidParticipants)
	}
	if a < b {
		return Pair{Low: a, High: b}, nil
	}
	return Pair{Low: b, High: a}, nil
}

// Contains reports whether id is one of the pair's participants.
func (p Pair) Contains(id int64) bool {
	return id == p.Low || id == p.High
}

// Other returns the participant that is not id, or 0 if id is not a member.
func (p Pair) Other(id int64) int64 {
	switch id {
	case p.Low:
		return p.High
	case p.High:
		return p.Low
	}
	return 0
}

// Key returns a stable string form of the canonical pair, used to stripe
// the creation lock.
func (p Pair) Key() string {
	return fmt.Sprintf("%d:%d", p.Low, p.High)
}
