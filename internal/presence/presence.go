// Package presence tracks per-user online/offline state with a last-seen
// timestamp and broadcasts transitions on the user's presence topic, so the
// indicator is live rather than a write-only record.
package presence

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/swapnest/chat-engine/internal/broker"
	"github.com/swapnest/chat-engine/internal/metrics"
	"github.com/swapnest/chat-engine/internal/protocol"
)

// ErrNotTracked is returned by Get for a user that has never connected.
var ErrNotTracked = errors.New("presence: user not tracked")

// Record is the per-user presence state.
type Record struct {
	UserID   int64     `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// Tracker maintains presence records. Both operations refresh last_seen,
// which only ever moves forward; repeated calls are a no-op beyond the
// timestamp refresh.
type Tracker interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64) error
	Get(ctx context.Context, userID int64) (*Record, error)
}

// publish broadcasts a transition as a ready-to-relay wire frame, so
// sessions watching the topic can forward the bytes untouched. Broadcast
// failures are logged, not propagated: presence is best-effort and must
// never fail the connection lifecycle that triggered it.
func publish(b broker.Broker, userID int64, online bool, lastSeen time.Time) {
	if b == nil {
		return
	}
	data, err := protocol.NewServerMessage(protocol.TypePresence, protocol.PresenceMsg{
		UserID:   userID,
		Online:   online,
		LastSeen: lastSeen.Unix(),
	})
	if err != nil {
		log.Printf("presence: marshal event for user %d: %v", userID, err)
		return
	}
	if err := b.Publish(broker.PresenceTopic(userID), data); err != nil {
		log.Printf("presence: publish for user %d: %v", userID, err)
		return
	}
	metrics.PublishesTotal.WithLabelValues("presence").Inc()
}
