package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// RecordPrefix is the Redis key prefix for live-session hashes.
	RecordPrefix = "chatsession:"

	// RecordTTL is the time-to-live for session records. A live session
	// refreshes it on activity; a crashed server's records age out.
	RecordTTL = 1 * time.Hour

	// Kind values for the session record.
	KindConversation = "conversation"
	KindInbox        = "inbox"
)

// Record is the live-session state kept in Redis so that operational
// tooling (and other server instances) can see who is connected where.
type Record struct {
	ID             string `redis:"id"`
	UserID         int64  `redis:"user_id"`
	Kind           string `redis:"kind"` // conversation | inbox
	ConversationID int64  `redis:"conversation_id"`
	Server         string `redis:"server"`      // which server instance
	CreatedAt      int64  `redis:"created_at"`  // unix timestamp
	LastActive     int64  `redis:"last_active"` // unix timestamp
}

// Store manages live-session records in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this server instance
}

// NewStore creates a registry using the provided Redis client.
func NewStore(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Register stores a new session record with a TTL.
func (s *Store) Register(ctx context.Context, id string, userID int64, kind string, conversationID int64) error {
	key := RecordPrefix + id
	now := time.Now().Unix()

	record := map[string]interface{}{
		"id":              id,
		"user_id":         userID,
		"kind":            kind,
		"conversation_id": conversationID,
		"server":          s.serverName,
		"created_at":      now,
		"last_active":     now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, record)
	pipe.Expire(ctx, key, RecordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: register %s: %w", id, err)
	}
	return nil
}

// Get retrieves a session record. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	key := RecordPrefix + id
	var record Record
	if err := s.client.HGetAll(ctx, key).Scan(&record); err != nil {
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	if record.ID == "" {
		return nil, nil // not found
	}
	return &record, nil
}

// Touch refreshes the record's last_active timestamp and TTL.
func (s *Store) Touch(ctx context.Context, id string) error {
	key := RecordPrefix + id
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, RecordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Deregister removes a session record.
func (s *Store) Deregister(ctx context.Context, id string) error {
	return s.client.Del(ctx, RecordPrefix+id).Err()
}
