package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swapnest/chat-engine/internal/broker"
)

const (
	// KeyPrefix is the Redis key prefix for presence hashes.
	KeyPrefix = "presence:"

	// RecordTTL bounds how long an offline record lingers in Redis.
	RecordTTL = 30 * 24 * time.Hour
)

// RedisTracker stores presence records as Redis hashes:
//
//	Key:    presence:<user_id>
//	Fields: is_online, last_seen (unix seconds)
type RedisTracker struct {
	client *redis.Client
	broker broker.Broker

	// setLastSeen keeps last_seen monotonic: it only writes the new value
	// when it is ahead of the stored one.
	setLastSeen *redis.Script
}

// setLastSeenLua updates the presence hash, advancing last_seen only
// forward. Returns the stored last_seen.
const setLastSeenLua = `
local key = KEYS[1]
local online = ARGV[1]
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local last = tonumber(redis.call('HGET', key, 'last_seen'))
if last == nil or now > last then
    last = now
end

redis.call('HSET', key, 'is_online', online, 'last_seen', last)
redis.call('EXPIRE', key, ttl)
return last
`

// NewRedisTracker creates a Tracker backed by the given Redis client.
// Transitions are broadcast on the user's presence topic via b; pass nil to
// disable broadcasting.
func NewRedisTracker(client *redis.Client, b broker.Broker) *RedisTracker {
	return &RedisTracker{
		client:      client,
		broker:      b,
		setLastSeen: redis.NewScript(setLastSeenLua),
	}
}

// SetOnline implements Tracker.
func (t *RedisTracker) SetOnline(ctx context.Context, userID int64) error {
	return t.set(ctx, userID, true)
}

// SetOffline implements Tracker.
func (t *RedisTracker) SetOffline(ctx context.Context, userID int64) error {
	return t.set(ctx, userID, false)
}

func (t *RedisTracker) set(ctx context.Context, userID int64, online bool) error {
	key := fmt.Sprintf("%s%d", KeyPrefix, userID)
	flag := "false"
	if online {
		flag = "true"
	}
	now := time.Now()

	stored, err := t.setLastSeen.Run(ctx, t.client, []string{key},
		flag, now.Unix(), int(RecordTTL.Seconds())).Int64()
	if err != nil {
		return fmt.Errorf("presence: set user %d: %w", userID, err)
	}

	publish(t.broker, userID, online, time.Unix(stored, 0))
	return nil
}

// Get implements Tracker.
func (t *RedisTracker) Get(ctx context.Context, userID int64) (*Record, error) {
	key := fmt.Sprintf("%s%d", KeyPrefix, userID)
	fields, err := t.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: get user %d: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotTracked
	}

	var lastSeen int64
	fmt.Sscanf(fields["last_seen"], "%d", &lastSeen)
	return &Record{
		UserID:   userID,
		IsOnline: fields["is_online"] == "true",
		LastSeen: time.Unix(lastSeen, 0),
	}, nil
}
