package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/swapnest/chat-engine/internal/codec"
)

// PGDirectory is the PostgreSQL-backed Directory. The conversations table
// stores the canonical pair as (user_low, user_high) with a unique index and
// a CHECK (user_low < user_high), so at-most-one-per-pair is enforced by the
// schema even across server instances.
type PGDirectory struct {
	db    *sql.DB
	codec codec.Codec
	locks *pairLocks
}

// NewPGDirectory creates a Directory backed by the given database handle.
// The codec decodes stored message content when building summary previews.
func NewPGDirectory(db *sql.DB, c codec.Codec) *PGDirectory {
	return &PGDirectory{
		db:    db,
		codec: c,
		locks: newPairLocks(64),
	}
}

// ResolveOrCreate implements Directory. The insert uses ON CONFLICT DO
// NOTHING followed by a re-read, so a lost race against another server
// instance still resolves to the single existing row.
func (d *PGDirectory) ResolveOrCreate(ctx context.Context, a, b int64) (*Conversation, error) {
	pair, err := NewPair(a, b)
	if err != nil {
		return nil, err
	}

	mu := d.locks.lock(pair)
	defer mu.Unlock()

	if conv, err := d.lookup(ctx, pair); err == nil {
		return conv, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	const insert = `
		INSERT INTO conversations (user_low, user_high)
		VALUES ($1, $2)
		ON CONFLICT (user_low, user_high) DO NOTHING
		RETURNING id, created_at`

	conv := &Conversation{Participants: pair}
	err = d.db.QueryRowContext(ctx, insert, pair.Low, pair.High).Scan(&conv.ID, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race to another instance; the row exists now.
		return d.lookup(ctx, pair)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: create %s: %w", pair.Key(), err)
	}
	return conv, nil
}

// lookup finds the conversation for a canonical pair. Both participants must
// match (AND semantics).
func (d *PGDirectory) lookup(ctx context.Context, pair Pair) (*Conversation, error) {
	const query = `
		SELECT id, created_at
		FROM conversations
		WHERE user_low = $1 AND user_high = $2`

	conv := &Conversation{Participants: pair}
	err := d.db.QueryRowContext(ctx, query, pair.Low, pair.High).Scan(&conv.ID, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: lookup %s: %w", pair.Key(), err)
	}
	return conv, nil
}

// Get implements Directory.
func (d *PGDirectory) Get(ctx context.Context, id int64) (*Conversation, error) {
	const query = `
		SELECT id, user_low, user_high, created_at
		FROM conversations
		WHERE id = $1`

	conv := &Conversation{}
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.Participants.Low, &conv.Participants.High, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get %d: %w", id, err)
	}
	return conv, nil
}

// ListForUser implements Directory. Each summary carries the latest message
// (decoded for the preview) and is ordered by most recent activity.
func (d *PGDirectory) ListForUser(ctx context.Context, userID int64) ([]Summary, error) {
	const query = `
		SELECT c.id, c.user_low, c.user_high,
		       COALESCE(m.content, ''), COALESCE(m.encrypted, FALSE),
		       COALESCE(m.sent_at, c.created_at)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT content, encrypted, sent_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY sent_at DESC, id DESC
			LIMIT 1
		) m ON TRUE
		WHERE c.user_low = $1 OR c.user_high = $1
		ORDER BY COALESCE(m.sent_at, c.created_at) DESC`

	rows, err := d.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list for user %d: %w", userID, err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			s         Summary
			low, high int64
			content   string
			encrypted bool
			at        time.Time
		)
		if err := rows.Scan(&s.ConversationID, &low, &high, &content, &encrypted, &at); err != nil {
			return nil, fmt.Errorf("conversation: scan summary: %w", err)
		}

		if encrypted && content != "" {
			decoded, err := d.codec.Decode(content)
			if err != nil {
				return nil, fmt.Errorf("conversation: decode preview for %d: %w", s.ConversationID, err)
			}
			content = decoded
		}

		s.Participants = []int64{low, high}
		s.LastPreview = TruncatePreview(content)
		s.LastTimestamp = at.Unix()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate summaries: %w", err)
	}
	return summaries, nil
}
