package message

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/swapnest/chat-engine/internal/codec"
	"github.com/swapnest/chat-engine/internal/conversation"
)

// PGStore is the PostgreSQL-backed message log.
type PGStore struct {
	db    *sql.DB
	codec codec.Codec
}

// NewPGStore creates a Store using the given database handle and content
// codec.
func NewPGStore(db *sql.DB, c codec.Codec) *PGStore {
	return &PGStore{db: db, codec: c}
}

// Append implements Store. The timestamp is assigned inside the insert as
// GREATEST(now(), max(sent_at) of the conversation), so it never moves
// backwards within a conversation even under clock adjustments; equal
// timestamps fall back to id order.
func (s *PGStore) Append(ctx context.Context, conv *conversation.Conversation, senderID, receiverID int64, content string) (*Message, error) {
	if err := checkAppend(conv, senderID, receiverID, content); err != nil {
		return nil, err
	}

	stored, err := s.codec.Encode(content)
	if err != nil {
		return nil, fmt.Errorf("message: encode content: %w", err)
	}
	encrypted := stored != content

	const insert = `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content, encrypted, sent_at)
		VALUES ($1, $2, $3, $4, $5, GREATEST(
			now(),
			COALESCE((SELECT max(sent_at) FROM messages WHERE conversation_id = $1), now())
		))
		RETURNING id, sent_at`

	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
	}
	err = s.db.QueryRowContext(ctx, insert, conv.ID, senderID, receiverID, stored, encrypted).
		Scan(&msg.ID, &msg.SentAt)
	if err != nil {
		return nil, fmt.Errorf("message: append to conversation %d: %w", conv.ID, err)
	}
	return msg, nil
}

// List implements Store.
func (s *PGStore) List(ctx context.Context, conversationID int64, before time.Time, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	const query = `
		SELECT id, conversation_id, sender_id, receiver_id, content, encrypted, sent_at
		FROM messages
		WHERE conversation_id = $1
		  AND ($2::timestamptz IS NULL OR sent_at <= $2)
		ORDER BY sent_at DESC, id DESC
		LIMIT $3`

	var cursor sql.NullTime
	if !before.IsZero() {
		cursor = sql.NullTime{Time: before, Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, query, conversationID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("message: list conversation %d: %w", conversationID, err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			m         Message
			encrypted bool
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID,
			&m.Content, &encrypted, &m.SentAt); err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		if encrypted {
			decoded, err := s.codec.Decode(m.Content)
			if err != nil {
				return nil, fmt.Errorf("message: decode %d: %w", m.ID, err)
			}
			m.Content = decoded
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: iterate: %w", err)
	}
	return msgs, nil
}
