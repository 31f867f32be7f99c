package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
)

// ListConversationsWithMessages loads every conversation, most recently
// updated first, then their messages in a single query.
func (s *Store) ListConversationsWithMessages(ctx context.Context) ([]conversation.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, visitor_id, metadata, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []conversation.Conversation
	index := make(map[uuid.UUID]int)
	var ids []uuid.UUID
	for rows.Next() {
		var c conversation.Conversation
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.AgentID, &c.VisitorID, &metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", c.ID, err)
			}
		}
		index[c.ID] = len(convs)
		ids = append(ids, c.ID)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	if len(convs) == 0 {
		return convs, nil
	}

	msgRows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ANY($1)
		ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var m conversation.Message
		if err := msgRows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		i, ok := index[m.ConversationID]
		if !ok {
			continue
		}
		convs[i].Messages = append(convs[i].Messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return convs, nil
}

// GetConversationWithMessages loads one conversation and its messages. It
// returns nil, nil for an unknown id.
func (s *Store) GetConversationWithMessages(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	var c conversation.Conversation
	var metadata []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, visitor_id, metadata, created_at, updated_at
		FROM conversations
		WHERE id = $1`, id,
	).Scan(&c.ID, &c.AgentID, &c.VisitorID, &metadata, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", c.ID, err)
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return &c, nil
}

// InsertConversation creates a conversation row. Used by seeding and tests;
// the chat endpoint owns conversation writes in production.
func (s *Store) InsertConversation(ctx context.Context, c *conversation.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, agent_id, visitor_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now(), now())`,
		c.ID, c.AgentID, c.VisitorID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// InsertMessage appends a message and touches the conversation's updated_at.
func (s *Store) InsertMessage(ctx context.Context, m *conversation.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, now()))
		RETURNING created_at`,
		m.ID, m.ConversationID, m.Role, m.Content, nullTime(m.CreatedAt),
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, m.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
