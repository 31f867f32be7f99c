package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
)

const sessionColumns = `
	id, conversation_id, agent_id, first_message_at, last_message_at,
	message_count, user_message_count, assistant_message_count, transcript,
	classification, classified_at, classified_by_model`

func (s *Store) GetSessionByConversationID(ctx context.Context, conversationID uuid.UUID) (*conversation.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+`
		FROM conversation_sessions WHERE conversation_id = $1`, conversationID)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by conversation: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*conversation.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+`
		FROM conversation_sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conversation.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// UpsertSession writes the projection columns keyed by conversation_id.
// Classification columns are left alone on conflict, so a resync never
// clears a classification.
func (s *Store) UpsertSession(ctx context.Context, sess *conversation.Session) error {
	id := sess.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversation_sessions (
			id, conversation_id, agent_id, first_message_at, last_message_at,
			message_count, user_message_count, assistant_message_count, transcript, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (conversation_id)
		DO UPDATE SET
			agent_id = $3,
			first_message_at = $4,
			last_message_at = $5,
			message_count = $6,
			user_message_count = $7,
			assistant_message_count = $8,
			transcript = $9,
			updated_at = now()
		RETURNING id`,
		id, sess.ConversationID, sess.AgentID, sess.FirstMessageAt, sess.LastMessageAt,
		sess.MessageCount, sess.UserMessageCount, sess.AssistantMessageCount, sess.Transcript,
	).Scan(&sess.ID)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, filter conversation.SessionFilter) ([]conversation.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM conversation_sessions`
	if filter.Unclassified {
		query += ` WHERE classification IS NULL`
	}
	query += ` ORDER BY last_message_at DESC, id`

	var args []any
	if filter.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []conversation.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateSessionClassification(ctx context.Context, id uuid.UUID, c conversation.Classification, classifiedAt time.Time, modelID string) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode classification: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversation_sessions
		SET classification = $2::jsonb, classified_at = $3, classified_by_model = $4, updated_at = now()
		WHERE id = $1`,
		id, string(raw), classifiedAt, modelID,
	)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrSessionNotFound
	}
	return nil
}

// UpdateSessionFlags merges flags into classification.flags with jsonb ||,
// so keys written by other tools survive.
func (s *Store) UpdateSessionFlags(ctx context.Context, id uuid.UUID, flags conversation.Flags) error {
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversation_sessions
		SET classification = jsonb_set(
				classification, '{flags}',
				COALESCE(classification->'flags', '{}'::jsonb) || $2::jsonb),
			updated_at = now()
		WHERE id = $1 AND classification IS NOT NULL`,
		id, string(raw),
	)
	if err != nil {
		return fmt.Errorf("update flags: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var classified bool
	err = s.pool.QueryRow(ctx, `SELECT classification IS NOT NULL FROM conversation_sessions WHERE id = $1`, id).Scan(&classified)
	if errors.Is(err, pgx.ErrNoRows) {
		return conversation.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return conversation.ErrNotClassified
}

func scanSession(row pgx.Row) (*conversation.Session, error) {
	var sess conversation.Session
	var classification []byte
	err := row.Scan(
		&sess.ID, &sess.ConversationID, &sess.AgentID, &sess.FirstMessageAt, &sess.LastMessageAt,
		&sess.MessageCount, &sess.UserMessageCount, &sess.AssistantMessageCount, &sess.Transcript,
		&classification, &sess.ClassifiedAt, &sess.ClassifiedByModel,
	)
	if err != nil {
		return nil, err
	}
	if classification != nil {
		var c conversation.Classification
		if err := json.Unmarshal(classification, &c); err != nil {
			return nil, fmt.Errorf("decode classification for %s: %w", sess.ID, err)
		}
		sess.Classification = &c
	}
	return &sess, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
