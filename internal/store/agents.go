package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
)

// GetActiveAgentConfig returns the most recently updated active agent, or
// nil when none is active.
func (s *Store) GetActiveAgentConfig(ctx context.Context) (*conversation.AgentConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, system_prompt, model_id, temperature, max_tokens, allowed_topics
		FROM agents
		WHERE is_active
		ORDER BY updated_at DESC
		LIMIT 1`)

	var a conversation.AgentConfig
	err := row.Scan(&a.ID, &a.SystemPrompt, &a.ModelID, &a.Temperature, &a.MaxTokens, &a.AllowedTopics)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active agent: %w", err)
	}
	return &a, nil
}

// ActivateAgent upserts the agent and makes it the only active one.
func (s *Store) ActivateAgent(ctx context.Context, a *conversation.AgentConfig) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	topics := a.AllowedTopics
	if topics == nil {
		topics = []string{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE agents SET is_active = false, updated_at = now() WHERE is_active AND id <> $1`, a.ID); err != nil {
		return fmt.Errorf("deactivate agents: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO agents (id, system_prompt, model_id, temperature, max_tokens, allowed_topics, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, now())
		ON CONFLICT (id)
		DO UPDATE SET
			system_prompt = $2,
			model_id = $3,
			temperature = $4,
			max_tokens = $5,
			allowed_topics = $6,
			is_active = true,
			updated_at = now()`,
		a.ID, a.SystemPrompt, a.ModelID, a.Temperature, a.MaxTokens, topics,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountNewEnrollments counts enrollment requests nobody has handled yet.
func (s *Store) CountNewEnrollments(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM enrollments WHERE status = 'new'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return n, nil
}
