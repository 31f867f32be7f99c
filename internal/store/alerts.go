package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// alertRetention bounds how long an unanswered Slack alert stays resolvable.
const alertRetention = "30 days"

// TrackAlert records the Slack message that announced a session and prunes
// alerts older than the retention window.
func (s *Store) TrackAlert(ctx context.Context, messageTS string, sessionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO slack_alerts (message_ts, session_id)
		VALUES ($1, $2)
		ON CONFLICT (message_ts) DO UPDATE SET session_id = EXCLUDED.session_id, created_at = now()`,
		messageTS, sessionID,
	)
	if err != nil {
		return fmt.Errorf("track alert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM slack_alerts WHERE created_at < now() - $1::interval`, alertRetention); err != nil {
		return fmt.Errorf("prune alerts: %w", err)
	}
	return nil
}

// AlertSession returns the session announced by messageTS, or uuid.Nil.
func (s *Store) AlertSession(ctx context.Context, messageTS string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT session_id FROM slack_alerts WHERE message_ts = $1`, messageTS).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get alert: %w", err)
	}
	return id, nil
}

func (s *Store) ForgetAlert(ctx context.Context, messageTS string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM slack_alerts WHERE message_ts = $1`, messageTS); err != nil {
		return fmt.Errorf("forget alert: %w", err)
	}
	return nil
}
