package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultResolver is recorded in resolved_by when the dashboard does not
// identify the admin.
const DefaultResolver = "Admin"

// MarkRead dismisses a session's alert: read, resolved and resolved_by are
// merged into the existing flags. The row is re-fetched first so flags set
// since the caller last looked are not lost.
func MarkRead(ctx context.Context, gw Gateway, sessionID uuid.UUID, resolvedBy string) (*Flags, error) {
	if resolvedBy == "" {
		resolvedBy = DefaultResolver
	}

	s, err := gw.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s.Classification == nil {
		return nil, ErrNotClassified
	}

	flags := s.Classification.Flags
	flags.Read = true
	flags.Resolved = true
	flags.ResolvedBy = resolvedBy

	if err := gw.UpdateSessionFlags(ctx, sessionID, flags); err != nil {
		return nil, fmt.Errorf("update flags: %w", err)
	}
	return &flags, nil
}
