package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when no session row has the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotClassified is returned by flag updates on a session the
	// classifier has not annotated yet.
	ErrNotClassified = errors.New("session not classified")
)

// SessionFilter narrows ListSessions. Results are always ordered by
// last_message_at descending.
type SessionFilter struct {
	Unclassified bool // classification IS NULL
	Limit        int  // 0 means no limit
}

// Gateway is everything the pipeline needs from persistence. No
// transactions are assumed; every method is an independent call.
type Gateway interface {
	// ListConversationsWithMessages returns every conversation, most recently
	// active first, each with its messages in any order.
	ListConversationsWithMessages(ctx context.Context) ([]Conversation, error)

	// GetSessionByConversationID returns nil, nil when no session exists.
	GetSessionByConversationID(ctx context.Context, conversationID uuid.UUID) (*Session, error)

	// GetSession returns ErrSessionNotFound when the id is unknown.
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)

	// UpsertSession inserts the row or updates the projection columns of the
	// row with the same conversation id. Classification columns are never
	// written by an upsert.
	UpsertSession(ctx context.Context, s *Session) error

	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)

	UpdateSessionClassification(ctx context.Context, id uuid.UUID, c Classification, classifiedAt time.Time, modelID string) error

	// UpdateSessionFlags merges flags into the stored classification's flags
	// object, keeping keys it does not know about.
	UpdateSessionFlags(ctx context.Context, id uuid.UUID, flags Flags) error

	// GetActiveAgentConfig returns nil, nil when no agent is active.
	GetActiveAgentConfig(ctx context.Context) (*AgentConfig, error)

	CountNewEnrollments(ctx context.Context) (int, error)
}
