package synchronizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
)

// Result summarises one synchronization run.
type Result struct {
	Synced  int `json:"syncedCount"`
	Skipped int `json:"skippedCount"` // conversations without messages
	Failed  int `json:"failedCount"`
}

// Synchronizer rebuilds session rows from raw messages.
type Synchronizer struct {
	gw     conversation.Gateway
	logger *slog.Logger
}

func New(gw conversation.Gateway, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{gw: gw, logger: logger}
}

// Synchronize upserts one session per conversation that has messages.
// A listing failure aborts the run; per-conversation failures are logged and
// leave that conversation out of Synced.
func (s *Synchronizer) Synchronize(ctx context.Context) (Result, error) {
	convs, err := s.gw.ListConversationsWithMessages(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list conversations: %w", err)
	}

	var res Result
	for _, c := range convs {
		if len(c.Messages) == 0 {
			res.Skipped++
			continue
		}
		if err := s.syncOne(ctx, c); err != nil {
			s.logger.Error("session sync failed",
				"conversation_id", c.ID,
				"error", err,
			)
			res.Failed++
			continue
		}
		res.Synced++
	}

	s.logger.Info("sessions synchronized",
		"conversations", len(convs),
		"synced", res.Synced,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}

// ConversationGetter is implemented by gateways that can load one
// conversation by id.
type ConversationGetter interface {
	// GetConversationWithMessages returns nil, nil when the id is unknown.
	GetConversationWithMessages(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
}

// SynchronizeConversation refreshes the session of a single conversation.
// Gateways without ConversationGetter get a full Synchronize instead.
func (s *Synchronizer) SynchronizeConversation(ctx context.Context, id uuid.UUID) (Result, error) {
	getter, ok := s.gw.(ConversationGetter)
	if !ok {
		return s.Synchronize(ctx)
	}

	c, err := getter.GetConversationWithMessages(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("get conversation %s: %w", id, err)
	}
	if c == nil || len(c.Messages) == 0 {
		return Result{Skipped: 1}, nil
	}
	if err := s.syncOne(ctx, *c); err != nil {
		return Result{Failed: 1}, err
	}
	return Result{Synced: 1}, nil
}

func (s *Synchronizer) syncOne(ctx context.Context, c conversation.Conversation) error {
	existing, err := s.gw.GetSessionByConversationID(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	row := BuildSession(c)
	if existing != nil {
		row.ID = existing.ID
		row.Classification = existing.Classification
		row.ClassifiedAt = existing.ClassifiedAt
		row.ClassifiedByModel = existing.ClassifiedByModel
	}

	if err := s.gw.UpsertSession(ctx, &row); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// BuildSession projects a conversation's messages into a session row with
// no id and no classification. c must have at least one message.
func BuildSession(c conversation.Conversation) conversation.Session {
	msgs := SortMessages(c.Messages)

	row := conversation.Session{
		ConversationID: c.ID,
		AgentID:        c.AgentID,
		FirstMessageAt: msgs[0].CreatedAt,
		LastMessageAt:  msgs[len(msgs)-1].CreatedAt,
		MessageCount:   len(msgs),
		Transcript:     FormatTranscript(msgs),
	}
	for _, m := range msgs {
		switch m.Role {
		case conversation.RoleUser:
			row.UserMessageCount++
		case conversation.RoleAssistant:
			row.AssistantMessageCount++
		}
	}
	return row
}

// SortMessages returns a copy of msgs ordered by creation time. Ties keep
// their fetch order.
func SortMessages(msgs []conversation.Message) []conversation.Message {
	out := make([]conversation.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FormatTranscript renders messages as "ROLE: content" blocks separated by a
// blank line. msgs must already be sorted.
func FormatTranscript(msgs []conversation.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = strings.ToUpper(m.Role) + ": " + m.Content
	}
	return strings.Join(parts, "\n\n")
}
