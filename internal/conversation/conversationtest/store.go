// Package conversationtest provides an in-memory conversation.Gateway for
// tests.
package conversationtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
)

// Store is a goroutine-safe in-memory Gateway. Error fields let tests inject
// failures at each boundary.
type Store struct {
	mu            sync.Mutex
	conversations []conversation.Conversation
	sessions      []*conversation.Session
	agent         *conversation.AgentConfig
	newEnrollment int
	alerts        map[string]uuid.UUID

	ListConversationsErr error
	ListSessionsErr      error
	AgentErr             error
	PingErr              error
	// UpsertErr fails UpsertSession for the listed conversation ids.
	UpsertErr map[uuid.UUID]error
	// ClassifyErr fails UpdateSessionClassification for the listed session ids.
	ClassifyErr map[uuid.UUID]error

	Upserts         int
	Classifications int
}

var _ conversation.Gateway = (*Store)(nil)

func New() *Store {
	return &Store{
		UpsertErr:   make(map[uuid.UUID]error),
		ClassifyErr: make(map[uuid.UUID]error),
		alerts:      make(map[string]uuid.UUID),
	}
}

// AddConversation appends a conversation with the given messages. Later
// additions are treated as more recent.
func (s *Store) AddConversation(c conversation.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	for i := range c.Messages {
		c.Messages[i].ConversationID = c.ID
		if c.Messages[i].ID == uuid.Nil {
			c.Messages[i].ID = uuid.New()
		}
	}
	s.conversations = append([]conversation.Conversation{c}, s.conversations...)
}

// AppendMessage adds a message to an existing conversation.
func (s *Store) AppendMessage(conversationID uuid.UUID, m conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			m.ConversationID = conversationID
			if m.ID == uuid.Nil {
				m.ID = uuid.New()
			}
			s.conversations[i].Messages = append(s.conversations[i].Messages, m)
			return
		}
	}
}

// PutSession stores a session row verbatim, classification included.
func (s *Store) PutSession(sess conversation.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	cp := copySession(&sess)
	s.sessions = append(s.sessions, &cp)
}

func (s *Store) SetAgent(a *conversation.AgentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent = a
}

// ActivateAgent makes a the active agent.
func (s *Store) ActivateAgent(ctx context.Context, a *conversation.AgentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	s.agent = &cp
	return nil
}

func (s *Store) SetNewEnrollments(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newEnrollment = n
}

// Sessions returns copies of all stored sessions in insertion order.
func (s *Store) Sessions() []conversation.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, copySession(sess))
	}
	return out
}

func (s *Store) ListConversationsWithMessages(ctx context.Context) ([]conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListConversationsErr != nil {
		return nil, s.ListConversationsErr
	}
	out := make([]conversation.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		c.Messages = append([]conversation.Message(nil), c.Messages...)
		out[i] = c
	}
	return out, nil
}

// GetConversationWithMessages returns nil, nil for an unknown id.
func (s *Store) GetConversationWithMessages(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListConversationsErr != nil {
		return nil, s.ListConversationsErr
	}
	for _, c := range s.conversations {
		if c.ID == id {
			c.Messages = append([]conversation.Message(nil), c.Messages...)
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) GetSessionByConversationID(ctx context.Context, conversationID uuid.UUID) (*conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ConversationID == conversationID {
			cp := copySession(sess)
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.find(id); sess != nil {
		cp := copySession(sess)
		return &cp, nil
	}
	return nil, conversation.ErrSessionNotFound
}

func (s *Store) UpsertSession(ctx context.Context, in *conversation.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.UpsertErr[in.ConversationID]; err != nil {
		return err
	}
	s.Upserts++
	for _, sess := range s.sessions {
		if sess.ConversationID == in.ConversationID {
			sess.AgentID = in.AgentID
			sess.FirstMessageAt = in.FirstMessageAt
			sess.LastMessageAt = in.LastMessageAt
			sess.MessageCount = in.MessageCount
			sess.UserMessageCount = in.UserMessageCount
			sess.AssistantMessageCount = in.AssistantMessageCount
			sess.Transcript = in.Transcript
			return nil
		}
	}
	row := copySession(in)
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Classification = nil
	row.ClassifiedAt = nil
	row.ClassifiedByModel = nil
	s.sessions = append(s.sessions, &row)
	return nil
}

func (s *Store) ListSessions(ctx context.Context, filter conversation.SessionFilter) ([]conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListSessionsErr != nil {
		return nil, s.ListSessionsErr
	}
	var out []conversation.Session
	for _, sess := range s.sessions {
		if filter.Unclassified && sess.Classification != nil {
			continue
		}
		out = append(out, copySession(sess))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateSessionClassification(ctx context.Context, id uuid.UUID, c conversation.Classification, classifiedAt time.Time, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ClassifyErr[id]; err != nil {
		return err
	}
	sess := s.find(id)
	if sess == nil {
		return conversation.ErrSessionNotFound
	}
	c.Topics = append([]string(nil), c.Topics...)
	sess.Classification = &c
	at := classifiedAt
	sess.ClassifiedAt = &at
	model := modelID
	sess.ClassifiedByModel = &model
	s.Classifications++
	return nil
}

func (s *Store) UpdateSessionFlags(ctx context.Context, id uuid.UUID, flags conversation.Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.find(id)
	if sess == nil {
		return conversation.ErrSessionNotFound
	}
	if sess.Classification == nil {
		return conversation.ErrNotClassified
	}
	sess.Classification.Flags = flags
	return nil
}

func (s *Store) GetActiveAgentConfig(ctx context.Context) (*conversation.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AgentErr != nil {
		return nil, s.AgentErr
	}
	if s.agent == nil {
		return nil, nil
	}
	a := *s.agent
	return &a, nil
}

func (s *Store) CountNewEnrollments(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newEnrollment, nil
}

func (s *Store) find(id uuid.UUID) *conversation.Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func copySession(in *conversation.Session) conversation.Session {
	out := *in
	if in.Classification != nil {
		c := *in.Classification
		c.Topics = append([]string(nil), in.Classification.Topics...)
		out.Classification = &c
	}
	if in.ClassifiedAt != nil {
		at := *in.ClassifiedAt
		out.ClassifiedAt = &at
	}
	if in.ClassifiedByModel != nil {
		m := *in.ClassifiedByModel
		out.ClassifiedByModel = &m
	}
	if in.AgentID != nil {
		a := *in.AgentID
		out.AgentID = &a
	}
	return out
}

func (s *Store) TrackAlert(ctx context.Context, messageTS string, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[messageTS] = sessionID
	return nil
}

func (s *Store) AlertSession(ctx context.Context, messageTS string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts[messageTS], nil
}

func (s *Store) ForgetAlert(ctx context.Context, messageTS string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, messageTS)
	return nil
}

// TrackedAlerts returns how many alert messages are tracked.
func (s *Store) TrackedAlerts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}
