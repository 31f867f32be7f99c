package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Message roles as stored by the chat endpoint.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation is one chat thread started by a website visitor.
type Conversation struct {
	ID        uuid.UUID      `json:"id"`
	AgentID   *uuid.UUID     `json:"agent_id,omitempty"`
	VisitorID string         `json:"visitor_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Messages  []Message      `json:"messages,omitempty"`
}

// Message is a single turn. Immutable once written.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"` // user | assistant | system
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is the denormalized analytics row for one conversation.
// The projection fields are owned by the synchronizer; the classification
// fields are owned by the classifier and admin actions.
type Session struct {
	ID                    uuid.UUID  `json:"id"`
	ConversationID        uuid.UUID  `json:"conversation_id"`
	AgentID               *uuid.UUID `json:"agent_id,omitempty"`
	FirstMessageAt        time.Time  `json:"first_message_at"`
	LastMessageAt         time.Time  `json:"last_message_at"`
	MessageCount          int        `json:"message_count"`
	UserMessageCount      int        `json:"user_message_count"`
	AssistantMessageCount int        `json:"assistant_message_count"`
	Transcript            string     `json:"transcript"`

	Classification    *Classification `json:"classification"`
	ClassifiedAt      *time.Time      `json:"classified_at"`
	ClassifiedByModel *string         `json:"classified_by_model"`
}

// IsRead reports whether an admin has dismissed the session's alert.
func (s *Session) IsRead() bool {
	return s.Classification != nil && s.Classification.Flags.Read
}

// Intent values accepted from the classifier.
const (
	IntentInfo     = "info"
	IntentPricing  = "pricing"
	IntentSchedule = "schedule"
	IntentBooking  = "booking"
	IntentOther    = "other"
)

// Quality values accepted from the classifier.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
	QualitySpam   = "spam"
)

// Classification is the model-generated annotation attached to a session.
type Classification struct {
	Topics  []string `json:"topics"`
	Intent  string   `json:"intent"`  // info | pricing | schedule | booking | other
	Quality string   `json:"quality"` // high | medium | low | spam
	Summary string   `json:"summary"`
	Flags   Flags    `json:"flags"`
}

// HasTopic reports whether topic is among the classification's topics.
func (c *Classification) HasTopic(topic string) bool {
	for _, t := range c.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Flags holds the classifier's booleans plus the admin-only read/resolved_by
// markers, which the classifier never sets.
type Flags struct {
	FrustrationDetected bool `json:"frustration_detected"`
	EscalationNeeded    bool `json:"escalation_needed"`
	BugReported         bool `json:"bug_reported"`
	Resolved            bool `json:"resolved"`

	Read       bool   `json:"read,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// AgentConfig is the active chat agent's configuration.
type AgentConfig struct {
	ID            uuid.UUID `json:"id"`
	SystemPrompt  string    `json:"system_prompt"`
	ModelID       string    `json:"model_id"`
	Temperature   float64   `json:"temperature"`
	MaxTokens     int       `json:"max_tokens"`
	AllowedTopics []string  `json:"allowed_topics"`
}

// ValidIntent reports whether v is one of the fixed intents.
func ValidIntent(v string) bool {
	switch v {
	case IntentInfo, IntentPricing, IntentSchedule, IntentBooking, IntentOther:
		return true
	}
	return false
}

// ValidQuality reports whether v is one of the fixed quality levels.
func ValidQuality(v string) bool {
	switch v {
	case QualityHigh, QualityMedium, QualityLow, QualitySpam:
		return true
	}
	return false
}
