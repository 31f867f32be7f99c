package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects sensei publishes and consumes.
const (
	SubjectSessionClassified = "sensei.session.classified"
	SubjectMessageStored     = "sensei.chat.message.stored"
	SubjectAgentRegistered   = "sensei.agent.registered"
	SubjectSlackReaction     = "swarm.slack.reaction"
)

// SessionClassifiedEvent is published once per session the classifier
// annotates.
type SessionClassifiedEvent struct {
	SessionID           string    `json:"session_id"`
	ConversationID      string    `json:"conversation_id"`
	Intent              string    `json:"intent"`
	Quality             string    `json:"quality"`
	Topics              []string  `json:"topics"`
	FrustrationDetected bool      `json:"frustration_detected"`
	EscalationNeeded    bool      `json:"escalation_needed"`
	BugReported         bool      `json:"bug_reported"`
	Resolved            bool      `json:"resolved"`
	ModelID             string    `json:"model_id"`
	ClassifiedAt        time.Time `json:"classified_at"`
}

// MessageStoredEvent is emitted by the chat endpoint after it writes a
// message.
type MessageStoredEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Role           string `json:"role"`
}

// QueueGroup load-balances subscriptions across sensei replicas so each
// event is handled once.
const QueueGroup = "sensei"

// Client publishes JSON events and dispatches subscribed subjects.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient connects to NATS, retrying in the background when the server is
// not reachable yet. token may be empty.
func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("sensei"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if err := ctx.Err(); err != nil {
		nc.Close()
		return nil, err
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish marshals data as JSON and publishes it on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers handler on subject within QueueGroup.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	_, err := c.conn.QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.logger.Info("subscribed", "subject", subject, "queue", QueueGroup)
	return nil
}

// Connected reports whether the connection is currently up.
func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

// Close drains subscriptions so in-flight handlers finish, then closes the
// connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
}
