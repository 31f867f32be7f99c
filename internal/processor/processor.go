package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sensei/internal/analytics"
	"github.com/MikeSquared-Agency/sensei/internal/classifier"
	"github.com/MikeSquared-Agency/sensei/internal/conversation"
	"github.com/MikeSquared-Agency/sensei/internal/hermes"
	"github.com/MikeSquared-Agency/sensei/internal/slack"
	"github.com/MikeSquared-Agency/sensei/internal/synchronizer"
)

// Publisher is the subset of the hermes client the processor uses.
type Publisher interface {
	Publish(subject string, data any) error
}

// AlertPoster is the subset of the Slack poster the processor uses.
type AlertPoster interface {
	PostAlert(ctx context.Context, a slack.Alert) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// AgentActivator is implemented by gateways that can store agent configs.
type AgentActivator interface {
	ActivateAgent(ctx context.Context, a *conversation.AgentConfig) error
}

// Processor orchestrates classification batches and the events around them.
type Processor struct {
	gw         conversation.Gateway
	classifier *classifier.Classifier
	syncer     *synchronizer.Synchronizer
	hermes     Publisher
	slack      AlertPoster
	tracked    AlertTracker
	logger     *slog.Logger
}

// New wires a processor. pub and alerts may be nil when NATS or Slack is
// not configured. Alert messages are tracked in gw when it implements
// AlertTracker, otherwise in memory.
func New(gw conversation.Gateway, cls *classifier.Classifier, pub Publisher, alerts AlertPoster, logger *slog.Logger) *Processor {
	tracked, ok := gw.(AlertTracker)
	if !ok {
		tracked = newMemoryAlerts(maxTrackedAlerts)
	}
	return &Processor{
		gw:         gw,
		classifier: cls,
		syncer:     synchronizer.New(gw, logger),
		hermes:     pub,
		slack:      alerts,
		tracked:    tracked,
		logger:     logger,
	}
}

// RunBatch classifies one batch, then announces each classified session and
// raises a Slack alert for those needing intervention.
func (p *Processor) RunBatch(ctx context.Context) (classifier.Result, error) {
	res, err := p.classifier.ClassifyPending(ctx)
	if err != nil {
		return res, err
	}

	for _, s := range res.Classified {
		p.publishClassified(s)
		if analytics.NeedsIntervention(s.Classification) {
			p.raiseAlert(ctx, s)
		}
	}
	return res, nil
}

// Drain runs batches until one selects nothing or makes no progress,
// pausing between batches.
func (p *Processor) Drain(ctx context.Context, pause time.Duration) (classifier.Result, error) {
	var total classifier.Result
	for {
		res, err := p.RunBatch(ctx)
		if err != nil {
			return total, err
		}
		total.SessionsClassified += res.SessionsClassified
		total.TotalPending += res.TotalPending

		if res.TotalPending == 0 || res.SessionsClassified == 0 {
			return total, nil
		}

		p.logger.Info("batch complete, pausing",
			"classified", res.SessionsClassified,
			"total_classified", total.SessionsClassified,
		)
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(pause):
		}
	}
}

func (p *Processor) publishClassified(s conversation.Session) {
	if p.hermes == nil {
		return
	}
	c := s.Classification
	evt := hermes.SessionClassifiedEvent{
		SessionID:           s.ID.String(),
		ConversationID:      s.ConversationID.String(),
		Intent:              c.Intent,
		Quality:             c.Quality,
		Topics:              c.Topics,
		FrustrationDetected: c.Flags.FrustrationDetected,
		EscalationNeeded:    c.Flags.EscalationNeeded,
		BugReported:         c.Flags.BugReported,
		Resolved:            c.Flags.Resolved,
	}
	if s.ClassifiedByModel != nil {
		evt.ModelID = *s.ClassifiedByModel
	}
	if s.ClassifiedAt != nil {
		evt.ClassifiedAt = *s.ClassifiedAt
	}
	if err := p.hermes.Publish(hermes.SubjectSessionClassified, evt); err != nil {
		p.logger.Error("failed to publish session classified", "session_id", s.ID, "error", err)
	}
}

func (p *Processor) raiseAlert(ctx context.Context, s conversation.Session) {
	if p.slack == nil {
		return
	}
	c := s.Classification
	ts, err := p.slack.PostAlert(ctx, slack.Alert{
		SessionID:      s.ID,
		ConversationID: s.ConversationID,
		Severity:       analytics.Severity(c),
		Intent:         c.Intent,
		Quality:        c.Quality,
		Summary:        c.Summary,
		Topics:         c.Topics,
		LastMessageAt:  s.LastMessageAt,
	})
	if err != nil {
		p.logger.Error("slack alert failed", "session_id", s.ID, "error", err)
		return
	}

	if err := p.tracked.TrackAlert(ctx, ts, s.ID); err != nil {
		p.logger.Error("failed to track slack alert", "session_id", s.ID, "message_ts", ts, "error", err)
	}
}

// HandleReaction processes Slack reaction feedback from slack-forwarder via NATS.
// A resolve reaction on an alert marks its session as read.
func (p *Processor) HandleReaction(subject string, data []byte) {
	ctx := context.Background()

	evt, err := slack.ParseReactionEvent(data, p.logger)
	if err != nil {
		p.logger.Error("failed to parse reaction", "error", err)
		return
	}

	verdict := slack.ParseReaction(evt.Reaction)
	if verdict == slack.VerdictUnknown {
		return // not an alert reaction
	}

	sessionID, err := p.tracked.AlertSession(ctx, evt.MessageTS)
	if err != nil {
		p.logger.Error("failed to look up slack alert", "message_ts", evt.MessageTS, "error", err)
		return
	}
	if sessionID == uuid.Nil {
		return // not a message we're tracking
	}

	p.logger.Info("processing alert reaction",
		"reaction", evt.Reaction,
		"verdict", string(verdict),
		"session_id", sessionID,
		"user_id", evt.UserID,
	)

	switch verdict {
	case slack.VerdictResolve:
		if _, err := conversation.MarkRead(ctx, p.gw, sessionID, resolverName(evt.UserID)); err != nil {
			p.logger.Error("failed to mark session read", "session_id", sessionID, "error", err)
			return
		}
		if err := p.tracked.ForgetAlert(ctx, evt.MessageTS); err != nil {
			p.logger.Warn("failed to forget slack alert", "message_ts", evt.MessageTS, "error", err)
		}
		p.reply(ctx, evt.MessageTS, fmt.Sprintf("Marked as resolved by %s.", mention(evt.UserID)))
	case slack.VerdictRead:
		p.reply(ctx, evt.MessageTS, fmt.Sprintf("%s is looking into this conversation.", mention(evt.UserID)))
	}
}

// HandleMessageStored resynchronizes the session of the conversation that
// just received a message, so the dashboard sees it without waiting for the
// next read.
func (p *Processor) HandleMessageStored(subject string, data []byte) {
	var evt hermes.MessageStoredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse message stored event", "error", err)
		return
	}

	convID, err := uuid.Parse(evt.ConversationID)
	if err != nil {
		p.logger.Error("message stored event has invalid conversation id", "conversation_id", evt.ConversationID, "error", err)
		return
	}

	res, err := p.syncer.SynchronizeConversation(context.Background(), convID)
	if err != nil {
		p.logger.Error("resync after message failed", "conversation_id", evt.ConversationID, "error", err)
		return
	}
	p.logger.Debug("resynced after message", "conversation_id", evt.ConversationID, "synced", res.Synced)
}

// HandleAgentRegistered stores an agent config published by the admin UI and
// makes it the active one.
func (p *Processor) HandleAgentRegistered(subject string, data []byte) {
	activator, ok := p.gw.(AgentActivator)
	if !ok {
		p.logger.Warn("gateway cannot store agents, ignoring registration")
		return
	}

	var agent conversation.AgentConfig
	if err := json.Unmarshal(data, &agent); err != nil {
		p.logger.Error("failed to parse agent registration", "error", err)
		return
	}
	if err := activator.ActivateAgent(context.Background(), &agent); err != nil {
		p.logger.Error("failed to activate agent", "agent_id", agent.ID, "error", err)
		return
	}
	p.logger.Info("agent activated", "agent_id", agent.ID, "model", agent.ModelID, "topics", len(agent.AllowedTopics))
}

func (p *Processor) reply(ctx context.Context, ts, text string) {
	if p.slack == nil {
		return
	}
	if err := p.slack.PostThread(ctx, ts, text); err != nil {
		p.logger.Error("failed to post thread reply", "error", err)
	}
}

func resolverName(userID string) string {
	if userID == "" {
		return conversation.DefaultResolver
	}
	return "slack:" + userID
}

func mention(userID string) string {
	if userID == "" {
		return "Someone"
	}
	return "<@" + userID + ">"
}
