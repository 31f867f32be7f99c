package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
	"github.com/MikeSquared-Agency/sensei/internal/llm"
	"github.com/MikeSquared-Agency/sensei/internal/synchronizer"
)

const (
	// BatchSize caps how many unclassified sessions one run picks up.
	BatchSize = 5

	DefaultModel       = "claude-3-5-haiku-latest"
	defaultConcurrency = 3
	maxOutputTokens    = 1024
)

// Result reports one batch. TotalPending is how many sessions were selected;
// zero means there was no work.
type Result struct {
	SessionsClassified int                    `json:"sessionsClassified"`
	TotalPending       int                    `json:"totalPending"`
	Classified         []conversation.Session `json:"-"`
}

type Options struct {
	// DefaultModel is used when no agent is active or it names no model.
	DefaultModel string
	// Concurrency bounds in-flight model calls within a batch.
	Concurrency int
}

// Classifier annotates unclassified sessions with a text-generation model.
type Classifier struct {
	gw       conversation.Gateway
	syncer   *synchronizer.Synchronizer
	gen      llm.Generator
	logger   *slog.Logger
	model    string
	parallel int
	now      func() time.Time

	// mu serializes batches in this process. Separate processes can still
	// select the same sessions.
	mu sync.Mutex
}

func New(gw conversation.Gateway, gen llm.Generator, logger *slog.Logger, opts Options) *Classifier {
	if opts.DefaultModel == "" {
		opts.DefaultModel = DefaultModel
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Classifier{
		gw:       gw,
		syncer:   synchronizer.New(gw, logger),
		gen:      gen,
		logger:   logger,
		model:    opts.DefaultModel,
		parallel: opts.Concurrency,
		now:      time.Now,
	}
}

// ClassifyPending synchronizes sessions, then classifies up to BatchSize of
// the most recently active unclassified ones. Failures on individual sessions
// are logged and leave the session eligible for the next run; only listing
// failures are returned.
func (c *Classifier) ClassifyPending(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.syncer.Synchronize(ctx); err != nil {
		return Result{}, fmt.Errorf("synchronize: %w", err)
	}

	model, topics := c.agentSettings(ctx)

	pending, err := c.gw.ListSessions(ctx, conversation.SessionFilter{Unclassified: true, Limit: BatchSize})
	if err != nil {
		return Result{}, fmt.Errorf("list unclassified sessions: %w", err)
	}

	res := Result{TotalPending: len(pending)}
	if len(pending) == 0 {
		return res, nil
	}

	outcomes := make([]*conversation.Session, len(pending))
	var g errgroup.Group
	g.SetLimit(c.parallel)
	for i := range pending {
		i := i
		s := pending[i]
		if strings.TrimSpace(s.Transcript) == "" {
			c.logger.Debug("skipping session without transcript", "session_id", s.ID)
			continue
		}
		g.Go(func() error {
			// Errors are recorded per session and never returned, so one
			// failure cannot cancel its siblings.
			done, err := c.classifyOne(ctx, s, model, topics)
			if err != nil {
				c.logger.Error("session classification failed",
					"session_id", s.ID,
					"conversation_id", s.ConversationID,
					"model", model,
					"error", err,
				)
				return nil
			}
			outcomes[i] = done
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range outcomes {
		if s != nil {
			res.SessionsClassified++
			res.Classified = append(res.Classified, *s)
		}
	}

	c.logger.Info("classification batch complete",
		"model", model,
		"pending", res.TotalPending,
		"classified", res.SessionsClassified,
	)
	return res, nil
}

func (c *Classifier) classifyOne(ctx context.Context, s conversation.Session, model string, topics []string) (*conversation.Session, error) {
	prompt, err := BuildPrompt(topics, s.Transcript)
	if err != nil {
		return nil, err
	}

	raw, err := c.gen.GenerateText(ctx, llm.Request{
		Model:     model,
		Prompt:    prompt,
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	cls, err := ParseClassification(raw)
	if err != nil {
		c.logger.Warn("unparseable classification", "session_id", s.ID, "raw", raw)
		return nil, err
	}

	at := c.now().UTC()
	if err := c.gw.UpdateSessionClassification(ctx, s.ID, cls, at, model); err != nil {
		return nil, fmt.Errorf("store classification: %w", err)
	}

	s.Classification = &cls
	s.ClassifiedAt = &at
	s.ClassifiedByModel = &model
	return &s, nil
}

// agentSettings reads the active agent. Missing or unreadable agents fall
// back to the defaults, as does a model the provider does not serve.
func (c *Classifier) agentSettings(ctx context.Context) (model string, topics []string) {
	model, topics = c.model, DefaultTopics

	agent, err := c.gw.GetActiveAgentConfig(ctx)
	if err != nil {
		c.logger.Warn("failed to load active agent, using defaults", "error", err)
		return model, topics
	}
	if agent == nil {
		return model, topics
	}
	if agent.ModelID != "" {
		if mc, ok := c.gen.(llm.ModelChecker); ok && !mc.SupportsModel(agent.ModelID) {
			c.logger.Warn("active agent model is not served by the configured provider, using default",
				"agent_id", agent.ID,
				"agent_model", agent.ModelID,
				"model", model,
			)
		} else {
			model = agent.ModelID
		}
	}
	if len(agent.AllowedTopics) > 0 {
		topics = agent.AllowedTopics
	}
	return model, topics
}

// BuildPrompt injects the allowed topics as a JSON array and appends the
// transcript.
func BuildPrompt(topics []string, transcript string) (string, error) {
	if topics == nil {
		topics = []string{}
	}
	list, err := json.Marshal(topics)
	if err != nil {
		return "", fmt.Errorf("marshal topics: %w", err)
	}
	return fmt.Sprintf(classificationPrompt, list, transcript), nil
}
