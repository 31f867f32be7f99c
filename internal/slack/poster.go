package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// Alert is a classified session that needs a human from the gym.
type Alert struct {
	SessionID      uuid.UUID
	ConversationID uuid.UUID
	Severity       string
	Intent         string
	Quality        string
	Summary        string
	Topics         []string
	LastMessageAt  time.Time
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostAlert posts an intervention alert to the alerts channel.
// Returns the message timestamp (ts) which is used for tracking reactions.
func (p *Poster) PostAlert(ctx context.Context, a Alert) (string, error) {
	text := formatAlert(a)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "React: :white_check_mark: resolved | :eyes: on it",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted alert to slack", "ts", ts, "session_id", a.SessionID, "severity", a.Severity)
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

var severityEmoji = map[string]string{
	"critical": ":rotating_light:",
	"high":     ":warning:",
	"medium":   ":large_yellow_circle:",
}

func formatAlert(a Alert) string {
	var sb strings.Builder

	emoji, ok := severityEmoji[a.Severity]
	if !ok {
		emoji = ":grey_question:"
	}
	fmt.Fprintf(&sb, "%s *%s* | %s | quality: %s\n", emoji, strings.ToUpper(a.Severity), a.Intent, a.Quality)

	summary := a.Summary
	if summary == "" {
		summary = "_No summary._"
	}
	fmt.Fprintf(&sb, "%s\n", summary)

	if len(a.Topics) > 0 {
		fmt.Fprintf(&sb, "*Topics:* %s\n", strings.Join(a.Topics, ", "))
	}
	if !a.LastMessageAt.IsZero() {
		fmt.Fprintf(&sb, "*Last message:* %s\n", a.LastMessageAt.UTC().Format(time.RFC1123))
	}
	fmt.Fprintf(&sb, "*Session:* `%s`", a.SessionID)

	return sb.String()
}
