package slack

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// ReactionEvent is a reaction added to a message in the alerts channel, as
// forwarded over NATS.
type ReactionEvent struct {
	Reaction  string `json:"reaction"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// AlertVerdict maps a Slack reaction on an alert to an admin action.
type AlertVerdict string

const (
	VerdictResolve AlertVerdict = "resolve"
	VerdictRead    AlertVerdict = "read"
	VerdictUnknown AlertVerdict = "unknown"
)

// ParseReaction converts a Slack reaction emoji name to an alert verdict.
// Skin-tone variants count as their base emoji.
func ParseReaction(reaction string) AlertVerdict {
	name := normalizeEmoji(reaction)
	switch name {
	case "white_check_mark", "heavy_check_mark", "+1", "thumbsup":
		return VerdictResolve
	case "eyes":
		return VerdictRead
	default:
		return VerdictUnknown
	}
}

// normalizeEmoji strips surrounding colons and any "::skin-tone-N" suffix.
func normalizeEmoji(s string) string {
	s = strings.Trim(strings.TrimSpace(s), ":")
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[:i]
	}
	return s
}

// ParseReactionEvent decodes a forwarded reaction. The forwarder wraps the
// fields in a metadata object; flat payloads are accepted too.
func ParseReactionEvent(data []byte, logger *slog.Logger) (*ReactionEvent, error) {
	var raw struct {
		Metadata map[string]string `json:"metadata"`
		ReactionEvent
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse reaction event: %w", err)
	}

	evt := raw.ReactionEvent
	if md := raw.Metadata; md != nil {
		evt = ReactionEvent{
			Reaction:  md["text"],
			UserID:    md["user_id"],
			Channel:   md["channel_id"],
			MessageTS: md["message_ts"],
		}
	} else {
		logger.Debug("reaction event without metadata wrapper")
	}

	evt.Reaction = normalizeEmoji(evt.Reaction)
	if evt.MessageTS == "" {
		return nil, fmt.Errorf("reaction event has no message_ts")
	}
	return &evt, nil
}
