package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
)

// ErrInvalidClassification marks a model reply that is not a complete,
// well-formed classification.
var ErrInvalidClassification = errors.New("invalid classification")

// llmResponse mirrors the prompt schema with pointers so a missing key can be
// told apart from a zero value.
type llmResponse struct {
	Topics  *[]string `json:"topics"`
	Intent  *string   `json:"intent"`
	Quality *string   `json:"quality"`
	Summary *string   `json:"summary"`
	Flags   *llmFlags `json:"flags"`
}

type llmFlags struct {
	FrustrationDetected *bool `json:"frustration_detected"`
	EscalationNeeded    *bool `json:"escalation_needed"`
	BugReported         *bool `json:"bug_reported"`
	Resolved            *bool `json:"resolved"`
}

const fence = "```"

// StripFences removes one markdown code fence around a model reply: an
// opening line starting with ``` (any language tag) and a closing ```.
// Fences inside the payload are left alone.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, fence) {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimLeftFunc(s[len(fence):], unicode.IsLetter)
		}
		s = strings.TrimSpace(s)
	}
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

// ParseClassification decodes a raw model reply. Every schema key must be
// present and the enumerations must hold known values.
func ParseClassification(raw string) (conversation.Classification, error) {
	var resp llmResponse
	if err := json.Unmarshal([]byte(StripFences(raw)), &resp); err != nil {
		return conversation.Classification{}, fmt.Errorf("%w: %v", ErrInvalidClassification, err)
	}

	missing := missingFields(resp)
	if len(missing) > 0 {
		return conversation.Classification{}, fmt.Errorf("%w: missing %s", ErrInvalidClassification, strings.Join(missing, ", "))
	}
	if !conversation.ValidIntent(*resp.Intent) {
		return conversation.Classification{}, fmt.Errorf("%w: unknown intent %q", ErrInvalidClassification, *resp.Intent)
	}
	if !conversation.ValidQuality(*resp.Quality) {
		return conversation.Classification{}, fmt.Errorf("%w: unknown quality %q", ErrInvalidClassification, *resp.Quality)
	}

	return conversation.Classification{
		Topics:  dedupe(*resp.Topics),
		Intent:  *resp.Intent,
		Quality: *resp.Quality,
		Summary: strings.TrimSpace(*resp.Summary),
		Flags: conversation.Flags{
			FrustrationDetected: *resp.Flags.FrustrationDetected,
			EscalationNeeded:    *resp.Flags.EscalationNeeded,
			BugReported:         *resp.Flags.BugReported,
			Resolved:            *resp.Flags.Resolved,
		},
	}, nil
}

func missingFields(r llmResponse) []string {
	var missing []string
	if r.Topics == nil {
		missing = append(missing, "topics")
	}
	if r.Intent == nil {
		missing = append(missing, "intent")
	}
	if r.Quality == nil {
		missing = append(missing, "quality")
	}
	if r.Summary == nil {
		missing = append(missing, "summary")
	}
	if r.Flags == nil {
		return append(missing, "flags")
	}
	if r.Flags.FrustrationDetected == nil {
		missing = append(missing, "flags.frustration_detected")
	}
	if r.Flags.EscalationNeeded == nil {
		missing = append(missing, "flags.escalation_needed")
	}
	if r.Flags.BugReported == nil {
		missing = append(missing, "flags.bug_reported")
	}
	if r.Flags.Resolved == nil {
		missing = append(missing, "flags.resolved")
	}
	return missing
}

// dedupe keeps the first occurrence of each topic. Topics are a set.
func dedupe(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
