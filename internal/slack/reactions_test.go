package slack

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseReaction(t *testing.T) {
	tests := map[string]AlertVerdict{
		"white_check_mark":    VerdictResolve,
		":heavy_check_mark:":  VerdictResolve,
		"+1":                  VerdictResolve,
		"+1::skin-tone-3":     VerdictResolve,
		"thumbsup":            VerdictResolve,
		"eyes":                VerdictRead,
		"-1":                  VerdictUnknown,
		"heart":               VerdictUnknown,
		"":                    VerdictUnknown,
		"white_check_mark_no": VerdictUnknown,
	}

	for reaction, want := range tests {
		if got := ParseReaction(reaction); got != want {
			t.Errorf("ParseReaction(%q) = %q, want %q", reaction, got, want)
		}
	}
}

func TestParseReactionEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *ReactionEvent
		wantErr bool
	}{
		{
			name:    "forwarder wrapper",
			payload: `{"metadata":{"text":":white_check_mark:","user_id":"U123","channel_id":"C456","message_ts":"1234567890.123456"}}`,
			want:    &ReactionEvent{Reaction: "white_check_mark", UserID: "U123", Channel: "C456", MessageTS: "1234567890.123456"},
		},
		{
			name:    "skin tone in wrapper",
			payload: `{"metadata":{"text":"+1::skin-tone-2","user_id":"U9","channel_id":"C1","message_ts":"1.2"}}`,
			want:    &ReactionEvent{Reaction: "+1", UserID: "U9", Channel: "C1", MessageTS: "1.2"},
		},
		{
			name:    "flat payload",
			payload: `{"reaction":"eyes","user_id":"U789","channel":"C012","message_ts":"9999999.000"}`,
			want:    &ReactionEvent{Reaction: "eyes", UserID: "U789", Channel: "C012", MessageTS: "9999999.000"},
		},
		{
			name:    "missing message ts",
			payload: `{"metadata":{"text":"eyes","user_id":"U1"}}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			payload: `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReactionEvent([]byte(tt.payload), discardLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseReactionEvent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
