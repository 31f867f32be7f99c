package conversation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
	"github.com/MikeSquared-Agency/sensei/internal/conversation/conversationtest"
)

func TestMarkRead_MergesIntoExistingFlags(t *testing.T) {
	gw := conversationtest.New()
	id := uuid.New()
	gw.PutSession(conversation.Session{
		ID:             id,
		ConversationID: uuid.New(),
		Classification: &conversation.Classification{
			Topics:  []string{"precios"},
			Intent:  conversation.IntentPricing,
			Quality: conversation.QualityHigh,
			Flags:   conversation.Flags{FrustrationDetected: true},
		},
	})

	flags, err := conversation.MarkRead(context.Background(), gw, id, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := conversation.Flags{
		FrustrationDetected: true,
		Read:                true,
		Resolved:            true,
		ResolvedBy:          "Admin",
	}
	if *flags != want {
		t.Errorf("returned flags = %+v, want %+v", *flags, want)
	}

	stored, err := gw.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.Classification.Flags != want {
		t.Errorf("stored flags = %+v, want %+v", stored.Classification.Flags, want)
	}
	if stored.Classification.Summary != "" || stored.Classification.Intent != conversation.IntentPricing {
		t.Errorf("classification body changed: %+v", stored.Classification)
	}
}

func TestMarkRead_CustomResolver(t *testing.T) {
	gw := conversationtest.New()
	id := uuid.New()
	gw.PutSession(conversation.Session{
		ID:             id,
		ConversationID: uuid.New(),
		Classification: &conversation.Classification{Flags: conversation.Flags{EscalationNeeded: true}},
	})

	flags, err := conversation.MarkRead(context.Background(), gw, id, "sensei-maria")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flags.ResolvedBy != "sensei-maria" {
		t.Errorf("expected resolved_by sensei-maria, got %q", flags.ResolvedBy)
	}
	if !flags.EscalationNeeded {
		t.Error("escalation_needed was dropped by the merge")
	}
}

func TestMarkRead_Unclassified(t *testing.T) {
	gw := conversationtest.New()
	id := uuid.New()
	gw.PutSession(conversation.Session{ID: id, ConversationID: uuid.New()})

	_, err := conversation.MarkRead(context.Background(), gw, id, "")
	if !errors.Is(err, conversation.ErrNotClassified) {
		t.Fatalf("expected ErrNotClassified, got %v", err)
	}
}

func TestMarkRead_UnknownSession(t *testing.T) {
	gw := conversationtest.New()

	_, err := conversation.MarkRead(context.Background(), gw, uuid.New(), "")
	if !errors.Is(err, conversation.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestValidEnums(t *testing.T) {
	for _, v := range []string{"info", "pricing", "schedule", "booking", "other"} {
		if !conversation.ValidIntent(v) {
			t.Errorf("intent %q should be valid", v)
		}
	}
	if conversation.ValidIntent("complaint") {
		t.Error("intent complaint should be invalid")
	}
	for _, v := range []string{"high", "medium", "low", "spam"} {
		if !conversation.ValidQuality(v) {
			t.Errorf("quality %q should be valid", v)
		}
	}
	if conversation.ValidQuality("") {
		t.Error("empty quality should be invalid")
	}
}
