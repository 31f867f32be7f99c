//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

func connect(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	client, err := NewClient(context.Background(), url, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestIntegration_SessionClassifiedRoundTrip(t *testing.T) {
	client := connect(t)
	if !client.Connected() {
		t.Fatal("expected an open connection")
	}

	received := make(chan SessionClassifiedEvent, 1)
	subject := "sensei.test.classified." + time.Now().Format("150405.000000")

	err := client.Subscribe(subject, func(_ string, data []byte) {
		var evt SessionClassifiedEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Errorf("bad payload: %v", err)
			return
		}
		received <- evt
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := client.conn.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	sent := SessionClassifiedEvent{
		SessionID:        "integration-session",
		Intent:           "pricing",
		Quality:          "low",
		Topics:           []string{"precios"},
		EscalationNeeded: true,
	}
	if err := client.Publish(subject, sent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case evt := <-received:
		if evt.SessionID != sent.SessionID || evt.Intent != sent.Intent || !evt.EscalationNeeded {
			t.Errorf("unexpected event %+v", evt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestIntegration_QueueGroupDeliversOnce(t *testing.T) {
	a := connect(t)
	b := connect(t)

	subject := "sensei.test.queue." + time.Now().Format("150405.000000")
	hits := make(chan string, 4)
	for name, c := range map[string]*Client{"a": a, "b": b} {
		name := name
		if err := c.Subscribe(subject, func(string, []byte) { hits <- name }); err != nil {
			t.Fatalf("subscribe %s: %v", name, err)
		}
		if err := c.conn.Flush(); err != nil {
			t.Fatalf("flush %s: %v", name, err)
		}
	}

	if err := a.Publish(subject, MessageStoredEvent{ConversationID: "c1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-hits:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	select {
	case extra := <-hits:
		t.Errorf("message delivered twice, second to %s", extra)
	case <-time.After(300 * time.Millisecond):
	}
}
