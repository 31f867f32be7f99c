package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sensei/internal/classifier"
	"github.com/MikeSquared-Agency/sensei/internal/conversation"
	"github.com/MikeSquared-Agency/sensei/internal/conversation/conversationtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBatches struct {
	res   classifier.Result
	err   error
	calls int
}

func (f *fakeBatches) RunBatch(ctx context.Context) (classifier.Result, error) {
	f.calls++
	return f.res, f.err
}

var now = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestServer(gw *conversationtest.Store, batches BatchRunner, token string) *Server {
	if batches == nil {
		batches = &fakeBatches{}
	}
	srv := NewServer(8760, token, nil, gw, batches, discardLogger())
	srv.now = func() time.Time { return now }
	return srv
}

func do(srv *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(conversationtest.New(), nil, "")

	w := do(srv, "GET", "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestHealthEndpoint_DatabaseDown(t *testing.T) {
	gw := conversationtest.New()
	gw.PingErr = errors.New("connection refused")
	srv := newTestServer(gw, nil, "")

	w := do(srv, "GET", "/health", "", nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "unavailable" || body["database"] != "connection refused" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(conversationtest.New(), nil, "")

	w := do(srv, "GET", "/api/v1/sensei/status", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["agent"] != "sensei" {
		t.Errorf("expected agent sensei, got %q", body["agent"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(conversationtest.New(), nil, "")

	w := do(srv, "GET", "/nonexistent", "", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestSyncEndpoint(t *testing.T) {
	gw := conversationtest.New()
	gw.AddConversation(conversation.Conversation{Messages: []conversation.Message{
		{Role: conversation.RoleUser, Content: "Hola", CreatedAt: now},
	}})
	gw.AddConversation(conversation.Conversation{})
	srv := newTestServer(gw, nil, "")

	w := do(srv, "POST", "/api/v1/sessions/sync", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]int
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["syncedCount"] != 1 {
		t.Errorf("expected syncedCount 1, got %v", body)
	}
}

func TestSyncEndpoint_FetchFailure(t *testing.T) {
	gw := conversationtest.New()
	gw.ListConversationsErr = errors.New("connection refused")
	srv := newTestServer(gw, nil, "")

	w := do(srv, "POST", "/api/v1/sessions/sync", "", nil)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("expected error message, got %s", w.Body.String())
	}
}

func TestClassifyEndpoint(t *testing.T) {
	batches := &fakeBatches{res: classifier.Result{SessionsClassified: 0, TotalPending: 3}}
	srv := newTestServer(conversationtest.New(), batches, "")

	w := do(srv, "POST", "/api/v1/sessions/classify", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("all-failed batches still return 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["sessionsClassified"] != float64(0) || body["totalPending"] != float64(3) {
		t.Errorf("unexpected body %v", body)
	}
	if _, ok := body["Classified"]; ok {
		t.Error("classified rows must not be serialized")
	}
}

func TestClassifyEndpoint_Failure(t *testing.T) {
	batches := &fakeBatches{err: errors.New("list unclassified sessions: timeout")}
	srv := newTestServer(conversationtest.New(), batches, "")

	w := do(srv, "POST", "/api/v1/sessions/classify", "", nil)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestOverviewEndpoint(t *testing.T) {
	gw := conversationtest.New()
	gw.SetNewEnrollments(2)
	gw.PutSession(conversation.Session{
		ConversationID: uuid.New(),
		MessageCount:   3,
		LastMessageAt:  now.Add(-2 * time.Hour),
		Classification: &conversation.Classification{
			Topics:  []string{"precios"},
			Intent:  "pricing",
			Quality: "low",
			Flags:   conversation.Flags{EscalationNeeded: true},
		},
	})
	srv := newTestServer(gw, nil, "")

	w := do(srv, "GET", "/api/v1/analytics/overview", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Overview struct {
			TotalSessions      int `json:"totalSessions"`
			PendingEnrollments int `json:"pendingEnrollments"`
		} `json:"overview"`
		TopTopics         []map[string]any `json:"topTopics"`
		InterventionQueue []map[string]any `json:"interventionQueue"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Overview.TotalSessions != 1 || body.Overview.PendingEnrollments != 2 {
		t.Errorf("unexpected overview %+v", body.Overview)
	}
	if len(body.TopTopics) != 1 || body.TopTopics[0]["percentage"] != float64(100) {
		t.Errorf("unexpected topTopics %v", body.TopTopics)
	}
	if len(body.InterventionQueue) != 1 || body.InterventionQueue[0]["severity"] != "critical" || body.InterventionQueue[0]["hoursAgo"] != float64(2) {
		t.Errorf("unexpected interventionQueue %v", body.InterventionQueue)
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	gw := conversationtest.New()
	id := uuid.New()
	gw.PutSession(conversation.Session{
		ID:             id,
		ConversationID: uuid.New(),
		Classification: &conversation.Classification{Flags: conversation.Flags{FrustrationDetected: true}},
	})
	unclassified := uuid.New()
	gw.PutSession(conversation.Session{ID: unclassified, ConversationID: uuid.New()})
	srv := newTestServer(gw, nil, "")

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"invalid id", "/api/v1/sessions/not-a-uuid/read", "", http.StatusBadRequest},
		{"unknown session", "/api/v1/sessions/" + uuid.New().String() + "/read", "", http.StatusNotFound},
		{"unclassified", "/api/v1/sessions/" + unclassified.String() + "/read", "", http.StatusConflict},
		{"bad body", "/api/v1/sessions/" + id.String() + "/read", "{", http.StatusBadRequest},
		{"ok", "/api/v1/sessions/" + id.String() + "/read", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(srv, "POST", tt.path, tt.body, nil)
			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}

	var flags conversation.Flags
	for _, s := range gw.Sessions() {
		if s.ID == id {
			flags = s.Classification.Flags
		}
	}
	want := conversation.Flags{FrustrationDetected: true, Read: true, Resolved: true, ResolvedBy: "Admin"}
	if flags != want {
		t.Errorf("flags = %+v, want %+v", flags, want)
	}
}

func TestMarkReadEndpoint_ResolvedBy(t *testing.T) {
	gw := conversationtest.New()
	id := uuid.New()
	gw.PutSession(conversation.Session{
		ID:             id,
		ConversationID: uuid.New(),
		Classification: &conversation.Classification{},
	})
	srv := newTestServer(gw, nil, "")

	w := do(srv, "POST", "/api/v1/sessions/"+id.String()+"/read", `{"resolvedBy":"Lucia"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Flags conversation.Flags `json:"flags"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Flags.ResolvedBy != "Lucia" || !body.Flags.Read {
		t.Errorf("unexpected flags %+v", body.Flags)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(conversationtest.New(), nil, "s3cret")

	tests := []struct {
		name     string
		path     string
		header   map[string]string
		wantCode int
	}{
		{"health is public", "/health", nil, http.StatusOK},
		{"missing token", "/api/v1/analytics/overview", nil, http.StatusUnauthorized},
		{"wrong scheme", "/api/v1/analytics/overview", map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
		{"wrong token", "/api/v1/analytics/overview", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"valid token", "/api/v1/analytics/overview", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(srv, "GET", tt.path, "", tt.header)
			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	srv := NewServer(8760, "", []string{"https://gym.example"}, conversationtest.New(), &fakeBatches{}, discardLogger())

	req := httptest.NewRequest("OPTIONS", "/api/v1/analytics/overview", nil)
	req.Header.Set("Origin", "https://gym.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://gym.example" {
		t.Errorf("expected allowed origin header, got %q", got)
	}
}
