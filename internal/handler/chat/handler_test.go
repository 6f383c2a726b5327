package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/agentscaffold/backend/internal/model/chat"
	sessionService "github.com/agentscaffold/backend/internal/service/session"
)

// fakeStreamer replays a canned event sequence.
type fakeStreamer struct {
	events  []chat.StreamEvent
	prompts []string
}

func (f *fakeStreamer) Stream(ctx context.Context, prompt string) <-chan chat.StreamEvent {
	f.prompts = append(f.prompts, prompt)
	out := make(chan chat.StreamEvent, len(f.events))
	for _, ev := range f.events {
		out <- ev
	}
	close(out)
	return out
}

func setupRouter(relay Streamer) (*chi.Mux, *sessionService.Service) {
	sessions := sessionService.NewService()
	handler := New(sessions, relay)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, sessions
}

func postChat(t *testing.T, r http.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)
	return resp
}

func decodeLines(t *testing.T, body string) []map[string]any {
	t.Helper()

	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestCreateSession(t *testing.T) {
	r, sessions := setupRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/session", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["sessionId"] == "" {
		t.Fatal("expected a sessionId in the response")
	}

	session, err := sessions.Get(body["sessionId"])
	if err != nil {
		t.Fatalf("created session not in store: %v", err)
	}
	if session.MessageCount != 0 {
		t.Fatalf("explicitly created session must start at 0 messages, got %d", session.MessageCount)
	}
}

func TestGetSessionRoundTrip(t *testing.T) {
	r, sessions := setupRouter(nil)
	created := sessions.Create()

	req := httptest.NewRequest(http.MethodGet, "/session/"+created.ID, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var session chat.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if session.ID != created.ID || session.MessageCount != 0 {
		t.Fatalf("unexpected session record: %+v", session)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := setupRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/session/unknown-id", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if got := strings.TrimSpace(resp.Body.String()); got != `{"error":"Session not found"}` {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestDeleteSession(t *testing.T) {
	r, sessions := setupRouter(nil)
	created := sessions.Create()

	req := httptest.NewRequest(http.MethodDelete, "/session/"+created.ID, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	// Deleting again must keep yielding the same not-found shape.
	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodDelete, "/session/"+created.ID, nil)
		resp = httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.Code)
		}
		if got := strings.TrimSpace(resp.Body.String()); got != `{"error":"Session not found"}` {
			t.Fatalf("unexpected body %q", got)
		}
	}
}

func TestChatMissingMessage(t *testing.T) {
	relay := &fakeStreamer{}
	r, _ := setupRouter(relay)

	resp := postChat(t, r, map[string]any{})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if got := strings.TrimSpace(resp.Body.String()); got != `{"error":"Message is required"}` {
		t.Fatalf("unexpected body %q", got)
	}
	if len(relay.prompts) != 0 {
		t.Fatal("relay must not be invoked for invalid requests")
	}
}

func TestChatNonStringMessage(t *testing.T) {
	relay := &fakeStreamer{}
	r, sessions := setupRouter(relay)

	resp := postChat(t, r, map[string]any{"message": 123})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if got := strings.TrimSpace(resp.Body.String()); got != `{"error":"Message is required"}` {
		t.Fatalf("unexpected body %q", got)
	}
	if sessions.Len() != 0 {
		t.Fatal("no session should be created for invalid requests")
	}
}

func TestChatWithoutRelay(t *testing.T) {
	r, _ := setupRouter(nil)

	resp := postChat(t, r, map[string]any{"message": "hi"})

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestChatStreamsThroughDone(t *testing.T) {
	relay := &fakeStreamer{events: []chat.StreamEvent{
		chat.TextEvent("The weather "),
		chat.TextEvent("is sunny."),
		chat.ToolEvent("fetch"),
		chat.UsageEvent(10, 25),
		chat.ResultEvent("The weather is sunny."),
		chat.DoneEvent(),
	}}
	r, sessions := setupRouter(relay)

	resp := postChat(t, r, map[string]any{"message": "weather in Oslo?"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	sessionID := resp.Header().Get("X-Session-Id")
	if sessionID == "" {
		t.Fatal("expected X-Session-Id header")
	}

	session, err := sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("resolved session not in store: %v", err)
	}
	if session.MessageCount != 1 {
		t.Fatalf("implicitly created session must have 1 message, got %d", session.MessageCount)
	}

	events := decodeLines(t, resp.Body.String())
	if len(events) != len(relay.events) {
		t.Fatalf("expected %d lines, got %d", len(relay.events), len(events))
	}
	last := events[len(events)-1]
	if last["type"] != "done" {
		t.Fatalf("final line must be done, got %v", last)
	}

	usage := events[3]
	if usage["input"].(float64) != 10 || usage["output"].(float64) != 25 {
		t.Fatalf("unexpected usage event %v", usage)
	}

	if relay.prompts[0] != "weather in Oslo?" {
		t.Fatalf("relay received wrong prompt %q", relay.prompts[0])
	}
}

func TestChatTouchesExistingSession(t *testing.T) {
	relay := &fakeStreamer{events: []chat.StreamEvent{chat.DoneEvent()}}
	r, sessions := setupRouter(relay)

	created := sessions.Create()

	resp := postChat(t, r, map[string]any{"message": "hi", "sessionId": created.ID})

	if got := resp.Header().Get("X-Session-Id"); got != created.ID {
		t.Fatalf("expected resolved session %s, got %s", created.ID, got)
	}

	session, err := sessions.Get(created.ID)
	if err != nil {
		t.Fatalf("session vanished: %v", err)
	}
	if session.MessageCount != 1 {
		t.Fatalf("expected message count to rise to 1, got %d", session.MessageCount)
	}
	if session.LastActivity.Before(created.LastActivity) {
		t.Fatal("lastActivity must not move backwards")
	}
	if sessions.Len() != 1 {
		t.Fatalf("no extra session should be minted, store has %d", sessions.Len())
	}
}

func TestChatUnknownSessionIDMintsFresh(t *testing.T) {
	relay := &fakeStreamer{events: []chat.StreamEvent{chat.DoneEvent()}}
	r, sessions := setupRouter(relay)

	resp := postChat(t, r, map[string]any{"message": "hi", "sessionId": "stale-id"})

	resolved := resp.Header().Get("X-Session-Id")
	if resolved == "" || resolved == "stale-id" {
		t.Fatalf("expected a freshly minted session id, got %q", resolved)
	}

	if _, err := sessions.Get("stale-id"); err == nil {
		t.Fatal("stale id must not be resurrected")
	}

	session, err := sessions.Get(resolved)
	if err != nil {
		t.Fatalf("minted session not in store: %v", err)
	}
	if session.MessageCount != 1 {
		t.Fatalf("expected message count 1, got %d", session.MessageCount)
	}
}

func TestChatWritesRelayErrorIntoStream(t *testing.T) {
	relay := &fakeStreamer{events: []chat.StreamEvent{
		chat.ErrorEvent("upstream exploded"),
	}}
	r, _ := setupRouter(relay)

	resp := postChat(t, r, map[string]any{"message": "hi"})

	if resp.Code != http.StatusOK {
		t.Fatalf("stream errors must not change the status, got %d", resp.Code)
	}

	events := decodeLines(t, resp.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected a single error line, got %d", len(events))
	}
	if events[0]["type"] != "error" || events[0]["error"] != "upstream exploded" {
		t.Fatalf("unexpected error line %v", events[0])
	}
}
