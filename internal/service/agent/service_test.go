package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestFilterToolsHonorsAllowList(t *testing.T) {
	fetch := &FetchTool{}

	filtered := filterTools([]Tool{fetch}, []string{"fetch"})
	if len(filtered) != 1 || filtered[0].Name() != "fetch" {
		t.Fatalf("expected the fetch tool, got %v", filtered)
	}

	if got := filterTools([]Tool{fetch}, []string{"bash"}); len(got) != 0 {
		t.Fatalf("disallowed tools must be filtered out, got %v", got)
	}
}

func TestBuildToolParams(t *testing.T) {
	params := buildToolParams([]Tool{&FetchTool{}})
	if len(params) != 1 {
		t.Fatalf("expected one tool param, got %d", len(params))
	}
	if params[0].OfTool == nil || params[0].OfTool.Name != "fetch" {
		t.Fatalf("unexpected tool param %+v", params[0])
	}
}

func TestBuildAssistantMessage(t *testing.T) {
	if _, ok := buildAssistantMessage("", nil); ok {
		t.Fatal("empty turns must not produce a history message")
	}

	msg, ok := buildAssistantMessage("checking the forecast", []toolCall{
		{id: "call-1", name: "fetch", input: json.RawMessage(`{"url":"https://example.com"}`)},
	})
	if !ok {
		t.Fatal("expected a history message")
	}
	if len(msg.Content) != 2 {
		t.Fatalf("expected a text block and a tool_use block, got %d blocks", len(msg.Content))
	}
}

func TestExecuteToolCallRejectsUnknownTool(t *testing.T) {
	svc := &Service{tools: filterTools([]Tool{&FetchTool{}}, allowedTools)}

	result := svc.executeToolCall(context.Background(), toolCall{
		id:    "call-1",
		name:  "bash",
		input: json.RawMessage(`{}`),
	})
	if !result.IsError {
		t.Fatal("calls to tools outside the allow-list must fail")
	}
	if !strings.Contains(result.Content, "bash") {
		t.Fatalf("error should name the rejected tool, got %q", result.Content)
	}
}
