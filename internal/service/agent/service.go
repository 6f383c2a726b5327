package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentscaffold/backend/internal/config"
	"github.com/agentscaffold/backend/internal/model/chat"
)

// systemPrompt fixes the agent's persona and task for every request.
const systemPrompt = `You are a weather lookup assistant. You help users get current weather conditions and forecasts for any location worldwide. When a user asks about weather, fetch the relevant data and present it in a clear, friendly format. Include temperature, conditions, humidity, wind speed, and any other relevant details. If the user doesn't specify a location, ask them where they want weather information for.`

// allowedTools restricts the agent to exactly one external capability.
var allowedTools = []string{"fetch"}

// Service relays prompts to the upstream agent backend and re-emits its
// output as a flattened, order-preserving sequence of StreamEvents.
type Service struct {
	client anthropic.Client
	cfg    config.AgentConfig
	tools  []Tool
}

// NewService builds the relay from configuration. Each Stream call opens a
// fresh upstream conversation; the relay keeps no memory across calls.
func NewService(cfg config.AgentConfig) *Service {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Service{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		tools:  filterTools([]Tool{&FetchTool{}}, allowedTools),
	}
}

// Stream issues one agent request for the prompt and returns the normalized
// event sequence. The channel closes once the upstream conversation is
// exhausted or the context is cancelled; a done event is always the final
// event of a successful run.
func (s *Service) Stream(ctx context.Context, prompt string) <-chan chat.StreamEvent {
	out := make(chan chat.StreamEvent, 16)
	go s.run(ctx, prompt, out)
	return out
}

func (s *Service) run(ctx context.Context, prompt string, out chan<- chat.StreamEvent) {
	defer close(out)

	emit := func(ev chat.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}

	var lastText string
	for turn := 0; turn < s.cfg.MaxTurns; turn++ {
		res, err := s.runTurn(ctx, messages, emit)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("[agent] stream failed: %v", err)
			emit(chat.ErrorEvent(err.Error()))
			return
		}

		lastText = res.text
		if msg, ok := buildAssistantMessage(res.text, res.toolCalls); ok {
			messages = append(messages, msg)
		}

		if len(res.toolCalls) == 0 {
			break
		}
		if turn == s.cfg.MaxTurns-1 {
			log.Printf("[agent] reached max turns (%d), stopping", s.cfg.MaxTurns)
			break
		}

		messages = append(messages, anthropic.NewUserMessage(s.executeToolCalls(ctx, res.toolCalls)...))
	}

	if !emit(chat.ResultEvent(lastText)) {
		return
	}
	emit(chat.DoneEvent())
}

type toolCall struct {
	id    string
	name  string
	input json.RawMessage
}

type turnResult struct {
	text      string
	toolCalls []toolCall
}

// runTurn drives one streaming model call, emitting text, tool and usage
// events as the upstream produces them and collecting tool calls for
// execution between turns.
//
// Upstream event sequence (per the Anthropic streaming API):
//   - content_block_start (tool_use): record the call's id and name
//   - content_block_delta (input_json_delta): accumulate tool input JSON
//   - content_block_delta (text_delta): incremental assistant text
//   - content_block_stop: a pending tool call's input is complete
//   - message_delta: token usage accounting for the message
func (s *Service) runTurn(ctx context.Context, messages []anthropic.MessageParam, emit func(chat.StreamEvent) bool) (turnResult, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.cfg.Model),
		Messages:  messages,
		MaxTokens: int64(s.cfg.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Tools:     buildToolParams(s.tools),
	}

	stream := s.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	type pendingCall struct {
		id      string
		name    string
		jsonBuf strings.Builder
	}
	pending := make(map[int64]*pendingCall)

	var res turnResult
	var text strings.Builder

	for stream.Next() {
		if ctx.Err() != nil {
			return turnResult{}, ctx.Err()
		}

		switch variant := stream.Current().AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			cb := variant.ContentBlock
			if cb.Type == "tool_use" {
				toolUse := cb.AsToolUse()
				pending[variant.Index] = &pendingCall{id: toolUse.ID, name: toolUse.Name}
				if !emit(chat.ToolEvent(toolUse.Name)) {
					return turnResult{}, ctx.Err()
				}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				text.WriteString(d.Text)
				if !emit(chat.TextEvent(d.Text)) {
					return turnResult{}, ctx.Err()
				}
			case anthropic.InputJSONDelta:
				if pc, ok := pending[variant.Index]; ok {
					pc.jsonBuf.WriteString(d.PartialJSON)
				}
			}

		case anthropic.ContentBlockStopEvent:
			if pc, ok := pending[variant.Index]; ok {
				input := pc.jsonBuf.String()
				if input == "" {
					input = "{}"
				}
				res.toolCalls = append(res.toolCalls, toolCall{
					id:    pc.id,
					name:  pc.name,
					input: json.RawMessage(input),
				})
				delete(pending, variant.Index)
			}

		case anthropic.MessageDeltaEvent:
			if !emit(chat.UsageEvent(int(variant.Usage.InputTokens), int(variant.Usage.OutputTokens))) {
				return turnResult{}, ctx.Err()
			}

		case anthropic.MessageStartEvent, anthropic.MessageStopEvent:
			// No counterpart in the normalized alphabet.

		default:
			log.Printf("[agent] ignoring unhandled stream event %T", variant)
		}
	}

	if err := stream.Err(); err != nil {
		return turnResult{}, fmt.Errorf("agent stream: %w", err)
	}

	res.text = text.String()
	return res, nil
}

// buildAssistantMessage turns the collected turn output into a history
// message. ok is false when the turn produced no content at all.
func buildAssistantMessage(text string, calls []toolCall) (anthropic.MessageParam, bool) {
	var blocks []anthropic.ContentBlockParamUnion

	if text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	for _, call := range calls {
		var input any
		if len(call.input) > 0 {
			_ = json.Unmarshal(call.input, &input)
		}
		if input == nil {
			input = map[string]any{}
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(call.id, input, call.name))
	}

	if len(blocks) == 0 {
		return anthropic.MessageParam{}, false
	}
	return anthropic.NewAssistantMessage(blocks...), true
}

// executeToolCalls runs each requested tool and returns tool_result blocks
// for the next turn's user message.
func (s *Service) executeToolCalls(ctx context.Context, calls []toolCall) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(calls))
	for _, call := range calls {
		result := s.executeToolCall(ctx, call)
		blocks = append(blocks, anthropic.NewToolResultBlock(call.id, result.Content, result.IsError))
	}
	return blocks
}

func (s *Service) executeToolCall(ctx context.Context, call toolCall) ToolResult {
	for _, t := range s.tools {
		if t.Name() == call.name {
			return t.Execute(ctx, call.input)
		}
	}
	return ToolResult{Content: fmt.Sprintf("tool %q is not allowed", call.name), IsError: true}
}
