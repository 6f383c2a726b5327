package agent

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
)

// Tool is a capability the agent may invoke during a turn.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema properties of the tool input.
	Parameters() map[string]any
	Execute(ctx context.Context, input json.RawMessage) ToolResult
}

// ToolResult is the outcome of a tool invocation, fed back to the model.
type ToolResult struct {
	Content string
	IsError bool
}

// filterTools keeps only the tools named by the allow-list, preserving order.
func filterTools(available []Tool, allowed []string) []Tool {
	byName := make(map[string]Tool, len(available))
	for _, t := range available {
		byName[t.Name()] = t
	}

	filtered := make([]Tool, 0, len(allowed))
	for _, name := range allowed {
		if t, ok := byName[name]; ok {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// buildToolParams converts tools into Anthropic API tool definitions.
func buildToolParams(tools []Tool) []anthropic.ToolUnionParam {
	params := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Parameters(),
				},
			},
		})
	}
	return params
}
