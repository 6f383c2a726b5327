package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	fetchTimeout     = 30 * time.Second
	fetchMaxBodySize = 5 * 1024 * 1024
	fetchMaxLines    = 2000
	fetchUserAgent   = "agentscaffold/1.0"
)

// FetchTool retrieves a web page and converts it to markdown for the model.
// It is the single capability on the agent's allow-list.
type FetchTool struct{}

func (t *FetchTool) Name() string { return "fetch" }

func (t *FetchTool) Description() string {
	return `Fetch a web page over HTTPS and return its content as markdown.
Use this to look up live data such as weather conditions and forecasts.
Responses are truncated if very large.`
}

func (t *FetchTool) Parameters() map[string]any {
	return map[string]any{
		"url": map[string]any{
			"type":        "string",
			"description": "The URL to fetch (http or https)",
		},
	}
}

func (t *FetchTool) Execute(ctx context.Context, input json.RawMessage) ToolResult {
	var p struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(input, &p); err != nil {
		return ToolResult{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}
	}
	if p.URL == "" {
		return ToolResult{Content: "url is required", IsError: true}
	}

	u, err := url.Parse(p.URL)
	if err != nil {
		return ToolResult{Content: fmt.Sprintf("invalid URL: %v", err), IsError: true}
	}

	// Auto-upgrade http to https.
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	if u.Scheme != "https" {
		return ToolResult{Content: "only http and https URLs are supported", IsError: true}
	}

	return t.fetch(ctx, u.String())
}

func (t *FetchTool) fetch(ctx context.Context, fetchURL string) ToolResult {
	client := &http.Client{Timeout: fetchTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return ToolResult{Content: fmt.Sprintf("failed to create request: %v", err), IsError: true}
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,text/plain,text/markdown,application/xhtml+xml,application/json")

	resp, err := client.Do(req)
	if err != nil {
		return ToolResult{Content: fmt.Sprintf("request failed: %v", err), IsError: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ToolResult{
			Content: fmt.Sprintf("HTTP %d %s for %s", resp.StatusCode, http.StatusText(resp.StatusCode), fetchURL),
			IsError: true,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodySize+1))
	if err != nil {
		return ToolResult{Content: fmt.Sprintf("failed to read response: %v", err), IsError: true}
	}

	truncated := len(body) > fetchMaxBodySize
	if truncated {
		body = body[:fetchMaxBodySize]
	}

	contentType := resp.Header.Get("Content-Type")
	var content string
	switch {
	case strings.Contains(contentType, "text/html"),
		strings.Contains(contentType, "application/xhtml"):
		md, err := htmltomarkdown.ConvertString(string(body))
		if err != nil {
			content = string(body)
		} else {
			content = md
		}
	default:
		if !utf8.Valid(body) {
			return ToolResult{Content: fmt.Sprintf("unsupported content type: %s", contentType), IsError: true}
		}
		content = string(body)
	}

	// Cap line count to keep the model context bounded.
	content = truncateLines(content, fetchMaxLines)

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\n\n", fetchURL)
	sb.WriteString(content)
	if truncated {
		sb.WriteString("\n\n[Content truncated due to size limit]")
	}
	return ToolResult{Content: sb.String()}
}

// truncateLines keeps only the first maxLines lines of s.
func truncateLines(s string, maxLines int) string {
	idx := 0
	for i := 0; i < maxLines; i++ {
		next := strings.IndexByte(s[idx:], '\n')
		if next == -1 {
			return s
		}
		idx += next + 1
	}
	return s[:idx] + fmt.Sprintf("[Content truncated to first %d lines]", maxLines)
}
