package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates every runtime setting for the service.
type Config struct {
	Server ServerConfig
	Agent  AgentConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Agent: agent}, nil
}

// ServerConfig describes the HTTP listener and static asset root.
type ServerConfig struct {
	Addr      string
	StaticDir string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	addr := port
	if !strings.Contains(port, ":") {
		// Allow either a bare port or a full listen address.
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		addr = ":" + port
	}

	return ServerConfig{
		Addr:      addr,
		StaticDir: getEnvOrDefault("STATIC_DIR", "web"),
	}, nil
}

// AgentConfig describes the upstream agent backend.
type AgentConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTurns  int
	MaxTokens int
}

// Enabled reports whether the required credentials were provided.
func (c AgentConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadAgentConfig() (AgentConfig, error) {
	maxTurns, err := parseIntEnv("AGENT_MAX_TURNS", 50)
	if err != nil {
		return AgentConfig{}, err
	}

	maxTokens, err := parseIntEnv("AGENT_MAX_TOKENS", 8192)
	if err != nil {
		return AgentConfig{}, err
	}

	return AgentConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		BaseURL:   strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")),
		Model:     getEnvOrDefault("AGENT_MODEL", "claude-3-5-haiku-latest"),
		MaxTurns:  maxTurns,
		MaxTokens: maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
