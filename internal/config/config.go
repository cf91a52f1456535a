// Package config provides application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration shared by every binary. Each binary reads the
// sections it needs.
type Config struct {
	Env                 string
	LogLevel            slog.Level
	AllowedOrigins      []string
	MaxRequestBodyBytes int64

	Database DatabaseConfig
	LLM      LLMConfig
	Backend  BackendConfig
	Tools    ToolsConfig
	Agent    AgentConfig
	Relay    RelayConfig
}

// DatabaseConfig selects and locates the relational store.
type DatabaseConfig struct {
	Driver string // "sqlite" or "postgres"
	Path   string
	URL    string
}

// LLMConfig configures the hosted model.
type LLMConfig struct {
	APIKey string
	Model  string
}

// BackendConfig configures the question/evaluation HTTP service.
type BackendConfig struct {
	Port string
	URL  string
}

// ToolsConfig configures the MCP tool server.
type ToolsConfig struct {
	Port string
	URL  string
}

// AgentConfig configures the conversational agent server.
type AgentConfig struct {
	Port            string
	GRPCPort        string
	PublicURL       string
	MaxSteps        int
	TaskTTL         time.Duration
	ConversationTTL time.Duration
}

// RelayConfig configures the browser-facing streaming relay.
type RelayConfig struct {
	Port            string
	Agents          map[string]string
	PollInterval    time.Duration
	MaxPolls        int
	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	origins, err := parseOrigins(getEnv("ALLOWED_ORIGINS", `["*"]`))
	if err != nil {
		return nil, fmt.Errorf("parse ALLOWED_ORIGINS: %w", err)
	}
	agents, err := parseAgents(getEnv("RELAY_AGENTS", "excel-interviewer=http://localhost:10100"))
	if err != nil {
		return nil, fmt.Errorf("parse RELAY_AGENTS: %w", err)
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		LogLevel:            parseLevel(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins:      origins,
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			Path:   getEnv("DB_PATH", "./data/interviewer.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		LLM: LLMConfig{
			APIKey: getEnv("GOOGLE_API_KEY", ""),
			Model:  getEnv("LLM_MODEL", "gemini-2.5-flash"),
		},
		Backend: BackendConfig{
			Port: getEnv("BACKEND_PORT", "8100"),
			URL:  getEnv("BACKEND_URL", "http://localhost:8100"),
		},
		Tools: ToolsConfig{
			Port: getEnv("TOOLS_PORT", "9100"),
			URL:  getEnv("TOOLS_URL", "http://localhost:9100/mcp"),
		},
		Agent: AgentConfig{
			Port:            getEnv("AGENT_PORT", "10100"),
			GRPCPort:        getEnv("AGENT_GRPC_PORT", "10101"),
			PublicURL:       getEnv("AGENT_PUBLIC_URL", "http://localhost:10100/"),
			MaxSteps:        getEnvInt("AGENT_MAX_STEPS", 12),
			TaskTTL:         getEnvDuration("AGENT_TASK_TTL", time.Hour),
			ConversationTTL: getEnvDuration("CONVERSATION_TTL", 168*time.Hour),
		},
		Relay: RelayConfig{
			Port:            getEnv("RELAY_PORT", "8000"),
			Agents:          agents,
			PollInterval:    getEnvDuration("RELAY_POLL_INTERVAL", time.Second),
			MaxPolls:        getEnvInt("RELAY_MAX_POLLS", 180),
			RateLimit:       getEnvInt("RELAY_RATE_LIMIT", 30),
			RateLimitWindow: getEnvDuration("RELAY_RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL cannot be empty when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("AGENT_MAX_STEPS must be > 0")
	}
	if c.Relay.PollInterval <= 0 {
		return fmt.Errorf("RELAY_POLL_INTERVAL must be > 0")
	}
	if c.Relay.MaxPolls <= 0 {
		return fmt.Errorf("RELAY_MAX_POLLS must be > 0")
	}
	if c.Relay.RateLimit > 0 && c.Relay.RateLimitWindow <= 0 {
		return fmt.Errorf("RELAY_RATE_LIMIT_WINDOW must be > 0 when RELAY_RATE_LIMIT is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev"
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseOrigins(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var origins []string
	if err := json.Unmarshal([]byte(raw), &origins); err != nil {
		return nil, err
	}
	return origins, nil
}

// parseAgents reads "id=url,id2=url2".
func parseAgents(raw string) (map[string]string, error) {
	agents := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, url, ok := strings.Cut(entry, "=")
		id, url = strings.TrimSpace(id), strings.TrimSpace(url)
		if !ok || id == "" || url == "" {
			return nil, fmt.Errorf("malformed agent entry %q", entry)
		}
		agents[id] = url
	}
	return agents, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
