// Package config loads the application configuration from YAML with
// environment fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// API Keys
	OpenAIKey string `yaml:"openai_key"`
	GeminiKey string `yaml:"gemini_key"`

	// AWS Configuration (Bedrock)
	AWSRegion string `yaml:"aws_region"`

	// GCP Configuration (Firestore)
	GCPProject     string `yaml:"gcp_project"`
	GCPCredentials string `yaml:"gcp_credentials"`

	// Model Configuration
	DefaultModel string            `yaml:"default_model"`
	StageModels  map[string]string `yaml:"stage_models"`
	MaxTokens    int               `yaml:"max_tokens"`
	Temperature  float64           `yaml:"temperature"`

	// Storage
	Store StoreConfig `yaml:"store"`

	// Engine Configuration
	Engine EngineConfig `yaml:"engine"`

	// Notification Configuration
	Notify NotifyConfig `yaml:"notify"`

	// Session Configuration
	Session SessionConfig `yaml:"session"`

	// Observability
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend       string        `yaml:"backend"` // file, redis, firestore
	Dir           string        `yaml:"dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// EngineConfig holds workflow engine tunables.
type EngineConfig struct {
	CallTimeout        time.Duration `yaml:"call_timeout"`
	MaxContextMessages int           `yaml:"max_context_messages"`
	HistoryCapacity    int           `yaml:"history_capacity"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	SessionBurst       int           `yaml:"session_burst"`
}

// NotifyConfig holds Slack delivery settings.
type NotifyConfig struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
}

// SessionConfig holds session registry tunables.
type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	JanitorSchedule string        `yaml:"janitor_schedule"`
}

// maxConfigSize caps config files at 1MB.
const maxConfigSize = 1 << 20

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration built from environment variables alone.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "openai/gpt-4o"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "./data/sessions"
	}
	if c.Engine.CallTimeout == 0 {
		c.Engine.CallTimeout = 60 * time.Second
	}
	if c.Engine.MaxContextMessages == 0 {
		c.Engine.MaxContextMessages = 20
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}

	// Load secrets from environment if not in config
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.GeminiKey == "" {
		c.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.AWSRegion == "" {
		c.AWSRegion = os.Getenv("AWS_REGION")
	}
	if c.GCPProject == "" {
		c.GCPProject = os.Getenv("GCP_PROJECT")
	}
	if c.GCPCredentials == "" {
		c.GCPCredentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if c.Notify.SlackToken == "" {
		c.Notify.SlackToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if c.Notify.SlackChannel == "" {
		c.Notify.SlackChannel = os.Getenv("SLACK_CHANNEL")
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DefaultModel == "" {
		return fmt.Errorf("default_model is required")
	}

	switch c.Store.Backend {
	case "file", "redis", "firestore":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		return fmt.Errorf("redis backend requires redis_addr")
	}
	if c.Store.Backend == "firestore" && c.GCPProject == "" {
		return fmt.Errorf("firestore backend requires gcp_project")
	}

	return nil
}

// ProviderConfigs shapes the per-provider settings the registry factories
// expect.
func (c *Config) ProviderConfigs() map[string]map[string]any {
	return map[string]map[string]any{
		"openai": {
			"api_key": c.OpenAIKey,
		},
		"gemini": {
			"api_key": c.GeminiKey,
		},
		"bedrock": {
			"region": c.AWSRegion,
		},
	}
}
