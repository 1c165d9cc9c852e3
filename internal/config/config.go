package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`

	DataDir    string `json:"data_dir"`
	ListenAddr string `json:"listen_addr"`
	WebhookURL string `json:"webhook_url"`

	// ResearchFeedURL enables the pre-session topic brief when set.
	ResearchFeedURL string `json:"research_feed_url"`

	MemoryEnabled *bool `json:"memory_enabled"`

	MaxLLMRetries  int `json:"max_llm_retries"`
	LLMTimeoutSecs int `json:"llm_timeout_seconds"`
	ResearchItems  int `json:"research_items"`
	MemoryFactsCap int `json:"memory_facts_cap"`
}

// ParseConfig accepts raw JSON; empty, "null", and "{}" all yield the zero
// config so callers can rely on defaults.
func ParseConfig(raw string) (Config, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" || raw == "{}" {
		return Config{}, nil
	}
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config JSON: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a config file; a missing file is not an error.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return ParseConfig(string(b))
}

// ApplyEnv overlays CLEARSIDE_* environment variables on the config.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv("CLEARSIDE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CLEARSIDE_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv("CLEARSIDE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CLEARSIDE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CLEARSIDE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("CLEARSIDE_WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("CLEARSIDE_RESEARCH_FEED_URL"); v != "" {
		c.ResearchFeedURL = v
	}
	if v := os.Getenv("CLEARSIDE_MEMORY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			c.MemoryEnabled = &b
		}
	}
	return c
}

func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "data"
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = ":8787"
	}
	if c.MaxLLMRetries <= 0 {
		c.MaxLLMRetries = 3
	}
	if c.LLMTimeoutSecs <= 0 {
		c.LLMTimeoutSecs = 75
	}
	return c
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSecs) * time.Second
}

func (c Config) Memory() bool {
	if c.MemoryEnabled == nil {
		return false
	}
	return *c.MemoryEnabled
}
