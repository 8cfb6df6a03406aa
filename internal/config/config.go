// Package config loads the runtime node configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/zeuswire/internal/core/assembly"
)

type Config struct {
	Log          LogConfig          `yaml:"log"`
	Conversation ConversationConfig `yaml:"conversation"`
	Binding      BindingConfig      `yaml:"binding"`
	Policy       PolicyConfig       `yaml:"policy"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultMaxIdleTime applies when neither conversation limit is configured.
const DefaultMaxIdleTime = time.Hour

// ConversationConfig holds the defaults applied to components that set no
// expiry of their own.
type ConversationConfig struct {
	assembly.ConversationAttributes `yaml:",inline"`

	// ReaperInterval of 0 disables the background sweep.
	ReaperInterval time.Duration `yaml:"reaperInterval"`
}

// Attributes returns the configured limits, or DefaultMaxIdleTime when none
// is set.
func (c ConversationConfig) Attributes() assembly.ConversationAttributes {
	if c.ConversationAttributes.IsZero() {
		return assembly.ConversationAttributes{MaxIdleTime: DefaultMaxIdleTime}
	}
	return c.ConversationAttributes
}

type BindingConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type WebSocketConfig struct {
	Listen         string        `yaml:"listen"`
	Path           string        `yaml:"path"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
}

type PolicyConfig struct {
	// RateLimit is calls per second per principal; 0 disables limiting.
	RateLimit float64 `yaml:"rateLimit"`
	Burst     int     `yaml:"burst"`
	// MaxPrincipals caps the principals limited separately; the rest share
	// one budget.
	MaxPrincipals    int  `yaml:"maxPrincipals"`
	RequirePrincipal bool `yaml:"requirePrincipal"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Binding: BindingConfig{
			WebSocket: WebSocketConfig{
				Listen:         "127.0.0.1:8085",
				Path:           "/sca",
				ReadTimeout:    30 * time.Second,
				WriteTimeout:   10 * time.Second,
				MaxMessageSize: 1 << 20,
			},
		},
		Policy: PolicyConfig{Burst: 1, MaxPrincipals: 1024},
	}
}

// Load reads and validates the file at path. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation: %w", err)
	}
	if c.Conversation.ReaperInterval < 0 {
		return fmt.Errorf("conversation.reaperInterval: negative duration %s", c.Conversation.ReaperInterval)
	}

	ws := c.Binding.WebSocket
	if ws.Listen == "" {
		return fmt.Errorf("binding.websocket.listen is required")
	}
	if ws.Path == "" || ws.Path[0] != '/' {
		return fmt.Errorf("binding.websocket.path must start with /: %q", ws.Path)
	}
	if ws.ReadTimeout < 0 || ws.WriteTimeout < 0 {
		return fmt.Errorf("binding.websocket: negative timeout")
	}
	if ws.MaxMessageSize < 0 {
		return fmt.Errorf("binding.websocket.maxMessageSize: negative size %d", ws.MaxMessageSize)
	}

	if c.Policy.RateLimit < 0 {
		return fmt.Errorf("policy.rateLimit: negative rate %v", c.Policy.RateLimit)
	}
	if c.Policy.RateLimit > 0 && c.Policy.Burst < 1 {
		return fmt.Errorf("policy.burst must be at least 1 when rateLimit is set")
	}
	if c.Policy.MaxPrincipals < 1 {
		return fmt.Errorf("policy.maxPrincipals must be at least 1")
	}
	return nil
}
