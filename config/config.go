// Package config provides configuration management for the coral relay server.
// It covers the HTTP server, the remote chat backends, the Slack integration,
// reply defaults, sandbox rendering and runtime behavior.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Chat           ChatConfig           `yaml:"chat"`
	Bot            BotConfig            `yaml:"bot"`
	Slack          SlackConfig          `yaml:"slack"`
	Sandbox        SandboxConfig        `yaml:"sandbox"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Queue          QueueConfig          `yaml:"queue"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8080)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Chat replies can take a while, so this is larger than ReadTimeout (default: 120s)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout specifies how long to wait for the server to shutdown
	// gracefully before forcing termination (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChatConfig describes the remote chat completion backends.
type ChatConfig struct {
	// BaseURL is the toolkit backend address; requests go to {BaseURL}/v1/chat
	BaseURL string `yaml:"base_url"`

	// UserID is sent as the User-Id header the toolkit uses to own conversations
	UserID string `yaml:"user_id"`

	// Deployment is sent as the Deployment-Name header when set
	Deployment string `yaml:"deployment"`

	// Timeout bounds a single HTTP exchange with the toolkit (0 = no client timeout)
	Timeout time.Duration `yaml:"timeout"`

	// Preference is the order in which backends are tried: "toolkit", "gollm"
	Preference []string `yaml:"preference"`

	// Gollm configures the direct-provider fallback backend (optional)
	Gollm *GollmConfig `yaml:"gollm,omitempty"`
}

// GollmConfig configures a direct LLM provider reached through gollm.
type GollmConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// BotConfig holds reply defaults applied when a caller does not override them.
// It is hot-reloadable.
type BotConfig struct {
	// Model overrides the built-in default chat model
	Model string `yaml:"model"`

	// Temperature is sent only when non-zero
	Temperature float64 `yaml:"temperature"`

	// Preamble replaces the backend's system preamble when non-empty
	Preamble string `yaml:"preamble"`

	// Tools are the tools enabled for every reply
	Tools []ToolConfig `yaml:"tools"`

	// MaxMessageTokens bounds /v1/chat messages (0 disables the check)
	MaxMessageTokens int `yaml:"max_message_tokens"`

	// MentionConcurrency bounds parallel display-name lookups per message
	MentionConcurrency int `yaml:"mention_concurrency"`

	// GeneralErrorMessage is shown to users when the remote call fails without
	// a structured error. Empty keeps the built-in message.
	GeneralErrorMessage string `yaml:"general_error_message"`
}

// ToolConfig declares a tool made available to the chat backend.
type ToolConfig struct {
	Name                 string                         `yaml:"name"`
	DisplayName          string                         `yaml:"display_name"`
	Description          string                         `yaml:"description"`
	ParameterDefinitions map[string]ToolParameterConfig `yaml:"parameter_definitions"`
}

// ToolParameterConfig describes one tool parameter.
type ToolParameterConfig struct {
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
}

// SlackConfig holds the Slack app credentials and transport selection.
type SlackConfig struct {
	// Enabled turns the Slack integration on
	Enabled bool `yaml:"enabled"`

	// Mode is "events" (HTTP Events API) or "socket" (Socket Mode)
	Mode string `yaml:"mode"`

	// BotToken is the xoxb- token used for the Web API
	BotToken string `yaml:"bot_token"`

	// AppToken is the xapp- token required by Socket Mode
	AppToken string `yaml:"app_token"`

	// SigningSecret verifies Events API requests
	SigningSecret string `yaml:"signing_secret"`

	// Workers is the number of goroutines replying to events (default: 4)
	Workers int `yaml:"workers"`

	// QueueSize bounds events waiting for a worker (default: 100)
	QueueSize int `yaml:"queue_size"`
}

// SandboxConfig controls how embedded model output is rendered.
type SandboxConfig struct {
	// PlaceholderURL is the image service used when an <img> fails to load;
	// the image width and height are appended as path segments
	PlaceholderURL string `yaml:"placeholder_url"`

	// BlobPath is the route prefix registered documents are served under
	BlobPath string `yaml:"blob_path"`

	// MaxDocuments bounds the registered documents kept in memory; the
	// oldest is evicted first. 0 means unbounded.
	MaxDocuments int `yaml:"max_documents"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// CircuitBreakerConfig configures the breaker guarding each chat backend.
type CircuitBreakerConfig struct {
	// MaxRequests is maximum number of requests allowed to pass through when in half-open state
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state for the circuit breaker
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures needed to trip the circuit
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

// QueueConfig defines the admission queue in front of /v1/chat.
type QueueConfig struct {
	// Enabled determines if the queue middleware is active
	Enabled bool `yaml:"enabled"`

	// MaxSize is the maximum number of requests admitted at once
	MaxSize int64 `yaml:"max_size"`
}

// RateLimitConfig defines per-client rate limiting for /v1/chat.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Burst   int           `yaml:"burst"`
	Window  time.Duration `yaml:"window"`
}

// DefaultConfig returns a configuration that passes validation and runs the
// toolkit backend at localhost with the Project 2025 tool enabled.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},

		Chat: ChatConfig{
			BaseURL:    "http://localhost:8000",
			UserID:     "coral-slack-bot",
			Timeout:    90 * time.Second,
			Preference: []string{"toolkit"},
		},

		Bot: BotConfig{
			Tools: []ToolConfig{
				{
					Name:        "project_2025",
					DisplayName: "Project 2025",
					Description: "Retrieves our analysis of Project 2025.",
					ParameterDefinitions: map[string]ToolParameterConfig{
						"query": {
							Description: "Query for retrieval.",
							Type:        "str",
							Required:    true,
						},
					},
				},
			},
			MaxMessageTokens:   4096,
			MentionConcurrency: 8,
		},

		Slack: SlackConfig{
			Enabled:   false,
			Mode:      "events",
			Workers:   4,
			QueueSize: 100,
		},

		Sandbox: SandboxConfig{
			PlaceholderURL: "https://picsum.photos",
			BlobPath:       "/v1/blobs",
			MaxDocuments:   1000,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},

		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         30 * time.Second,
			Timeout:          10 * time.Second,
			FailureThreshold: 5,
		},

		Queue: QueueConfig{
			Enabled: true,
			MaxSize: 64,
		},

		RateLimit: RateLimitConfig{
			Enabled: true,
			Burst:   10,
			Window:  time.Minute,
		},
	}
}

// LoadFile loads configuration from a YAML file
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references. Nested
// references are expanded until the string stops changing.
func expandEnvVars(s string) (string, error) {
	if strings.Count(s, "${") > strings.Count(s, "}") {
		return "", fmt.Errorf("invalid syntax: unterminated variable reference")
	}

	result := os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	})

	prev := ""
	for prev != result {
		prev = result
		result = os.Expand(result, os.Getenv)
	}

	return result, nil
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	// Start with defaults
	config := DefaultConfig()

	// yaml.v3 replaces slices wholesale, so a file that lists tools
	// replaces the default tool list rather than appending to it.
	dec := yaml.NewDecoder(strings.NewReader(expandedData))
	if err := dec.Decode(config); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}

	// Chat backend validation
	if len(c.Chat.Preference) == 0 {
		return fmt.Errorf("empty chat backend preference")
	}
	for _, name := range c.Chat.Preference {
		switch name {
		case "toolkit":
			if c.Chat.BaseURL == "" {
				return fmt.Errorf("toolkit backend requires chat.base_url")
			}
		case "gollm":
			if c.Chat.Gollm == nil || c.Chat.Gollm.Provider == "" || c.Chat.Gollm.Model == "" {
				return fmt.Errorf("gollm backend requires chat.gollm.provider and chat.gollm.model")
			}
		default:
			return fmt.Errorf("unknown chat backend: %s", name)
		}
	}
	if c.Chat.Timeout < 0 {
		return fmt.Errorf("negative chat timeout: %v", c.Chat.Timeout)
	}

	// Bot validation
	if c.Bot.Temperature < 0 {
		return fmt.Errorf("negative temperature: %v", c.Bot.Temperature)
	}
	if c.Bot.MaxMessageTokens < 0 {
		return fmt.Errorf("negative max message tokens: %d", c.Bot.MaxMessageTokens)
	}
	if c.Bot.MentionConcurrency < 0 {
		return fmt.Errorf("negative mention concurrency: %d", c.Bot.MentionConcurrency)
	}
	for i, tool := range c.Bot.Tools {
		if tool.Name == "" {
			return fmt.Errorf("empty name in tool %d", i)
		}
	}

	// Slack validation
	if c.Slack.Enabled {
		if c.Slack.BotToken == "" {
			return fmt.Errorf("slack enabled but bot token not specified")
		}
		switch c.Slack.Mode {
		case "events":
			if c.Slack.SigningSecret == "" {
				return fmt.Errorf("slack events mode requires a signing secret")
			}
		case "socket":
			if c.Slack.AppToken == "" {
				return fmt.Errorf("slack socket mode requires an app token")
			}
		default:
			return fmt.Errorf("invalid slack mode: %s", c.Slack.Mode)
		}
		if c.Slack.Workers <= 0 {
			return fmt.Errorf("slack workers must be positive: %d", c.Slack.Workers)
		}
		if c.Slack.QueueSize <= 0 {
			return fmt.Errorf("slack queue size must be positive: %d", c.Slack.QueueSize)
		}
	}

	// Sandbox validation
	if c.Sandbox.PlaceholderURL == "" {
		return fmt.Errorf("empty sandbox placeholder url")
	}
	if !strings.HasPrefix(c.Sandbox.BlobPath, "/") {
		return fmt.Errorf("sandbox blob path must start with '/': %q", c.Sandbox.BlobPath)
	}
	if c.Sandbox.MaxDocuments < 0 {
		return fmt.Errorf("sandbox max documents must not be negative: %d", c.Sandbox.MaxDocuments)
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Queue.Enabled && c.Queue.MaxSize <= 0 {
		return fmt.Errorf("queue max size must be positive: %d", c.Queue.MaxSize)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Burst <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requires positive burst and window")
	}

	return nil
}
