package common

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig   `toml:"logging"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Browser     BrowserConfig   `toml:"browser"`
	Trust       TrustConfig     `toml:"trust"`
	Discovery   DiscoveryConfig `toml:"discovery"`
	Storage     StorageConfig   `toml:"storage"`
	Schedule    ScheduleConfig  `toml:"schedule"`
	Prompts     PromptsConfig   `toml:"prompts"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`      // Google Gemini API key (or SUBSIDIA_GEMINI_API_KEY)
	Model       string  `toml:"model"`        // Model for text and search operations (default: "gemini-2.0-flash")
	VisionModel string  `toml:"vision_model"` // Model for screenshot analysis (defaults to Model)
	Timeout     string  `toml:"timeout"`      // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`   // Minimum interval between requests (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"`  // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (or SUBSIDIA_CLAUDE_API_KEY)
	Model       string  `toml:"model"`       // Model for text operations (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude" (default: "gemini")
}

// BrowserConfig contains headless browser configuration
type BrowserConfig struct {
	PoolSize       int           `toml:"pool_size"`       // Number of browser instances (default: 2)
	UserAgent      string        `toml:"user_agent"`      // User agent string
	Headless       bool          `toml:"headless"`        // Run without a display (default: true)
	RequestTimeout time.Duration `toml:"request_timeout"` // Per-navigation timeout (default: 30s)
	PolitenessWait time.Duration `toml:"politeness_wait"` // Delay before government domains (default: 1s)
}

// TrustConfig contains URL trust evaluation configuration
type TrustConfig struct {
	QualityThreshold int           `toml:"quality_threshold" validate:"min=0,max=100"` // Minimum quality score for a valid opportunity (default: 50)
	RequestTimeout   time.Duration `toml:"request_timeout"`                            // HTTP probe timeout (default: 15s)
	MaxRedirects     int           `toml:"max_redirects"`                              // Redirect follow limit (default: 10)
}

// DiscoveryConfig contains discovery pipeline configuration
type DiscoveryConfig struct {
	Workers          int           `toml:"workers" validate:"min=1"` // Verification worker pool size (default: 3)
	GlobalBudget     time.Duration `toml:"global_budget"`            // Wall-clock budget for a full run (default: 30m)
	ResultTimeout    time.Duration `toml:"result_timeout"`           // Secondary timeout per collected result (default: 5m)
	MaxCandidates    int           `toml:"max_candidates"`           // Cap on candidates verified per run (default: 10)
	MinFilesForDeep  int           `toml:"min_files_for_deep"`       // Below this count the scraper digs deeper (default: 3)
	DeepSearchDepth  int           `toml:"deep_search_depth"`        // BFS depth for deep format-file search (default: 2)
	FollowLinksLimit int           `toml:"follow_links_limit"`       // Download-page links followed per page (default: 3)
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path string `toml:"path"` // Database directory path
}

// ScheduleConfig configures the watch-mode cron schedule
type ScheduleConfig struct {
	Spec string `toml:"spec"` // Cron spec for periodic discovery (default: weekly, Monday 09:00)
}

// PromptsConfig points at the prompt template file
type PromptsConfig struct {
	Path string `toml:"path"` // YAML prompt templates (default: "config/prompts.yaml")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-2.0-flash",
			VisionModel: "",
			Timeout:     "5m",
			RateLimit:   "4s",
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Browser: BrowserConfig{
			PoolSize:       2,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headless:       true,
			RequestTimeout: 30 * time.Second,
			PolitenessWait: 1 * time.Second,
		},
		Trust: TrustConfig{
			QualityThreshold: 50,
			RequestTimeout:   15 * time.Second,
			MaxRedirects:     10,
		},
		Discovery: DiscoveryConfig{
			Workers:          3,
			GlobalBudget:     30 * time.Minute,
			ResultTimeout:    5 * time.Minute,
			MaxCandidates:    10,
			MinFilesForDeep:  3,
			DeepSearchDepth:  2,
			FollowLinksLimit: 3,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Schedule: ScheduleConfig{
			Spec: "0 9 * * 1",
		},
		Prompts: PromptsConfig{
			Path: "config/prompts.yaml",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides maps SUBSIDIA_* environment variables onto config
// fields. Only secrets and the provider switch are exposed this way.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("SUBSIDIA_GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("SUBSIDIA_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("SUBSIDIA_LLM_PROVIDER"); v != "" {
		config.LLM.DefaultProvider = LLMProvider(v)
	}
	if v := os.Getenv("SUBSIDIA_DATA_DIR"); v != "" {
		config.Storage.Badger.Path = v
	}
}

func validateConfig(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if config.LLM.DefaultProvider != LLMProviderGemini && config.LLM.DefaultProvider != LLMProviderClaude {
		return fmt.Errorf("invalid llm.default_provider %q: must be %q or %q", config.LLM.DefaultProvider, LLMProviderGemini, LLMProviderClaude)
	}

	if _, err := time.ParseDuration(config.Gemini.Timeout); err != nil {
		return fmt.Errorf("invalid gemini.timeout %q: %w", config.Gemini.Timeout, err)
	}
	if _, err := time.ParseDuration(config.Gemini.RateLimit); err != nil {
		return fmt.Errorf("invalid gemini.rate_limit %q: %w", config.Gemini.RateLimit, err)
	}
	if _, err := time.ParseDuration(config.Claude.Timeout); err != nil {
		return fmt.Errorf("invalid claude.timeout %q: %w", config.Claude.Timeout, err)
	}

	return nil
}
