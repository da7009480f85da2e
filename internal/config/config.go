// Package config loads and manages iad configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, IAD_*, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/iad/config.yaml
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/iad/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	dir, err := Dir()
	if err != nil {
		return defs
	}
	data, err := os.ReadFile(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return defs
	}
	userDefs := make(map[string]ProviderDefaults)
	if yaml.Unmarshal(data, &userDefs) != nil {
		return defs
	}
	for name, ud := range userDefs {
		d := defs[name]
		if ud.BaseURL != "" {
			d.BaseURL = ud.BaseURL
		}
		if ud.DefaultModel != "" {
			d.DefaultModel = ud.DefaultModel
		}
		defs[name] = d
	}
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// BudgetConfig bounds the cumulative token usage of one session.
type BudgetConfig struct {
	// SoftLimit blocks new steps once reached. Reports are still allowed.
	SoftLimit int `yaml:"soft_limit"`

	// HardLimit blocks every model call until the session is reset.
	HardLimit int `yaml:"hard_limit"`
}

// GenerationConfig controls step and report generation.
type GenerationConfig struct {
	MinOptions int `yaml:"min_options"`
	MaxOptions int `yaml:"max_options"`

	// Framings are the contrasting directions options should take,
	// e.g. conservative, bold, unconventional.
	Framings []string `yaml:"framings"`

	Temperature       float64 `yaml:"temperature"`
	ReportTemperature float64 `yaml:"report_temperature"`

	// ReportLength is the approximate target length of a report in characters.
	ReportLength int `yaml:"report_length"`

	// MaxInputChars caps a single free-text problem description. 0 = no cap.
	MaxInputChars int `yaml:"max_input_chars"`

	// Language forces the answer language. Empty = reply in the user's language.
	Language string `yaml:"language"`

	// MaxTokens caps a single model reply. 0 = provider default.
	MaxTokens int `yaml:"max_tokens"`
}

// WebConfig holds settings for web research (search + page summaries).
type WebConfig struct {
	// SearchProvider: "tavily" | "exa" | "jina" (free fallback, no key needed)
	SearchProvider string `yaml:"search_provider"`

	// SearchAPIKey: API key for the search provider (required for Tavily)
	SearchAPIKey string `yaml:"search_api_key"`

	// MaxPages is how many result pages are fetched and summarized.
	MaxPages int `yaml:"max_pages"`
}

// DocumentsConfig holds settings for uploaded document extraction.
type DocumentsConfig struct {
	// MaxChars truncates extracted text before it is summarized.
	MaxChars int `yaml:"max_chars"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	// Level: "debug" | "info" | "warn" | "error"
	Level string `yaml:"level"`

	// File receives logs. Empty = ~/.local/share/iad/iad.log.
	File string `yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty = disabled.
	Addr string `yaml:"addr"`
}

// Config is the complete configuration structure for iad.
type Config struct {
	// Provider is the active provider name (e.g. "openai", "anthropic", "deepseek")
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	Budget     BudgetConfig     `yaml:"budget"`
	Generation GenerationConfig `yaml:"generation"`
	Web        WebConfig        `yaml:"web"`
	Documents  DocumentsConfig  `yaml:"documents"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// EventsDir overrides where session event logs are written.
	EventsDir string `yaml:"events_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Budget: BudgetConfig{
			SoftLimit: 15000,
			HardLimit: 20000,
		},
		Generation: GenerationConfig{
			MinOptions:        2,
			MaxOptions:        4,
			Framings:          []string{"conservative", "bold", "unconventional"},
			Temperature:       0,
			ReportTemperature: 0.7,
			ReportLength:      2500,
			MaxInputChars:     250,
		},
		Web: WebConfig{
			MaxPages: 3,
		},
		Documents: DocumentsConfig{
			MaxChars: 20000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file, merges environment variable overrides and
// validates the result.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Determine config file path
	if configPath == "" {
		if dir, err := Dir(); err == nil {
			configPath = filepath.Join(dir, "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var (
	// ErrBudgetLimits is returned when the soft/hard limits are not 0 < soft < hard.
	ErrBudgetLimits = errors.New("budget limits must satisfy 0 < soft_limit < hard_limit")

	// ErrOptionRange is returned when the option count range is outside 2..4.
	ErrOptionRange = errors.New("option range must satisfy 2 <= min_options <= max_options <= 4")
)

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Budget.SoftLimit <= 0 || c.Budget.HardLimit <= c.Budget.SoftLimit {
		return fmt.Errorf("%w (got soft=%d, hard=%d)", ErrBudgetLimits, c.Budget.SoftLimit, c.Budget.HardLimit)
	}
	g := c.Generation
	if g.MinOptions < 2 || g.MaxOptions > 4 || g.MinOptions > g.MaxOptions {
		return fmt.Errorf("%w (got min=%d, max=%d)", ErrOptionRange, g.MinOptions, g.MaxOptions)
	}
	if g.MaxInputChars < 0 {
		return fmt.Errorf("generation.max_input_chars must not be negative")
	}
	return nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// Dir returns ~/.config/iad.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "iad"), nil
}

// DataDir returns ~/.local/share/iad, the home of logs and event streams.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "iad"), nil
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

// SaveProviderToFile persists a single provider's config and the active provider
// name into path (default ~/.config/iad/config.yaml), preserving all other user settings.
func SaveProviderToFile(path, providerName string, pc ProviderConfig) error {
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &raw) // start fresh if corrupt
	}

	providers, _ := raw["providers"].(map[string]any)
	if providers == nil {
		providers = make(map[string]any)
	}

	entry := map[string]any{
		"api_key": pc.APIKey,
	}
	if pc.BaseURL != "" {
		entry["base_url"] = pc.BaseURL
	}
	if pc.Model != "" {
		entry["model"] = pc.Model
	}
	providers[providerName] = entry
	raw["providers"] = providers

	// Set active provider and clear stale global model override.
	raw["provider"] = providerName
	delete(raw, "model")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	// Generic overrides
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		provider := cfg.Provider
		if cfg.Providers[provider] == nil {
			cfg.Providers[provider] = &ProviderConfig{}
		}
		cfg.Providers[provider].APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		provider := cfg.Provider
		if cfg.Providers[provider] == nil {
			cfg.Providers[provider] = &ProviderConfig{}
		}
		cfg.Providers[provider].BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	// Anthropic-specific
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		if cfg.Providers["anthropic"] == nil {
			cfg.Providers["anthropic"] = &ProviderConfig{}
		}
		cfg.Providers["anthropic"].APIKey = v
	}

	// Provider selection
	if v := os.Getenv("IAD_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("IAD_MODEL"); v != "" {
		cfg.Model = v
	}

	// Budget
	if v := os.Getenv("IAD_SOFT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IAD_SOFT_LIMIT %q: %w", v, err)
		}
		cfg.Budget.SoftLimit = n
	}
	if v := os.Getenv("IAD_HARD_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IAD_HARD_LIMIT %q: %w", v, err)
		}
		cfg.Budget.HardLimit = n
	}

	if v := os.Getenv("IAD_EVENTS_DIR"); v != "" {
		cfg.EventsDir = v
	}

	// Web search
	if v := os.Getenv("TAVILY_API_KEY"); v != "" && cfg.Web.SearchAPIKey == "" {
		cfg.Web.SearchAPIKey = v
		if cfg.Web.SearchProvider == "" {
			cfg.Web.SearchProvider = "tavily"
		}
	}
	if v := os.Getenv("EXA_API_KEY"); v != "" && cfg.Web.SearchAPIKey == "" {
		cfg.Web.SearchAPIKey = v
		if cfg.Web.SearchProvider == "" {
			cfg.Web.SearchProvider = "exa"
		}
	}
	return nil
}
