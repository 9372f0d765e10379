// Package config loads the agentgraph CLI configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default file name looked up in the working directory when no path is given.
const DefaultFile = "agentgraph.yaml"

// Providers understood by Model.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderMock      = "mock"
)

// Store drivers understood by Store.Driver.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// Strategies understood by Agent.Strategy.
const (
	StrategyReAct   = "react"
	StrategyPlanAct = "plan-act"
)

// Tool selection modes understood by Tools.Select.
const (
	SelectAll  = "all"
	SelectNone = "none"
	SelectList = "list"
	SelectAuto = "auto"
)

// Config is the root of agentgraph.yaml.
type Config struct {
	Agent   Agent   `yaml:"agent"`
	Model   Model   `yaml:"model"`
	Tools   Tools   `yaml:"tools"`
	Store   Store   `yaml:"store"`
	Metrics Metrics `yaml:"metrics"`
	Tracing Tracing `yaml:"tracing"`
	Log     Log     `yaml:"log"`
}

// Agent configures the strategy and its run limits.
type Agent struct {
	ID            string `yaml:"id"`
	Strategy      string `yaml:"strategy"`
	SystemPrompt  string `yaml:"system_prompt"`
	MaxIterations int    `yaml:"max_iterations"`
}

// Model selects the chat model provider.
type Model struct {
	Provider    string   `yaml:"provider"`
	Name        string   `yaml:"name"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Retry       Retry    `yaml:"retry"`

	// Responses feeds the mock provider, one assistant text per call.
	Responses []string `yaml:"responses"`
}

// Retry configures model call retries. MaxAttempts 0 disables retrying.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Tools configures the built-in tools and which of them the strategy sees.
type Tools struct {
	HTTP        HTTPTool `yaml:"http"`
	Select      string   `yaml:"select"`
	Names       []string `yaml:"names"`
	Description string   `yaml:"description"`
}

// HTTPTool configures the http_request tool.
type HTTPTool struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// Store configures step persistence.
type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Tracing configures OTLP/HTTP span export. An empty Endpoint disables it.
type Tracing struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates the file at path. An empty path means
// DefaultFile, and a missing default file yields the defaults.
func Load(path string) (*Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Parse(nil)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// envRef matches ${VAR}. Bare $VAR is left alone so prompts can contain
// dollar signs.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// Parse decodes YAML, expands ${VAR} references, fills defaults, and
// validates the result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(strings.TrimSpace(string(data))) > 0 {
		dec := yaml.NewDecoder(strings.NewReader(expandEnv(string(data))))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.Strategy == "" {
		c.Agent.Strategy = StrategyReAct
	}
	if c.Agent.ID == "" {
		c.Agent.ID = "agentgraph"
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 50
	}
	if c.Model.Provider == "" {
		c.Model.Provider = ProviderOpenAI
	}
	if c.Model.APIKey == "" {
		c.Model.APIKey = os.Getenv(APIKeyEnv(c.Model.Provider))
	}
	if c.Model.Retry.MaxAttempts > 1 {
		if c.Model.Retry.BaseDelay == 0 {
			c.Model.Retry.BaseDelay = 500 * time.Millisecond
		}
		if c.Model.Retry.MaxDelay == 0 {
			c.Model.Retry.MaxDelay = 10 * time.Second
		}
	}
	if c.Tools.Select == "" {
		c.Tools.Select = SelectAll
	}
	if c.Tools.HTTP.Enabled && c.Tools.HTTP.Timeout == 0 {
		c.Tools.HTTP.Timeout = 30 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "agentgraph"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// APIKeyEnv names the environment variable holding a provider's API key.
func APIKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	}
	return ""
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Agent.Strategy {
	case StrategyReAct, StrategyPlanAct:
	default:
		bad("agent.strategy: unknown strategy %q", c.Agent.Strategy)
	}
	if c.Agent.MaxIterations < 1 {
		bad("agent.max_iterations: must be positive, got %d", c.Agent.MaxIterations)
	}

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		if c.Model.APIKey == "" {
			bad("model.api_key: not set and %s is empty", APIKeyEnv(c.Model.Provider))
		}
	case ProviderMock:
		if len(c.Model.Responses) == 0 {
			bad("model.responses: mock provider needs at least one response")
		}
	default:
		bad("model.provider: unknown provider %q", c.Model.Provider)
	}
	if c.Model.MaxTokens < 0 {
		bad("model.max_tokens: must not be negative")
	}
	if r := c.Model.Retry; r.MaxAttempts < 0 || (r.MaxDelay > 0 && r.MaxDelay < r.BaseDelay) {
		bad("model.retry: invalid policy %+v", r)
	}

	switch c.Tools.Select {
	case SelectAll, SelectNone, SelectAuto:
	case SelectList:
		if len(c.Tools.Names) == 0 {
			bad("tools.names: required when tools.select is %q", SelectList)
		}
	default:
		bad("tools.select: unknown mode %q", c.Tools.Select)
	}
	if c.Tools.Select == SelectAuto && c.Tools.Description == "" {
		bad("tools.description: required when tools.select is %q", SelectAuto)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StoreMySQL:
		if c.Store.DSN == "" {
			bad("store.dsn: required for driver %q", c.Store.Driver)
		}
	default:
		bad("store.driver: unknown driver %q", c.Store.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		bad("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		bad("log.format: unknown format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}
