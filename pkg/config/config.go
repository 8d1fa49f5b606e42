package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Agents    map[string]AgentModel     `json:"agents" yaml:"agents"`
	Datastore DatastoreConfig           `json:"datastore" yaml:"datastore"`
	Search    SearchConfig              `json:"search" yaml:"search"`
	Executor  ExecutorConfig            `json:"executor" yaml:"executor"`
	Admission AdmissionConfig           `json:"admission" yaml:"admission"`
	Logging   LoggingConfig             `json:"logging" yaml:"logging"`
	Prompts   PromptsConfig             `json:"prompts" yaml:"prompts"`
}

type AppConfig struct {
	Name        string   `json:"name" yaml:"name"`
	ListenAddr  string   `json:"listen_addr" yaml:"listen_addr"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// AgentModel pins one agent to a provider and, optionally, a model other
// than the provider's default.
type AgentModel struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
}

type DatastoreConfig struct {
	Driver         string `json:"driver" yaml:"driver"` // sqlite or pgx
	DSN            string `json:"dsn" yaml:"dsn"`
	MaxRows        int    `json:"max_rows" yaml:"max_rows"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

func (d DatastoreConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

type SearchConfig struct {
	MaxResults int    `json:"max_results" yaml:"max_results"`
	Fetcher    string `json:"fetcher" yaml:"fetcher"` // http, browser or none
	UserAgent  string `json:"user_agent" yaml:"user_agent"`
}

type ExecutorConfig struct {
	MaxReplans         int   `json:"max_replans" yaml:"max_replans"`
	StepTimeoutSeconds int   `json:"step_timeout_seconds" yaml:"step_timeout_seconds"`
	PreserveStep       *bool `json:"preserve_step_on_replan,omitempty" yaml:"preserve_step_on_replan,omitempty"`
	MaxToolSteps       int   `json:"max_tool_steps" yaml:"max_tool_steps"`
}

func (e ExecutorConfig) StepTimeout() time.Duration {
	return time.Duration(e.StepTimeoutSeconds) * time.Second
}

// PreserveStepOnReplan defaults to true.
func (e ExecutorConfig) PreserveStepOnReplan() bool {
	return e.PreserveStep == nil || *e.PreserveStep
}

// AdmissionConfig sizes the per-client limit and the global gate. A zero
// RequestsPerWindow disables the rate limit.
type AdmissionConfig struct {
	RequestsPerWindow         int    `json:"requests_per_window" yaml:"requests_per_window"`
	WindowSeconds             int    `json:"window_seconds" yaml:"window_seconds"`
	MaxConcurrent             int64  `json:"max_concurrent" yaml:"max_concurrent"`
	CapacityRetryAfterSeconds int    `json:"capacity_retry_after_seconds" yaml:"capacity_retry_after_seconds"`
	RedisURL                  string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
}

func (a AdmissionConfig) Window() time.Duration {
	return time.Duration(a.WindowSeconds) * time.Second
}

func (a AdmissionConfig) CapacityRetryAfter() time.Duration {
	return time.Duration(a.CapacityRetryAfterSeconds) * time.Second
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	LLMLogPath string `json:"llm_log_path,omitempty" yaml:"llm_log_path,omitempty"`
}

type PromptsConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Default returns a config that serves the seeded SQLite demo dataset with
// no provider enabled.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:       "veritas",
			ListenAddr: ":8080",
		},
		Gateways:  map[string]GatewayConfig{},
		Providers: map[string]ProviderConfig{},
		Agents:    map[string]AgentModel{},
		Datastore: DatastoreConfig{
			Driver:         "sqlite",
			DSN:            "veritas.db",
			MaxRows:        500,
			TimeoutSeconds: 30,
		},
		Search: SearchConfig{
			MaxResults: 5,
			Fetcher:    "http",
			UserAgent:  "veritas/1.0",
		},
		Executor: ExecutorConfig{
			MaxReplans:         2,
			StepTimeoutSeconds: 120,
			MaxToolSteps:       8,
		},
		Admission: AdmissionConfig{
			RequestsPerWindow:         30,
			WindowSeconds:             60,
			MaxConcurrent:             16,
			CapacityRetryAfterSeconds: 60,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a JSON or YAML config file (by extension) over Default, then
// applies .env and VERITAS_* environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			err = yaml.Unmarshal(data, cfg)
		default:
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// providerKeyEnv maps provider names to the environment variable that
// overrides their API key.
var providerKeyEnv = map[string]string{
	"openai":     "VERITAS_OPENAI_API_KEY",
	"openrouter": "VERITAS_OPENROUTER_API_KEY",
	"anthropic":  "VERITAS_ANTHROPIC_API_KEY",
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VERITAS_LISTEN_ADDR"); v != "" {
		c.App.ListenAddr = v
	}
	if v := os.Getenv("VERITAS_DATASTORE_DSN"); v != "" {
		c.Datastore.DSN = v
	}
	if v := os.Getenv("VERITAS_REDIS_URL"); v != "" {
		c.Admission.RedisURL = v
	}
	if v := os.Getenv("VERITAS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VERITAS_TELEGRAM_TOKEN"); v != "" {
		if c.Gateways == nil {
			c.Gateways = map[string]GatewayConfig{}
		}
		tg := c.Gateways["telegram"]
		tg.Token = v
		c.Gateways["telegram"] = tg
	}
	for name, env := range providerKeyEnv {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if c.Providers == nil {
			c.Providers = map[string]ProviderConfig{}
		}
		p := c.Providers[name]
		p.APIKey = v
		c.Providers[name] = p
	}
}

// applyDefaults fills zero values a partial file left behind. Zero is a
// meaningful value for max_replans and requests_per_window, so those keep it.
func (c *Config) applyDefaults() {
	d := Default()
	if c.App.Name == "" {
		c.App.Name = d.App.Name
	}
	if c.App.ListenAddr == "" {
		c.App.ListenAddr = d.App.ListenAddr
	}
	if c.Datastore.Driver == "" {
		c.Datastore.Driver = d.Datastore.Driver
	}
	if c.Datastore.MaxRows <= 0 {
		c.Datastore.MaxRows = d.Datastore.MaxRows
	}
	if c.Datastore.TimeoutSeconds <= 0 {
		c.Datastore.TimeoutSeconds = d.Datastore.TimeoutSeconds
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = d.Search.MaxResults
	}
	if c.Search.Fetcher == "" {
		c.Search.Fetcher = d.Search.Fetcher
	}
	if c.Search.UserAgent == "" {
		c.Search.UserAgent = d.Search.UserAgent
	}
	if c.Executor.StepTimeoutSeconds <= 0 {
		c.Executor.StepTimeoutSeconds = d.Executor.StepTimeoutSeconds
	}
	if c.Executor.MaxToolSteps <= 0 {
		c.Executor.MaxToolSteps = d.Executor.MaxToolSteps
	}
	if c.Admission.WindowSeconds <= 0 {
		c.Admission.WindowSeconds = d.Admission.WindowSeconds
	}
	if c.Admission.MaxConcurrent <= 0 {
		c.Admission.MaxConcurrent = d.Admission.MaxConcurrent
	}
	if c.Admission.CapacityRetryAfterSeconds <= 0 {
		c.Admission.CapacityRetryAfterSeconds = d.Admission.CapacityRetryAfterSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

var knownAgents = map[string]bool{"planner": true, "query_agent": true, "search_agent": true}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Datastore.Driver {
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Errorf("datastore.driver %q must be sqlite or pgx", c.Datastore.Driver))
	}
	if c.Datastore.DSN == "" {
		errs = append(errs, errors.New("datastore.dsn is required"))
	}
	switch c.Search.Fetcher {
	case "http", "browser", "none":
	default:
		errs = append(errs, fmt.Errorf("search.fetcher %q must be http, browser or none", c.Search.Fetcher))
	}
	if c.Executor.MaxReplans < 0 {
		errs = append(errs, errors.New("executor.max_replans must not be negative"))
	}
	if c.Admission.RequestsPerWindow < 0 {
		errs = append(errs, errors.New("admission.requests_per_window must not be negative"))
	}
	for name, am := range c.Agents {
		if !knownAgents[name] {
			errs = append(errs, fmt.Errorf("agents.%s: unknown agent", name))
			continue
		}
		if p, ok := c.Providers[am.Provider]; !ok || !p.Enabled {
			errs = append(errs, fmt.Errorf("agents.%s: provider %q is not enabled", name, am.Provider))
		}
	}
	return errors.Join(errs...)
}

// GetDefaultProvider returns the first enabled provider by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// ProviderFor resolves the provider and model an agent runs on, falling
// back to the default provider.
func (c *Config) ProviderFor(agent string) (string, ProviderConfig, bool) {
	if am, ok := c.Agents[agent]; ok && am.Provider != "" {
		p, ok := c.Providers[am.Provider]
		if !ok || !p.Enabled {
			return "", ProviderConfig{}, false
		}
		if am.Model != "" {
			p.Model = am.Model
		}
		return am.Provider, p, true
	}
	name, p := c.GetDefaultProvider()
	return name, p, name != ""
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled {
		return tg, true
	}
	return GatewayConfig{}, false
}
