package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/cgast/prowrite/internal/logging"
	"github.com/cgast/prowrite/internal/sandbox"
	"github.com/cgast/prowrite/pkg/bench"
	"github.com/cgast/prowrite/pkg/model"
	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/scorer"
	"github.com/cgast/prowrite/pkg/text"
)

// Default locations, relative to the working directory.
const (
	DefaultDir           = ".prowrite"
	ConfigFile           = "config.yaml"
	ProvidersFile        = "providers.yaml"
	DefaultTasksDir      = "tasks"
	DefaultResultsDir    = "results"
	DefaultStoreFile     = "results.db"
	DefaultInspectorPort = 7070
)

// Config represents the runtime configuration from .prowrite/config.yaml.
type Config struct {
	LogLevel    string          `yaml:"log_level"`
	LogFormat   string          `yaml:"log_format"`
	TasksDir    string          `yaml:"tasks_dir"`
	ResultsDir  string          `yaml:"results_dir"`
	Concurrency int             `yaml:"concurrency"`
	Timeouts    TimeoutConfig   `yaml:"timeouts"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Scoring     ScoringConfig   `yaml:"scoring"`
	Judge       JudgeConfig     `yaml:"judge"`
	Store       StoreConfig     `yaml:"store"`
	Inspector   InspectorConfig `yaml:"inspector"`
	Serve       ServeConfig     `yaml:"serve"`
}

// TimeoutConfig bounds each provider call. Both bounds must be positive.
type TimeoutConfig struct {
	Model time.Duration `yaml:"model"`
	Judge time.Duration `yaml:"judge"`
}

// RateLimitConfig is a token bucket shared by calls to one provider.
// RequestsPerSecond <= 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ScoringConfig tunes the scorers and the aggregator.
type ScoringConfig struct {
	WordBudget     int           `yaml:"word_budget"`
	BalanceK       float64       `yaml:"balance_k"`
	JudgeThreshold float64       `yaml:"judge_threshold"`
	Seed           uint64        `yaml:"seed"`
	PassThreshold  float64       `yaml:"pass_threshold"`
	Weights        score.Weights `yaml:"weights"`
}

// JudgeConfig selects the judge oracle. Models are provider model specs
// ("claude-sonnet-4", "openai:gpt-4o"); Endpoint adds an HTTP judge.
type JudgeConfig struct {
	Models   []string `yaml:"models"`
	Ensemble string   `yaml:"ensemble"`
	Endpoint string   `yaml:"endpoint"`
}

// StoreConfig locates the results database. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// InspectorConfig defines inspector server settings.
type InspectorConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ServeConfig limits the task files serve-mode clients may read. Empty
// AllowedPaths means the tasks directory.
type ServeConfig struct {
	AllowedPaths []string `yaml:"allowed_paths"`
	DeniedPaths  []string `yaml:"denied_paths"`
	MaxTaskSize  string   `yaml:"max_task_size"`
}

// ProviderConfig represents credentials from .prowrite/providers.yaml,
// overridden by the environment.
type ProviderConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	GitHub    GitHubConfig    `yaml:"github"`
	Judge     JudgeEndpoint   `yaml:"judge"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	BaseURL string `yaml:"base_url" env:"ANTHROPIC_BASE_URL"`
}

// GitHubConfig holds report publishing settings.
type GitHubConfig struct {
	Token       string `yaml:"token" env:"GITHUB_TOKEN"`
	DefaultRepo string `yaml:"default_repo" env:"PROWRITE_GITHUB_REPO"`
}

// JudgeEndpoint holds headers sent to an HTTP judge.
type JudgeEndpoint struct {
	Headers map[string]string `yaml:"headers"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   logging.FormatText,
		TasksDir:    DefaultTasksDir,
		ResultsDir:  DefaultResultsDir,
		Concurrency: 4,
		Timeouts: TimeoutConfig{
			Model: 120 * time.Second,
			Judge: 60 * time.Second,
		},
		Scoring: ScoringConfig{
			WordBudget:     text.DefaultWordBudget,
			BalanceK:       scorer.DefaultBalanceK,
			JudgeThreshold: 50,
			PassThreshold:  bench.DefaultPassThreshold,
			Weights:        score.DefaultWeights(),
		},
		Judge: JudgeConfig{
			Ensemble: string(oracle.MethodMean),
		},
		Store: StoreConfig{
			Path: filepath.Join(DefaultDir, DefaultStoreFile),
		},
		Inspector: InspectorConfig{
			Port: DefaultInspectorPort,
		},
		Serve: ServeConfig{
			DeniedPaths: []string{DefaultDir},
			MaxTaskSize: "1MB",
		},
	}
}

// LoadConfig reads and parses a runtime config YAML file.
// Returns default config if the file doesn't exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values the runner cannot recover from.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Timeouts.Model <= 0 || c.Timeouts.Judge <= 0 {
		errs = append(errs, fmt.Errorf("timeouts must be positive (model %s, judge %s)", c.Timeouts.Model, c.Timeouts.Judge))
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !score.InRange(c.Scoring.JudgeThreshold) || !score.InRange(c.Scoring.PassThreshold) {
		errs = append(errs, errors.New("thresholds must be within [0,100]"))
	}
	if c.Scoring.BalanceK < 0 {
		errs = append(errs, fmt.Errorf("balance_k must not be negative, got %v", c.Scoring.BalanceK))
	}
	if _, err := oracle.ParseMethod(c.Judge.Ensemble); err != nil {
		errs = append(errs, err)
	}
	if c.Serve.MaxTaskSize != "" {
		if _, err := sandbox.ParseFileSize(c.Serve.MaxTaskSize); err != nil {
			errs = append(errs, fmt.Errorf("serve.max_task_size: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Bench returns the runner configuration.
func (c Config) Bench(logger *slog.Logger) bench.Config {
	b := bench.DefaultConfig()
	b.Concurrency = c.Concurrency
	b.WordBudget = c.Scoring.WordBudget
	b.BalanceK = c.Scoring.BalanceK
	b.JudgeThreshold = c.Scoring.JudgeThreshold
	b.PassThreshold = c.Scoring.PassThreshold
	b.Seed = c.Scoring.Seed
	b.Weights = c.Scoring.Weights
	b.Logger = logger
	return b
}

// ModelOptions returns the decorators for the model under test. The rate
// limiter is filled in per provider from Limiters.
func (c Config) ModelOptions() model.Options {
	return model.Options{Timeout: c.Timeouts.Model}
}

// JudgeOptions returns the decorators for judge models.
func (c Config) JudgeOptions() model.Options {
	return model.Options{Timeout: c.Timeouts.Judge}
}

// Limiters returns the per-provider rate limit set for one process. Every
// adapter of a provider, model under test and judges alike, must draw from
// the same set.
func (c Config) Limiters() *model.Limiters {
	return model.NewLimiters(c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
}

// Sandbox returns the sandbox guarding serve-mode file reads.
func (c Config) Sandbox() (*sandbox.Sandbox, error) {
	allowed := c.Serve.AllowedPaths
	if len(allowed) == 0 {
		allowed = []string{c.TasksDir}
	}
	return sandbox.New(sandbox.Config{
		AllowedPaths: allowed,
		DeniedPaths:  c.Serve.DeniedPaths,
		MaxFileSize:  c.Serve.MaxTaskSize,
	})
}

// LoadProviderConfig reads and parses a provider credentials YAML file.
// Performs environment variable interpolation on string values, then lets
// the provider environment variables override the file.
func LoadProviderConfig(path string) (ProviderConfig, error) {
	var cfg ProviderConfig

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read provider config %s: %w", path, err)
	}

	if len(data) > 0 {
		interpolated := interpolateEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
			return cfg, fmt.Errorf("parse provider config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}

// Path returns the path of file inside the config directory dir.
func Path(dir, file string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, file)
}
