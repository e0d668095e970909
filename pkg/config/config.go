// Package config loads triad configuration from YAML and the environment.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g. TRIAD_LLM_MODEL -> llm.model.
const EnvPrefix = "TRIAD_"

// Defaults mirror the batch layout the grading harness expects.
const (
	DefaultMaxRounds         = 8
	DefaultTaskAPIURL        = "http://localhost:8081/task/index/"
	DefaultGradingAPIURL     = "http://localhost:8084/test"
	DefaultTaskFrom          = 3
	DefaultTaskTo            = 30
	DefaultReposDir          = "./repos"
	DefaultLogsDir           = "./logs"
	DefaultRepoMount         = "/repos"
	DefaultInvokeTimeout     = 20 * time.Minute
	DefaultRequestTimeout    = 5 * time.Minute
	DefaultGradingTimeout    = 30 * time.Minute
	DefaultMaxToolIterations = 25
	DefaultMaxTokens         = 4096
	DefaultTemperature       = 0.2
	DefaultModel             = "gpt-4o"
	DefaultServerAddr        = "127.0.0.1:9090"
	DefaultMaxRetries        = 3
)

// sections are the top-level keys that env variables may address as SECTION_FIELD.
var sections = map[string]bool{
	"llm": true, "loop": true, "tasks": true, "grading": true,
	"paths": true, "server": true, "log": true,
}

// Config is the full triad configuration.
type Config struct {
	LLM       LLMConfig     `koanf:"llm"`
	Loop      LoopConfig    `koanf:"loop"`
	Tasks     TasksConfig   `koanf:"tasks"`
	Grading   GradingConfig `koanf:"grading"`
	Paths     PathsConfig   `koanf:"paths"`
	Server    ServerConfig  `koanf:"server"`
	Log       LogConfig     `koanf:"log"`
	RolesFile string        `koanf:"roles_file"`
}

// LLMConfig selects and tunes the generation backend shared by all three workers.
type LLMConfig struct {
	Provider          string        `koanf:"provider"` // empty infers from model
	Model             string        `koanf:"model"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	MaxTokens         int           `koanf:"max_tokens"`
	Temperature       float32       `koanf:"temperature"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	MaxRetries        int           `koanf:"max_retries"`
	RequestsPerMinute int           `koanf:"requests_per_minute"`
	InputCPM          float64       `koanf:"input_cpm"`
	OutputCPM         float64       `koanf:"output_cpm"`
}

// LoopConfig bounds the feedback loop.
type LoopConfig struct {
	MaxRounds         int           `koanf:"max_rounds"`
	InvokeTimeout     time.Duration `koanf:"invoke_timeout"`
	MaxToolIterations int           `koanf:"max_tool_iterations"`
}

// TasksConfig locates the task registry and the batch range.
type TasksConfig struct {
	APIURL      string `koanf:"api_url"`
	From        int    `koanf:"from"`
	To          int    `koanf:"to"`
	Concurrency int    `koanf:"concurrency"`
}

// GradingConfig locates the grading service.
type GradingConfig struct {
	APIURL    string        `koanf:"api_url"`
	RepoMount string        `koanf:"repo_mount"` // where repos_dir is mounted inside the harness
	Timeout   time.Duration `koanf:"timeout"`
}

// PathsConfig holds local filesystem locations.
type PathsConfig struct {
	ReposDir string `koanf:"repos_dir"`
	LogsDir  string `koanf:"logs_dir"`
	DBPath   string `koanf:"db_path"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logx.
type LogConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
	JSON  bool   `koanf:"json"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configPath (optional; a missing file is not an error) and then
// applies TRIAD_* environment overrides.
func Load(configPath string) (*Config, error) {
	var content []byte
	if configPath != "" {
		f, err := os.Open(configPath)
		switch {
		case err == nil:
			defer f.Close()
			content, err = io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
	}
	return load(content)
}

// LoadBytes parses YAML content plus environment overrides.
func LoadBytes(content []byte) (*Config, error) {
	return load(content)
}

func load(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps TRIAD_LLM_BASE_URL to llm.base_url: split on the first
// underscore when the head names a section, otherwise keep a top-level key.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 2 && sections[parts[0]] {
		return parts[0] + "." + parts[1]
	}
	return lower
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = DefaultMaxTokens
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = DefaultTemperature
	}
	if cfg.LLM.RequestTimeout <= 0 {
		cfg.LLM.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.LLM.MaxRetries <= 0 {
		cfg.LLM.MaxRetries = DefaultMaxRetries
	}
	if cfg.Loop.MaxRounds <= 0 {
		cfg.Loop.MaxRounds = DefaultMaxRounds
	}
	if cfg.Loop.InvokeTimeout <= 0 {
		cfg.Loop.InvokeTimeout = DefaultInvokeTimeout
	}
	if cfg.Loop.MaxToolIterations <= 0 {
		cfg.Loop.MaxToolIterations = DefaultMaxToolIterations
	}
	if cfg.Tasks.APIURL == "" {
		cfg.Tasks.APIURL = DefaultTaskAPIURL
	}
	if cfg.Tasks.From == 0 && cfg.Tasks.To == 0 {
		cfg.Tasks.From = DefaultTaskFrom
		cfg.Tasks.To = DefaultTaskTo
	}
	if cfg.Tasks.Concurrency <= 0 {
		cfg.Tasks.Concurrency = 1
	}
	if cfg.Grading.APIURL == "" {
		cfg.Grading.APIURL = DefaultGradingAPIURL
	}
	if cfg.Grading.RepoMount == "" {
		cfg.Grading.RepoMount = DefaultRepoMount
	}
	if cfg.Grading.Timeout <= 0 {
		cfg.Grading.Timeout = DefaultGradingTimeout
	}
	if cfg.Paths.ReposDir == "" {
		cfg.Paths.ReposDir = DefaultReposDir
	}
	if cfg.Paths.LogsDir == "" {
		cfg.Paths.LogsDir = DefaultLogsDir
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Loop.MaxRounds < 1 {
		return fmt.Errorf("loop.max_rounds must be at least 1, got %d", c.Loop.MaxRounds)
	}
	if c.Tasks.From > c.Tasks.To {
		return fmt.Errorf("tasks.from (%d) must not exceed tasks.to (%d)", c.Tasks.From, c.Tasks.To)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0.0 and 2.0, got %v", c.LLM.Temperature)
	}
	if c.LLM.Provider != "" && !IsValidProvider(c.LLM.Provider) {
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.Provider == "" {
		if _, err := GetModelProvider(c.LLM.Model); err != nil {
			return err
		}
	}
	return nil
}

// ResolvedProvider returns the configured provider or the one inferred from the model.
func (c *LLMConfig) ResolvedProvider() (string, error) {
	if c.Provider != "" {
		return c.Provider, nil
	}
	return GetModelProvider(c.Model)
}

// TaskIndexes expands the configured [from, to] range.
func (c *TasksConfig) TaskIndexes() []int {
	if c.To < c.From {
		return nil
	}
	out := make([]int, 0, c.To-c.From+1)
	for i := c.From; i <= c.To; i++ {
		out = append(out, i)
	}
	return out
}
