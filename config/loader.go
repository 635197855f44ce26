// Package config loads the engine's configuration from defaults, an
// optional YAML file, and environment variable overrides, in that order of
// increasing precedence.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("lcm.yaml").
//	    WithEnvPrefix("LCM").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine's complete configuration surface.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" env:"DB"`
	Thresholds ThresholdConfig  `yaml:"thresholds" env:"THRESHOLDS"`
	Compaction CompactionConfig `yaml:"compaction" env:"COMPACTION"`
	Capture    CaptureConfig    `yaml:"capture" env:"CAPTURE"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" env:"RETRIEVAL"`
	LLM        LLMConfig        `yaml:"llm" env:"LLM"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
}

// DatabaseConfig configures the embedded SQLite store.
type DatabaseConfig struct {
	// Path is the database file location, overridden by LCM_DB_PATH per
	// spec.md §6.
	Path            string        `yaml:"path" env:"PATH"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// ThresholdConfig holds the two compaction trigger points from spec.md §4.D.
type ThresholdConfig struct {
	// SoftTokens (τ_soft) triggers asynchronous, best-effort compaction.
	SoftTokens int `yaml:"soft_tokens" env:"SOFT_TOKENS"`
	// HardTokens (τ_hard) blocks the caller until pressure drops below τ_soft.
	HardTokens int `yaml:"hard_tokens" env:"HARD_TOKENS"`
}

// CompactionConfig holds the block-selection and condensation-fanout knobs
// spec.md §9 calls out as defaults rather than invariants.
type CompactionConfig struct {
	// BlockMinTokens / BlockMaxTokens (B_min/B_max) bound one leaf block.
	BlockMinTokens int `yaml:"block_min_tokens" env:"BLOCK_MIN_TOKENS"`
	BlockMaxTokens int `yaml:"block_max_tokens" env:"BLOCK_MAX_TOKENS"`
	// CondensationFanout (C) is how many uncondensed summaries at a level
	// accumulate before they condense into the next level.
	CondensationFanout int `yaml:"condensation_fanout" env:"CONDENSATION_FANOUT"`
	// CondensationTokens is the target budget T for a condensation pass.
	CondensationTokens int `yaml:"condensation_tokens" env:"CONDENSATION_TOKENS"`
	// EscalationOvershoot is the multiplier on T the engine accepts from the
	// preserve_details/bullet_points levels before escalating further.
	EscalationOvershoot float64 `yaml:"escalation_overshoot" env:"ESCALATION_OVERSHOOT"`
}

// CaptureConfig configures the transcript-diff capture protocol.
type CaptureConfig struct {
	// BlobThresholdBytes is the size above which a tool-result blob is
	// diverted to the file-reference table instead of inlined in a message.
	BlobThresholdBytes int `yaml:"blob_threshold_bytes" env:"BLOB_THRESHOLD_BYTES"`
	// BlobStorageDir is where diverted blob content is written, keyed by
	// sha256. The file reference's storage_uri points back into it.
	BlobStorageDir string `yaml:"blob_storage_dir" env:"BLOB_STORAGE_DIR"`
}

// RetrievalConfig configures the status/grep/describe/expand tools.
type RetrievalConfig struct {
	PageSize         int           `yaml:"page_size" env:"PAGE_SIZE"`
	RegexResultCap   int           `yaml:"regex_result_cap" env:"REGEX_RESULT_CAP"`
	RegexScanTimeout time.Duration `yaml:"regex_scan_timeout" env:"REGEX_SCAN_TIMEOUT"`
}

// LLMConfig configures the summarization/classification backend.
type LLMConfig struct {
	// APIKey is normally supplied via the provider's own env var rather
	// than YAML; see config.ResolveAPIKey.
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Model       string        `yaml:"model" env:"MODEL"`
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
	// MaxRetries is the total number of attempts a call gets, not the
	// number of retries after the first.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseBackoff time.Duration `yaml:"base_backoff" env:"BASE_BACKOFF"`
	MaxBackoff  time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
}

// LogConfig configures the zap logger shared by every component.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// Loader builds a Config from defaults, an optional YAML file, and env vars.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader defaulting to the LCM_ env prefix spec.md §6
// documents.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "LCM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path to overlay onto the defaults.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation pass run after the overlay completes.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves configuration: defaults, then YAML file, then environment
// variables, in increasing precedence.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	// LCM_DB_PATH is spec.md §6's own documented override name; resolve it
	// explicitly so it never drifts even if DatabaseConfig is reshaped.
	if v := os.Getenv("LCM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration from path, panicking on failure. Intended for
// cmd/lcm's main(), where there is no sensible recovery from a bad config.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks invariants the rest of the engine assumes hold.
func (c *Config) Validate() error {
	var errs []string

	if c.Thresholds.SoftTokens <= 0 {
		errs = append(errs, "thresholds.soft_tokens must be positive")
	}
	if c.Thresholds.HardTokens <= c.Thresholds.SoftTokens {
		errs = append(errs, "thresholds.hard_tokens must exceed thresholds.soft_tokens")
	}
	if c.Compaction.BlockMinTokens <= 0 || c.Compaction.BlockMaxTokens < c.Compaction.BlockMinTokens {
		errs = append(errs, "compaction.block_min_tokens/block_max_tokens out of order")
	}
	if c.Compaction.CondensationFanout < 2 {
		errs = append(errs, "compaction.condensation_fanout must be at least 2")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path must be set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ResolveAPIKey returns the LLM provider API key: cfg.LLM.APIKey if set,
// otherwise the value of the given provider environment variable.
func ResolveAPIKey(cfg *Config, envVar string) string {
	if cfg.LLM.APIKey != "" {
		return cfg.LLM.APIKey
	}
	return os.Getenv(envVar)
}

// ResolveSessionID returns sessionID if non-empty, otherwise the
// CLAUDE_SESSION_ID fallback spec.md §6 documents.
func ResolveSessionID(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return os.Getenv("CLAUDE_SESSION_ID")
}
