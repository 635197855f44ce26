package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns the engine's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database:   DefaultDatabaseConfig(),
		Thresholds: DefaultThresholdConfig(),
		Compaction: DefaultCompactionConfig(),
		Capture:    DefaultCaptureConfig(),
		Retrieval:  DefaultRetrievalConfig(),
		LLM:        DefaultLLMConfig(),
		Log:        DefaultLogConfig(),
	}
}

// DefaultDatabaseConfig returns the default database configuration,
// resolving Path to ~/.lcm/lcm.db per spec.md §6.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path:            defaultDBPath(),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}

// defaultDBPath resolves ~/.lcm/lcm.db, falling back to a relative path if
// the home directory cannot be determined.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".lcm", "lcm.db")
	}
	return filepath.Join(home, ".lcm", "lcm.db")
}

// DefaultThresholdConfig returns τ_soft = 50,000 and τ_hard = 200,000 per
// spec.md §4.D.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		SoftTokens: 50_000,
		HardTokens: 200_000,
	}
}

// DefaultCompactionConfig returns the block-size and condensation defaults
// spec.md §9 calls out as configuration, not invariants.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		BlockMinTokens:      4_000,
		BlockMaxTokens:      12_000,
		CondensationFanout:  5,
		CondensationTokens:  2_000,
		EscalationOvershoot: 1.25,
	}
}

// DefaultCaptureConfig returns the 16 KiB blob-diversion threshold of
// spec.md §4.E.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		BlobThresholdBytes: 16 * 1024,
		BlobStorageDir:     defaultBlobStorageDir(),
	}
}

// defaultBlobStorageDir resolves ~/.lcm/blobs, falling back to a relative
// path if the home directory cannot be determined.
func defaultBlobStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".lcm", "blobs")
	}
	return filepath.Join(home, ".lcm", "blobs")
}

// DefaultRetrievalConfig returns the pagination, regex result cap, and
// regex scan timeout defaults of spec.md §4.A/§8.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		PageSize:         10,
		RegexResultCap:   100,
		RegexScanTimeout: 500 * time.Millisecond,
	}
}

// DefaultLLMConfig returns the retry/timeout defaults of spec.md §4.B.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "claude-sonnet-4-5",
		CallTimeout: 60 * time.Second,
		MaxRetries:  5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// DefaultLogConfig returns the default structured-logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
