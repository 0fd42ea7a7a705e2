package config

import (
	"os"
	"strconv"
	"time"

	"gosurv/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig
	Upload    UploadConfig
	Session   SessionConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Profiling ProfilingConfig
	Coercion  CoercionConfig
	Fit       FitConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// UploadConfig limits accepted spreadsheets
type UploadConfig struct {
	MaxBytes int64
}

// SessionConfig controls in-memory session lifetime
type SessionConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	CookieName      string
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level string
}

// MetricsConfig holds prometheus exposition settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// CoercionConfig selects how spreadsheet text is turned into numbers
type CoercionConfig struct {
	Lenient bool
}

// FitConfig holds model fitting settings
type FitConfig struct {
	Alpha         float64
	MaxIterations int
	Tolerance     float64
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:    *loadServerConfig(),
		Upload:    UploadConfig{MaxBytes: int64(getEnvIntOrDefault("MAX_UPLOAD_MB", 20)) * 1024 * 1024},
		Session:   *loadSessionConfig(),
		Logging:   LoggingConfig{Level: getEnvOrDefault("LOG_LEVEL", "INFO")},
		Metrics:   *loadMetricsConfig(),
		Profiling: *loadProfilingConfig(),
		Coercion:  CoercionConfig{Lenient: getEnvBoolOrDefault("COERCE_LENIENT", false)},
		Fit:       *loadFitConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadSessionConfig() *SessionConfig {
	return &SessionConfig{
		TTL:             getEnvDurationOrDefault("SESSION_TTL", 2*time.Hour),
		CleanupInterval: getEnvDurationOrDefault("SESSION_CLEANUP_INTERVAL", 10*time.Minute),
		CookieName:      getEnvOrDefault("SESSION_COOKIE", "gosurv_session"),
	}
}

func loadMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled: getEnvBoolOrDefault("METRICS_ENABLED", true),
		Path:    getEnvOrDefault("METRICS_PATH", "/metrics"),
	}
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

func loadFitConfig() *FitConfig {
	return &FitConfig{
		Alpha:         getEnvFloatOrDefault("FIT_ALPHA", 0.05),
		MaxIterations: getEnvIntOrDefault("FIT_MAX_ITERATIONS", 50),
		Tolerance:     getEnvFloatOrDefault("FIT_TOLERANCE", 1e-9),
	}
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Upload.MaxBytes <= 0 {
		return errors.ConfigInvalid("MAX_UPLOAD_MB must be positive")
	}
	if config.Session.TTL <= 0 {
		return errors.ConfigInvalid("SESSION_TTL must be positive")
	}
	if config.Fit.Alpha <= 0 || config.Fit.Alpha >= 1 {
		return errors.ConfigInvalid("FIT_ALPHA must be in (0, 1)")
	}
	if config.Fit.MaxIterations < 1 {
		return errors.ConfigInvalid("FIT_MAX_ITERATIONS must be at least 1")
	}
	if config.Fit.Tolerance <= 0 {
		return errors.ConfigInvalid("FIT_TOLERANCE must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
