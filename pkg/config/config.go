package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the archive crawler
type Config struct {
	// Remote archive API settings
	API APIConfig `yaml:"api" json:"api"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Discovery settings
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Persistence settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds remote API configuration
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestDelay        time.Duration `yaml:"request_delay" json:"request_delay"`
	RequestsPerMinute   int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	BackoffMultiplier   float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	CoolingOffPeriod    time.Duration `yaml:"cooling_off_period" json:"cooling_off_period"`
	CaptchaPollInterval time.Duration `yaml:"captcha_poll_interval" json:"captcha_poll_interval"`
}

// DiscoveryConfig holds discovery engine configuration
type DiscoveryConfig struct {
	BatchSize     int  `yaml:"batch_size" json:"batch_size"`
	AutoEnqueue   bool `yaml:"auto_enqueue" json:"auto_enqueue"`
	StartYear     int  `yaml:"start_year" json:"start_year"`
	EndYear       int  `yaml:"end_year" json:"end_year"`
	YearsPerFacet int  `yaml:"years_per_facet" json:"years_per_facet"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Directory       string        `yaml:"directory" json:"directory"`
	FileTypes       []string      `yaml:"file_types" json:"file_types"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts"`
	MaxIdleTime     time.Duration `yaml:"max_idle_time" json:"max_idle_time"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" json:"database_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "https://chroniclingamerica.loc.gov/",
			UserAgent: "newsagger/0.1.0 (educational archive tool)",
			Timeout:   60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestDelay:        3 * time.Second,
			RequestsPerMinute:   18,
			MaxRetries:          3,
			BackoffMultiplier:   2.0,
			CoolingOffPeriod:    60 * time.Minute,
			CaptchaPollInterval: 5 * time.Minute,
		},
		Discovery: DiscoveryConfig{
			BatchSize:     100,
			AutoEnqueue:   false,
			StartYear:     1836,
			EndYear:       1922,
			YearsPerFacet: 5,
		},
		Download: DownloadConfig{
			Directory:       "./downloads",
			FileTypes:       []string{"pdf", "jp2", "ocr", "metadata"},
			DownloadTimeout: 120 * time.Second,
			RetryAttempts:   3,
			MaxIdleTime:     30 * time.Minute,
		},
		Storage: StorageConfig{
			DatabasePath: "./newsagger.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("NEWSAGGER_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if userAgent := os.Getenv("NEWSAGGER_USER_AGENT"); userAgent != "" {
		c.API.UserAgent = userAgent
	}

	if delay := os.Getenv("NEWSAGGER_REQUEST_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			c.RateLimit.RequestDelay = d
		}
	}
	if rpm := os.Getenv("NEWSAGGER_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if retries := os.Getenv("NEWSAGGER_MAX_RETRIES"); retries != "" {
		var val int
		fmt.Sscanf(retries, "%d", &val)
		if val > 0 {
			c.RateLimit.MaxRetries = val
		}
	}

	if dir := os.Getenv("NEWSAGGER_DOWNLOAD_DIR"); dir != "" {
		c.Download.Directory = dir
	}
	if db := os.Getenv("NEWSAGGER_DATABASE_PATH"); db != "" {
		c.Storage.DatabasePath = db
	}

	if logLevel := os.Getenv("NEWSAGGER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".newsagger.yaml",
		".newsagger.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "newsagger", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "newsagger", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".newsagger.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("API timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.RateLimit.CoolingOffPeriod <= 0 {
		errs = append(errs, errors.New("cooling-off period must be positive"))
	}

	if c.Discovery.BatchSize <= 0 {
		errs = append(errs, errors.New("discovery batch size must be positive"))
	}
	if c.Discovery.StartYear > c.Discovery.EndYear {
		errs = append(errs, errors.New("discovery start year must not exceed end year"))
	}

	if c.Download.Directory == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.Storage.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".newsagger.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
