// Package config loads service configuration from .env files, an optional
// YAML file and the process environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Content  ContentConfig  `yaml:"content"`
	Publish  PublishConfig  `yaml:"publish"`
	Email    EmailConfig    `yaml:"email"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// ServerConfig holds HTTP and logging settings.
type ServerConfig struct {
	Port     string `yaml:"port"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`
}

// ContentConfig selects and configures the content backend.
type ContentConfig struct {
	Provider      string        `yaml:"provider"` // "openai" or "gemini"
	OpenAIKey     string        `yaml:"openai_api_key"`
	OpenAIModel   string        `yaml:"openai_model"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	GeminiKey     string        `yaml:"gemini_api_key"`
	GeminiModel   string        `yaml:"gemini_model"`
	Timeout       time.Duration `yaml:"timeout"`
}

// PublishConfig selects and configures the publisher.
type PublishConfig struct {
	Provider     string        `yaml:"provider"` // "x", "gcs" or "local"
	XAccessToken string        `yaml:"x_access_token"`
	XAPIURL      string        `yaml:"x_api_url"`
	Bucket       string        `yaml:"bucket"`
	LocalDir     string        `yaml:"local_dir"`
	Timeout      time.Duration `yaml:"timeout"`
}

// EmailConfig selects and configures the notification provider.
type EmailConfig struct {
	Provider        string        `yaml:"provider"` // "gmail", "brevo" or "mock"
	GoogleCredsJSON string        `yaml:"google_credentials_json"`
	BrevoAPIKey     string        `yaml:"brevo_api_key"`
	From            string        `yaml:"from"`
	FromName        string        `yaml:"from_name"`
	Approver        string        `yaml:"approver"`
	Timeout         time.Duration `yaml:"timeout"`
}

// ScheduleConfig is the schedule applied at startup.
type ScheduleConfig struct {
	Frequency string `yaml:"frequency"`
	Time      string `yaml:"time"`
	Timezone  string `yaml:"timezone"`
	Active    *bool  `yaml:"active"`
}

// IsActive reports whether the startup schedule is enabled. Unset means enabled.
func (s ScheduleConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// Load reads .env files, then CONFIG_FILE if set, then environment overrides,
// fills defaults and validates the result.
func Load(logger *slog.Logger) (*Config, error) {
	loadEnvFiles(logger)

	var cfg Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		logger.Info("Config file loaded", "path", path, "bytes", len(data))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(logger *slog.Logger) {
	files := []string{".env", ".env.local"}
	var loaded []string
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			logger.Warn("Failed to load env file", "file", file, "error", err)
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) == 0 {
		logger.Debug("No local env files loaded; relying on process environment")
		return
	}
	logger.Debug("Loaded env files", "files", strings.Join(loaded, ", "))
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.BaseURL, "BASE_URL")
	setString(&c.Server.LogLevel, "LOG_LEVEL")

	setString(&c.Content.Provider, "CONTENT_PROVIDER")
	setString(&c.Content.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.Content.OpenAIModel, "OPENAI_MODEL")
	setString(&c.Content.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.Content.GeminiKey, "GEMINI_API_KEY")
	setString(&c.Content.GeminiModel, "GEMINI_MODEL")

	setString(&c.Publish.Provider, "PUBLISHER")
	setString(&c.Publish.XAccessToken, "X_ACCESS_TOKEN")
	setString(&c.Publish.XAPIURL, "X_API_URL")
	setString(&c.Publish.Bucket, "PUBLISH_BUCKET")
	setString(&c.Publish.LocalDir, "PUBLISH_LOCAL_DIR")

	setString(&c.Email.Provider, "EMAIL_PROVIDER")
	setString(&c.Email.GoogleCredsJSON, "GOOGLE_CREDENTIALS_JSON")
	setString(&c.Email.BrevoAPIKey, "BREVO_API_KEY")
	setString(&c.Email.From, "EMAIL_FROM")
	setString(&c.Email.FromName, "EMAIL_FROM_NAME")
	setString(&c.Email.Approver, "APPROVER_EMAIL")

	setString(&c.Schedule.Frequency, "SCHEDULE_FREQUENCY")
	setString(&c.Schedule.Time, "SCHEDULE_TIME")
	setString(&c.Schedule.Timezone, "SCHEDULE_TIMEZONE")
	if v := strings.TrimSpace(os.Getenv("SCHEDULE_ACTIVE")); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCHEDULE_ACTIVE: invalid boolean %q: %w", v, err)
		}
		c.Schedule.Active = &active
	}

	return errors.Join(
		setDuration(&c.Content.Timeout, "GENERATE_TIMEOUT"),
		setDuration(&c.Publish.Timeout, "PUBLISH_TIMEOUT"),
		setDuration(&c.Email.Timeout, "NOTIFY_TIMEOUT"),
	)
}

func (c *Config) applyDefaults() {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	defDur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}

	def(&c.Server.Port, "8080")
	def(&c.Server.BaseURL, "http://localhost:"+c.Server.Port)
	def(&c.Server.LogLevel, "info")

	def(&c.Content.Provider, "openai")
	def(&c.Content.OpenAIModel, "gpt-4o-mini")
	def(&c.Content.GeminiModel, "gemini-2.0-flash")
	defDur(&c.Content.Timeout, 30*time.Second)

	switch {
	case c.Publish.Provider != "":
	case c.Publish.XAccessToken != "":
		c.Publish.Provider = "x"
	case c.Publish.Bucket != "":
		c.Publish.Provider = "gcs"
	default:
		c.Publish.Provider = "local"
	}
	def(&c.Publish.XAPIURL, "https://api.twitter.com")
	def(&c.Publish.LocalDir, "./data/published")
	defDur(&c.Publish.Timeout, 30*time.Second)

	switch {
	case c.Email.Provider != "":
	case c.Email.BrevoAPIKey != "":
		c.Email.Provider = "brevo"
	case c.Email.GoogleCredsJSON != "":
		c.Email.Provider = "gmail"
	default:
		c.Email.Provider = "mock"
	}
	def(&c.Email.FromName, "Post Pilot")
	defDur(&c.Email.Timeout, 30*time.Second)

	def(&c.Schedule.Frequency, "daily")
	def(&c.Schedule.Time, "09:00")
	def(&c.Schedule.Timezone, "UTC")

	c.Content.Provider = strings.ToLower(c.Content.Provider)
	c.Publish.Provider = strings.ToLower(c.Publish.Provider)
	c.Email.Provider = strings.ToLower(c.Email.Provider)
	c.Server.LogLevel = strings.ToLower(c.Server.LogLevel)
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Server.Port))
	}
	if _, ok := logLevels[c.Server.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Server.LogLevel))
	}

	switch c.Content.Provider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("CONTENT_PROVIDER must be openai or gemini, got %q", c.Content.Provider))
	}

	switch c.Publish.Provider {
	case "x", "local":
	case "gcs":
		if c.Publish.Bucket == "" {
			errs = append(errs, errors.New("PUBLISH_BUCKET is required when PUBLISHER=gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("PUBLISHER must be x, gcs or local, got %q", c.Publish.Provider))
	}

	switch c.Email.Provider {
	case "gmail", "mock":
	case "brevo":
		if c.Email.BrevoAPIKey == "" {
			errs = append(errs, errors.New("BREVO_API_KEY is required when EMAIL_PROVIDER=brevo"))
		}
		if c.Email.From == "" {
			errs = append(errs, errors.New("EMAIL_FROM is required when EMAIL_PROVIDER=brevo"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER must be gmail, brevo or mock, got %q", c.Email.Provider))
	}

	for name, d := range map[string]time.Duration{
		"GENERATE_TIMEOUT": c.Content.Timeout,
		"PUBLISH_TIMEOUT":  c.Publish.Timeout,
		"NOTIFY_TIMEOUT":   c.Email.Timeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	return errors.Join(errs...)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (s ServerConfig) SlogLevel() slog.Level {
	if lvl, ok := logLevels[s.LogLevel]; ok {
		return lvl
	}
	return slog.LevelInfo
}
