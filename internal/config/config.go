// Package config loads the service configuration from a YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	LLM         LLMConfig         `yaml:"llm"`
	Research    ResearchConfig    `yaml:"research"`
	Mail        MailConfig        `yaml:"mail"`
	Admin       AdminConfig       `yaml:"admin"`
	DebugBridge DebugBridgeConfig `yaml:"debug_bridge"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigin   string        `yaml:"allowed_origin"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "postgres" | "sqlite3"
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	URL        string        `yaml:"url"` // empty disables the cache
	ContextTTL time.Duration `yaml:"context_ttl"`
}

type LLMConfig struct {
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	HistoryLimit    int     `yaml:"history_limit"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	RateLimitPerMin float64 `yaml:"rate_limit_per_minute"`
}

type ResearchConfig struct {
	GeminiAPIKey string `yaml:"gemini_api_key"` // empty disables lead research
	Model        string `yaml:"model"`
}

type MailConfig struct {
	SMTPHost   string `yaml:"smtp_host"` // empty logs mail instead of sending
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	AdminEmail string `yaml:"admin_email"`
}

type AdminConfig struct {
	Token string `yaml:"token"`
}

type DebugBridgeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Capacity int    `yaml:"capacity"`
}

// Defaults returns a config that runs locally against sqlite with no
// external services.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8100",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "leadline.db",
		},
		Redis: RedisConfig{ContextTTL: 24 * time.Hour},
		LLM: LLMConfig{
			BaseURL:         "http://localhost:11434/v1/",
			Model:           "llama3.1:8b",
			Temperature:     0.4,
			MaxTokens:       800,
			HistoryLimit:    20,
			RateLimitBurst:  10,
			RateLimitPerMin: 60,
		},
		Research: ResearchConfig{Model: "gemini-2.5-flash"},
		Mail: MailConfig{
			SMTPPort: 587,
			From:     "assistant@localhost",
		},
		DebugBridge: DebugBridgeConfig{
			Addr:     "127.0.0.1:8787",
			Capacity: 1000,
		},
	}
}

// Load reads path (if it exists) over the defaults, then applies env
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "LISTEN_ADDR")
	setString(&cfg.Server.AllowedOrigin, "ALLOWED_ORIGIN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.Research.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.Admin.Token, "ADMIN_TOKEN")
	setString(&cfg.Mail.SMTPHost, "SMTP_HOST")
	setString(&cfg.Mail.Username, "SMTP_USERNAME")
	setString(&cfg.Mail.Password, "SMTP_PASSWORD")
	setString(&cfg.Mail.From, "MAIL_FROM")
	setString(&cfg.Mail.AdminEmail, "ADMIN_EMAIL")

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.Mail.SMTPPort = port
	}

	// postgres:// URLs imply the postgres driver unless one was set explicitly
	if os.Getenv("DATABASE_DRIVER") == "" && strings.HasPrefix(cfg.Database.DSN, "postgres") {
		cfg.Database.Driver = "postgres"
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks cross-field constraints.
func Validate(cfg *Config) error {
	if err := validateAddr("server.addr", cfg.Server.Addr); err != nil {
		return err
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite3, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	if cfg.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if cfg.LLM.HistoryLimit <= 0 {
		return fmt.Errorf("llm.history_limit must be positive, got %d", cfg.LLM.HistoryLimit)
	}
	if cfg.LLM.RateLimitBurst <= 0 || cfg.LLM.RateLimitPerMin <= 0 {
		return errors.New("llm rate limit burst and per-minute must be positive")
	}
	if cfg.Mail.SMTPPort < 1 || cfg.Mail.SMTPPort > 65535 {
		return fmt.Errorf("mail.smtp_port out of range: %d", cfg.Mail.SMTPPort)
	}
	if cfg.DebugBridge.Enabled {
		if err := validateAddr("debug_bridge.addr", cfg.DebugBridge.Addr); err != nil {
			return err
		}
		if cfg.DebugBridge.Capacity <= 0 {
			return fmt.Errorf("debug_bridge.capacity must be positive, got %d", cfg.DebugBridge.Capacity)
		}
	}
	return nil
}

func validateAddr(field, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%s %q: invalid port", field, addr)
	}
	return nil
}
