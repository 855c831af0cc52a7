package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerPort  = 8080
	DefaultConcurrency = 4

	maxConcurrency = 32

	logFormatJSON    = "json"
	logFormatConsole = "console"
)

// Config represents the CLI configuration parsed from YAML. Environment
// variables and flags are layered on top by the cmd package.
type Config struct {
	Client        ClientConfig        `yaml:"client"`
	Chat          ChatConfig          `yaml:"chat"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Log           LogConfig           `yaml:"log"`
	Server        ServerConfig        `yaml:"server"`
}

// ClientConfig holds the credential and transport settings for the API client.
type ClientConfig struct {
	Token     string        `yaml:"token"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// ChatConfig supplies defaults for the chat command.
type ChatConfig struct {
	Model       string   `yaml:"model"`
	System      string   `yaml:"system"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`
}

// TranscriptionConfig supplies defaults for the transcribe command.
type TranscriptionConfig struct {
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	ResponseFormat string `yaml:"response_format"`
	Concurrency    int    `yaml:"concurrency"`
}

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`      // json or console
	TimeFormat string `yaml:"time_format"` // RFC3339, Unix or UnixMs
	Output     string `yaml:"output"`      // stderr, stdout or file
	FilePath   string `yaml:"file_path"`
}

// ServerConfig defines the stub provider listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Transcription: TranscriptionConfig{Concurrency: DefaultConcurrency},
		Log: LogConfig{
			Level:  zerolog.InfoLevel.String(),
			Format: logFormatConsole,
			Output: "stderr",
		},
		Server: ServerConfig{Port: DefaultServerPort},
	}
}

// Load reads YAML configuration from disk over the defaults and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs strict sanity checks on the configuration. The token is
// not required here since it may arrive from the environment.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if err := validateClient(c.Client); err != nil {
		return err
	}

	if c.Chat.MaxTokens != nil && *c.Chat.MaxTokens < 1 {
		return fmt.Errorf("chat.max_tokens must be at least 1, got %d", *c.Chat.MaxTokens)
	}

	if c.Transcription.Concurrency < 1 || c.Transcription.Concurrency > maxConcurrency {
		return fmt.Errorf("transcription.concurrency must be between 1 and %d, got %d", maxConcurrency, c.Transcription.Concurrency)
	}

	return validateLog(c.Log)
}

func validateClient(client ClientConfig) error {
	if strings.ContainsAny(client.Token, " \t\r\n") {
		return fmt.Errorf("client.token must not contain whitespace")
	}

	if client.BaseURL != "" {
		parsed, err := url.Parse(client.BaseURL)
		if err != nil {
			return fmt.Errorf("client.base_url: %w", err)
		}
		if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("client.base_url must be an absolute http(s) url, got %q", client.BaseURL)
		}
	}

	if client.Timeout < 0 {
		return fmt.Errorf("client.timeout must not be negative, got %s", client.Timeout)
	}
	return nil
}

func validateLog(log LogConfig) error {
	if _, err := zerolog.ParseLevel(log.Level); err != nil {
		return fmt.Errorf("log.level %q is not a valid level", log.Level)
	}

	switch log.Format {
	case "", logFormatJSON, logFormatConsole:
	default:
		return fmt.Errorf("log.format %q must be one of %q or %q", log.Format, logFormatJSON, logFormatConsole)
	}

	if log.Output == "file" && strings.TrimSpace(log.FilePath) == "" {
		return fmt.Errorf("log.file_path must be provided when log.output is file")
	}
	return nil
}
