// Package config provides configuration management for command-bot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
)

// ConfigFileName is the file searched for when --config is not given.
const ConfigFileName = "command-bot.yaml"

// Config is the full command-bot configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	GitLab   GitLabConfig   `yaml:"gitlab"`
	GitHub   GitHubConfig   `yaml:"github"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Scripts  ScriptsConfig  `yaml:"scripts"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MasterTokenEnvVar names the variable holding the token allowed to
	// create and delete access tokens.
	MasterTokenEnvVar string `yaml:"master_token_env_var"`
	// CORSOrigin is echoed in Access-Control-Allow-Origin when set.
	CORSOrigin string `yaml:"cors_origin"`
}

// StorageConfig selects the task store database.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// Path is the SQLite file, relative to DataDir when not absolute.
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`
}

// GitLabConfig configures the CI service.
type GitLabConfig struct {
	BaseURL     string `yaml:"base_url"`
	TokenEnvVar string `yaml:"token_env_var"`
	// PushNamespace is the group mirroring upstream repositories; pipelines
	// run in <push_namespace>/<repo>.
	PushNamespace string `yaml:"push_namespace"`
	// PushTokenEnvVar holds the short-lived token embedded in push URLs.
	// Falls back to TokenEnvVar when empty.
	PushTokenEnvVar string     `yaml:"push_token_env_var"`
	Job             JobDefault `yaml:"job"`
}

// JobDefault applies to jobs that do not specify their own values.
type JobDefault struct {
	Image   string   `yaml:"image"`
	Tags    []string `yaml:"tags,omitempty"`
	Timeout string   `yaml:"timeout"`
}

// GitHubConfig configures the PR comment reporter.
type GitHubConfig struct {
	BaseURL     string `yaml:"base_url"`
	TokenEnvVar string `yaml:"token_env_var"`
}

// MatrixConfig configures the notification channel for API tasks.
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver"`
	TokenEnvVar string `yaml:"token_env_var"`
}

// PipelineConfig holds the CI protocol timings.
type PipelineConfig struct {
	PollInterval         time.Duration `yaml:"poll_interval"`
	MaxPollErrors        int           `yaml:"max_poll_errors"`
	RegistrationPolls    int           `yaml:"registration_polls"`
	RegistrationInterval time.Duration `yaml:"registration_interval"`
	RegistrationGrace    time.Duration `yaml:"registration_grace"`
	CreateAttempts       int           `yaml:"create_attempts"`
	CreateRetryDelay     time.Duration `yaml:"create_retry_delay"`
}

// ScriptsConfig points CI jobs at the shared scripts repository.
type ScriptsConfig struct {
	Repository string `yaml:"repository"`
	Ref        string `yaml:"ref"`
	Dir        string `yaml:"dir"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, text, json
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Addr:              ":8080",
			MasterTokenEnvVar: "CMDBOT_MASTER_TOKEN",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "command-bot.db",
		},
		GitLab: GitLabConfig{
			BaseURL:     "https://gitlab.com",
			TokenEnvVar: "GITLAB_TOKEN",
			Job: JobDefault{
				Timeout: "24 hours",
			},
		},
		GitHub: GitHubConfig{
			TokenEnvVar: "GITHUB_TOKEN",
		},
		Matrix: MatrixConfig{
			TokenEnvVar: "MATRIX_ACCESS_TOKEN",
		},
		Pipeline: PipelineConfig{
			PollInterval:         16 * time.Second,
			MaxPollErrors:        2,
			RegistrationPolls:    5,
			RegistrationInterval: 5 * time.Second,
			RegistrationGrace:    5 * time.Second,
			CreateAttempts:       3,
			CreateRetryDelay:     2 * time.Second,
		},
		Scripts: ScriptsConfig{
			Dir: ".git/.scripts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// LoadFrom loads defaults, the YAML file at path (if it exists) and
// CMDBOT_* environment overrides, in that order.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	ApplyEnvVars(cfg)
	return cfg, nil
}

// SaveTo writes the config as YAML.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// StoragePath resolves the SQLite path against DataDir.
func (c *Config) StoragePath() string {
	if c.Storage.Path == ":memory:" || filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, c.Storage.Path)
}

// Validate checks the fields serve needs.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return boterrors.ErrConfigMissing("data_dir")
	}
	switch c.Storage.Driver {
	case "sqlite", "sqlite3", "":
	case "postgres", "postgresql", "pg":
		if c.Storage.DSN == "" {
			return boterrors.ErrConfigMissing("storage.dsn")
		}
	default:
		return boterrors.ErrConfigInvalid("storage.driver", fmt.Sprintf("unsupported driver %q", c.Storage.Driver))
	}
	if c.GitLab.BaseURL == "" {
		return boterrors.ErrConfigMissing("gitlab.base_url")
	}
	if c.GitLab.PushNamespace == "" {
		return boterrors.ErrConfigMissing("gitlab.push_namespace")
	}
	p := c.Pipeline
	if p.PollInterval <= 0 || p.RegistrationInterval <= 0 || p.CreateRetryDelay < 0 || p.RegistrationGrace < 0 {
		return boterrors.ErrConfigInvalid("pipeline", "intervals must be positive")
	}
	if p.RegistrationPolls < 1 || p.CreateAttempts < 1 || p.MaxPollErrors < 0 {
		return boterrors.ErrConfigInvalid("pipeline", "registration_polls and create_attempts must be at least 1")
	}
	switch c.Log.Format {
	case "", "auto", "text", "json":
	default:
		return boterrors.ErrConfigInvalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	return nil
}
