package config

import (
	"os"
	"strconv"
	"time"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"CMDBOT_DATA_DIR":                 "data_dir",
	"CMDBOT_ADDR":                     "server.addr",
	"CMDBOT_CORS_ORIGIN":              "server.cors_origin",
	"CMDBOT_DB_DRIVER":                "storage.driver",
	"CMDBOT_DB_PATH":                  "storage.path",
	"CMDBOT_DB_DSN":                   "storage.dsn",
	"CMDBOT_GITLAB_URL":               "gitlab.base_url",
	"CMDBOT_GITLAB_PUSH_NAMESPACE":    "gitlab.push_namespace",
	"CMDBOT_GITLAB_JOB_IMAGE":         "gitlab.job.image",
	"CMDBOT_GITHUB_URL":               "github.base_url",
	"CMDBOT_MATRIX_HOMESERVER":        "matrix.homeserver",
	"CMDBOT_PIPELINE_POLL_INTERVAL":   "pipeline.poll_interval",
	"CMDBOT_PIPELINE_MAX_POLL_ERRORS": "pipeline.max_poll_errors",
	"CMDBOT_SCRIPTS_REPOSITORY":       "scripts.repository",
	"CMDBOT_SCRIPTS_REF":              "scripts.ref",
	"CMDBOT_LOG_LEVEL":                "log.level",
	"CMDBOT_LOG_FORMAT":               "log.format",
}

// ApplyEnvVars applies environment variable overrides to cfg.
// Returns the config paths that were overridden.
func ApplyEnvVars(cfg *Config) []string {
	var overridden []string
	for envVar, path := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		if applyEnvVar(cfg, path, value) {
			overridden = append(overridden, path)
		}
	}
	return overridden
}

func applyEnvVar(cfg *Config, path, value string) bool {
	switch path {
	case "data_dir":
		cfg.DataDir = value
	case "server.addr":
		cfg.Server.Addr = value
	case "server.cors_origin":
		cfg.Server.CORSOrigin = value
	case "storage.driver":
		cfg.Storage.Driver = value
	case "storage.path":
		cfg.Storage.Path = value
	case "storage.dsn":
		cfg.Storage.DSN = value
	case "gitlab.base_url":
		cfg.GitLab.BaseURL = value
	case "gitlab.push_namespace":
		cfg.GitLab.PushNamespace = value
	case "gitlab.job.image":
		cfg.GitLab.Job.Image = value
	case "github.base_url":
		cfg.GitHub.BaseURL = value
	case "matrix.homeserver":
		cfg.Matrix.Homeserver = value
	case "pipeline.poll_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		cfg.Pipeline.PollInterval = d
	case "pipeline.max_poll_errors":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.Pipeline.MaxPollErrors = n
	case "scripts.repository":
		cfg.Scripts.Repository = value
	case "scripts.ref":
		cfg.Scripts.Ref = value
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return false
	}
	return true
}
