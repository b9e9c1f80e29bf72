package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paritytech/command-bot-sub000/internal/api"
	"github.com/paritytech/command-bot-sub000/internal/config"
	"github.com/paritytech/command-bot-sub000/internal/engine"
	"github.com/paritytech/command-bot-sub000/internal/events"
	"github.com/paritytech/command-bot-sub000/internal/git"
	"github.com/paritytech/command-bot-sub000/internal/hosting"
	"github.com/paritytech/command-bot-sub000/internal/hosting/github"
	"github.com/paritytech/command-bot-sub000/internal/hosting/gitlab"
	"github.com/paritytech/command-bot-sub000/internal/lock"
	"github.com/paritytech/command-bot-sub000/internal/logging"
	"github.com/paritytech/command-bot-sub000/internal/pipeline"
	"github.com/paritytech/command-bot-sub000/internal/report"
	"github.com/paritytech/command-bot-sub000/internal/storage"
	"github.com/paritytech/command-bot-sub000/internal/workspace"
)

const defaultCloneBaseURL = "https://github.com"

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Recover leftover tasks and serve the API",
		Long: `Start command-bot.

On startup, tasks left in the store by an earlier process are recovered:
each is queued again once, and a task whose requeued attempt also never
finished is dropped with a message to its requester. The HTTP API is then
served until SIGINT or SIGTERM.

Tokens are read from the environment variables named in the config
(GITLAB_TOKEN, GITHUB_TOKEN, MATRIX_ACCESS_TOKEN and CMDBOT_MASTER_TOKEN
by default).

Example:
  command-bot serve
  command-bot serve --addr :3000 --config /etc/command-bot/command-bot.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := SetupSignalHandler()
			defer cancel()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().String("addr", "", "address to listen on (default from config, :8080)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	guard := lock.NewPIDGuard(cfg.DataDir)
	if err := guard.Acquire(); err != nil {
		return err
	}
	defer guard.Release()

	store, err := storage.NewStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	glCfg := hosting.Config{BaseURL: cfg.GitLab.BaseURL, TokenEnvVar: cfg.GitLab.TokenEnvVar}
	ci, err := gitlab.New(glCfg)
	if err != nil {
		return fmt.Errorf("gitlab: %w", err)
	}
	pushToken, err := resolvePushToken(cfg, glCfg)
	if err != nil {
		return err
	}

	ghCfg := hosting.Config{BaseURL: cfg.GitHub.BaseURL, TokenEnvVar: cfg.GitHub.TokenEnvVar}
	ghToken, _ := github.ResolveToken(ghCfg)
	var comments report.CommentWriter
	if ghToken != "" {
		gh, err := github.NewWithToken(cfg.GitHub.BaseURL, ghToken)
		if err != nil {
			return fmt.Errorf("github: %w", err)
		}
		comments = gh
	} else {
		logger.Warn("no GitHub token, pull request messages will only be logged")
	}

	var rooms report.RoomSender
	if m := report.NewMatrix(cfg.Matrix.Homeserver, os.Getenv(cfg.Matrix.TokenEnvVar)); m.Enabled() {
		rooms = m
	}

	runner := git.NewExecRunner(pushToken, ghToken)
	driver := pipeline.NewDriver(pipelineConfig(cfg, pushToken), ci, runner, logger)
	ws := workspace.New(cfg.DataDir, cloneBaseURL(cfg), ghToken, runner, logger)

	pub := events.NewMemoryPublisher()
	defer pub.Close()

	eng := engine.New(engine.Options{
		Store:     store,
		Driver:    driver,
		Workspace: ws,
		Reporter:  report.NewRouter(comments, rooms, logger),
		Publisher: pub,
		Logger:    logger,
	})
	logger.Info("command-bot starting", "version", Version, "run", eng.Version(), "storage", cfg.Storage.Driver)

	if err := eng.RequeueUnterminated(ctx); err != nil {
		// Recovered tasks keep running; the failed ones were logged.
		logger.Error("recover leftover tasks", "error", err)
	}

	srv := api.New(api.Config{
		Addr:        cfg.Server.Addr,
		MasterToken: os.Getenv(cfg.Server.MasterTokenEnvVar),
		CORSOrigin:  cfg.Server.CORSOrigin,
		Logger:      logger,
	}, eng, store.DB(), pub)
	return srv.StartContext(ctx)
}

func resolvePushToken(cfg *config.Config, glCfg hosting.Config) (string, error) {
	if name := cfg.GitLab.PushTokenEnvVar; name != "" {
		if token := os.Getenv(name); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("%w: %s is not set", hosting.ErrAuthFailed, name)
	}
	token, err := gitlab.ResolveToken(glCfg)
	if err != nil {
		return "", fmt.Errorf("gitlab push token: %w", err)
	}
	return token, nil
}

func pipelineConfig(cfg *config.Config, pushToken string) pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.PushBaseURL = cfg.GitLab.BaseURL
	pc.PushNamespace = cfg.GitLab.PushNamespace
	pc.PushToken = pushToken
	pc.DefaultImage = cfg.GitLab.Job.Image
	pc.DefaultTags = cfg.GitLab.Job.Tags
	if cfg.GitLab.Job.Timeout != "" {
		pc.DefaultTimeout = cfg.GitLab.Job.Timeout
	}
	pc.ScriptsRepository = cfg.Scripts.Repository
	pc.ScriptsRef = cfg.Scripts.Ref
	if cfg.Scripts.Dir != "" {
		pc.ScriptsDir = cfg.Scripts.Dir
	}

	p := cfg.Pipeline
	pc.PollInterval = p.PollInterval
	pc.MaxPollErrors = p.MaxPollErrors
	pc.RegistrationPolls = p.RegistrationPolls
	pc.RegistrationInterval = p.RegistrationInterval
	pc.RegistrationGrace = p.RegistrationGrace
	pc.CreateAttempts = p.CreateAttempts
	pc.CreateRetryDelay = p.CreateRetryDelay
	return pc
}

func cloneBaseURL(cfg *config.Config) string {
	if cfg.GitHub.BaseURL == "" {
		return defaultCloneBaseURL
	}
	return strings.TrimSuffix(cfg.GitHub.BaseURL, "/")
}
