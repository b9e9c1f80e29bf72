package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/git"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// Driver turns tasks into CI pipelines.
type Driver struct {
	cfg    Config
	client CIClient
	runner git.CommandRunner
	logger *slog.Logger
}

// NewDriver creates a Driver. A nil logger uses slog.Default.
func NewDriver(cfg Config, client CIClient, runner git.CommandRunner, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cfg: cfg, client: client, runner: runner, logger: logger}
}

// Project is the CI project path running tasks of repo.
func (d *Driver) Project(repo string) string {
	return strings.Trim(d.cfg.PushNamespace, "/") + "/" + repo
}

// PushURL is the authenticated remote the task branch is pushed to.
func (d *Driver) PushURL(repo string) (string, error) {
	u, err := url.Parse(d.cfg.PushBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse push base url: %w", err)
	}
	if u.Scheme == "" || (u.Host == "" && u.Scheme != "file") {
		return "", fmt.Errorf("push base url %q needs scheme and host", d.cfg.PushBaseURL)
	}
	if d.cfg.PushToken != "" {
		u.User = url.UserPassword("oauth2", d.cfg.PushToken)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + d.Project(repo) + ".git"
	return u.String(), nil
}

// Start prepares the task branch in the working copy at t.RepoPath, pushes
// it and creates its pipeline. The returned Run is already polling.
func (d *Driver) Start(ctx context.Context, t *task.Task) (Run, error) {
	logger := d.logger.With("task_id", t.ID)
	repo := git.Open(t.RepoPath, d.runner, logger, d.cfg.PushToken)

	headSHA, err := repo.HeadSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("record head of task %s: %w", t.ID, err)
	}

	if err := d.cfg.WriteDefinition(t.RepoPath, t, headSHA); err != nil {
		return nil, err
	}

	branch, err := BranchName(t)
	if err != nil {
		return nil, err
	}
	if err := repo.CheckoutNewBranch(ctx, branch); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", branch, err)
	}
	if err := repo.CommitAll(ctx, t.Command, d.cfg.Author); err != nil && !errors.Is(err, git.ErrNothingToCommit) {
		return nil, fmt.Errorf("commit ci definition: %w", err)
	}

	pushURL, err := d.PushURL(t.GitRef.Upstream.Repo)
	if err != nil {
		return nil, err
	}
	if err := repo.ForcePush(ctx, pushURL, branch); err != nil {
		return nil, err
	}
	logger.Info("pushed task branch", "branch", branch, "head", headSHA)

	project := d.Project(t.GitRef.Upstream.Repo)
	if err := d.waitForBranch(ctx, logger, project, branch); err != nil {
		return nil, err
	}

	// Creation right after registration still races with "reference not found".
	if err := sleep(ctx, d.cfg.RegistrationGrace); err != nil {
		return nil, err
	}

	created, err := retry(ctx, logger, "create pipeline", max(d.cfg.CreateAttempts, 1), d.cfg.CreateRetryDelay,
		func(ctx context.Context) (*CreatedPipeline, error) {
			return d.client.CreatePipeline(ctx, project, branch)
		})
	if err != nil {
		return nil, fmt.Errorf("create pipeline for %s: %w", branch, err)
	}
	logger.Info("created pipeline", "pipeline_id", created.ID, "url", created.WebURL)

	// Without a Run nothing else can stop the pipeline.
	started := false
	defer func() {
		if started {
			return
		}
		if err := d.client.CancelPipeline(context.WithoutCancel(ctx), created.ProjectID, created.ID); err != nil {
			logger.Warn("cancel abandoned pipeline", "pipeline_id", created.ID, "error", err)
			return
		}
		logger.Info("cancelled abandoned pipeline", "pipeline_id", created.ID)
	}()

	jobs, err := d.client.ListPipelineJobs(ctx, created.ProjectID, created.ID)
	if err != nil {
		return nil, fmt.Errorf("list jobs of pipeline %d: %w", created.ID, err)
	}
	job, err := singleJob(created.ID, jobs)
	if err != nil {
		return nil, err
	}
	started = true

	r := newRun(task.Pipeline{ID: created.ID, ProjectID: created.ProjectID, JobWebURL: job.WebURL}, d.client, logger)
	go r.poll(d.cfg.PollInterval, d.cfg.MaxPollErrors)
	return r, nil
}

// Attach resumes a pipeline created by an earlier process. A pipeline that
// already finished yields a settled Run.
func (d *Driver) Attach(ctx context.Context, t *task.Task) (Run, error) {
	if t.CI.Pipeline == nil {
		return nil, boterrors.ErrInvalidTask(t.ID, "no pipeline to attach to")
	}
	p := *t.CI.Pipeline
	logger := d.logger.With("task_id", t.ID)

	status, err := d.client.PipelineStatus(ctx, p.ProjectID, p.ID)
	if err != nil {
		logger.Warn("initial status check failed, resuming polling", "pipeline_id", p.ID, "error", err)
	} else if status.IsTerminal() {
		logger.Info("pipeline finished while detached", "pipeline_id", p.ID, "status", status)
		return newSettledRun(p, d.client, logger, status), nil
	}

	r := newRun(p, d.client, logger)
	go r.poll(d.cfg.PollInterval, d.cfg.MaxPollErrors)
	return r, nil
}

func (d *Driver) waitForBranch(ctx context.Context, logger *slog.Logger, project, branch string) error {
	polls := max(d.cfg.RegistrationPolls, 1)
	for attempt := 1; attempt <= polls; attempt++ {
		exists, err := d.client.BranchExists(ctx, project, branch)
		if err != nil {
			logger.Warn("branch registration check failed", "branch", branch, "attempt", attempt, "error", err)
		} else if exists {
			return nil
		}
		if attempt < polls {
			if err := sleep(ctx, d.cfg.RegistrationInterval); err != nil {
				return err
			}
		}
	}
	return boterrors.ErrBranchNotRegistered(branch, polls)
}

func singleJob(pipelineID int64, jobs []CIJob) (CIJob, error) {
	if len(jobs) != 1 {
		return CIJob{}, boterrors.ErrInvalidJobs(pipelineID, fmt.Sprintf("expected exactly one job, got %d", len(jobs)))
	}
	if jobs[0].WebURL == "" {
		return CIJob{}, boterrors.ErrInvalidJobs(pipelineID, "job has no web url")
	}
	return jobs[0], nil
}
