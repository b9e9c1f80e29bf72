// Package workspace prepares the per-task working copies the pipeline driver
// commits into.
//
// Each upstream repository has one bare mirror under <root>/mirrors, refreshed
// before every task. Tasks get their own clone of the mirror under
// <root>/repos/<owner>/<repo>/<task id>, reset to the contributor's branch.
// Mirror refreshes of one repository must not overlap; callers serialize them.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/paritytech/command-bot-sub000/internal/git"
	"github.com/paritytech/command-bot-sub000/internal/task"
	"github.com/paritytech/command-bot-sub000/internal/util"
)

// Workspace owns the mirrors and working copies below a root directory.
type Workspace struct {
	root     string
	cloneURL string
	token    string
	runner   git.CommandRunner
	logger   *slog.Logger
}

// New creates a Workspace. cloneBaseURL is where owner/repo is cloned from,
// e.g. https://github.com. A non-empty token is used for HTTPS clones and
// redacted from logs.
func New(root, cloneBaseURL, token string, runner git.CommandRunner, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{
		root:     root,
		cloneURL: strings.TrimSuffix(cloneBaseURL, "/"),
		token:    token,
		runner:   runner,
		logger:   logger,
	}
}

// RemoteURL is the clone URL of owner/repo.
func (w *Workspace) RemoteURL(owner, repo string) (string, error) {
	u, err := url.Parse(w.cloneURL + "/" + owner + "/" + repo + ".git")
	if err != nil {
		return "", fmt.Errorf("clone url for %s/%s: %w", owner, repo, err)
	}
	if w.token != "" && (u.Scheme == "https" || u.Scheme == "http") {
		u.User = url.UserPassword("x-access-token", w.token)
	}
	return u.String(), nil
}

func (w *Workspace) secrets() []string {
	if w.token == "" {
		return nil
	}
	return []string{w.token}
}

// Checkout creates a fresh working copy for t from mirror at the head of
// its contributor branch and records it in t.RepoPath.
func (w *Workspace) Checkout(ctx context.Context, t *task.Task, mirror string) error {
	up, contrib := t.GitRef.Upstream, t.GitRef.Contributor
	dir, err := util.Within(w.reposRoot(), up.Owner, up.Repo, t.ID)
	if err != nil {
		return err
	}
	if err := util.RemoveWithin(w.reposRoot(), dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	if err := git.Clone(ctx, w.runner, parent, mirror, filepath.Base(dir)); err != nil {
		return fmt.Errorf("clone working copy of task %s: %w", t.ID, err)
	}

	remote, branch := mirror, up.Branch
	if contrib.Owner != "" && contrib.Branch != "" {
		remote, err = w.RemoteURL(contrib.Owner, contrib.Repo)
		if err != nil {
			return err
		}
		branch = contrib.Branch
	}

	repo := git.Open(dir, w.runner, w.logger, w.secrets()...)
	if branch != "" {
		if err := repo.Fetch(ctx, remote, branch); err != nil {
			return fmt.Errorf("fetch %s of task %s: %w", branch, t.ID, err)
		}
		if err := repo.ResetHard(ctx, "FETCH_HEAD"); err != nil {
			return err
		}
	}

	t.RepoPath = dir
	w.logger.Debug("prepared working copy", "task_id", t.ID, "dir", dir, "branch", branch)
	return nil
}

// Remove deletes t's working copy. It is a no-op when none was prepared.
func (w *Workspace) Remove(t *task.Task) error {
	if t.RepoPath == "" {
		return nil
	}
	return util.RemoveWithin(w.reposRoot(), t.RepoPath)
}

func (w *Workspace) reposRoot() string {
	return filepath.Join(w.root, "repos")
}

// Mirror clones or updates the bare mirror of owner/repo and returns its path.
func (w *Workspace) Mirror(ctx context.Context, owner, repo string) (string, error) {
	path, err := util.Within(filepath.Join(w.root, "mirrors"), owner, repo+".git")
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		if err := git.Open(path, w.runner, w.logger, w.secrets()...).RemoteUpdate(ctx); err != nil {
			return "", fmt.Errorf("update mirror of %s/%s: %w", owner, repo, err)
		}
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	src, err := w.RemoteURL(owner, repo)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	w.logger.Info("cloning mirror", "repo", owner+"/"+repo)
	if err := git.Clone(ctx, w.runner, filepath.Dir(path), src, filepath.Base(path), "--mirror"); err != nil {
		return "", fmt.Errorf("clone mirror of %s/%s: %w", owner, repo, err)
	}
	return path, nil
}
