package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Author identifies the committer of generated commits.
type Author struct {
	Name  string
	Email string
}

// Repo runs git commands in one working copy.
type Repo struct {
	dir     string
	runner  CommandRunner
	logger  *slog.Logger
	secrets []string
}

// Open returns a Repo for dir. Secrets are redacted from debug logs.
func Open(dir string, runner CommandRunner, logger *slog.Logger, secrets ...string) *Repo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{dir: dir, runner: runner, logger: logger, secrets: secrets}
}

// Dir returns the working copy path.
func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) git(ctx context.Context, op string, args ...string) (string, error) {
	r.logger.Debug("git", "op", op, "dir", r.dir, "args", RedactAll(args, r.secrets...))
	out, err := r.runner.Run(ctx, r.dir, "git", args...)
	if err != nil {
		return "", &GitError{Op: op, Output: Redact(out, r.secrets...), Err: err}
	}
	return out, nil
}

// HeadSHA returns the commit HEAD points at.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CheckoutNewBranch creates or resets branch at the current HEAD and switches to it.
func (r *Repo) CheckoutNewBranch(ctx context.Context, branch string) error {
	if err := ValidateBranchName(branch); err != nil {
		return err
	}
	_, err := r.git(ctx, "checkout", "checkout", "-B", branch)
	return err
}

// CommitAll stages every change and commits it as author.
func (r *Repo) CommitAll(ctx context.Context, message string, author Author) error {
	if _, err := r.git(ctx, "add", "add", "--all"); err != nil {
		return err
	}
	status, err := r.git(ctx, "status", "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return ErrNothingToCommit
	}
	_, err = r.git(ctx, "commit",
		"-c", "user.name="+author.Name,
		"-c", "user.email="+author.Email,
		"commit", "--no-verify", "-m", message,
	)
	return err
}

// ForcePush pushes HEAD to branch on remoteURL, replacing whatever is there.
func (r *Repo) ForcePush(ctx context.Context, remoteURL, branch string) error {
	if err := ValidateBranchName(branch); err != nil {
		return err
	}
	_, err := r.git(ctx, "push", "push", "--force", remoteURL, "HEAD:refs/heads/"+branch)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	return nil
}

// Fetch fetches ref from remote into FETCH_HEAD.
func (r *Repo) Fetch(ctx context.Context, remote, ref string) error {
	_, err := r.git(ctx, "fetch", "fetch", "--quiet", remote, ref)
	return err
}

// ResetHard moves HEAD and the working tree to rev.
func (r *Repo) ResetHard(ctx context.Context, rev string) error {
	_, err := r.git(ctx, "reset", "reset", "--hard", rev)
	return err
}

// RemoteUpdate refreshes every ref of a mirror clone.
func (r *Repo) RemoteUpdate(ctx context.Context) error {
	_, err := r.git(ctx, "remote update", "remote", "update", "--prune")
	return err
}

// IsRepo reports whether dir is inside a git repository.
func (r *Repo) IsRepo(ctx context.Context) bool {
	_, err := r.git(ctx, "rev-parse", "rev-parse", "--git-dir")
	return err == nil
}

// Clone clones src into dst, running from parentDir.
func Clone(ctx context.Context, runner CommandRunner, parentDir, src, dst string, extra ...string) error {
	args := append([]string{"clone", "--quiet"}, extra...)
	args = append(args, src, dst)
	out, err := runner.Run(ctx, parentDir, "git", args...)
	if err != nil {
		var ce *CommandError
		if errors.As(err, &ce) {
			out = ce.Output
		}
		return &GitError{Op: "clone", Output: Redact(out), Err: err}
	}
	return nil
}
