package git

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
)

// CommandRunner executes shell commands.
// This interface allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns the trimmed stdout.
	// If the command fails, the error carries the redacted stderr/stdout.
	Run(ctx context.Context, workDir string, name string, args ...string) (stdout string, err error)
}

// ExecRunner is the default CommandRunner using exec.CommandContext.
type ExecRunner struct {
	// Secrets are scrubbed from error output and arguments.
	Secrets []string
}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner(secrets ...string) *ExecRunner {
	return &ExecRunner{Secrets: secrets}
}

// Run executes the command. Git never prompts for credentials.
func (r *ExecRunner) Run(ctx context.Context, workDir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		if errMsg == "" {
			errMsg = err.Error()
		}
		cmdErr := &CommandError{
			Command: name,
			Args:    RedactAll(args, r.Secrets...),
			WorkDir: workDir,
			Output:  Redact(errMsg, r.Secrets...),
			Err:     err,
		}
		if sig, ok := killedBy(err); ok && ctx.Err() == nil {
			return cmdErr.Output, boterrors.ErrKilled(cmdErr.Line(), sig).WithCause(cmdErr)
		}
		return cmdErr.Output, cmdErr
	}

	return strings.TrimSpace(stdout.String()), nil
}

// killedBy reports the signal that terminated the process, if any.
func killedBy(err error) (string, bool) {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return "", false
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return "", false
	}
	return ws.Signal().String(), true
}

// CommandError represents a command execution error.
type CommandError struct {
	Command string
	Args    []string
	WorkDir string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "command failed"
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Line is the command as typed, for messages.
func (e *CommandError) Line() string {
	return strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
}
