package engine

import (
	"fmt"
	"strings"
	"time"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/pipeline"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

func preparingMessage(t *task.Task, ahead int) string {
	msg := fmt.Sprintf("Preparing command %q.", t.Command)
	switch {
	case ahead < 0:
		return msg
	case ahead == 0:
		return msg + " No other tasks are queued."
	case ahead == 1:
		return msg + " 1 task was queued before it."
	default:
		return fmt.Sprintf("%s %d tasks were queued before it.", msg, ahead)
	}
}

func startedMessage(t *task.Task, p task.Pipeline) string {
	return fmt.Sprintf("Command %q has started 🚀 See logs: %s", t.Command, p.JobWebURL)
}

func finalMessage(t *task.Task, res Result, elapsed time.Duration) string {
	var b strings.Builder
	took := elapsed.Round(time.Second)

	switch res.Status {
	case pipeline.StatusSuccess:
		fmt.Fprintf(&b, "Command %q has finished ✅ (took %s)", t.Command, took)
	case pipeline.StatusCanceled:
		fmt.Fprintf(&b, "Command %q was cancelled after %s", t.Command, took)
	case pipeline.StatusSkipped:
		fmt.Fprintf(&b, "Command %q was skipped by CI after %s", t.Command, took)
	default:
		if res.Pipeline == nil {
			fmt.Fprintf(&b, "Command %q could not be started ❌", t.Command)
		} else {
			fmt.Fprintf(&b, "Command %q has failed ❌ (took %s)", t.Command, took)
		}
	}

	if res.Pipeline != nil && res.Pipeline.JobWebURL != "" {
		fmt.Fprintf(&b, "\nJob: %s\nArtifacts: %s", res.Pipeline.JobWebURL, res.Pipeline.ArtifactsURL())
	}
	if res.Err != nil {
		if be := boterrors.AsBotError(res.Err); be != nil {
			fmt.Fprintf(&b, "\n\n%s", be.UserMessage())
		} else {
			fmt.Fprintf(&b, "\n\nError: %s", res.Err)
		}
	}
	return b.String()
}

func requeuedMessage(t *task.Task) string {
	return fmt.Sprintf("The bot restarted while command %q was in progress. It was queued again (restart %d).",
		t.Command, t.Counters.TimesRequeued)
}

func exhaustedMessage(t *task.Task) string {
	return fmt.Sprintf("The bot restarted while command %q was in progress. It already failed to finish after a previous restart, so it will not be run again.",
		t.Command)
}
