package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/paritytech/command-bot-sub000/internal/storage"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"ls"},
		Short:   "List queued and running tasks",
		Long: `List the tasks persisted in the task store, oldest first.

Tasks are removed from the store once they finish, so this shows what is
queued or running, plus anything a stopped process left behind.

Example:
  command-bot tasks
  command-bot tasks --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			store, err := storage.NewStore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tasks, err := store.ListSorted(ctx)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			if jsonOut {
				return printTasksJSON(cmd.OutOrStdout(), tasks)
			}
			return printTasks(cmd.OutOrStdout(), tasks)
		},
	}
}

func printTasksJSON(out io.Writer, tasks []*task.Task) error {
	if tasks == nil {
		tasks = []*task.Task{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(tasks)
}

func printTasks(out io.Writer, tasks []*task.Task) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(out, "No tasks queued.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORIGIN\tSTATE\tREQUEUED\tQUEUED\tCOMMAND")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, origin(t), state(t), t.Counters.TimesRequeued, t.QueuedDate, truncate(t.Command, 50))
	}
	return w.Flush()
}

func origin(t *task.Task) string {
	switch {
	case t.PullRequest != nil:
		o := t.PullRequest
		return fmt.Sprintf("%s/%s#%d", o.Owner, o.Repo, o.Number)
	case t.API != nil:
		return "api"
	default:
		return "-"
	}
}

func state(t *task.Task) string {
	switch {
	case t.CI.Pipeline != nil:
		return fmt.Sprintf("running (pipeline %d)", t.CI.Pipeline.ID)
	case t.Counters.TimesExecuted > 0:
		return "preparing"
	default:
		return "queued"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
