package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paritytech/command-bot-sub000/internal/task"
)

func sampleTasks() []*task.Task {
	pr := task.NewPullRequestTask("20240102T030405.000000Z-000000", task.PullRequestOrigin{Owner: "paritytech", Repo: "polkadot", Number: 7})
	pr.Command = "cargo test"
	pr.QueuedDate = "2024-01-02T03:04:05Z"
	pr.CI.Pipeline = &task.Pipeline{ID: 99}

	api := task.NewAPITask("20240102T030406.000000Z-000000", task.APIOrigin{MatrixRoom: "!r:x"})
	api.Command = "echo hi"
	api.Counters.TimesRequeued = 1
	return []*task.Task{pr, api}
}

func TestPrintTasks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTasks(&buf, sampleTasks()))

	out := buf.String()
	assert.Contains(t, out, "paritytech/polkadot#7")
	assert.Contains(t, out, "running (pipeline 99)")
	assert.Contains(t, out, "api")
	assert.Contains(t, out, "queued")
}

func TestPrintTasks_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTasks(&buf, nil))
	assert.Equal(t, "No tasks queued.\n", buf.String())

	buf.Reset()
	require.NoError(t, printTasksJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestPrintTasksJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTasksJSON(&buf, sampleTasks()))

	var got []task.Task
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, task.TagPullRequest, got[0].Tag)
	assert.Equal(t, 1, got[1].Counters.TimesRequeued)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
