package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paritytech/command-bot-sub000/internal/config"
	"github.com/paritytech/command-bot-sub000/internal/db"
	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTask(id string, queued time.Time) *task.Task {
	t := task.NewAPITask(id, task.APIOrigin{MatrixRoom: "!room:matrix.org"})
	t.Command = "echo hi"
	t.QueuedDate = task.FormatDate(queued)
	t.GitRef.Upstream = task.RepoRef{Owner: "paritytech", Repo: "polkadot", Branch: "master"}
	return t
}

func TestPutGet(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	want := newTask("a", base)
	want.CI.Job.Variables = map[string]string{"RUST_LOG": "debug"}
	require.NoError(t, s.Put(ctx, want))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.Counters.TimesRequeued = 1
	require.NoError(t, s.Put(ctx, want))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Counters.TimesRequeued)
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boterrors.ErrNotFound))
}

func TestDelete_Idempotent(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newTask("a", base)))
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))

	_, err := s.Get(ctx, "a")
	assert.True(t, errors.Is(err, boterrors.ErrNotFound))
}

func TestListSorted_ByDateThenID(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	// Inserted out of order; "b" and "c" share a timestamp.
	require.NoError(t, s.Put(ctx, newTask("z-later", base.Add(2*time.Second))))
	require.NoError(t, s.Put(ctx, newTask("c", base.Add(time.Second))))
	require.NoError(t, s.Put(ctx, newTask("b", base.Add(time.Second))))
	require.NoError(t, s.Put(ctx, newTask("y-first", base)))

	got, err := s.ListSorted(ctx)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, tk := range got {
		ids[i] = tk.ID
	}
	assert.Equal(t, []string{"y-first", "b", "c", "z-later"}, ids)
}

func TestListSorted_ComparesInstantsNotStrings(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	// Same instant expressed in a different zone sorts by time, not text.
	early := newTask("b-early", base)
	early.QueuedDate = base.In(time.FixedZone("UTC+5", 5*3600)).Format(task.DateLayout)
	late := newTask("a-late", base.Add(time.Minute))
	require.NoError(t, s.Put(ctx, late))
	require.NoError(t, s.Put(ctx, early))

	got, err := s.ListSorted(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b-early", got[0].ID)
}

func TestListSorted_DropsCorruptRecords(t *testing.T) {
	t.Parallel()
	d := db.NewTestDB(t)
	s := NewDatabaseStore(d, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newTask("good", base)))

	bad := newTask("bad-date", base)
	bad.QueuedDate = "not a date"
	require.NoError(t, s.Put(ctx, bad))

	require.NoError(t, d.PutTaskRecord(ctx, db.TaskRecord{ID: "garbage", QueuedDate: "x", Payload: []byte("{not json")}))
	require.NoError(t, d.PutTaskRecord(ctx, db.TaskRecord{ID: "mismatch", QueuedDate: "x", Payload: []byte(`{"id":"other"}`)}))

	got, err := s.ListSorted(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].ID)

	recs, err := d.ListTaskRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "corrupt records are deleted")
}

func TestNewStore_SQLiteFile(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	s, err := NewStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, filepath.Join(cfg.DataDir, "command-bot.db"), s.DB().Path())
	require.NoError(t, s.Put(context.Background(), newTask("a", base)))
}

func TestNewStore_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "mysql"
	_, err := NewStore(context.Background(), cfg, nil)
	assert.Error(t, err)
}
