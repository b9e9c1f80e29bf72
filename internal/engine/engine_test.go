package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paritytech/command-bot-sub000/internal/command"
	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/events"
	"github.com/paritytech/command-bot-sub000/internal/pipeline"
	"github.com/paritytech/command-bot-sub000/internal/storage"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

const waitTimeout = 5 * time.Second

type fakeRun struct {
	p          task.Pipeline
	done       chan struct{}
	once       sync.Once
	status     pipeline.Status
	err        error
	terminates atomic.Int32
}

func newFakeRun(id int64) *fakeRun {
	return &fakeRun{
		p:    task.Pipeline{ID: id, ProjectID: 7, JobWebURL: "https://gitlab.example/ci/polkadot/-/jobs/1"},
		done: make(chan struct{}),
	}
}

func (r *fakeRun) finish(status pipeline.Status, err error) {
	r.once.Do(func() {
		r.status, r.err = status, err
		close(r.done)
	})
}

func (r *fakeRun) Pipeline() task.Pipeline { return r.p }

func (r *fakeRun) Wait(ctx context.Context) (pipeline.Status, error) {
	select {
	case <-r.done:
		return r.status, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *fakeRun) Terminate(context.Context) error {
	r.terminates.Add(1)
	r.finish(pipeline.StatusCanceled, nil)
	return nil
}

type fakeDriver struct {
	mu       sync.Mutex
	start    func(ctx context.Context, t *task.Task) (pipeline.Run, error)
	attach   func(ctx context.Context, t *task.Task) (pipeline.Run, error)
	starts   []string
	attaches []string
	snapshot []task.Counters
}

func (d *fakeDriver) Start(ctx context.Context, t *task.Task) (pipeline.Run, error) {
	d.mu.Lock()
	d.starts = append(d.starts, t.ID)
	d.snapshot = append(d.snapshot, t.Counters)
	d.mu.Unlock()
	return d.start(ctx, t)
}

func (d *fakeDriver) Attach(ctx context.Context, t *task.Task) (pipeline.Run, error) {
	d.mu.Lock()
	d.attaches = append(d.attaches, t.ID)
	d.snapshot = append(d.snapshot, t.Counters)
	d.mu.Unlock()
	return d.attach(ctx, t)
}

func (d *fakeDriver) calls() (starts, attaches []string, counters []task.Counters) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.starts...), append([]string(nil), d.attaches...), append([]task.Counters(nil), d.snapshot...)
}

type fakeWorkspace struct {
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	mirrors  atomic.Int32
	removed  atomic.Int32
}

func (w *fakeWorkspace) Mirror(context.Context, string, string) (string, error) {
	n := w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	for {
		m := w.maxSeen.Load()
		if n <= m || w.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	w.mirrors.Add(1)
	if w.release != nil {
		<-w.release
	}
	return "/mirror", nil
}

func (w *fakeWorkspace) Checkout(_ context.Context, t *task.Task, mirror string) error {
	t.RepoPath = mirror + "/" + t.ID
	return nil
}

func (w *fakeWorkspace) Remove(*task.Task) error {
	w.removed.Add(1)
	return nil
}

type recordingReporter struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (r *recordingReporter) Deliver(_ context.Context, t *task.Task, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messages == nil {
		r.messages = make(map[string][]string)
	}
	r.messages[t.ID] = append(r.messages[t.ID], message)
	return nil
}

func (r *recordingReporter) For(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages[id]...)
}

type fixture struct {
	engine    *Engine
	store     *storage.DatabaseStore
	driver    *fakeDriver
	workspace *fakeWorkspace
	reporter  *recordingReporter
	events    *events.MemoryPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     storage.NewTestStore(t),
		driver:    &fakeDriver{},
		workspace: &fakeWorkspace{},
		reporter:  &recordingReporter{},
		events:    events.NewMemoryPublisher(),
	}
	t.Cleanup(f.events.Close)
	f.engine = New(Options{
		Store:     f.store,
		Driver:    f.driver,
		Workspace: f.workspace,
		Reporter:  f.reporter,
		Publisher: f.events,
		Version:   "v-current",
	})
	return f
}

// runs makes the driver hand out a fresh blocking run per started task.
func (f *fixture) runs() *sync.Map {
	var m sync.Map
	var n atomic.Int64
	f.driver.start = func(_ context.Context, t *task.Task) (pipeline.Run, error) {
		r := newFakeRun(n.Add(1))
		m.Store(t.ID, r)
		return r, nil
	}
	return &m
}

func runFor(t *testing.T, m *sync.Map, id string) *fakeRun {
	t.Helper()
	var r *fakeRun
	require.Eventually(t, func() bool {
		v, ok := m.Load(id)
		if ok {
			r = v.(*fakeRun)
		}
		return ok
	}, waitTimeout, time.Millisecond)
	return r
}

func newPRTask(id string, queued time.Time) *task.Task {
	tk := task.NewPullRequestTask(id, task.PullRequestOrigin{Owner: "paritytech", Repo: "polkadot", Number: 12})
	tk.Command = "cargo test"
	tk.Requester = "alice"
	tk.QueuedDate = task.FormatDate(queued)
	tk.GitRef.Upstream = task.RepoRef{Owner: "paritytech", Repo: "polkadot", Branch: "master"}
	return tk
}

func await(t *testing.T, enq *Enqueued) Result {
	t.Helper()
	select {
	case res := <-enq.Done:
		return res
	case <-time.After(waitTimeout):
		t.Fatalf("task %s did not finish", enq.TaskID)
		return Result{}
	}
}

func TestEnqueue_PersistsUntilFinished(t *testing.T) {
	f := newFixture(t)
	runs := f.runs()
	ctx := context.Background()

	enq, err := f.engine.Enqueue(ctx, newPRTask("t1", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "Preparing command \"cargo test\". No other tasks are queued.", enq.Message)

	stored, err := f.store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "cargo test", stored.Command)
	assert.Equal(t, "v-current", stored.Version)

	run := runFor(t, runs, "t1")
	require.Eventually(t, func() bool {
		s, err := f.store.Get(ctx, "t1")
		return err == nil && s.CI.Pipeline != nil
	}, waitTimeout, time.Millisecond, "pipeline is persisted while running")

	run.finish(pipeline.StatusSuccess, nil)
	res := await(t, enq)
	assert.Equal(t, pipeline.StatusSuccess, res.Status)
	require.NoError(t, res.Err)

	_, err = f.store.Get(ctx, "t1")
	assert.ErrorIs(t, err, boterrors.ErrNotFound)
	assert.Zero(t, f.engine.handles.len())
	assert.Equal(t, int32(1), f.workspace.removed.Load())

	msgs := f.reporter.For("t1")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "has started")
	assert.Contains(t, msgs[1], "has finished")
	assert.Contains(t, msgs[1], "Artifacts: https://gitlab.example/ci/polkadot/-/jobs/1/artifacts/browse")

	_, _, counters := f.driver.calls()
	assert.Equal(t, []task.Counters{{TimesExecuted: 1}}, counters)
}

func TestEnqueue_QueueMessageAndOrder(t *testing.T) {
	f := newFixture(t)
	runs := f.runs()
	ctx := context.Background()
	now := time.Now()

	a, err := f.engine.Enqueue(ctx, newPRTask("a", now))
	require.NoError(t, err)
	b, err := f.engine.Enqueue(ctx, newPRTask("b", now.Add(time.Second)))
	require.NoError(t, err)
	assert.Contains(t, b.Message, "1 task was queued before it")

	tasks, err := f.engine.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)

	runFor(t, runs, "a").finish(pipeline.StatusFailed, nil)
	runFor(t, runs, "b").finish(pipeline.StatusSuccess, nil)
	assert.Equal(t, pipeline.StatusFailed, await(t, a).Status)
	assert.Equal(t, pipeline.StatusSuccess, await(t, b).Status)
}

func TestEnqueue_RejectsDuplicateLiveID(t *testing.T) {
	f := newFixture(t)
	runs := f.runs()
	ctx := context.Background()

	enq, err := f.engine.Enqueue(ctx, newPRTask("dup", time.Now()))
	require.NoError(t, err)
	_, err = f.engine.Enqueue(ctx, newPRTask("dup", time.Now()))
	assert.ErrorIs(t, err, boterrors.ErrValidation)

	runFor(t, runs, "dup").finish(pipeline.StatusSuccess, nil)
	await(t, enq)
}

func TestEnqueue_RejectsInvalidTask(t *testing.T) {
	f := newFixture(t)
	tk := newPRTask("bad", time.Now())
	tk.Command = ""
	_, err := f.engine.Enqueue(context.Background(), tk)
	assert.ErrorIs(t, err, boterrors.ErrValidation)
	assert.Zero(t, f.engine.handles.len())
}

func TestExecute_DriverFailure(t *testing.T) {
	f := newFixture(t)
	f.driver.start = func(context.Context, *task.Task) (pipeline.Run, error) {
		return nil, boterrors.ErrBranchNotRegistered("cmd-bot/12-t1", 5)
	}

	enq, err := f.engine.Enqueue(context.Background(), newPRTask("t1", time.Now()))
	require.NoError(t, err)
	res := await(t, enq)

	assert.Equal(t, pipeline.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, boterrors.ErrRegistrationTimeout)
	assert.Contains(t, res.Message, "could not be started")

	_, err = f.store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, boterrors.ErrNotFound)
	assert.Zero(t, f.engine.handles.len())
}

func TestExecute_PollingExhausted(t *testing.T) {
	f := newFixture(t)
	runs := f.runs()

	enq, err := f.engine.Enqueue(context.Background(), newPRTask("t1", time.Now()))
	require.NoError(t, err)
	runFor(t, runs, "t1").finish(pipeline.StatusFailed, boterrors.ErrPollingExhausted(1, 3, errors.New("502")))

	res := await(t, enq)
	assert.ErrorIs(t, res.Err, boterrors.ErrPipelinePollingExhausted)
	assert.Contains(t, res.Message, "has failed")
	assert.Zero(t, f.engine.handles.len())
}

func TestCancel_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, boterrors.ErrNotFound)
}

func TestCancel_RunningTask(t *testing.T) {
	f := newFixture(t)
	runs := f.runs()
	ctx := context.Background()

	enq, err := f.engine.Enqueue(ctx, newPRTask("t1", time.Now()))
	require.NoError(t, err)
	run := runFor(t, runs, "t1")
	require.Eventually(t, func() bool {
		s, err := f.store.Get(ctx, "t1")
		return err == nil && s.CI.Pipeline != nil
	}, waitTimeout, time.Millisecond)

	require.NoError(t, f.engine.Cancel(ctx, "t1"))

	_, err = f.store.Get(ctx, "t1")
	assert.ErrorIs(t, err, boterrors.ErrNotFound, "cancel returns after the store entry is gone")
	assert.Zero(t, f.engine.handles.len())
	assert.Equal(t, int32(1), run.terminates.Load())

	res := await(t, enq)
	assert.Equal(t, pipeline.StatusCanceled, res.Status)
	assert.Contains(t, res.Message, "was cancelled")

	assert.ErrorIs(t, f.engine.Cancel(ctx, "t1"), boterrors.ErrNotFound)
}

func TestCancel_DuringPreparation(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	f.driver.start = func(ctx context.Context, _ *task.Task) (pipeline.Run, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	enq, err := f.engine.Enqueue(context.Background(), newPRTask("t1", time.Now()))
	require.NoError(t, err)
	<-entered

	require.NoError(t, f.engine.Cancel(context.Background(), "t1"))
	res := await(t, enq)
	assert.Equal(t, pipeline.StatusCanceled, res.Status)
	assert.NoError(t, res.Err)
}

// stuckRun cannot be cancelled externally.
type stuckRun struct {
	*fakeRun
}

func (r stuckRun) Terminate(ctx context.Context) error {
	_ = r.fakeRun.Terminate(ctx)
	return errors.New("gitlab unavailable")
}

func TestCancel_RunAttachedAfterCancel(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.engine.logger = slog.New(slog.NewTextHandler(&logs, nil))

	entered := make(chan struct{})
	run := stuckRun{newFakeRun(9)}
	f.driver.start = func(ctx context.Context, _ *task.Task) (pipeline.Run, error) {
		close(entered)
		<-ctx.Done()
		return run, nil
	}

	enq, err := f.engine.Enqueue(context.Background(), newPRTask("t1", time.Now()))
	require.NoError(t, err)
	<-entered

	require.NoError(t, f.engine.Cancel(context.Background(), "t1"))
	res := await(t, enq)
	assert.Equal(t, pipeline.StatusCanceled, res.Status)
	assert.EqualValues(t, 1, run.terminates.Load())
	assert.Contains(t, logs.String(), "cancel external pipeline failed")
	assert.Contains(t, logs.String(), "task_id=t1")
}

type blockingPutStore struct {
	storage.TaskStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingPutStore) Put(context.Context, *task.Task) error {
	close(s.entered)
	<-s.release
	return errors.New("disk full")
}

func TestEnqueue_PersistFailureReleasesCancel(t *testing.T) {
	store := &blockingPutStore{
		TaskStore: storage.NewTestStore(t),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	e := New(Options{Store: store, Driver: &fakeDriver{}, Version: "v-current"})

	enqErr := make(chan error, 1)
	go func() {
		_, err := e.Enqueue(context.Background(), newPRTask("t1", time.Now()))
		enqErr <- err
	}()
	<-store.entered

	cancelErr := make(chan error, 1)
	go func() { cancelErr <- e.Cancel(context.Background(), "t1") }()
	require.Eventually(t, func() bool {
		h := e.handles.get("t1")
		return h != nil && h.wasCancelled()
	}, waitTimeout, time.Millisecond)
	close(store.release)

	select {
	case err := <-cancelErr:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("cancel still waiting after enqueue failed")
	}
	err := <-enqErr
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, e.handles.len())
}

func TestCancelMatching(t *testing.T) {
	f := newFixture(t)
	f.runs()
	ctx := context.Background()

	var enqs []*Enqueued
	for _, id := range []string{"a", "b"} {
		enq, err := f.engine.Enqueue(ctx, newPRTask(id, time.Now()))
		require.NoError(t, err)
		enqs = append(enqs, enq)
	}
	api := task.NewAPITask("c", task.APIOrigin{MatrixRoom: "!r:x"})
	api.Command = "echo"
	api.GitRef.Upstream = task.RepoRef{Owner: "paritytech", Repo: "polkadot"}
	apiEnq, err := f.engine.Enqueue(ctx, api)
	require.NoError(t, err)

	ids, err := f.engine.CancelMatching(ctx, func(t *task.Task) bool { return t.Tag == task.TagPullRequest })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	for _, enq := range enqs {
		assert.Equal(t, pipeline.StatusCanceled, await(t, enq).Status)
	}

	live := f.engine.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "c", live[0].ID)

	_, err = f.engine.CancelMatching(ctx, func(*task.Task) bool { return false })
	assert.ErrorIs(t, err, boterrors.ErrNotFound)

	require.NoError(t, f.engine.Cancel(ctx, "c"))
	await(t, apiEnq)
}

func TestRequeueUnterminated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	attached := newFakeRun(99)
	f.driver.attach = func(context.Context, *task.Task) (pipeline.Run, error) { return attached, nil }
	f.runs()

	// Mid-running leftover of an earlier process.
	running := newPRTask("running", time.Now())
	running.Version = "v-old"
	running.Counters = task.Counters{TimesExecuted: 1}
	running.CI.Pipeline = &task.Pipeline{ID: 99, ProjectID: 7, JobWebURL: "https://gitlab.example/j/99"}
	require.NoError(t, f.store.Put(ctx, running))

	// Already requeued once and did not finish again.
	exhausted := newPRTask("exhausted", time.Now())
	exhausted.Version = "v-older"
	exhausted.Counters = task.Counters{TimesRequeued: 1, TimesRequeuedSnapshotBeforeExecution: 1, TimesExecuted: 2}
	require.NoError(t, f.store.Put(ctx, exhausted))

	require.NoError(t, f.engine.RequeueUnterminated(ctx))

	_, err := f.store.Get(ctx, "exhausted")
	assert.ErrorIs(t, err, boterrors.ErrNotFound)
	assert.Len(t, f.reporter.For("exhausted"), 1)
	assert.Contains(t, f.reporter.For("exhausted")[0], "will not be run again")

	require.Eventually(t, func() bool {
		_, attaches, _ := f.driver.calls()
		return len(attaches) == 1
	}, waitTimeout, time.Millisecond)
	starts, attaches, counters := f.driver.calls()
	assert.Empty(t, starts, "a task with a pipeline is re-attached, not re-created")
	assert.Equal(t, []string{"running"}, attaches)
	assert.Equal(t, []task.Counters{{TimesRequeued: 1, TimesRequeuedSnapshotBeforeExecution: 1, TimesExecuted: 2}}, counters)

	stored, err := f.store.Get(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, "v-current", stored.Version)
	assert.Equal(t, 1, stored.Counters.TimesRequeued)

	// A second pass finds nothing left to recover.
	require.NoError(t, f.engine.RequeueUnterminated(ctx))
	_, attaches, _ = f.driver.calls()
	assert.Len(t, attaches, 1)

	require.NoError(t, f.engine.Cancel(ctx, "running"))
	msgs := f.reporter.For("running")
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "queued again (restart 1)")
}

func TestRequeueUnterminated_RestartWithoutPipeline(t *testing.T) {
	f := newFixture(t)
	runs := f.runs()
	ctx := context.Background()

	leftover := newPRTask("prep", time.Now())
	leftover.Version = "v-old"
	leftover.Counters = task.Counters{TimesExecuted: 1}
	require.NoError(t, f.store.Put(ctx, leftover))

	require.NoError(t, f.engine.RequeueUnterminated(ctx))
	runFor(t, runs, "prep").finish(pipeline.StatusSuccess, nil)

	require.Eventually(t, func() bool {
		_, err := f.store.Get(ctx, "prep")
		return errors.Is(err, boterrors.ErrNotFound)
	}, waitTimeout, time.Millisecond)
	starts, _, counters := f.driver.calls()
	assert.Equal(t, []string{"prep"}, starts)
	assert.Equal(t, 1, counters[0].TimesRequeued)
}

func TestRequeueUnterminated_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	runs := f.runs()
	ctx := context.Background()

	broken := newPRTask("broken", time.Now())
	broken.Version = "v-old"
	broken.GitRef.Upstream = task.RepoRef{}
	require.NoError(t, f.store.Put(ctx, broken))

	good := newPRTask("good", time.Now().Add(time.Second))
	good.Version = "v-old"
	require.NoError(t, f.store.Put(ctx, good))

	err := f.engine.RequeueUnterminated(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.ErrorIs(t, err, boterrors.ErrValidation)

	_, err = f.store.Get(ctx, "broken")
	assert.ErrorIs(t, err, boterrors.ErrNotFound, "a task that can never run is dropped")

	runFor(t, runs, "good").finish(pipeline.StatusSuccess, nil)
	require.Eventually(t, func() bool { return f.engine.handles.len() == 0 }, waitTimeout, time.Millisecond)
}

func TestDispatch(t *testing.T) {
	f := newFixture(t)
	f.runs()
	ctx := context.Background()

	pr := &task.PullRequestOrigin{Owner: "paritytech", Repo: "polkadot", Number: 12}
	gen := command.Generic{
		Command:     "bench",
		Requester:   "alice",
		PullRequest: pr,
		GitRef:      task.GitRef{Upstream: task.RepoRef{Owner: "paritytech", Repo: "polkadot", Branch: "master"}},
	}
	msg, err := f.engine.Dispatch(ctx, gen)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg, "Preparing command \"bench\""))

	_, err = f.engine.Dispatch(ctx, gen)
	require.NoError(t, err)
	live := f.engine.Live()
	require.Len(t, live, 2)
	newest := live[1].ID

	msg, err = f.engine.Dispatch(ctx, command.Cancel{PullRequest: pr})
	require.NoError(t, err)
	assert.Equal(t, "Task "+newest+" was cancelled.", msg)
	require.Len(t, f.engine.Live(), 1)

	_, err = f.engine.Dispatch(ctx, command.Cancel{PullRequest: &task.PullRequestOrigin{Owner: "x", Repo: "y", Number: 1}})
	assert.ErrorIs(t, err, boterrors.ErrNotFound)

	_, err = f.engine.Dispatch(ctx, command.Cancel{})
	assert.ErrorIs(t, err, boterrors.ErrValidation)

	_, err = f.engine.Dispatch(ctx, command.Cancel{TaskID: live[0].ID})
	require.NoError(t, err)
	assert.Empty(t, f.engine.Live())
}

func TestPrepare_MirrorRefreshIsSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.workspace.release = make(chan struct{})
	runs := f.runs()
	ctx := context.Background()

	var enqs []*Enqueued
	for _, id := range []string{"a", "b", "c"} {
		enq, err := f.engine.Enqueue(ctx, newPRTask(id, time.Now()))
		require.NoError(t, err)
		enqs = append(enqs, enq)
	}
	require.Eventually(t, func() bool { return f.workspace.mirrors.Load() >= 1 }, waitTimeout, time.Millisecond)
	close(f.workspace.release)

	for _, id := range []string{"a", "b", "c"} {
		runFor(t, runs, id).finish(pipeline.StatusSuccess, nil)
	}
	for _, enq := range enqs {
		await(t, enq)
	}
	assert.Equal(t, int32(1), f.workspace.maxSeen.Load(), "mirror refreshes of one repository never overlap")
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	runs := f.runs()
	sub := f.events.Subscribe("t1")

	enq, err := f.engine.Enqueue(context.Background(), newPRTask("t1", time.Now()))
	require.NoError(t, err)
	runFor(t, runs, "t1").finish(pipeline.StatusSuccess, nil)
	await(t, enq)

	var types []events.EventType
	for len(sub) > 0 {
		ev := <-sub
		if ev.Type != events.EventMessage {
			types = append(types, ev.Type)
		}
	}
	assert.Equal(t, []events.EventType{events.EventQueued, events.EventPreparing, events.EventRunning, events.EventSucceeded}, types)
}
