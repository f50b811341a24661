package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiobook-capture/internal/book"
	"audiobook-capture/internal/intercept"
	"audiobook-capture/internal/platform/metrics"
	"audiobook-capture/internal/tasks"
)

type fakeRunner struct {
	variant string
	err     error
	// release, when set, blocks Run until closed.
	release chan struct{}

	mu     sync.Mutex
	calls  int
	recs   []*book.Record
	decode []bool
}

func (r *fakeRunner) Variant() string { return r.variant }

func (r *fakeRunner) Run(ctx context.Context, rec *book.Record, decode bool) error {
	r.mu.Lock()
	r.calls++
	r.recs = append(r.recs, rec)
	r.decode = append(r.decode, decode)
	r.mu.Unlock()
	if r.release != nil {
		<-r.release
	}
	return r.err
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeReloader struct {
	err      error
	onReload func()
}

func (f *fakeReloader) Reload(context.Context) error {
	if f.onReload != nil {
		f.onReload()
	}
	return f.err
}

type testRig struct {
	p        *Pipeline
	bus      *intercept.Bus
	tracker  *tasks.Tracker
	merge    *fakeRunner
	parts    *fakeRunner
	reloader *fakeReloader
	metrics  *metrics.Metrics
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		bus:      intercept.NewBus(),
		tracker:  tasks.NewTracker(),
		merge:    &fakeRunner{variant: "merge"},
		parts:    &fakeRunner{variant: "parts"},
		reloader: &fakeReloader{},
		metrics:  metrics.New(),
	}
	rig.p = NewPipeline(Config{
		Bus:         rig.bus,
		Reloader:    rig.reloader,
		Tasks:       rig.tracker,
		Accumulator: newTestAccumulator(),
		Merge:       rig.merge,
		Parts:       rig.parts,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     rig.metrics,
	})
	t.Cleanup(rig.p.Stop)
	return rig
}

func (r *testRig) publish(o intercept.Observation) {
	r.bus.Publish(context.Background(), o)
}

func (r *testRig) publishAll() {
	r.publish(navObservation())
	r.publish(mediaObservation())
	r.publish(syncObservation())
	r.publish(descriptorObservation("page"))
}

func (r *testRig) taskList(t *testing.T) []tasks.Task {
	t.Helper()
	list, err := r.tracker.List()
	require.NoError(t, err)
	return list
}

func lastTask(t *testing.T, list []tasks.Task) tasks.Task {
	t.Helper()
	require.NotEmpty(t, list)
	return list[len(list)-1]
}

func TestPipeline_Start_listens(t *testing.T) {
	rig := newRig(t)
	_, _ = rig.tracker.Add("", "left over", tasks.StatusCompleted)

	require.NoError(t, rig.p.Start(context.Background(), Options{}))

	st := rig.p.Status()
	assert.Equal(t, StateListening, st.State)
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.Subscribers)

	list := rig.taskList(t)
	require.Len(t, list, 2)
	assert.Equal(t, "Reloading Tab", list[0].Description)
	assert.Equal(t, tasks.StatusCompleted, list[0].Status)
	assert.Equal(t, "Waiting for State", list[1].Description)
	assert.Equal(t, tasks.StatusWaiting, list[1].Status)
}

func TestPipeline_full_session_parts(t *testing.T) {
	rig := newRig(t)
	require.NoError(t, rig.p.Start(context.Background(), Options{}))

	rig.publish(navObservation())
	rig.publish(mediaObservation())
	rig.publish(syncObservation())
	assert.Equal(t, tasks.CheckStatus(3), rig.taskList(t)[1].Status)
	assert.Equal(t, 3, rig.p.Status().Checks)

	rig.publish(descriptorObservation("page"))
	rig.p.Wait()

	require.Equal(t, 1, rig.parts.Calls())
	assert.Equal(t, 0, rig.merge.Calls())
	rec := rig.parts.recs[0]
	assert.Equal(t, testResourceID, rec.ResourceID)
	assert.Equal(t, "https://img/150", rec.CoverHref)
	require.NotNil(t, rec.Expires)
	assert.Equal(t, "cred=1", rec.Credential)
	assert.Len(t, rec.Chapters, 3)

	assert.Equal(t, tasks.StatusCompleted, rig.taskList(t)[1].Status)

	st := rig.p.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.Running)
	assert.Empty(t, st.ResourceID)
	assert.NotEqual(t, rec.Generation, st.Generation)
	assert.Equal(t, 0, st.Subscribers, "subscriptions are released once the run starts")

	expected := `
# HELP capture_runs_total Completed pipeline runs, by variant and outcome
# TYPE capture_runs_total counter
capture_runs_total{outcome="succeeded",variant="parts"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rig.metrics.Registry(), strings.NewReader(expected), "capture_runs_total"))
}

func TestPipeline_merge_variant_gets_decode_flag(t *testing.T) {
	rig := newRig(t)
	require.NoError(t, rig.p.Start(context.Background(), Options{Merge: true, Decode: true}))

	rig.publishAll()
	rig.p.Wait()

	require.Equal(t, 1, rig.merge.Calls())
	assert.Equal(t, 0, rig.parts.Calls())
	assert.Equal(t, []bool{true}, rig.merge.decode)
}

func TestPipeline_observations_before_resource_id_are_skipped(t *testing.T) {
	rig := newRig(t)
	require.NoError(t, rig.p.Start(context.Background(), Options{}))

	rig.publish(descriptorObservation("page"))
	rig.publish(syncObservation())

	st := rig.p.Status()
	assert.Empty(t, st.Title)
	assert.Equal(t, 0, st.Checks)
	assert.Equal(t, tasks.StatusWaiting, rig.taskList(t)[1].Status)
	assert.Equal(t, 0, rig.parts.Calls())
}

func TestPipeline_single_run_under_concurrent_readiness(t *testing.T) {
	rig := newRig(t)
	rig.parts.release = make(chan struct{})
	require.NoError(t, rig.p.Start(context.Background(), Options{}))
	rig.publish(navObservation())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rig.publish(descriptorObservation("page"))
		}()
	}
	wg.Wait()

	assert.True(t, rig.p.Running())
	close(rig.parts.release)
	rig.p.Wait()

	assert.Equal(t, 1, rig.parts.Calls())
}

func TestPipeline_run_failure_resets_session(t *testing.T) {
	for _, merge := range []bool{false, true} {
		name := "parts"
		if merge {
			name = "merge"
		}
		t.Run(name, func(t *testing.T) {
			rig := newRig(t)
			rig.merge.err = errors.New("disk full")
			rig.parts.err = errors.New("disk full")
			require.NoError(t, rig.p.Start(context.Background(), Options{Merge: merge}))
			gen := rig.p.Status().Generation

			rig.publishAll()
			rig.p.Wait()

			last := lastTask(t, rig.taskList(t))
			assert.Equal(t, "Run", last.Category)
			assert.Equal(t, tasks.StatusFailed, last.Status)
			assert.Contains(t, last.Description, "disk full")
			assert.Contains(t, last.Description, name)

			st := rig.p.Status()
			assert.Equal(t, StateIdle, st.State)
			assert.False(t, st.Running)
			assert.Empty(t, st.ResourceID)
			assert.False(t, st.Ready)
			assert.NotEqual(t, gen, st.Generation)
		})
	}
}

func TestPipeline_stale_generation_writes_discarded(t *testing.T) {
	rig := newRig(t)
	require.NoError(t, rig.p.Start(context.Background(), Options{}))
	old := rig.p.Status().Generation

	require.NoError(t, rig.p.Start(context.Background(), Options{}))
	rig.p.apply(old, KindNavigation, func(rec *book.Record) { rec.SetResourceID("stale") })

	st := rig.p.Status()
	assert.Empty(t, st.ResourceID)
	assert.Equal(t, 0, st.Checks)
	assert.Equal(t, 2, st.Subscribers, "old subscriptions are released on restart")
}

func TestPipeline_superseded_run_leaves_new_session_alone(t *testing.T) {
	rig := newRig(t)
	rig.parts.release = make(chan struct{})
	rig.parts.err = errors.New("late failure")
	require.NoError(t, rig.p.Start(context.Background(), Options{}))
	rig.publishAll()
	require.True(t, rig.p.Running())

	require.NoError(t, rig.p.Start(context.Background(), Options{}))
	rig.publish(navObservation())
	fresh := rig.p.Status()
	assert.False(t, fresh.Running)

	close(rig.parts.release)
	rig.p.Wait()

	st := rig.p.Status()
	assert.Equal(t, fresh.Generation, st.Generation)
	assert.Equal(t, StateListening, st.State)
	assert.Equal(t, testResourceID, st.ResourceID)
	assert.Equal(t, 2, st.Subscribers)
	assert.Equal(t, "Run", lastTask(t, rig.taskList(t)).Category)
}

func TestPipeline_observation_failure_keeps_listening(t *testing.T) {
	rig := newRig(t)
	require.NoError(t, rig.p.Start(context.Background(), Options{}))
	rig.publish(navObservation())

	rig.publish(descriptorObservation(badPage))

	last := lastTask(t, rig.taskList(t))
	assert.Equal(t, "Error", last.Category)
	assert.Equal(t, tasks.StatusFailed, last.Status)

	st := rig.p.Status()
	assert.Equal(t, StateListening, st.State)
	assert.Equal(t, testResourceID, st.ResourceID)
	assert.Equal(t, 2, st.Subscribers)

	rig.publish(descriptorObservation("page"))
	rig.p.Wait()
	assert.Equal(t, 1, rig.parts.Calls())
}

func TestPipeline_reload_failure_returns_to_idle(t *testing.T) {
	rig := newRig(t)
	rig.reloader.err = errors.New("hook unreachable")

	err := rig.p.Start(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrStart)

	st := rig.p.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, 0, st.Subscribers)

	last := lastTask(t, rig.taskList(t))
	assert.Equal(t, "Start", last.Category)
	assert.Equal(t, tasks.StatusFailed, last.Status)
	assert.Contains(t, last.Description, "hook unreachable")
}

func TestPipeline_ready_during_reload(t *testing.T) {
	rig := newRig(t)
	rig.merge.release = make(chan struct{})
	rig.reloader.onReload = rig.publishAll

	require.NoError(t, rig.p.Start(context.Background(), Options{Merge: true}))

	st := rig.p.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, "merge", st.Variant)
	assert.Equal(t, tasks.StatusCompleted, lastTask(t, rig.taskList(t)).Status)

	close(rig.merge.release)
	rig.p.Wait()
	assert.Equal(t, StateIdle, rig.p.Status().State)
}

func TestPipeline_Handle(t *testing.T) {
	rig := newRig(t)

	accepted, err := rig.p.Handle(context.Background(), Command{Cmd: "pause"})
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, StateIdle, rig.p.Status().State)
	assert.Empty(t, rig.taskList(t))

	accepted, err = rig.p.Handle(context.Background(), Command{Cmd: CommandStart, Args: map[string]bool{"merge": true}})
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, StateListening, rig.p.Status().State)

	rig.publishAll()
	rig.p.Wait()
	assert.Equal(t, 1, rig.merge.Calls())
}
