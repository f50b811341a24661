package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"audiobook-capture/internal/assemble"
	"audiobook-capture/internal/book"
	"audiobook-capture/internal/intercept"
	"audiobook-capture/internal/platform/metrics"
	"audiobook-capture/internal/tasks"
)

// TaskList is the task tracker surface the pipeline reports to.
type TaskList interface {
	Add(category, description string, status tasks.Status) (string, error)
	Update(id string, status tasks.Status) error
	Clear() error
}

// Config wires a Pipeline. Metrics may be nil.
type Config struct {
	Bus         *intercept.Bus
	Reloader    intercept.Reloader
	Tasks       TaskList
	Accumulator *Accumulator
	Merge       assemble.Runner
	Parts       assemble.Runner
	Log         *slog.Logger
	Metrics     *metrics.Metrics
}

// Pipeline drives one capture session at a time: it listens for
// observations, waits until the record is ready and launches exactly one run.
type Pipeline struct {
	bus      *intercept.Bus
	reloader intercept.Reloader
	tasks    TaskList
	acc      *Accumulator
	merge    assemble.Runner
	parts    assemble.Runner
	log      *slog.Logger
	metrics  *metrics.Metrics

	// runCtx outlives requests; Stop cancels it.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup

	mu       sync.Mutex
	state    State
	rec      *book.Record
	opts     Options
	running  bool
	variant  string
	checks   int
	waitTask string
	navSub   *intercept.Subscription
	allSub   *intercept.Subscription
}

// NewPipeline returns an idle Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		bus:       cfg.Bus,
		reloader:  cfg.Reloader,
		tasks:     cfg.Tasks,
		acc:       cfg.Accumulator,
		merge:     cfg.Merge,
		parts:     cfg.Parts,
		log:       log,
		metrics:   cfg.Metrics,
		runCtx:    ctx,
		cancelRun: cancel,
		state:     StateIdle,
		rec:       book.NewRecord(),
	}
}

// Handle executes a control command. It reports whether the command was
// recognised; unknown commands are logged and ignored.
func (p *Pipeline) Handle(ctx context.Context, cmd Command) (bool, error) {
	if cmd.Cmd != CommandStart {
		p.log.Info("ignoring command", slog.String("cmd", cmd.Cmd))
		return false, nil
	}
	return true, p.Start(ctx, OptionsFrom(cmd))
}

// Start begins a new session, discarding the control state of any previous
// one. Runs still in flight from an earlier session are left to finish.
func (p *Pipeline) Start(ctx context.Context, opts Options) (err error) {
	p.mu.Lock()
	p.releaseLocked()
	p.rec = book.NewRecord()
	p.opts = opts
	p.running = false
	p.variant = ""
	p.checks = 0
	p.waitTask = ""
	p.state = StateSessionStarting
	gen := p.rec.Generation
	p.mu.Unlock()
	p.setRunningGauge(false)

	log := p.log.With(slog.String("generation", gen))
	log.Info("session starting", slog.Bool("merge", opts.Merge), slog.Bool("decode", opts.Decode))

	var nav, all *intercept.Subscription
	defer func() {
		if err == nil {
			return
		}
		nav.Release()
		all.Release()
		p.abortStart(gen, err)
	}()

	if err := p.tasks.Clear(); err != nil {
		return fmt.Errorf("%w: clear tasks: %w", ErrStart, err)
	}
	reloadTask, err := p.tasks.Add("", "Reloading Tab", tasks.StatusRunning)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	nav = p.bus.Subscribe(intercept.ScopeNavigation, p.navigationHandler(gen))
	all = p.bus.Subscribe(intercept.ScopeAll, p.trafficHandler(gen))
	if !p.adoptSubscriptions(gen, nav, all) {
		log.Info("session superseded while starting")
		return nil
	}

	if err := p.reloader.Reload(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	if err := p.tasks.Update(reloadTask, tasks.StatusCompleted); err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	waitTask, err := p.tasks.Add("", "Waiting for State", tasks.StatusWaiting)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	p.mu.Lock()
	if p.rec.Generation != gen {
		p.mu.Unlock()
		log.Info("session superseded while starting")
		return nil
	}
	p.waitTask = waitTask
	launched := p.running
	if p.state == StateSessionStarting {
		p.state = StateListening
	}
	p.mu.Unlock()

	if launched {
		// Readiness arrived before the waiting task existed.
		p.updateTask(waitTask, tasks.StatusCompleted)
	}
	log.Info("listening for session state")
	return nil
}

// adoptSubscriptions stores the subscriptions if gen is still current and
// releases them otherwise. A run may already have started, in which case
// they are released at once.
func (p *Pipeline) adoptSubscriptions(gen string, nav, all *intercept.Subscription) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec.Generation != gen {
		nav.Release()
		all.Release()
		return false
	}
	if p.running {
		nav.Release()
		all.Release()
		return true
	}
	p.navSub, p.allSub = nav, all
	return true
}

func (p *Pipeline) abortStart(gen string, err error) {
	p.log.Error("session start failed", slog.String("generation", gen), slog.String("error", err.Error()))
	p.addTask("Start", err.Error(), tasks.StatusFailed)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec.Generation != gen {
		return
	}
	p.releaseLocked()
	p.rec = book.NewRecord()
	p.running = false
	p.waitTask = ""
	p.state = StateIdle
}

func (p *Pipeline) navigationHandler(gen string) intercept.Handler {
	return func(ctx context.Context, o intercept.Observation) {
		p.apply(gen, KindNavigation, p.acc.Navigation(o))
	}
}

func (p *Pipeline) trafficHandler(gen string) intercept.Handler {
	return func(ctx context.Context, o intercept.Observation) {
		if o.IsNavigation() {
			return
		}
		resourceID, live := p.resourceID(gen)
		if !live {
			return
		}
		kind, mutation, err := p.acc.Route(o, resourceID)
		if kind == KindNone {
			return
		}
		if resourceID == "" {
			p.countObservation(kind, "skipped")
			p.log.Debug("observation before resource id, skipped", slog.String("kind", string(kind)))
			return
		}
		if err != nil {
			p.reject(gen, kind, err)
			return
		}
		p.apply(gen, kind, mutation)
	}
}

// resourceID returns the current session's id and whether gen may still
// write to it.
func (p *Pipeline) resourceID(gen string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.ResourceID, p.rec.Generation == gen && !p.running
}

// apply runs mutation against the record of generation gen and polls for
// readiness. Writes for a superseded generation or during a run are dropped.
func (p *Pipeline) apply(gen string, kind Kind, mutation Mutation) {
	if mutation == nil {
		return
	}
	p.mu.Lock()
	if p.rec.Generation != gen || p.running {
		p.mu.Unlock()
		p.countObservation(kind, "discarded")
		p.log.Debug("stale observation discarded", slog.String("kind", string(kind)), slog.String("generation", gen))
		return
	}
	mutation(p.rec)
	p.pollLocked()
	resourceID := p.rec.ResourceID
	p.mu.Unlock()

	p.countObservation(kind, "applied")
	p.log.Debug("observation applied", slog.String("kind", string(kind)), slog.String("resource_id", resourceID))
}

// reject reports an observation that failed to parse. The session and its
// subscriptions are left intact.
func (p *Pipeline) reject(gen string, kind Kind, err error) {
	if _, live := p.resourceID(gen); !live {
		p.countObservation(kind, "discarded")
		return
	}
	p.countObservation(kind, "failed")
	p.log.Warn("observation failed", slog.String("kind", string(kind)), slog.String("error", err.Error()))
	p.addTask("Error", err.Error(), tasks.StatusFailed)
}

// pollLocked evaluates readiness. p.mu must be held.
func (p *Pipeline) pollLocked() {
	if !p.rec.Ready() {
		p.checks++
		if p.metrics != nil {
			p.metrics.IncReadinessChecks()
		}
		if p.waitTask != "" {
			p.updateTask(p.waitTask, tasks.CheckStatus(p.checks))
		}
		return
	}

	if p.waitTask != "" {
		p.updateTask(p.waitTask, tasks.StatusCompleted)
	}
	if p.running {
		p.log.Info("already running", slog.String("resource_id", p.rec.ResourceID))
		return
	}

	p.state = StateLoaded
	p.log.Info("session state loaded",
		slog.String("resource_id", p.rec.ResourceID),
		slog.String("title", p.rec.FullTitle()),
		slog.Int("chapters", len(p.rec.Chapters)))

	runner := p.parts
	if p.opts.Merge {
		runner = p.merge
	}
	p.running = true
	p.variant = runner.Variant()
	p.state = StateRunning
	p.releaseLocked()
	snapshot := p.rec.Clone()
	decode := p.opts.Decode

	p.setRunningGauge(true)
	p.runs.Add(1)
	go p.run(snapshot, runner, decode)
}

func (p *Pipeline) run(rec *book.Record, runner assemble.Runner, decode bool) {
	defer p.runs.Done()

	log := p.log.With(slog.String("generation", rec.Generation), slog.String("variant", runner.Variant()))
	log.Info("run started", slog.String("resource_id", rec.ResourceID))

	outcome := succeeded(runner.Variant())
	if err := runner.Run(p.runCtx, rec, decode); err != nil {
		outcome = failed(runner.Variant(), fmt.Errorf("%w: %s: %w", ErrRun, runner.Variant(), err))
	}
	p.finish(rec.Generation, outcome, log)
}

// finish reports a run outcome and re-arms the pipeline if the run still
// belongs to the current session.
func (p *Pipeline) finish(gen string, outcome Outcome, log *slog.Logger) {
	if p.metrics != nil {
		p.metrics.IncRuns(outcome.Phase, outcome.Label())
	}
	if outcome.Failed() {
		log.Error("run failed", slog.String("error", outcome.Err.Error()))
		p.addTask("Run", outcome.Err.Error(), tasks.StatusFailed)
	} else {
		log.Info("run completed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec.Generation != gen {
		log.Info("run belonged to a superseded session, state left untouched")
		return
	}
	p.rec = book.NewRecord()
	p.running = false
	p.variant = ""
	p.waitTask = ""
	p.state = StateIdle
	p.setRunningGauge(false)
}

// releaseLocked drops both subscriptions. p.mu must be held.
func (p *Pipeline) releaseLocked() {
	p.navSub.Release()
	p.allSub.Release()
	p.navSub, p.allSub = nil, nil
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		State:       p.state,
		Running:     p.running,
		Variant:     p.variant,
		Checks:      p.checks,
		Generation:  p.rec.Generation,
		ResourceID:  p.rec.ResourceID,
		Title:       p.rec.FullTitle(),
		Ready:       p.rec.Ready(),
		Subscribers: p.bus.Subscribers(),
	}
}

// Running reports whether a run of the current session is in progress.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until every launched run has finished.
func (p *Pipeline) Wait() {
	p.runs.Wait()
}

// Stop cancels in-flight runs and waits for them.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.releaseLocked()
	p.mu.Unlock()
	p.cancelRun()
	p.runs.Wait()
}

func (p *Pipeline) addTask(category, description string, status tasks.Status) {
	if _, err := p.tasks.Add(category, description, status); err != nil {
		p.log.Error("task add failed", slog.String("error", err.Error()))
	}
}

func (p *Pipeline) updateTask(id string, status tasks.Status) {
	if err := p.tasks.Update(id, status); err != nil {
		p.log.Error("task update failed", slog.String("task_id", id), slog.String("error", err.Error()))
	}
}

func (p *Pipeline) countObservation(kind Kind, outcome string) {
	if p.metrics != nil {
		p.metrics.IncObservation(string(kind), outcome)
	}
}

func (p *Pipeline) setRunningGauge(running bool) {
	if p.metrics != nil {
		p.metrics.SetRunning(running)
	}
}
