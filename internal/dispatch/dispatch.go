// Package dispatch delivers position and status changes to the backing
// task service in the background.
//
// Updates are keyed per task. At most one update per task is in flight; a
// newer update waiting behind it replaces any older waiting one, and
// updates older than what is already queued or delivered are dropped.
// Failed deliveries are retried with exponential backoff; when the budget
// is spent the task is marked out of sync and the workspace is refetched.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twiced-technology-gmbh/taskorder/internal/snapshot"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// ErrClosed is reported for updates submitted after Close.
var ErrClosed = errors.New("dispatcher closed")

// errSuperseded marks an update replaced by a newer one for the same task.
var errSuperseded = errors.New("superseded by a newer update")

// Update is one position/status write for a task.
type Update struct {
	TaskID      string
	WorkspaceID string
	Position    int
	Status      task.Status
	Version     int64
}

// EventKind classifies dispatcher events.
type EventKind string

// Event kinds.
const (
	EventSucceeded    EventKind = "succeeded"
	EventRetrying     EventKind = "retrying"
	EventStale        EventKind = "stale"
	EventFailed       EventKind = "failed"
	EventResynced     EventKind = "resynced"
	EventResyncFailed EventKind = "resync_failed"
)

// Event reports the outcome of a delivery attempt.
type Event struct {
	Kind    EventKind
	Update  Update
	Attempt int
	Err     error
	// Task is the stored task after a successful write, if known.
	Task *task.Task
}

// Options tunes a Dispatcher. Zero values get defaults.
type Options struct {
	Workers      int
	QueueSize    int
	MaxAttempts  int
	RetryInitial time.Duration
	RetryMax     time.Duration
	Timeout      time.Duration

	// OnEvent is called from worker goroutines, never with internal locks
	// held. It must not block for long.
	OnEvent func(Event)
	Logger  log.FieldLogger
	Metrics *Metrics
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = 200 * time.Millisecond
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
}

type job struct {
	id      string
	retry   *Update
	attempt int
}

// Dispatcher is the background writer for ordering changes.
type Dispatcher struct {
	svc  store.Service
	snap *snapshot.Store
	opts Options

	workCh   chan job
	stopCh   chan struct{}
	workerWG sync.WaitGroup
	sendWG   sync.WaitGroup

	mu        sync.Mutex
	pending   map[string]Update
	inflight  map[string]int64
	queued    map[string]bool
	delivered map[string]int64
	resyncs   int
	busy      bool
	idle      chan struct{}
	started   bool
	closing   bool
}

// New returns a dispatcher writing to svc and reconciling into snap. Call
// Start before submitting updates.
func New(svc store.Service, snap *snapshot.Store, opts Options) *Dispatcher {
	opts.setDefaults()
	idle := make(chan struct{})
	close(idle)
	return &Dispatcher{
		svc:       svc,
		snap:      snap,
		opts:      opts,
		workCh:    make(chan job, opts.QueueSize),
		stopCh:    make(chan struct{}),
		pending:   make(map[string]Update),
		inflight:  make(map[string]int64),
		queued:    make(map[string]bool),
		delivered: make(map[string]int64),
		idle:      idle,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	for i := range d.opts.Workers {
		d.workerWG.Add(1)
		go d.worker(i)
	}
}

// UpdatePosition queues u and returns immediately.
func (d *Dispatcher) UpdatePosition(u Update) {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.snap.MarkDirty(u.TaskID)
		d.emit(Event{Kind: EventFailed, Update: u, Err: ErrClosed})
		return
	}

	if stale := d.isStaleLocked(u); stale {
		d.mu.Unlock()
		d.emit(Event{Kind: EventStale, Update: u, Err: store.ErrStaleWrite})
		return
	}

	replaced, hadPending := d.pending[u.TaskID]
	d.pending[u.TaskID] = u
	d.markBusyLocked()
	if _, running := d.inflight[u.TaskID]; !running && !d.queued[u.TaskID] {
		d.queued[u.TaskID] = true
		d.sendLocked(job{id: u.TaskID})
	}
	d.depthLocked()
	d.mu.Unlock()

	if hadPending {
		d.emit(Event{Kind: EventStale, Update: replaced, Err: errSuperseded})
	}
}

func (d *Dispatcher) isStaleLocked(u Update) bool {
	if v, ok := d.delivered[u.TaskID]; ok && u.Version <= v {
		return true
	}
	if p, ok := d.pending[u.TaskID]; ok && u.Version <= p.Version {
		return true
	}
	if v, ok := d.inflight[u.TaskID]; ok && u.Version <= v {
		return true
	}
	return false
}

// Pending reports whether a task has an undelivered update.
func (d *Dispatcher) Pending(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, p := d.pending[id]
	_, f := d.inflight[id]
	return p || f
}

// Flush waits until no update is queued, in flight or awaiting retry.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding work, bounded by ctx, and stops the workers.
// Updates submitted afterwards are reported as failed.
func (d *Dispatcher) Close(ctx context.Context) error {
	flushErr := d.Flush(ctx)

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return flushErr
	}
	d.closing = true
	close(d.stopCh)
	d.mu.Unlock()

	d.workerWG.Wait()
	d.sendWG.Wait()

	// Whatever is still undelivered never reached the backing store.
	d.mu.Lock()
	var lost []string
	for id := range d.pending {
		lost = append(lost, id)
	}
	for id := range d.inflight {
		lost = append(lost, id)
	}
	d.mu.Unlock()
	for _, id := range lost {
		d.snap.MarkDirty(id)
	}
	return flushErr
}

// sendLocked hands a job to the workers without blocking the caller.
func (d *Dispatcher) sendLocked(j job) {
	select {
	case d.workCh <- j:
		return
	default:
	}
	d.sendWG.Add(1)
	go func() {
		defer d.sendWG.Done()
		select {
		case d.workCh <- j:
		case <-d.stopCh:
		}
	}()
}

func (d *Dispatcher) worker(id int) {
	defer d.workerWG.Done()
	logger := d.opts.Logger.WithField("worker", id)
	for {
		select {
		case j := <-d.workCh:
			d.run(logger, j)
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dispatcher) run(logger log.FieldLogger, j job) {
	var (
		u       Update
		attempt = 1
		dropped *Update
	)

	d.mu.Lock()
	switch {
	case j.retry == nil:
		d.queued[j.id] = false
		p, ok := d.pending[j.id]
		if !ok {
			d.mu.Unlock()
			return
		}
		delete(d.pending, j.id)
		d.inflight[j.id] = p.Version
		u = p
	default:
		// A newer update arrived while waiting for the retry; send it
		// instead of the old one.
		if p, ok := d.pending[j.id]; ok && p.Version > j.retry.Version {
			delete(d.pending, j.id)
			d.inflight[j.id] = p.Version
			dropped = j.retry
			u = p
		} else {
			u = *j.retry
			attempt = j.attempt
		}
	}
	d.mu.Unlock()

	if dropped != nil {
		d.emit(Event{Kind: EventStale, Update: *dropped, Err: errSuperseded})
	}
	d.deliver(logger, u, attempt)
}

func (d *Dispatcher) deliver(logger log.FieldLogger, u Update, attempt int) {
	fields := log.Fields{
		"task":      u.TaskID,
		"workspace": u.WorkspaceID,
		"position":  u.Position,
		"status":    u.Status,
		"version":   u.Version,
		"attempt":   attempt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	stored, err := d.svc.UpdateTask(ctx, u.TaskID, store.PositionPatch(u.Position, u.Status, u.Version))
	cancel()

	switch {
	case err == nil:
		d.mu.Lock()
		if u.Version > d.delivered[u.TaskID] {
			d.delivered[u.TaskID] = u.Version
		}
		d.mu.Unlock()
		d.snap.Reconcile(stored)
		logger.WithFields(fields).Debug("position update delivered")
		d.emit(Event{Kind: EventSucceeded, Update: u, Attempt: attempt, Task: stored})
		d.finish(u.TaskID, false)

	case errors.Is(err, store.ErrStaleWrite):
		// The store already holds a newer write; adopt it if it is newer
		// than what we have locally too.
		logger.WithFields(fields).WithError(err).Info("position update rejected as stale")
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		current, getErr := d.svc.GetTask(ctx, u.TaskID)
		cancel()
		if getErr == nil {
			d.snap.Reconcile(current)
		}
		d.emit(Event{Kind: EventStale, Update: u, Attempt: attempt, Err: err, Task: current})
		d.finish(u.TaskID, false)

	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrValidation):
		logger.WithFields(fields).WithError(err).Warn("position update rejected")
		d.fail(logger, u, attempt, err)

	case attempt >= d.opts.MaxAttempts:
		logger.WithFields(fields).WithError(err).Error("position update failed, retries exhausted")
		d.fail(logger, u, attempt, err)

	default:
		delay := Backoff(attempt, d.opts.RetryInitial, d.opts.RetryMax)
		logger.WithFields(fields).WithError(err).WithField("delay", delay).Warn("position update failed, retrying")
		d.emit(Event{Kind: EventRetrying, Update: u, Attempt: attempt, Err: err})
		d.scheduleRetry(u, attempt+1, delay)
	}
}

// fail marks the task out of sync and refetches the workspace.
func (d *Dispatcher) fail(logger log.FieldLogger, u Update, attempt int, err error) {
	d.snap.MarkDirty(u.TaskID)
	d.finish(u.TaskID, true)
	d.emit(Event{Kind: EventFailed, Update: u, Attempt: attempt, Err: err})
	d.resync(logger, u)
}

func (d *Dispatcher) scheduleRetry(u Update, attempt int, delay time.Duration) {
	d.sendWG.Add(1)
	timer := time.NewTimer(delay)
	go func() {
		defer d.sendWG.Done()
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case d.workCh <- job{id: u.TaskID, retry: &u, attempt: attempt}:
			case <-d.stopCh:
			}
		case <-d.stopCh:
		}
	}()
}

// finish releases the task's in-flight slot and queues any update that
// arrived meanwhile. withResync keeps the dispatcher busy until the
// caller's resync completes.
func (d *Dispatcher) finish(id string, withResync bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
	if withResync {
		d.resyncs++
	}
	if _, ok := d.pending[id]; ok && !d.queued[id] && !d.closing {
		d.queued[id] = true
		d.sendLocked(job{id: id})
	}
	d.depthLocked()
	d.maybeIdleLocked()
}

func (d *Dispatcher) resync(logger log.FieldLogger, cause Update) {
	defer func() {
		d.mu.Lock()
		d.resyncs--
		d.maybeIdleLocked()
		d.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()
	remote, err := d.svc.ListTasks(ctx, d.snap.Workspace())
	if err != nil {
		logger.WithError(err).WithField("workspace", d.snap.Workspace()).Error("workspace resync failed")
		d.emit(Event{Kind: EventResyncFailed, Update: cause, Err: err})
		return
	}
	d.snap.Resync(remote, d.Pending)
	logger.WithField("workspace", d.snap.Workspace()).Info("workspace resynced")
	d.emit(Event{Kind: EventResynced, Update: cause})
}

func (d *Dispatcher) markBusyLocked() {
	if !d.busy {
		d.busy = true
		d.idle = make(chan struct{})
	}
}

func (d *Dispatcher) maybeIdleLocked() {
	if d.busy && len(d.pending) == 0 && len(d.inflight) == 0 && d.resyncs == 0 {
		d.busy = false
		close(d.idle)
	}
}

func (d *Dispatcher) depthLocked() {
	d.opts.Metrics.depth(len(d.pending) + len(d.inflight))
}

func (d *Dispatcher) emit(e Event) {
	d.opts.Metrics.observe(e.Kind)
	if d.opts.OnEvent != nil {
		d.opts.OnEvent(e)
	}
}
