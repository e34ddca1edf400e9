package orchestrator

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/store"
)

// activeEntry is the orchestrator's in-memory record of one running task,
// per spec §4 "Ownership": "TaskOrchestrator owns the in-memory view of
// active tasks... that handle exclusively owns the cancel signal and the
// I/O to any child worker."
type activeEntry struct {
	class       TaskClass
	handle      Handle
	cancelCh    chan struct{}
	cancelOnce  sync.Once
	coalescer   *progressCoalescer
	resuming    bool
	resumeTimer *time.Timer
}

// Orchestrator is the central lifecycle manager described in SPEC_FULL.md
// §4.6: a task-type registry, an admission-controlled scheduler (one
// priority queue per concurrency class), and the boot-time recovery pass.
type Orchestrator struct {
	store  *store.Store
	bus    *eventbus.Bus
	logger arbor.ILogger
	cfg    Config

	mu      sync.Mutex
	started bool
	seq     uint64
	types   map[string]Registration

	pendingCrawl      admissionHeap
	pendingBackground admissionHeap
	crawlInUse        int
	backgroundInUse   int

	active map[string]*activeEntry
}

// New creates an Orchestrator. RegisterTaskType must be called for every
// task type before Start.
func New(st *store.Store, bus *eventbus.Bus, logger arbor.ILogger, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:  st,
		bus:    bus,
		logger: logger,
		cfg:    cfg.withDefaults(),
		types:  make(map[string]Registration),
		active: make(map[string]*activeEntry),
	}
}

// RegisterTaskType installs a task-type constructor. Registration is
// rejected with ErrOrchestratorStarted once Start has run.
func (o *Orchestrator) RegisterTaskType(typ string, class TaskClass, ctor ConstructorFunc, defaultPriority int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrOrchestratorStarted
	}
	if _, exists := o.types[typ]; exists {
		return ErrDuplicateTaskType
	}
	o.types[typ] = Registration{Type: typ, Class: class, Constructor: ctor, Priority: defaultPriority}
	return nil
}

// Start marks the orchestrator as running and performs boot recovery. No
// further task types may be registered afterward.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.started = true
	o.mu.Unlock()
	return o.RecoverInterruptedTasks(ctx)
}

// CreateTask validates the type, creates the durable row, publishes
// task-created, and admits the task for scheduling. priority of 0 uses the
// type's default priority.
func (o *Orchestrator) CreateTask(ctx context.Context, typ string, config json.RawMessage, priority int) (string, error) {
	o.mu.Lock()
	reg, ok := o.types[typ]
	o.mu.Unlock()
	if !ok {
		return "", ErrUnknownTaskType
	}
	if priority == 0 {
		priority = reg.Priority
	}

	id := uuid.New().String()
	if err := o.store.CreateTask(ctx, id, typ, config); err != nil {
		return "", err
	}
	o.bus.Publish(eventbus.TaskCreated, id, map[string]interface{}{"type": typ})

	o.admit(id, typ, config, priority, false)
	o.trySchedule(ctx)
	return id, nil
}

func (o *Orchestrator) admit(id, typ string, config json.RawMessage, priority int, recovered bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	entry := &admissionEntry{id: id, typ: typ, config: config, priority: priority, seq: o.seq}
	if recovered {
		entry.priority = priority + 1<<30 // recovered tasks jump ahead of fresh admissions
	}
	switch o.types[typ].Class {
	case ClassCrawl:
		heap.Push(&o.pendingCrawl, entry)
	default:
		heap.Push(&o.pendingBackground, entry)
	}
}

// trySchedule pops as many pending tasks as current slots allow and
// launches them. Popping happens under the lock; launching does not, since
// a constructor (e.g. CrawlJobRunner spawning a process) may block briefly.
func (o *Orchestrator) trySchedule(ctx context.Context) {
	var toLaunch []*admissionEntry

	o.mu.Lock()
	for o.crawlInUse < o.cfg.MaxConcurrentCrawls && o.pendingCrawl.Len() > 0 {
		e := heap.Pop(&o.pendingCrawl).(*admissionEntry)
		o.crawlInUse++
		toLaunch = append(toLaunch, e)
	}
	for o.backgroundInUse < o.cfg.MaxConcurrentBackground && o.pendingBackground.Len() > 0 {
		e := heap.Pop(&o.pendingBackground).(*admissionEntry)
		o.backgroundInUse++
		toLaunch = append(toLaunch, e)
	}
	o.mu.Unlock()

	for _, e := range toLaunch {
		go o.startTaskNow(ctx, e.id, e.typ, e.config, e.priority >= 1<<30)
	}
}

// startTaskNow transitions the row to running (or, for a recovered task,
// leaves it in resuming and arms the stuck-resuming watchdog), invokes the
// registered constructor, and records the resulting handle in the active
// map.
func (o *Orchestrator) startTaskNow(ctx context.Context, id, typ string, config json.RawMessage, recovered bool) {
	o.mu.Lock()
	reg, ok := o.types[typ]
	class := reg.Class
	o.mu.Unlock()
	if !ok {
		o.logger.Error().Str("task_id", id).Str("type", typ).Msg("task type no longer registered at start time")
		o.releaseSlot(class)
		o.trySchedule(ctx)
		return
	}

	if !recovered {
		if err := o.store.UpdateTaskStatus(ctx, id, store.StatusRunning, store.StatusUpdateOptions{}); err != nil {
			o.logger.Error().Err(err).Str("task_id", id).Msg("failed to transition task to running")
			o.releaseSlot(class)
			o.trySchedule(ctx)
			return
		}
	}

	cancelCh := make(chan struct{})
	entry := &activeEntry{class: class, cancelCh: cancelCh, resuming: recovered}
	entry.coalescer = newProgressCoalescer(o.cfg.ProgressCoalesceWindow, func(current, total int64, message string, metadata json.RawMessage) {
		o.flushProgress(ctx, id, current, total, message, metadata)
	})

	deps := TaskDeps{
		TaskID: id, Type: typ, Config: config, Store: o.store, Cancel: cancelCh,
		Progress: func(current, total int64, message string, metadata json.RawMessage) {
			o.onProgress(ctx, id, entry, current, total, message, metadata)
		},
	}

	handle, err := reg.Constructor(ctx, deps)
	if err != nil {
		msg := err.Error()
		o.store.UpdateTaskStatus(ctx, id, store.StatusFailed, store.StatusUpdateOptions{ErrorMessage: &msg})
		o.bus.Publish(eventbus.TaskError, id, map[string]interface{}{"message": msg, "fatal": true})
		o.releaseSlot(class)
		o.trySchedule(ctx)
		return
	}
	entry.handle = handle

	o.mu.Lock()
	o.active[id] = entry
	o.mu.Unlock()

	status := "running"
	if recovered {
		status = "resuming"
		entry.resumeTimer = time.AfterFunc(o.cfg.StuckResumingTimeout, func() { o.checkStuckResuming(ctx, id) })
	}
	o.bus.Publish(eventbus.TaskStatusChanged, id, map[string]interface{}{"status": status})

	go o.awaitCompletion(ctx, id, handle, class)
}

// onProgress is the ProgressFunc bound into TaskDeps. Its first call after a
// recovery clears the resuming state per spec §4.6 ("on first progress
// update, clear resume_started_at and set status to running"); every call
// is forwarded to the per-task coalescer.
func (o *Orchestrator) onProgress(ctx context.Context, id string, entry *activeEntry, current, total int64, message string, metadata json.RawMessage) {
	o.mu.Lock()
	wasResuming := entry.resuming
	if wasResuming {
		entry.resuming = false
		if entry.resumeTimer != nil {
			entry.resumeTimer.Stop()
		}
	}
	o.mu.Unlock()

	if wasResuming {
		if err := o.store.UpdateTaskStatus(ctx, id, store.StatusRunning, store.StatusUpdateOptions{}); err != nil {
			o.logger.Warn().Err(err).Str("task_id", id).Msg("failed to clear resuming state on first progress update")
		} else {
			o.bus.Publish(eventbus.TaskStatusChanged, id, map[string]interface{}{"status": "running"})
		}
	}

	entry.coalescer.Update(current, total, message, metadata)
}

type progressPayload struct {
	Current  int64           `json:"current"`
	Total    int64           `json:"total"`
	Message  string          `json:"message"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (o *Orchestrator) flushProgress(ctx context.Context, id string, current, total int64, message string, metadata json.RawMessage) {
	if err := o.store.UpdateProgress(ctx, id, store.ProgressUpdate{Current: &current, Total: &total, Message: &message, Metadata: metadata}); err != nil {
		o.logger.Warn().Err(err).Str("task_id", id).Msg("failed to persist coalesced progress update")
	}
	o.bus.Publish(eventbus.TaskProgress, id, progressPayload{Current: current, Total: total, Message: message, Metadata: metadata})
}

func (o *Orchestrator) checkStuckResuming(ctx context.Context, id string) {
	o.mu.Lock()
	entry, ok := o.active[id]
	stillResuming := ok && entry.resuming
	o.mu.Unlock()
	if !stillResuming {
		return
	}
	o.store.AppendProblem(ctx, id, store.Problem{Kind: "stuck-resuming", Scope: "task", Message: "task did not progress within the resume watchdog window"})
	o.bus.Publish(eventbus.TaskProblem, id, map[string]interface{}{"kind": "stuck-resuming"})
}

func (o *Orchestrator) releaseSlot(class TaskClass) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch class {
	case ClassCrawl:
		o.crawlInUse--
	default:
		o.backgroundInUse--
	}
}

// awaitCompletion blocks until the handle reports done, finalizes the row's
// terminal status if the task type hasn't already, then frees its slot and
// re-runs the scheduler.
func (o *Orchestrator) awaitCompletion(ctx context.Context, id string, handle Handle, class TaskClass) {
	<-handle.Done()

	o.mu.Lock()
	entry := o.active[id]
	delete(o.active, id)
	o.mu.Unlock()
	if entry != nil && entry.resumeTimer != nil {
		entry.resumeTimer.Stop()
	}
	if entry != nil && entry.coalescer != nil {
		entry.coalescer.Stop()
	}

	cancelled := false
	if entry != nil {
		select {
		case <-entry.cancelCh:
			cancelled = true
		default:
		}
	}

	o.finalize(ctx, id, handle, cancelled)
	o.releaseSlot(class)
	o.trySchedule(ctx)
}

func (o *Orchestrator) finalize(ctx context.Context, id string, handle Handle, cancelled bool) {
	runErr := handle.Err()
	status := store.StatusCompleted
	opts := store.StatusUpdateOptions{}
	if runErr != nil {
		status = store.StatusFailed
		msg := runErr.Error()
		opts.ErrorMessage = &msg
	} else if cancelled {
		status = store.StatusCancelled
	}

	if err := o.store.UpdateTaskStatus(ctx, id, status, opts); err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			o.logger.Warn().Err(err).Str("task_id", id).Msg("failed to finalize task status")
		}
		return // already terminal: the task type persisted its own outcome (e.g. CrawlJobRunner)
	}
	o.bus.Publish(eventbus.TaskCompleted, id, map[string]interface{}{"success": status == store.StatusCompleted})
	o.bus.Publish(eventbus.TaskStatusChanged, id, map[string]interface{}{"status": string(status)})
}

// PauseTask pauses an active task. Returns ErrTaskNotActive if the task has
// no running handle. A task type without pause support reports
// ErrOperationNotSupported, which is treated as a successful no-op per spec
// §4.6 ("pause and resume are no-ops for task types that do not implement
// them").
func (o *Orchestrator) PauseTask(ctx context.Context, id string) error {
	entry, ok := o.lookupActive(id)
	if !ok {
		return ErrTaskNotActive
	}
	if err := entry.handle.Pause(ctx); err != nil {
		if errors.Is(err, ErrOperationNotSupported) {
			return nil
		}
		return err
	}
	return o.store.UpdateTaskStatus(ctx, id, store.StatusPaused, store.StatusUpdateOptions{})
}

// ResumeTask resumes a paused active task. See PauseTask for no-op semantics.
func (o *Orchestrator) ResumeTask(ctx context.Context, id string) error {
	entry, ok := o.lookupActive(id)
	if !ok {
		return ErrTaskNotActive
	}
	if err := entry.handle.Resume(ctx); err != nil {
		if errors.Is(err, ErrOperationNotSupported) {
			return nil
		}
		return err
	}
	return o.store.UpdateTaskStatus(ctx, id, store.StatusRunning, store.StatusUpdateOptions{})
}

// CancelTask cancels a task, active or still pending admission. Idempotent
// per spec IP1: cancelling a terminal or already-cancelling task is a no-op.
func (o *Orchestrator) CancelTask(ctx context.Context, id string) error {
	if entry, ok := o.lookupActive(id); ok {
		entry.cancelOnce.Do(func() { close(entry.cancelCh) })
		return entry.handle.Cancel(ctx)
	}
	if o.removePending(id) {
		return o.store.UpdateTaskStatus(ctx, id, store.StatusCancelled, store.StatusUpdateOptions{})
	}
	// Not active and not pending: either already terminal (idempotent
	// no-op) or unknown to this orchestrator instance.
	task, err := o.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return nil
	}
	return ErrTaskNotActive
}

func (o *Orchestrator) lookupActive(id string) (*activeEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.active[id]
	return e, ok
}

func (o *Orchestrator) removePending(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, q := range []*admissionHeap{&o.pendingCrawl, &o.pendingBackground} {
		for i, e := range *q {
			if e.id == id {
				heap.Remove(q, i)
				return true
			}
		}
	}
	return false
}

// RecoverInterruptedTasks implements spec §4.6's boot recovery pass: every
// task left in running/resuming when the process last stopped is put back
// into resuming (clearing and re-setting resume_started_at) and re-admitted
// ahead of fresh work. If its type is no longer registered, it is marked
// failed instead.
func (o *Orchestrator) RecoverInterruptedTasks(ctx context.Context) error {
	tasks, err := o.store.FindInterruptedTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := o.store.UpdateTaskStatus(ctx, t.ID, store.StatusResuming, store.StatusUpdateOptions{}); err != nil {
			o.logger.Warn().Err(err).Str("task_id", t.ID).Msg("failed to mark interrupted task as resuming")
			continue
		}
		o.bus.Publish(eventbus.TaskStatusChanged, t.ID, map[string]interface{}{"status": "resuming"})

		o.mu.Lock()
		_, known := o.types[t.Type]
		o.mu.Unlock()
		if !known {
			msg := "unknown task type on recovery: " + t.Type
			o.store.UpdateTaskStatus(ctx, t.ID, store.StatusFailed, store.StatusUpdateOptions{ErrorMessage: &msg})
			o.bus.Publish(eventbus.TaskError, t.ID, map[string]interface{}{"message": msg, "fatal": true})
			continue
		}
		o.admit(t.ID, t.Type, t.Config, 0, true)
	}
	o.trySchedule(ctx)
	return nil
}

// ListActive returns the ids of tasks currently held in the in-memory
// active map (running or resuming), for diagnostics.
func (o *Orchestrator) ListActive() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}
