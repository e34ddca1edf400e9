package crawljob

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/frontier"
	"github.com/ternarybob/orcaweaver/internal/planner"
	"github.com/ternarybob/orcaweaver/internal/store"
)

const defaultWatchdogTick = 1 * time.Second

// Runner supervises one external crawl worker process for the lifetime of a
// crawl job: it owns that job's Frontier and Planner, spawns the worker,
// parses its structured stdout, mutates the task row through TaskStore, and
// publishes every observed event on the EventBus. Grounded on the teacher's
// os/exec worker spawn pattern (github_git_worker.go) generalized to a
// long-lived, line-streaming child instead of a one-shot subprocess call.
type Runner struct {
	store    *store.Store
	bus      *eventbus.Bus
	frontier *frontier.Frontier
	planner  *planner.Planner
	logger   arbor.ILogger
	opts     Options

	mu             sync.Mutex
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	startedAt      time.Time
	sawOutput      bool
	firstError     string
	fatalError     bool
	lastOutputAt   time.Time
	lastProgressAt time.Time
	lastProgress   int64
	progressTotal  int64
	stage          string
	problemCount   int
	milestoneCount int
	cancelRequested bool
	paused         bool
	done           chan struct{}
}

// New creates a Runner for one crawl job. The caller is responsible for
// seeding opts with the task id, worker binary path, and watchdog timeouts
// resolved from internal/config.
func New(st *store.Store, bus *eventbus.Bus, fr *frontier.Frontier, pl *planner.Planner, logger arbor.ILogger, opts Options) *Runner {
	if opts.WatchdogTick <= 0 {
		opts.WatchdogTick = defaultWatchdogTick
	}
	return &Runner{
		store:    st,
		bus:      bus,
		frontier: fr,
		planner:  pl,
		logger:   logger,
		opts:     opts,
		done:     make(chan struct{}),
	}
}

// Done returns a channel closed once the worker has exited and final status
// has been persisted.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Start implements the CrawlJobRunner startup protocol (spec §4.4): builds
// the seed plan, spawns the worker with the job id and store path, wires
// stdout/stderr/exit handling, and starts the watchdogs. It returns once the
// worker process has been launched; completion is observed via Done().
func (r *Runner) Start(ctx context.Context) error {
	seedPlan := r.planner.GenerateSeedPlan(planner.JobConfig{JobID: r.opts.JobID, StartURLs: []string{r.opts.URL}}, r.onPlannerStage)
	for _, c := range seedPlan.Steps {
		r.frontier.Enqueue(frontier.Entry{
			URL: c.URL, Host: c.Host, Depth: c.Depth,
			Priority: 100, Source: frontier.Source(c.Source), EstimatedCostMS: c.EstimatedCostMS,
		})
	}

	args := append([]string{"--job-id", r.opts.JobID, "--db", r.opts.DBPath, "--url", r.opts.URL}, r.opts.Args...)
	cmd := exec.Command(r.opts.BinaryPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return r.failSpawn(ctx, fmt.Errorf("failed to open worker stdin: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.failSpawn(ctx, fmt.Errorf("failed to open worker stdout: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.failSpawn(ctx, fmt.Errorf("failed to open worker stderr: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return r.failSpawn(ctx, fmt.Errorf("failed to spawn crawl worker: %w", err))
	}

	r.mu.Lock()
	r.cmd = cmd
	r.stdin = stdin
	r.startedAt = time.Now()
	r.lastOutputAt = time.Now()
	r.lastProgressAt = time.Now()
	r.mu.Unlock()

	r.logger.Info().Str("task_id", r.opts.JobID).Int("pid", cmd.Process.Pid).Msg("crawl worker spawned")
	r.bus.Publish(eventbus.JobListChanged, r.opts.JobID, map[string]interface{}{"pid": cmd.Process.Pid})

	go r.readStdout(ctx, stdout)
	go r.drainStderr(stderr)
	go r.watchdogLoop(ctx)
	go r.waitForExit(ctx)

	return nil
}

func (r *Runner) failSpawn(ctx context.Context, err error) error {
	msg := err.Error()
	r.store.UpdateTaskStatus(ctx, r.opts.JobID, store.StatusFailed, store.StatusUpdateOptions{ErrorMessage: &msg})
	r.bus.Publish(eventbus.TaskError, r.opts.JobID, map[string]interface{}{"message": msg, "fatal": true})
	close(r.done)
	return err
}

func (r *Runner) readStdout(ctx context.Context, stdout io.Reader) {
	scanLines(stdout, r.logger, func(rec Record) {
		r.touchOutput()
		r.handleRecord(ctx, rec)
	}, func(line string) {
		r.logger.Debug().Str("task_id", r.opts.JobID).Str("line", line).Msg("unparseable crawl worker output line")
	})
}

func (r *Runner) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		r.logger.Warn().Str("task_id", r.opts.JobID).Str("stderr", scanner.Text()).Msg("crawl worker stderr")
	}
}

func (r *Runner) touchOutput() {
	r.mu.Lock()
	r.lastOutputAt = time.Now()
	r.sawOutput = true
	r.mu.Unlock()
}

func (r *Runner) handleRecord(ctx context.Context, rec Record) {
	switch rec.Kind {
	case RecordProgress:
		r.handleProgress(ctx, rec.Raw)
	case RecordQueue:
		r.handleQueue(ctx, rec.Raw)
	case RecordProblem:
		r.handleProblem(ctx, rec.Raw)
	case RecordMilestone:
		r.handleMilestone(ctx, rec.Raw)
	case RecordPlannerStage:
		r.handlePlannerStageRecord(ctx, rec.Raw)
	case RecordError:
		r.handleError(ctx, rec.Raw)
	case RecordCache:
		r.handleCache(ctx, rec.Raw)
	}
}

func (r *Runner) handleProgress(ctx context.Context, raw json.RawMessage) {
	var p ProgressRecord
	if err := json.Unmarshal(raw, &p); err != nil {
		r.logger.Warn().Err(err).Msg("malformed PROGRESS record")
		return
	}

	r.mu.Lock()
	if p.Current > r.lastProgress {
		r.lastProgressAt = time.Now()
	}
	r.lastProgress = p.Current
	r.progressTotal = p.Total
	r.stage = p.Stage
	r.mu.Unlock()

	metadata, _ := json.Marshal(map[string]interface{}{"stage": p.Stage})
	r.store.UpdateProgress(ctx, r.opts.JobID, store.ProgressUpdate{
		Current: &p.Current, Total: &p.Total, Message: &p.Message, Metadata: metadata,
	})
	r.bus.Publish(eventbus.TaskProgress, r.opts.JobID, p)
}

func (r *Runner) handleQueue(ctx context.Context, raw json.RawMessage) {
	var q QueueRecord
	if err := json.Unmarshal(raw, &q); err != nil {
		r.logger.Warn().Err(err).Msg("malformed QUEUE record")
		return
	}
	r.store.AppendQueueEvent(ctx, r.opts.JobID, store.QueueEvent{
		Action: q.Action, URL: q.URL, Depth: q.Depth, Host: q.Host,
		Reason: q.Reason, QueueSize: q.QueueSize, Role: q.Role, DepthBucket: q.DepthBucket,
	})
	r.bus.Publish(eventbus.QueueEvent, r.opts.JobID, q)
}

func (r *Runner) handleProblem(ctx context.Context, raw json.RawMessage) {
	var p ProblemRecord
	if err := json.Unmarshal(raw, &p); err != nil {
		r.logger.Warn().Err(err).Msg("malformed PROBLEM record")
		return
	}
	r.mu.Lock()
	r.problemCount++
	count := r.problemCount
	minutes := time.Since(r.startedAt).Minutes()
	r.mu.Unlock()
	if minutes < 1 {
		minutes = 1
	}

	r.store.AppendProblem(ctx, r.opts.JobID, store.Problem{Kind: p.Kind, Scope: p.Scope, Target: p.Target, Message: p.Message, Details: p.Details})
	r.bus.Publish(eventbus.TaskProblem, r.opts.JobID, p)

	r.maybeReplan(ctx, float64(count)/minutes)
}

func (r *Runner) handleMilestone(ctx context.Context, raw json.RawMessage) {
	var m MilestoneRecord
	if err := json.Unmarshal(raw, &m); err != nil {
		r.logger.Warn().Err(err).Msg("malformed MILESTONE record")
		return
	}
	r.mu.Lock()
	r.milestoneCount++
	r.mu.Unlock()
	r.store.AppendMilestone(ctx, r.opts.JobID, store.Milestone{Kind: m.Kind, Scope: m.Scope, Target: m.Target, Message: m.Message, Details: m.Details})
	r.bus.Publish(eventbus.Milestone, r.opts.JobID, m)
}

func (r *Runner) handlePlannerStageRecord(ctx context.Context, raw json.RawMessage) {
	var s PlannerStageRecord
	if err := json.Unmarshal(raw, &s); err != nil {
		r.logger.Warn().Err(err).Msg("malformed PLANNER_STAGE record")
		return
	}
	r.store.AppendPlannerStage(ctx, r.opts.JobID, store.PlannerStageEvent{
		Stage: s.Stage, Rationale: s.Rationale, EstimatedCostMS: s.EstimatedCostMS, Decision: s.Decision,
	})
	r.bus.Publish(eventbus.PlannerStage, r.opts.JobID, s)
}

func (r *Runner) handleError(ctx context.Context, raw json.RawMessage) {
	var e ErrorRecord
	if err := json.Unmarshal(raw, &e); err != nil {
		r.logger.Warn().Err(err).Msg("malformed ERROR record")
		return
	}
	r.bus.Publish(eventbus.TaskError, r.opts.JobID, e)
	r.mu.Lock()
	if r.firstError == "" {
		r.firstError = e.Message
	}
	r.fatalError = r.fatalError || e.Fatal
	r.mu.Unlock()
	if e.Fatal {
		r.Cancel(ctx)
	}
}

func (r *Runner) handleCache(ctx context.Context, raw json.RawMessage) {
	var c CacheRecord
	if err := json.Unmarshal(raw, &c); err != nil {
		return
	}
	r.bus.Publish(eventbus.TaskProgress, r.opts.JobID, map[string]interface{}{"cache": c})
}

// onPlannerStage is the StageEventFunc passed to the in-process Planner for
// its own seed/continuation decisions (as opposed to PLANNER_STAGE lines
// relayed from the worker, which arrive via handlePlannerStageRecord).
func (r *Runner) onPlannerStage(stage, rationale string, estimatedCostMS int64, decision string) {
	r.store.AppendPlannerStage(context.Background(), r.opts.JobID, store.PlannerStageEvent{
		Stage: stage, Rationale: rationale, EstimatedCostMS: estimatedCostMS, Decision: decision,
	})
	r.bus.Publish(eventbus.PlannerStage, r.opts.JobID, PlannerStageRecord{
		Stage: stage, Rationale: rationale, EstimatedCostMS: estimatedCostMS, Decision: decision,
	})
}

// maybeReplan calls the in-process Planner's reactive re-planning when the
// observed problem rate crosses threshold, and forwards any fresh
// candidates to the worker as ADDURL control lines (spec §4.5
// "reactToSignal"). problemRate is problems per minute since the worker
// started, with elapsed time counted as at least one minute.
func (r *Runner) maybeReplan(ctx context.Context, problemRate float64) {
	state := planner.JobState{JobID: r.opts.JobID, QueueSize: r.frontier.Size()}
	plan, replanned := r.planner.ReactToSignal(state, planner.Signal{Kind: planner.SignalProblemRate, ProblemRate: problemRate}, r.onPlannerStage)
	if !replanned {
		return
	}
	for _, c := range plan.Steps {
		if r.frontier.Enqueue(frontier.Entry{URL: c.URL, Host: c.Host, Depth: c.Depth, Priority: 50, Source: frontier.Source(c.Source)}) {
			r.sendControlLine(fmt.Sprintf("ADDURL %s", c.URL))
		}
	}
}

func (r *Runner) sendControlLine(line string) {
	r.mu.Lock()
	stdin := r.stdin
	r.mu.Unlock()
	if stdin == nil {
		return
	}
	if _, err := io.WriteString(stdin, line+"\n"); err != nil {
		r.logger.Warn().Err(err).Str("task_id", r.opts.JobID).Msg("failed to write control line to crawl worker stdin")
	}
}

// Pause sends the pause control line and transitions the task to paused.
func (r *Runner) Pause(ctx context.Context) error {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
	r.sendControlLine("PAUSE")
	return r.store.UpdateTaskStatus(ctx, r.opts.JobID, store.StatusPaused, store.StatusUpdateOptions{})
}

// Resume sends the resume control line and transitions the task back to running.
func (r *Runner) Resume(ctx context.Context) error {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
	r.sendControlLine("RESUME")
	return r.store.UpdateTaskStatus(ctx, r.opts.JobID, store.StatusRunning, store.StatusUpdateOptions{})
}

// Cancel sends the stop control line and, if the worker has not exited
// within the configured grace period, force-terminates it. Idempotent
// (spec IP1): repeat calls after the first are no-ops once cancellation has
// already been requested.
func (r *Runner) Cancel(ctx context.Context) error {
	r.mu.Lock()
	if r.cancelRequested {
		r.mu.Unlock()
		return nil
	}
	r.cancelRequested = true
	cmd := r.cmd
	r.mu.Unlock()

	r.sendControlLine("STOP")

	grace := r.opts.ExitGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	go func() {
		select {
		case <-r.done:
			return
		case <-time.After(grace):
		}
		r.mu.Lock()
		c := cmd
		r.mu.Unlock()
		if c != nil && c.Process != nil {
			r.logger.Warn().Str("task_id", r.opts.JobID).Msg("crawl worker did not exit within grace period, force-terminating")
			_ = c.Process.Kill()
		}
	}()

	return nil
}

func (r *Runner) waitForExit(ctx context.Context) {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()

	err := cmd.Wait()
	r.frontier.Close()

	r.mu.Lock()
	cancelled := r.cancelRequested && !r.fatalError
	fatal, firstError := r.fatalError, r.firstError
	finalCurrent, finalTotal, stage := r.lastProgress, r.progressTotal, r.stage
	problems, milestones := r.problemCount, r.milestoneCount
	r.mu.Unlock()

	var finalStatus store.Status
	var summary Summary
	summary.FinalCurrent, summary.FinalTotal, summary.FinalStage = finalCurrent, finalTotal, stage
	summary.ProblemsRaised, summary.MilestonesHit = problems, milestones

	switch {
	case cancelled:
		finalStatus = store.StatusCancelled
		summary.Success = false
	case err != nil || fatal:
		finalStatus = store.StatusFailed
		summary.Success = false
		summary.ErrorMessage = firstError
		if summary.ErrorMessage == "" && err != nil {
			summary.ErrorMessage = err.Error()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			summary.ExitCode = exitErr.ExitCode()
		}
	default:
		finalStatus = store.StatusCompleted
		summary.Success = true
	}

	opts := store.StatusUpdateOptions{}
	if summary.ErrorMessage != "" {
		opts.ErrorMessage = &summary.ErrorMessage
	}
	if uerr := r.store.UpdateTaskStatus(ctx, r.opts.JobID, finalStatus, opts); uerr != nil {
		r.logger.Error().Err(uerr).Str("task_id", r.opts.JobID).Msg("failed to persist final crawl job status")
	}

	r.bus.Publish(eventbus.TaskCompleted, r.opts.JobID, summary)
	r.bus.Publish(eventbus.TaskStatusChanged, r.opts.JobID, map[string]interface{}{"status": string(finalStatus)})
	close(r.done)
}

// watchdogLoop enforces the slow-start, silence and progress-stall
// watchdogs from spec §4.4 while the job is non-terminal.
func (r *Runner) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(r.opts.WatchdogTick)
	defer ticker.Stop()

	slowStartReported := false
	silenceReported := false
	stallReported := false

	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		sinceOutput := time.Since(r.lastOutputAt)
		sinceProgress := time.Since(r.lastProgressAt)
		total := r.progressTotal
		cmd := r.cmd
		sawOutput, sinceStart := r.sawOutput, time.Since(r.startedAt)
		r.mu.Unlock()

		if r.opts.SpawnTimeout > 0 && !sawOutput && sinceStart >= r.opts.SpawnTimeout && !slowStartReported {
			slowStartReported = true
			r.store.AppendProblem(ctx, r.opts.JobID, store.Problem{Kind: "slow-start", Scope: "worker", Message: "no output received within spawn timeout"})
			r.bus.Publish(eventbus.TaskProblem, r.opts.JobID, ProblemRecord{Kind: "slow-start", Scope: "worker", Message: "no output received within spawn timeout"})
		}

		if r.opts.SilenceTimeout > 0 && sinceOutput >= r.opts.SilenceTimeout {
			if !silenceReported {
				silenceReported = true
				r.store.AppendProblem(ctx, r.opts.JobID, store.Problem{Kind: "silence", Scope: "worker", Message: "no output received within silence timeout"})
				r.bus.Publish(eventbus.TaskProblem, r.opts.JobID, ProblemRecord{Kind: "silence", Scope: "worker", Message: "no output received within silence timeout"})
			}
			if sinceOutput >= 2*r.opts.SilenceTimeout {
				r.logger.Error().Str("task_id", r.opts.JobID).Msg("crawl worker silent past double timeout, terminating")
				msg := "worker silence timeout exceeded"
				r.store.UpdateTaskStatus(ctx, r.opts.JobID, store.StatusFailed, store.StatusUpdateOptions{ErrorMessage: &msg})
				if cmd != nil && cmd.Process != nil {
					_ = cmd.Process.Kill()
				}
				return
			}
		}

		if r.opts.StallTimeout > 0 && total > 0 && sinceProgress >= r.opts.StallTimeout && !stallReported {
			stallReported = true
			r.store.AppendProblem(ctx, r.opts.JobID, store.Problem{Kind: "stall", Scope: "worker", Message: "progress has not advanced within stall timeout"})
			r.bus.Publish(eventbus.TaskProblem, r.opts.JobID, ProblemRecord{Kind: "stall", Scope: "worker", Message: "progress has not advanced within stall timeout"})
		}
	}
}
