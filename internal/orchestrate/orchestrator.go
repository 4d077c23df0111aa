// Package orchestrate fans test case replays out over a bounded worker pool
// and tracks run-level counters and status.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/retracehq/retrace/internal/compose"
	"github.com/retracehq/retrace/internal/executor"
	"github.com/retracehq/retrace/internal/judge"
	"github.com/retracehq/retrace/internal/models"
	"github.com/retracehq/retrace/internal/store"
)

// ErrNoTestCases is the setup failure recorded on a run started for an
// agent that owns no test cases.
var ErrNoTestCases = errors.New("agent has no test cases")

// DefaultWorkers bounds concurrent case executions when no worker count is
// configured.
const DefaultWorkers = 4

// Orchestrator coordinates regression runs: compose, execute, evaluate and
// persist every test case owned by an agent.
type Orchestrator struct {
	store     store.Store
	executor  *executor.CaseExecutor
	evaluator *judge.Evaluator
	workers   int

	// inflight counts runs whose case processing has not finished yet;
	// Wait drains it at shutdown before the store is closed.
	inflight sync.WaitGroup

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the worker pool size for concurrent case execution.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func New(s store.Store, exec *executor.CaseExecutor, eval *judge.Evaluator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     s,
		executor:  exec,
		evaluator: eval,
		workers:   DefaultWorkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnProgress registers a progress listener
func (o *Orchestrator) OnProgress(listener ProgressListener) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.listeners = append(o.listeners, listener)
}

func (o *Orchestrator) notifyProgress(event ProgressEvent) {
	o.progressMu.Lock()
	listeners := make([]ProgressListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Start creates a run and returns it once it has reached a dispatchable
// state; case execution continues in the background. Poll with GetStatus.
// Zero test cases fail the run immediately, before any worker spawns.
func (o *Orchestrator) Start(ctx context.Context, agentID string, overrides models.Overrides) (models.RegressionRun, error) {
	run, testCases, err := o.setup(ctx, agentID, overrides)
	if err != nil {
		return run, err
	}
	if run.Status == models.RunFailed {
		return run, nil
	}

	// The run outlives the request that started it. Cancellation of ctx is
	// treated as a cooperative stop checked between case dispatches.
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.processCases(ctx, run, testCases)
	}()

	return run, nil
}

// Run executes a regression synchronously and returns the finished run.
func (o *Orchestrator) Run(ctx context.Context, agentID string, overrides models.Overrides) (models.RegressionRun, error) {
	run, testCases, err := o.setup(ctx, agentID, overrides)
	if err != nil {
		return run, err
	}
	if run.Status == models.RunFailed {
		return run, nil
	}

	o.inflight.Add(1)
	defer o.inflight.Done()
	o.processCases(ctx, run, testCases)

	// the final snapshot must be readable even when ctx cancelled the run
	return o.store.GetRun(context.WithoutCancel(ctx), run.ID)
}

// GetStatus returns the current run snapshot.
func (o *Orchestrator) GetStatus(ctx context.Context, runID string) (models.RegressionRun, error) {
	return o.store.GetRun(ctx, runID)
}

// Wait blocks until every run started in the background has finished
// processing, or ctx expires. Shutdown calls this before closing the
// store so no in-flight case unit persists against a closed database.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setup creates the run record and moves it through pending -> running, or
// pending -> failed when the agent has no test cases.
func (o *Orchestrator) setup(ctx context.Context, agentID string, overrides models.Overrides) (models.RegressionRun, []models.TestCase, error) {
	agent, err := o.store.GetAgent(ctx, agentID)
	if err != nil {
		return models.RegressionRun{}, nil, fmt.Errorf("resolving agent %q: %w", agentID, err)
	}

	resolved := compose.MergeOverrides(agent.Defaults(), overrides)

	run := models.RegressionRun{
		AgentID:   agentID,
		Status:    models.RunPending,
		Overrides: resolved,
	}
	if err := o.store.CreateRun(ctx, &run); err != nil {
		return run, nil, fmt.Errorf("creating run: %w", err)
	}

	testCases, err := o.store.ListTestCases(ctx, agentID)
	if err != nil {
		if serr := o.store.SetRunStatus(ctx, run.ID, models.RunFailed, err.Error()); serr != nil {
			slog.Error("failed to mark run failed", "run_id", run.ID, "error", serr)
		}
		return run, nil, fmt.Errorf("listing test cases: %w", err)
	}

	if len(testCases) == 0 {
		if err := o.store.SetRunStatus(ctx, run.ID, models.RunFailed, ErrNoTestCases.Error()); err != nil {
			return run, nil, fmt.Errorf("marking empty run failed: %w", err)
		}
		o.notifyProgress(ProgressEvent{
			EventType: EventRunFailed,
			RunID:     run.ID,
			AgentID:   agentID,
			Error:     ErrNoTestCases.Error(),
		})
		run, err := o.store.GetRun(ctx, run.ID)
		return run, nil, err
	}

	if err := o.store.SetRunTotal(ctx, run.ID, len(testCases)); err != nil {
		return run, nil, fmt.Errorf("recording run total: %w", err)
	}
	if err := o.store.SetRunStatus(ctx, run.ID, models.RunRunning, ""); err != nil {
		return run, nil, fmt.Errorf("marking run running: %w", err)
	}

	run, err = o.store.GetRun(ctx, run.ID)
	if err != nil {
		return run, nil, err
	}

	o.notifyProgress(ProgressEvent{
		EventType:  EventRunStart,
		RunID:      run.ID,
		AgentID:    agentID,
		TotalCases: len(testCases),
	})

	return run, testCases, nil
}

// processCases drains the queue through the worker pool. ctx cancellation
// is cooperative and checked at dispatch, once a worker slot is held: a
// case that has not started is skipped, a case already past the check
// always finishes its compose-execute-evaluate-persist unit.
func (o *Orchestrator) processCases(ctx context.Context, run models.RegressionRun, testCases []models.TestCase) {
	start := time.Now()
	semaphore := make(chan struct{}, o.workers)

	var wg sync.WaitGroup
	var skipped atomic.Int64
	for i, tc := range testCases {
		wg.Add(1)
		go func(caseNum int, tc models.TestCase) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			// A case stops here, before any backend call; one that is
			// already past this check always finishes its unit.
			if ctx.Err() != nil {
				skipped.Add(1)
				return
			}

			o.runCase(ctx, run, tc, caseNum, len(testCases))
		}(i+1, tc)
	}
	wg.Wait()

	// status updates outlive the caller's context
	finalCtx := context.WithoutCancel(ctx)

	if n := skipped.Load(); n > 0 {
		msg := fmt.Sprintf("run cancelled, %d of %d case(s) not dispatched", n, len(testCases))
		if err := o.store.SetRunStatus(finalCtx, run.ID, models.RunFailed, msg); err != nil {
			slog.Error("failed to mark cancelled run", "run_id", run.ID, "error", err)
		}
		o.notifyProgress(ProgressEvent{
			EventType:  EventRunCancelled,
			RunID:      run.ID,
			AgentID:    run.AgentID,
			DurationMs: time.Since(start).Milliseconds(),
		})
		return
	}

	// Individual case failures never fail the run; reaching this point with
	// every case processed means the run completed.
	if err := o.store.SetRunStatus(finalCtx, run.ID, models.RunCompleted, ""); err != nil {
		slog.Error("failed to mark run completed", "run_id", run.ID, "error", err)
	}
	o.notifyProgress(ProgressEvent{
		EventType:  EventRunComplete,
		RunID:      run.ID,
		AgentID:    run.AgentID,
		TotalCases: len(testCases),
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// runCase performs one case's full unit. The unit runs on a detached
// context so cancellation never splits execute from evaluate and persist;
// the executor's own per-call timeout still bounds the backend call.
func (o *Orchestrator) runCase(ctx context.Context, run models.RegressionRun, tc models.TestCase, caseNum, total int) {
	caseCtx := context.WithoutCancel(ctx)

	o.notifyProgress(ProgressEvent{
		EventType:    EventCaseStart,
		RunID:        run.ID,
		AgentID:      run.AgentID,
		TestCaseID:   tc.ID,
		TestCaseName: tc.Name,
		CaseNum:      caseNum,
		TotalCases:   total,
	})

	log, err := o.executeUnit(caseCtx, run.ID, tc, run.Overrides)
	if err != nil {
		// Composition precondition or persistence failure: no counters are
		// committed for this case, the gap is visible as total > success+failed.
		slog.Error("case did not commit",
			"run_id", run.ID,
			"test_case", tc.ID,
			"error", err)
		o.notifyProgress(ProgressEvent{
			EventType:    EventCaseComplete,
			RunID:        run.ID,
			AgentID:      run.AgentID,
			TestCaseID:   tc.ID,
			TestCaseName: tc.Name,
			CaseNum:      caseNum,
			TotalCases:   total,
			Status:       models.ExecutionFailed,
			Error:        err.Error(),
		})
		return
	}

	if err := o.store.IncrementRunCounters(caseCtx, run.ID, models.DeltaFor(log.Outcome, log.Evaluation)); err != nil {
		slog.Error("failed to commit case counters",
			"run_id", run.ID,
			"test_case", tc.ID,
			"error", err)
	}

	o.notifyProgress(ProgressEvent{
		EventType:    EventCaseComplete,
		RunID:        run.ID,
		AgentID:      run.AgentID,
		TestCaseID:   tc.ID,
		TestCaseName: tc.Name,
		CaseNum:      caseNum,
		TotalCases:   total,
		Status:       log.Outcome.Status,
		Verdict:      log.Evaluation.Verdict,
		DurationMs:   log.Outcome.LatencyMS,
		Error:        log.Outcome.Error,
	})
}

// ExecuteCase replays a single test case outside any regression run. The
// agent's defaults are layered under the caller's overrides the same way a
// run resolves them.
func (o *Orchestrator) ExecuteCase(ctx context.Context, testCaseID string, overrides models.Overrides) (models.TestLog, error) {
	tc, err := o.store.GetTestCase(ctx, testCaseID)
	if err != nil {
		return models.TestLog{}, fmt.Errorf("resolving test case %q: %w", testCaseID, err)
	}
	agent, err := o.store.GetAgent(ctx, tc.AgentID)
	if err != nil {
		return models.TestLog{}, fmt.Errorf("resolving agent %q: %w", tc.AgentID, err)
	}

	resolved := compose.MergeOverrides(agent.Defaults(), overrides)
	return o.executeUnit(ctx, "", tc, resolved)
}

// executeUnit is the undivided per-case unit: compose, execute, evaluate,
// persist. A composition error aborts before any backend call and writes no
// log; after that point exactly one TestLog row is always appended.
func (o *Orchestrator) executeUnit(ctx context.Context, runID string, tc models.TestCase, overrides models.Overrides) (models.TestLog, error) {
	req, err := compose.Compose(tc.Transcript, overrides)
	if err != nil {
		return models.TestLog{}, fmt.Errorf("composing test case %q: %w", tc.ID, err)
	}

	outcome := o.executor.Execute(ctx, req)

	evaluation := o.evaluator.Evaluate(ctx, judge.Input{
		TestCaseName:      tc.Name,
		UserMessage:       req.UserMessage,
		Response:          outcome.Response,
		Expectation:       tc.Expectation,
		ReferenceResponse: tc.ReferenceResponse,
	})

	log := models.TestLog{
		TestCaseID:    tc.ID,
		AgentID:       tc.AgentID,
		RunID:         runID,
		ModelName:     req.ModelName,
		SystemPrompt:  req.SystemPrompt,
		UserMessage:   req.UserMessage,
		ModelSettings: req.ModelSettings,
		Outcome:       outcome,
		Evaluation:    evaluation,
	}
	if err := o.store.AppendLog(ctx, &log); err != nil {
		return models.TestLog{}, fmt.Errorf("persisting test log for case %q: %w", tc.ID, err)
	}
	return log, nil
}
