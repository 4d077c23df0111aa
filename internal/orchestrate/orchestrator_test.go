package orchestrate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/retracehq/retrace/internal/backend"
	"github.com/retracehq/retrace/internal/executor"
	"github.com/retracehq/retrace/internal/judge"
	"github.com/retracehq/retrace/internal/models"
	"github.com/retracehq/retrace/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alwaysPassJudge struct{}

func (alwaysPassJudge) ModelName() string { return "mock:judge" }

func (alwaysPassJudge) Judge(_ context.Context, _ judge.Input) (judge.Verdict, error) {
	return judge.Verdict{Passed: true, Feedback: "ok"}, nil
}

type failingJudge struct {
	failFor map[string]bool
	mu      sync.Mutex
	calls   []string
}

func (f *failingJudge) ModelName() string { return "mock:judge" }

func (f *failingJudge) Judge(_ context.Context, in judge.Input) (judge.Verdict, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in.TestCaseName)
	f.mu.Unlock()
	if f.failFor[in.TestCaseName] {
		return judge.Verdict{}, errors.New("judge backend unavailable")
	}
	return judge.Verdict{Passed: true, Feedback: "ok"}, nil
}

type fixture struct {
	store   *store.MemoryStore
	mock    *backend.MockBackend
	orch    *Orchestrator
	agentID string
}

func newFixture(t *testing.T, j judge.Judge, opts ...Option) *fixture {
	t.Helper()

	s := store.NewMemoryStore()
	mock := backend.NewMockBackend()

	agent := models.Agent{
		Name:             "support-bot",
		DefaultModelName: "fast",
	}
	require.NoError(t, s.CreateAgent(context.Background(), &agent))

	exec := executor.New(mock, time.Second)
	orch := New(s, exec, judge.NewEvaluator(j), opts...)

	return &fixture{store: s, mock: mock, orch: orch, agentID: agent.ID}
}

func (f *fixture) addCase(t *testing.T, name, userMessage, expectation string) models.TestCase {
	t.Helper()
	tc := models.TestCase{
		AgentID: f.agentID,
		Name:    name,
		Transcript: models.CapturedTranscript{
			SystemPrompt:    "You are helpful",
			MiddleMessages:  []models.Message{{Role: models.RoleAssistant, Content: "ack"}},
			LastUserMessage: userMessage,
			ModelName:       "fast",
		},
		Expectation: expectation,
	}
	require.NoError(t, f.store.CreateTestCase(context.Background(), &tc))
	return tc
}

func TestRun_ThreeCaseScenario(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{})
	ctx := context.Background()

	f.addCase(t, "case-1", "first question", "must answer")
	f.addCase(t, "case-2", "second question", "must answer")
	f.addCase(t, "case-3", "third question", "must answer")
	f.mock.Fail("second question", context.DeadlineExceeded)

	run, err := f.orch.Run(ctx, f.agentID, models.Overrides{})
	require.NoError(t, err)

	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 3, run.TotalCount)
	assert.Equal(t, 2, run.SuccessCount)
	assert.Equal(t, 1, run.FailedCount)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)

	logs, err := f.store.ListLogs(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3, "exactly one log row per case")

	// Execution counters and verdict counters stay independent: the failed
	// execution is judged declined (no response), the others pass.
	assert.Equal(t, 2, run.PassedCount)
	assert.Equal(t, 1, run.DeclinedCount)
}

func TestRun_CounterInvariant(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{}, WithWorkers(2))
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		f.addCase(t, name, "question "+name, "")
	}

	run, err := f.orch.Run(ctx, f.agentID, models.Overrides{})
	require.NoError(t, err)

	assert.Equal(t, run.TotalCount, run.SuccessCount+run.FailedCount)
	assert.Equal(t, 5, run.TotalCount)
}

func TestRun_NoTestCases(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{})
	ctx := context.Background()

	run, err := f.orch.Run(ctx, f.agentID, models.Overrides{})
	require.NoError(t, err)

	assert.Equal(t, models.RunFailed, run.Status)
	assert.Equal(t, 0, run.TotalCount)
	assert.Contains(t, run.Error, "no test cases")

	logs, err := f.store.ListLogs(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, logs, "no log rows for a run that never dispatched")
	assert.Empty(t, f.mock.Calls())
}

func TestRun_EvaluationIsolation(t *testing.T) {
	j := &failingJudge{failFor: map[string]bool{"case-2": true}}
	f := newFixture(t, j, WithWorkers(1))
	ctx := context.Background()

	f.addCase(t, "case-1", "q1", "must answer")
	f.addCase(t, "case-2", "q2", "must answer")
	f.addCase(t, "case-3", "q3", "must answer")

	run, err := f.orch.Run(ctx, f.agentID, models.Overrides{})
	require.NoError(t, err)

	// A judge failure never touches execution health.
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 3, run.SuccessCount)
	assert.Equal(t, 0, run.FailedCount)
	assert.Equal(t, 2, run.PassedCount)
	assert.Equal(t, 1, run.UnknownCount)

	logs, err := f.store.ListLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for _, log := range logs {
		assert.Equal(t, models.ExecutionSuccess, log.Outcome.Status)
		if log.Evaluation.Verdict == models.VerdictUnknown {
			assert.Contains(t, log.Evaluation.Feedback, "judge backend unavailable")
		}
	}
}

func TestRun_AgentDefaultsLayeredUnderOverrides(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{})
	ctx := context.Background()

	agent, err := f.store.GetAgent(ctx, f.agentID)
	require.NoError(t, err)
	agent.DefaultSystemPrompt = "default prompt"
	require.NoError(t, f.store.CreateAgent(ctx, &agent))

	f.addCase(t, "case-1", "Hi", "")

	run, err := f.orch.Run(ctx, f.agentID, models.Overrides{SystemPrompt: "caller prompt"})
	require.NoError(t, err)

	logs, err := f.store.ListLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "caller prompt", logs[0].SystemPrompt, "caller override wins over agent default")
}

func TestStart_ReturnsRunningAndFinishesAsync(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{})
	ctx := context.Background()

	f.addCase(t, "case-1", "Hi", "")

	run, err := f.orch.Start(ctx, f.agentID, models.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)
	assert.Equal(t, 1, run.TotalCount)

	require.Eventually(t, func() bool {
		current, err := f.orch.GetStatus(ctx, run.ID)
		return err == nil && current.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	final, err := f.orch.GetStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, final.Status)
	assert.Equal(t, 1, final.SuccessCount)
}

func TestRun_CancelledBeforeDispatch(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{})
	f.addCase(t, "case-1", "Hi", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.orch.Run(ctx, f.agentID, models.Overrides{})
	require.NoError(t, err)

	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.Error, "cancelled")
	assert.Equal(t, 0, run.SuccessCount+run.FailedCount)
}

// cancellingBackend cancels the run's context from inside its first call,
// simulating a shutdown request arriving while a case is in flight.
type cancellingBackend struct {
	cancel context.CancelFunc
	calls  atomic.Int64
}

func (b *cancellingBackend) Name() string { return "cancelling" }

func (b *cancellingBackend) Call(_ context.Context, _ models.ComposedRequest) (string, error) {
	if b.calls.Add(1) == 1 {
		b.cancel()
	}
	return "ok", nil
}

func TestRun_CancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := store.NewMemoryStore()
	agent := models.Agent{Name: "support-bot", DefaultModelName: "fast"}
	require.NoError(t, s.CreateAgent(context.Background(), &agent))
	for _, name := range []string{"case-1", "case-2", "case-3"} {
		tc := models.TestCase{
			AgentID:    agent.ID,
			Name:       name,
			Transcript: models.CapturedTranscript{LastUserMessage: "question for " + name},
		}
		require.NoError(t, s.CreateTestCase(context.Background(), &tc))
	}

	b := &cancellingBackend{cancel: cancel}
	orch := New(s, executor.New(b, time.Second), judge.NewEvaluator(alwaysPassJudge{}), WithWorkers(1))

	run, err := orch.Run(ctx, agent.ID, models.Overrides{})
	require.NoError(t, err)

	// The case holding the worker slot finishes its full unit; the queued
	// cases are never dispatched once the context is cancelled.
	assert.EqualValues(t, 1, b.calls.Load(), "queued cases must not reach the backend after cancellation")
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.Error, "cancelled")
	assert.Equal(t, 1, run.SuccessCount)
	assert.Equal(t, 0, run.FailedCount)

	logs, err := s.ListLogs(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1, "only the in-flight case persists a log")
}

// slowBackend holds every call for a fixed delay.
type slowBackend struct {
	delay time.Duration
}

func (b slowBackend) Name() string { return "slow" }

func (b slowBackend) Call(ctx context.Context, _ models.ComposedRequest) (string, error) {
	select {
	case <-time.After(b.delay):
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestWait_DrainsBackgroundRuns(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{}, WithWorkers(2))
	ctx := context.Background()

	f.addCase(t, "case-1", "Hi", "")
	f.addCase(t, "case-2", "Hello", "")

	run, err := f.orch.Start(ctx, f.agentID, models.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.orch.Wait(waitCtx))

	// After Wait returns the run is terminal: nothing is still executing
	// or writing, so the store can be closed safely.
	final, err := f.orch.GetStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, final.Status)
	assert.Equal(t, 2, final.SuccessCount)
}

func TestWait_ExpiresWhileRunStillInFlight(t *testing.T) {
	s := store.NewMemoryStore()
	agent := models.Agent{Name: "support-bot", DefaultModelName: "slow"}
	require.NoError(t, s.CreateAgent(context.Background(), &agent))
	tc := models.TestCase{
		AgentID:    agent.ID,
		Name:       "case-1",
		Transcript: models.CapturedTranscript{LastUserMessage: "Hi"},
	}
	require.NoError(t, s.CreateTestCase(context.Background(), &tc))

	orch := New(s, executor.New(slowBackend{delay: 200 * time.Millisecond}, time.Second),
		judge.NewEvaluator(alwaysPassJudge{}))

	_, err := orch.Start(context.Background(), agent.ID, models.Overrides{})
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, orch.Wait(shortCtx), context.DeadlineExceeded)

	// drain fully so the test does not leak the background run
	require.NoError(t, orch.Wait(context.Background()))
}

func TestRun_UnknownAgent(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{})

	_, err := f.orch.Run(context.Background(), "missing-agent", models.Overrides{})
	require.ErrorIs(t, err, store.ErrAgentNotFound)
}

func TestRun_ProgressEvents(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{}, WithWorkers(1))
	ctx := context.Background()

	f.addCase(t, "case-1", "Hi", "")

	var mu sync.Mutex
	var events []EventType
	f.orch.OnProgress(func(event ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event.EventType)
	})

	_, err := f.orch.Run(ctx, f.agentID, models.Overrides{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventRunStart, EventCaseStart, EventCaseComplete, EventRunComplete}, events)
}

func TestExecuteCase_SingleCase(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{})
	ctx := context.Background()

	tc := f.addCase(t, "case-1", "Hi", "must greet")
	f.mock.Respond("Hello there", "Hi! How can I help?")

	log, err := f.orch.ExecuteCase(ctx, tc.ID, models.Overrides{UserMessage: "Hello there"})
	require.NoError(t, err)

	assert.Empty(t, log.RunID)
	assert.Equal(t, models.ExecutionSuccess, log.Outcome.Status)
	assert.Equal(t, "Hi! How can I help?", log.Outcome.Response)
	assert.Equal(t, models.VerdictPassed, log.Evaluation.Verdict)
	assert.Equal(t, "Hello there", log.UserMessage)

	stored, err := f.store.GetLog(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, log.ID, stored.ID)
}

func TestExecuteCase_CompositionErrorWritesNoLog(t *testing.T) {
	f := newFixture(t, alwaysPassJudge{})
	ctx := context.Background()

	tc := f.addCase(t, "case-1", "", "must greet")

	_, err := f.orch.ExecuteCase(ctx, tc.ID, models.Overrides{})
	require.Error(t, err)

	logs, err := f.store.ListLogs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Empty(t, f.mock.Calls(), "rejected before any backend call")
}
