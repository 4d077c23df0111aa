// Package store is the persistence boundary: agents, test cases, regression
// runs and their append-only execution logs.
package store

import (
	"context"
	"errors"

	"github.com/retracehq/retrace/internal/models"
)

var (
	ErrAgentNotFound    = errors.New("agent not found")
	ErrTestCaseNotFound = errors.New("test case not found")
	ErrRunNotFound      = errors.New("run not found")
	ErrLogNotFound      = errors.New("test log not found")

	// ErrRunTerminal is returned by SetRunStatus when the run already
	// reached completed or failed; terminal runs never transition again.
	ErrRunTerminal = errors.New("run is in a terminal state")
)

// Store holds all durable state. Implementations must make
// IncrementRunCounters atomic under concurrent callers; test_logs are
// append-only and never updated.
type Store interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (models.Agent, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)

	CreateTestCase(ctx context.Context, tc *models.TestCase) error
	GetTestCase(ctx context.Context, id string) (models.TestCase, error)
	ListTestCases(ctx context.Context, agentID string) ([]models.TestCase, error)

	CreateRun(ctx context.Context, run *models.RegressionRun) error
	GetRun(ctx context.Context, id string) (models.RegressionRun, error)
	ListRuns(ctx context.Context, agentID string) ([]models.RegressionRun, error)

	// SetRunStatus transitions a run, stamping started_at on running and
	// completed_at on a terminal status. A run that is already terminal
	// is never transitioned again; ErrRunTerminal is returned instead.
	SetRunStatus(ctx context.Context, id string, status models.RunStatus, errMsg string) error

	// SetRunTotal records the enumerated case count before workers start.
	SetRunTotal(ctx context.Context, id string, total int) error

	// IncrementRunCounters applies one case's counter delta atomically.
	IncrementRunCounters(ctx context.Context, id string, delta models.CounterDelta) error

	AppendLog(ctx context.Context, log *models.TestLog) error
	GetLog(ctx context.Context, id string) (models.TestLog, error)
	ListLogs(ctx context.Context, runID string) ([]models.TestLog, error)

	Close() error
}
