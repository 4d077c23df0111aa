package models

import "time"

// RunStatus is the regression run state machine.
//
//	pending -> running -> completed
//	pending -> failed            (no test cases, setup fault)
//	running -> failed            (store unreachable mid-setup)
//
// completed and failed are terminal.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// RegressionRun is one batch execution of an agent's test cases under a
// fixed set of overrides.
//
// SuccessCount and FailedCount track execution health (did the backend call
// return). PassedCount, DeclinedCount and UnknownCount track judged verdicts.
// The two families are incremented independently and never conflated.
type RegressionRun struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`

	Status RunStatus `json:"status"`
	Error  string    `json:"error,omitempty"`

	TotalCount   int `json:"total_count"`
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`

	PassedCount   int `json:"passed_count"`
	DeclinedCount int `json:"declined_count"`
	UnknownCount  int `json:"unknown_count"`

	Overrides Overrides `json:"overrides,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CounterDelta is one case's contribution to a run's counters. Exactly one
// of Success or Failed is set; exactly one verdict field is set.
type CounterDelta struct {
	Success  int
	Failed   int
	Passed   int
	Declined int
	Unknown  int
}

// DeltaFor builds the counter delta for one completed case.
func DeltaFor(outcome ExecutionOutcome, eval EvaluationResult) CounterDelta {
	var d CounterDelta
	if outcome.Status == ExecutionSuccess {
		d.Success = 1
	} else {
		d.Failed = 1
	}
	switch eval.Verdict {
	case VerdictPassed:
		d.Passed = 1
	case VerdictDeclined:
		d.Declined = 1
	default:
		d.Unknown = 1
	}
	return d
}
