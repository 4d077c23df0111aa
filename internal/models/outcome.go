package models

// ExecutionStatus classifies a single backend call.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ExecutionOutcome records one backend call. Response is set only on
// success, Error only on failure. LatencyMS covers the outbound call itself
// and is recorded whether or not the call succeeded.
type ExecutionOutcome struct {
	Status    ExecutionStatus `json:"status"`
	LatencyMS int64           `json:"latency_ms"`
	Response  string          `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Verdict is the judge model's assessment of a response.
type Verdict string

const (
	VerdictPassed   Verdict = "passed"
	VerdictDeclined Verdict = "declined"
	// VerdictUnknown means no expectation was supplied or the judge call
	// itself failed. It is never an execution failure.
	VerdictUnknown Verdict = "unknown"
)

// EvaluationResult is the judged assessment of one response against a test
// case expectation. Verdict is independent of ExecutionOutcome.Status.
type EvaluationResult struct {
	Verdict           Verdict  `json:"verdict"`
	Feedback          string   `json:"feedback,omitempty"`
	JudgeModel        string   `json:"judge_model,omitempty"`
	SatisfiedCriteria []string `json:"satisfied_criteria,omitempty"`
	MissingCriteria   []string `json:"missing_criteria,omitempty"`
}
