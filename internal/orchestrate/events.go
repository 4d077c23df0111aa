package orchestrate

import "github.com/retracehq/retrace/internal/models"

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventRunStart     EventType = "run_start"
	EventRunComplete  EventType = "run_complete"
	EventRunFailed    EventType = "run_failed"
	EventRunCancelled EventType = "run_cancelled"
	EventCaseStart    EventType = "case_start"
	EventCaseComplete EventType = "case_complete"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType    EventType
	RunID        string
	AgentID      string
	TestCaseID   string
	TestCaseName string
	CaseNum      int
	TotalCases   int
	Status       models.ExecutionStatus
	Verdict      models.Verdict
	DurationMs   int64
	Error        string
}
