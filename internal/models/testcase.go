package models

import "time"

// Agent is the owner of test cases. Its default fields are layered under
// per-run overrides when a regression is started.
type Agent struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	DefaultModelName    string   `json:"default_model_name,omitempty" yaml:"default_model_name,omitempty"`
	DefaultSystemPrompt string   `json:"default_system_prompt,omitempty" yaml:"default_system_prompt,omitempty"`
	DefaultSettings     Settings `json:"default_settings,omitempty" yaml:"default_settings,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Defaults expresses the agent's default fields as an override layer.
func (a Agent) Defaults() Overrides {
	return Overrides{
		ModelName:     a.DefaultModelName,
		SystemPrompt:  a.DefaultSystemPrompt,
		ModelSettings: a.DefaultSettings,
	}
}

// TestCase is one stored replayable scenario: a captured transcript plus an
// optional expectation the judge scores the replayed response against.
type TestCase struct {
	ID      string `json:"id" yaml:"id"`
	AgentID string `json:"agent_id" yaml:"agent_id"`
	Name    string `json:"name" yaml:"name"`

	Transcript CapturedTranscript `json:"transcript" yaml:"transcript"`

	// Expectation is the acceptance criteria for the judge. Empty means
	// evaluation is skipped for this case.
	Expectation string `json:"expectation,omitempty" yaml:"expectation,omitempty"`

	// ReferenceResponse is an optional known-good answer shown to the judge.
	ReferenceResponse string `json:"reference_response,omitempty" yaml:"reference_response,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// TestLog is the append-only durable record of one execution attempt. It is
// written exactly once, after evaluation completes, and never mutated.
type TestLog struct {
	ID         string `json:"id"`
	TestCaseID string `json:"test_case_id"`
	AgentID    string `json:"agent_id"`
	RunID      string `json:"run_id,omitempty"`

	// Effective fields the case actually ran with.
	ModelName     string   `json:"model_name"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	UserMessage   string   `json:"user_message"`
	ModelSettings Settings `json:"model_settings,omitempty"`

	Outcome    ExecutionOutcome `json:"outcome"`
	Evaluation EvaluationResult `json:"evaluation"`

	CreatedAt time.Time `json:"created_at"`
}
