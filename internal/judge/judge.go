// Package judge scores replayed responses against test case expectations
// using a secondary model call.
package judge

import (
	"context"
	"log/slog"

	"github.com/retracehq/retrace/internal/models"
)

// Input is everything the judge sees for one case.
type Input struct {
	TestCaseName      string
	UserMessage       string
	Response          string
	Expectation       string
	ReferenceResponse string
}

// Verdict is the judge's raw structured answer before it is normalized into
// an EvaluationResult.
type Verdict struct {
	Passed            bool     `json:"passed"`
	Feedback          string   `json:"feedback"`
	SatisfiedCriteria []string `json:"satisfied_criteria"`
	MissingCriteria   []string `json:"missing_criteria"`
}

// Judge issues one call to a judging model.
type Judge interface {
	ModelName() string
	Judge(ctx context.Context, in Input) (Verdict, error)
}

// Evaluator wraps a Judge with the skip and failure-containment rules:
// no expectation means no call, and a judge failure is downgraded to an
// unknown verdict rather than surfaced. Evaluation never fails an execution.
type Evaluator struct {
	judge Judge
}

func NewEvaluator(j Judge) *Evaluator {
	return &Evaluator{judge: j}
}

// Evaluate scores one response. Returns verdict unknown without a backend
// call when the test case carries no expectation.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) models.EvaluationResult {
	if in.Expectation == "" {
		return models.EvaluationResult{
			Verdict:  models.VerdictUnknown,
			Feedback: "evaluation skipped",
		}
	}

	if in.Response == "" {
		return models.EvaluationResult{
			Verdict:    models.VerdictDeclined,
			Feedback:   "no response was produced to evaluate",
			JudgeModel: e.judge.ModelName(),
		}
	}

	verdict, err := e.judge.Judge(ctx, in)
	if err != nil {
		slog.Warn("judge call failed, recording unknown verdict",
			"test_case", in.TestCaseName,
			"error", err)
		return models.EvaluationResult{
			Verdict:    models.VerdictUnknown,
			Feedback:   "evaluation failed: " + err.Error(),
			JudgeModel: e.judge.ModelName(),
		}
	}

	result := models.EvaluationResult{
		Verdict:           models.VerdictDeclined,
		Feedback:          verdict.Feedback,
		JudgeModel:        e.judge.ModelName(),
		SatisfiedCriteria: verdict.SatisfiedCriteria,
		MissingCriteria:   verdict.MissingCriteria,
	}
	if verdict.Passed {
		result.Verdict = models.VerdictPassed
	}
	if result.Feedback == "" {
		result.Feedback = "evaluation completed without additional feedback"
	}
	return result
}
