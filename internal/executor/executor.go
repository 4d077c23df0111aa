// Package executor drives single composed requests against a model backend
// with latency and failure accounting.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/retracehq/retrace/internal/backend"
	"github.com/retracehq/retrace/internal/models"
)

// DefaultTimeout bounds one backend call when the executor is built with a
// zero timeout.
const DefaultTimeout = 2 * time.Minute

// CaseExecutor performs one backend call per composed request. Backend
// errors are folded into the outcome and never returned; every case is
// independent from the orchestrator's point of view.
type CaseExecutor struct {
	backend backend.Backend
	timeout time.Duration
}

func New(b backend.Backend, timeout time.Duration) *CaseExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CaseExecutor{backend: b, timeout: timeout}
}

// Execute sends the request and classifies the result. Latency covers the
// outbound call only and is recorded whether the call succeeded or failed.
// No retry: a failed case is reported, not re-attempted.
func (e *CaseExecutor) Execute(ctx context.Context, req models.ComposedRequest) models.ExecutionOutcome {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	response, err := e.backend.Call(callCtx, req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		slog.Debug("backend call failed",
			"model", req.ModelName,
			"latency_ms", latency,
			"error", err)
		return models.ExecutionOutcome{
			Status:    models.ExecutionFailed,
			LatencyMS: latency,
			Error:     err.Error(),
		}
	}

	return models.ExecutionOutcome{
		Status:    models.ExecutionSuccess,
		LatencyMS: latency,
		Response:  response,
	}
}
