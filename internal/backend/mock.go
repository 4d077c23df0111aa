package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/retracehq/retrace/internal/models"
)

// MockBackend is a canned-response backend for tests and offline dry runs.
// By default it echoes the final user message; per-call behavior can be
// scripted with Respond and Fail.
type MockBackend struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     []models.ComposedRequest
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		responses: map[string]string{},
		failures:  map[string]error{},
	}
}

func (m *MockBackend) Name() string { return "mock" }

// Respond makes calls whose user message equals userMessage return response.
func (m *MockBackend) Respond(userMessage, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[userMessage] = response
}

// Fail makes calls whose user message equals userMessage return err.
func (m *MockBackend) Fail(userMessage string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[userMessage] = err
}

// Calls returns a copy of every request seen so far.
func (m *MockBackend) Calls() []models.ComposedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ComposedRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockBackend) Call(ctx context.Context, req models.ComposedRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	failure := m.failures[req.UserMessage]
	response, scripted := m.responses[req.UserMessage]
	m.mu.Unlock()

	if failure != nil {
		return "", failure
	}
	if scripted {
		return response, nil
	}
	return fmt.Sprintf("mock response for: %s", req.UserMessage), nil
}
