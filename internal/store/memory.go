package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/retracehq/retrace/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and ephemeral
// runs.
type MemoryStore struct {
	mu        sync.RWMutex
	agents    map[string]models.Agent
	testCases map[string]models.TestCase
	runs      map[string]models.RegressionRun
	logs      map[string]models.TestLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:    map[string]models.Agent{},
		testCases: map[string]models.TestCase{},
		runs:      map[string]models.RegressionRun{},
		logs:      map[string]models.TestLog{},
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateAgent(_ context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	s.agents[agent.ID] = *agent
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return models.Agent{}, ErrAgentNotFound
	}
	return agent, nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.Before(agents[j].CreatedAt) })
	return agents, nil
}

func (s *MemoryStore) CreateTestCase(_ context.Context, tc *models.TestCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tc.ID == "" {
		tc.ID = uuid.New().String()
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now().UTC()
	}
	s.testCases[tc.ID] = *tc
	return nil
}

func (s *MemoryStore) GetTestCase(_ context.Context, id string) (models.TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.testCases[id]
	if !ok {
		return models.TestCase{}, ErrTestCaseNotFound
	}
	return tc, nil
}

func (s *MemoryStore) ListTestCases(_ context.Context, agentID string) ([]models.TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cases []models.TestCase
	for _, tc := range s.testCases {
		if tc.AgentID == agentID {
			cases = append(cases, tc)
		}
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].CreatedAt.Before(cases[j].CreatedAt) })
	return cases, nil
}

func (s *MemoryStore) CreateRun(_ context.Context, run *models.RegressionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunPending
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (models.RegressionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return models.RegressionRun{}, ErrRunNotFound
	}
	return run, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, agentID string) ([]models.RegressionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []models.RegressionRun
	for _, run := range s.runs {
		if agentID == "" || run.AgentID == agentID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

func (s *MemoryStore) SetRunStatus(_ context.Context, id string, status models.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if run.Status.Terminal() {
		return ErrRunTerminal
	}
	now := time.Now().UTC()
	run.Status = status
	run.Error = errMsg
	switch {
	case status == models.RunRunning:
		run.StartedAt = &now
	case status.Terminal():
		run.CompletedAt = &now
	}
	s.runs[id] = run
	return nil
}

func (s *MemoryStore) SetRunTotal(_ context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	run.TotalCount = total
	s.runs[id] = run
	return nil
}

func (s *MemoryStore) IncrementRunCounters(_ context.Context, id string, delta models.CounterDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	run.SuccessCount += delta.Success
	run.FailedCount += delta.Failed
	run.PassedCount += delta.Passed
	run.DeclinedCount += delta.Declined
	run.UnknownCount += delta.Unknown
	s.runs[id] = run
	return nil
}

func (s *MemoryStore) AppendLog(_ context.Context, log *models.TestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	s.logs[log.ID] = *log
	return nil
}

func (s *MemoryStore) GetLog(_ context.Context, id string) (models.TestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[id]
	if !ok {
		return models.TestLog{}, ErrLogNotFound
	}
	return log, nil
}

func (s *MemoryStore) ListLogs(_ context.Context, runID string) ([]models.TestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var logs []models.TestLog
	for _, log := range s.logs {
		if log.RunID == runID {
			logs = append(logs, log)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })
	return logs, nil
}
