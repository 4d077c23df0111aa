package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/retracehq/retrace/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore implements Store over a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs pending
// migrations. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under the concurrent worker pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func newID() string {
	return uuid.New().String()
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding row field: %w", err)
	}
	return string(data), nil
}

func unmarshal(data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decoding row field: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = newID()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	settings, err := marshal(agent.DefaultSettings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, default_model_name, default_system_prompt, default_settings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.Description, agent.DefaultModelName, agent.DefaultSystemPrompt, settings, agent.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, default_model_name, default_system_prompt, default_settings, created_at
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, default_model_name, default_system_prompt, default_settings, created_at
		FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (models.Agent, error) {
	var agent models.Agent
	var settings string
	err := row.Scan(&agent.ID, &agent.Name, &agent.Description,
		&agent.DefaultModelName, &agent.DefaultSystemPrompt, &settings, &agent.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return agent, ErrAgentNotFound
	}
	if err != nil {
		return agent, fmt.Errorf("scanning agent: %w", err)
	}
	if err := unmarshal(settings, &agent.DefaultSettings); err != nil {
		return agent, err
	}
	return agent, nil
}

func (s *SQLiteStore) CreateTestCase(ctx context.Context, tc *models.TestCase) error {
	if tc.ID == "" {
		tc.ID = newID()
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now().UTC()
	}
	transcript, err := marshal(tc.Transcript)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_cases (id, agent_id, name, transcript, expectation, reference_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tc.ID, tc.AgentID, tc.Name, transcript, tc.Expectation, tc.ReferenceResponse, tc.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting test case: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTestCase(ctx context.Context, id string) (models.TestCase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, name, transcript, expectation, reference_response, created_at
		FROM test_cases WHERE id = ?`, id)
	return scanTestCase(row)
}

func (s *SQLiteStore) ListTestCases(ctx context.Context, agentID string) ([]models.TestCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, name, transcript, expectation, reference_response, created_at
		FROM test_cases WHERE agent_id = ? ORDER BY created_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing test cases: %w", err)
	}
	defer rows.Close()

	var cases []models.TestCase
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

func scanTestCase(row rowScanner) (models.TestCase, error) {
	var tc models.TestCase
	var transcript string
	err := row.Scan(&tc.ID, &tc.AgentID, &tc.Name, &transcript, &tc.Expectation, &tc.ReferenceResponse, &tc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tc, ErrTestCaseNotFound
	}
	if err != nil {
		return tc, fmt.Errorf("scanning test case: %w", err)
	}
	if err := unmarshal(transcript, &tc.Transcript); err != nil {
		return tc, err
	}
	return tc, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.RegressionRun) error {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunPending
	}
	overrides, err := marshal(run.Overrides)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO regression_runs
			(id, agent_id, status, error, total_count, success_count, failed_count,
			 passed_count, declined_count, unknown_count, overrides, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AgentID, run.Status, run.Error,
		run.TotalCount, run.SuccessCount, run.FailedCount,
		run.PassedCount, run.DeclinedCount, run.UnknownCount,
		overrides, run.CreatedAt, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (models.RegressionRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, status, error, total_count, success_count, failed_count,
		       passed_count, declined_count, unknown_count, overrides, created_at, started_at, completed_at
		FROM regression_runs WHERE id = ?`, id)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, agentID string) ([]models.RegressionRun, error) {
	query := `
		SELECT id, agent_id, status, error, total_count, success_count, failed_count,
		       passed_count, declined_count, unknown_count, overrides, created_at, started_at, completed_at
		FROM regression_runs`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RegressionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (models.RegressionRun, error) {
	var run models.RegressionRun
	var overrides string
	err := row.Scan(&run.ID, &run.AgentID, &run.Status, &run.Error,
		&run.TotalCount, &run.SuccessCount, &run.FailedCount,
		&run.PassedCount, &run.DeclinedCount, &run.UnknownCount,
		&overrides, &run.CreatedAt, &run.StartedAt, &run.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrRunNotFound
	}
	if err != nil {
		return run, fmt.Errorf("scanning run: %w", err)
	}
	if err := unmarshal(overrides, &run.Overrides); err != nil {
		return run, err
	}
	return run, nil
}

func (s *SQLiteStore) SetRunStatus(ctx context.Context, id string, status models.RunStatus, errMsg string) error {
	// the WHERE clause keeps terminal runs terminal
	const guard = ` WHERE id = ? AND status NOT IN ('completed', 'failed')`

	now := time.Now().UTC()
	var res sql.Result
	var err error
	switch {
	case status == models.RunRunning:
		res, err = s.db.ExecContext(ctx,
			`UPDATE regression_runs SET status = ?, error = ?, started_at = ?`+guard,
			status, errMsg, now, id)
	case status.Terminal():
		res, err = s.db.ExecContext(ctx,
			`UPDATE regression_runs SET status = ?, error = ?, completed_at = ?`+guard,
			status, errMsg, now, id)
	default:
		res, err = s.db.ExecContext(ctx,
			`UPDATE regression_runs SET status = ?, error = ?`+guard,
			status, errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		var current string
		qerr := s.db.QueryRowContext(ctx,
			`SELECT status FROM regression_runs WHERE id = ?`, id).Scan(&current)
		if errors.Is(qerr, sql.ErrNoRows) {
			return ErrRunNotFound
		}
		if qerr != nil {
			return fmt.Errorf("checking run status: %w", qerr)
		}
		return ErrRunTerminal
	}
	return nil
}

// SetRunTotal records the enumerated case count before workers start.
func (s *SQLiteStore) SetRunTotal(ctx context.Context, id string, total int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE regression_runs SET total_count = ? WHERE id = ?`, total, id)
	if err != nil {
		return fmt.Errorf("updating run total: %w", err)
	}
	return requireRowAffected(res, ErrRunNotFound)
}

func (s *SQLiteStore) IncrementRunCounters(ctx context.Context, id string, delta models.CounterDelta) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE regression_runs SET
			success_count = success_count + ?,
			failed_count = failed_count + ?,
			passed_count = passed_count + ?,
			declined_count = declined_count + ?,
			unknown_count = unknown_count + ?
		WHERE id = ?`,
		delta.Success, delta.Failed, delta.Passed, delta.Declined, delta.Unknown, id)
	if err != nil {
		return fmt.Errorf("incrementing run counters: %w", err)
	}
	return requireRowAffected(res, ErrRunNotFound)
}

func requireRowAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, log *models.TestLog) error {
	if log.ID == "" {
		log.ID = newID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	settings, err := marshal(log.ModelSettings)
	if err != nil {
		return err
	}
	outcome, err := marshal(log.Outcome)
	if err != nil {
		return err
	}
	evaluation, err := marshal(log.Evaluation)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_logs
			(id, test_case_id, agent_id, run_id, model_name, system_prompt, user_message,
			 model_settings, outcome, evaluation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.TestCaseID, log.AgentID, log.RunID,
		log.ModelName, log.SystemPrompt, log.UserMessage,
		settings, outcome, evaluation, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending test log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLog(ctx context.Context, id string) (models.TestLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, test_case_id, agent_id, run_id, model_name, system_prompt, user_message,
		       model_settings, outcome, evaluation, created_at
		FROM test_logs WHERE id = ?`, id)
	return scanLog(row)
}

func (s *SQLiteStore) ListLogs(ctx context.Context, runID string) ([]models.TestLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, test_case_id, agent_id, run_id, model_name, system_prompt, user_message,
		       model_settings, outcome, evaluation, created_at
		FROM test_logs WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing test logs: %w", err)
	}
	defer rows.Close()

	var logs []models.TestLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanLog(row rowScanner) (models.TestLog, error) {
	var log models.TestLog
	var settings, outcome, evaluation string
	err := row.Scan(&log.ID, &log.TestCaseID, &log.AgentID, &log.RunID,
		&log.ModelName, &log.SystemPrompt, &log.UserMessage,
		&settings, &outcome, &evaluation, &log.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return log, ErrLogNotFound
	}
	if err != nil {
		return log, fmt.Errorf("scanning test log: %w", err)
	}
	if err := unmarshal(settings, &log.ModelSettings); err != nil {
		return log, err
	}
	if err := unmarshal(outcome, &log.Outcome); err != nil {
		return log, err
	}
	if err := unmarshal(evaluation, &log.Evaluation); err != nil {
		return log, err
	}
	return log, nil
}
