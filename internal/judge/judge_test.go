package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/retracehq/retrace/internal/backend"
	"github.com/retracehq/retrace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJudge struct {
	verdict Verdict
	err     error
	calls   int
}

func (f *fakeJudge) ModelName() string { return "mock:judge" }

func (f *fakeJudge) Judge(_ context.Context, _ Input) (Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

func TestEvaluate_NoExpectationSkips(t *testing.T) {
	fake := &fakeJudge{}
	result := NewEvaluator(fake).Evaluate(context.Background(), Input{
		UserMessage: "Hi",
		Response:    "Hello!",
	})

	assert.Equal(t, models.VerdictUnknown, result.Verdict)
	assert.Equal(t, "evaluation skipped", result.Feedback)
	assert.Zero(t, fake.calls, "no judge call without an expectation")
}

func TestEvaluate_Passed(t *testing.T) {
	fake := &fakeJudge{verdict: Verdict{
		Passed:            true,
		Feedback:          "greets the user politely",
		SatisfiedCriteria: []string{"is a greeting"},
	}}

	result := NewEvaluator(fake).Evaluate(context.Background(), Input{
		UserMessage: "Hi",
		Response:    "Hello!",
		Expectation: "Response must be a greeting",
	})

	assert.Equal(t, models.VerdictPassed, result.Verdict)
	assert.Equal(t, "greets the user politely", result.Feedback)
	assert.Equal(t, "mock:judge", result.JudgeModel)
	assert.Equal(t, []string{"is a greeting"}, result.SatisfiedCriteria)
}

func TestEvaluate_Declined(t *testing.T) {
	fake := &fakeJudge{verdict: Verdict{
		Passed:          false,
		Feedback:        "does not mention the refund policy",
		MissingCriteria: []string{"refund policy"},
	}}

	result := NewEvaluator(fake).Evaluate(context.Background(), Input{
		Response:    "Sure, I can help.",
		Expectation: "Must cite the refund policy",
	})

	assert.Equal(t, models.VerdictDeclined, result.Verdict)
	assert.Equal(t, []string{"refund policy"}, result.MissingCriteria)
}

func TestEvaluate_JudgeFailureBecomesUnknown(t *testing.T) {
	fake := &fakeJudge{err: errors.New("judge backend down")}

	result := NewEvaluator(fake).Evaluate(context.Background(), Input{
		Response:    "Hello!",
		Expectation: "Must be a greeting",
	})

	assert.Equal(t, models.VerdictUnknown, result.Verdict)
	assert.Contains(t, result.Feedback, "judge backend down")
}

func TestEvaluate_EmptyResponseDeclines(t *testing.T) {
	fake := &fakeJudge{}

	result := NewEvaluator(fake).Evaluate(context.Background(), Input{
		Expectation: "Must be a greeting",
	})

	assert.Equal(t, models.VerdictDeclined, result.Verdict)
	assert.Contains(t, result.Feedback, "no response")
	assert.Zero(t, fake.calls)
}

func TestLLMJudge_ParsesStructuredVerdict(t *testing.T) {
	mock := backend.NewMockBackend()
	llm, err := NewLLMJudge(mock, "mock:judge-1")
	require.NoError(t, err)

	in := Input{
		TestCaseName: "greeting",
		UserMessage:  "Hi",
		Response:     "Hello!",
		Expectation:  "Must greet",
	}
	mock.Respond(buildJudgePrompt(in), `{"passed": true, "feedback": "ok", "satisfied_criteria": ["greets"], "missing_criteria": []}`)

	verdict, err := llm.Judge(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
	assert.Equal(t, "ok", verdict.Feedback)
	assert.Equal(t, []string{"greets"}, verdict.SatisfiedCriteria)
}

func TestLLMJudge_FencedJSONIsAccepted(t *testing.T) {
	llm, err := NewLLMJudge(backend.NewMockBackend(), "mock:judge-1")
	require.NoError(t, err)

	verdict, err := parseVerdict("```json\n{\"passed\": false, \"feedback\": \"missing details\"}\n```", llm.schema)
	require.NoError(t, err)
	assert.False(t, verdict.Passed)
	assert.Equal(t, "missing details", verdict.Feedback)
}

func TestLLMJudge_MalformedOutput(t *testing.T) {
	llm, err := NewLLMJudge(backend.NewMockBackend(), "mock:judge-1")
	require.NoError(t, err)

	t.Run("not json", func(t *testing.T) {
		_, err := parseVerdict("I think it passed", llm.schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid JSON")
	})

	t.Run("schema violation", func(t *testing.T) {
		_, err := parseVerdict(`{"passed": "yes"}`, llm.schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation")
	})
}

func TestBuildJudgePrompt_Sections(t *testing.T) {
	prompt := buildJudgePrompt(Input{
		TestCaseName: "refund flow",
		UserMessage:  "Can I get a refund?",
		Response:     "Yes, within 30 days.",
		Expectation:  "Mention the 30 day window",
	})

	assert.Contains(t, prompt, "Test Case Name:\nrefund flow")
	assert.Contains(t, prompt, "Acceptance Criteria:\nMention the 30 day window")
	assert.Contains(t, prompt, "Reference Response (if helpful):\nNot provided")
	assert.Contains(t, prompt, "Actual Response to Evaluate:\nYes, within 30 days.")
}
