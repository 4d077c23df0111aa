package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/retracehq/retrace/internal/backend"
	"github.com/retracehq/retrace/internal/models"
)

const judgeSystemPrompt = `You are an impartial judge that evaluates whether an AI assistant's response satisfies
explicit acceptance criteria. Follow these principles:

1. The acceptance criteria (if provided) are the source of truth. Every critical requirement
   must be satisfied. Missing or contradicting information means failure.
2. The reference response is optional guidance for tone or structure. Do not require exact
   wording if the acceptance criteria are satisfied.
3. If no acceptance criteria exist, infer them from the reference response when reasonable
   and focus on factual accuracy and usefulness.
4. Respond succinctly, referencing concrete issues.

Reply with a single JSON object and nothing else:
{"passed": bool, "feedback": string, "satisfied_criteria": [string], "missing_criteria": [string]}`

// verdictSchema validates the judge model's JSON before it is trusted.
const verdictSchema = `{
  "type": "object",
  "properties": {
    "passed": {"type": "boolean"},
    "feedback": {"type": "string"},
    "satisfied_criteria": {"type": "array", "items": {"type": "string"}},
    "missing_criteria": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["passed", "feedback"],
  "additionalProperties": true
}`

// LLMJudge asks a judge model for a structured pass/decline assessment.
type LLMJudge struct {
	backend backend.Backend
	model   string
	schema  *jsonschema.Schema
}

// NewLLMJudge builds a judge over the given backend. model is the full
// provider-prefixed model name the backend understands.
func NewLLMJudge(b backend.Backend, model string) (*LLMJudge, error) {
	schemaValue, err := jsonschema.UnmarshalJSON(strings.NewReader(verdictSchema))
	if err != nil {
		return nil, fmt.Errorf("parsing verdict schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("verdict.json", schemaValue); err != nil {
		return nil, fmt.Errorf("adding verdict schema resource: %w", err)
	}
	schema, err := compiler.Compile("verdict.json")
	if err != nil {
		return nil, fmt.Errorf("compiling verdict schema: %w", err)
	}
	return &LLMJudge{backend: b, model: model, schema: schema}, nil
}

func (j *LLMJudge) ModelName() string { return j.model }

func (j *LLMJudge) Judge(ctx context.Context, in Input) (Verdict, error) {
	req := models.ComposedRequest{
		ModelName:    j.model,
		SystemPrompt: judgeSystemPrompt,
		UserMessage:  buildJudgePrompt(in),
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: judgeSystemPrompt},
			{Role: models.RoleUser, Content: buildJudgePrompt(in)},
		},
	}

	raw, err := j.backend.Call(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge model call: %w", err)
	}

	return parseVerdict(raw, j.schema)
}

func parseVerdict(raw string, schema *jsonschema.Schema) (Verdict, error) {
	cleaned := stripCodeFence(raw)

	var value any
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return Verdict{}, fmt.Errorf("judge output is not valid JSON: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return Verdict{}, fmt.Errorf("judge output failed schema validation: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("decoding judge output: %w", err)
	}
	return verdict, nil
}

// stripCodeFence unwraps responses where the model fenced its JSON despite
// the instructions.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func buildJudgePrompt(in Input) string {
	var sections []string

	if in.TestCaseName != "" {
		sections = append(sections, "Test Case Name:\n"+strings.TrimSpace(in.TestCaseName))
	}

	if in.Expectation != "" {
		sections = append(sections, "Acceptance Criteria:\n"+strings.TrimSpace(in.Expectation))
	} else {
		sections = append(sections, "Acceptance Criteria:\nNo explicit criteria were provided. Derive expectations from the reference response if available and ensure factual correctness.")
	}

	if in.ReferenceResponse != "" {
		sections = append(sections, "Reference Response (if helpful):\n"+strings.TrimSpace(in.ReferenceResponse))
	} else {
		sections = append(sections, "Reference Response (if helpful):\nNot provided. Focus on the acceptance criteria above.")
	}

	if in.UserMessage != "" {
		sections = append(sections, "User Message:\n"+strings.TrimSpace(in.UserMessage))
	}

	sections = append(sections, "Actual Response to Evaluate:\n"+strings.TrimSpace(in.Response))

	sections = append(sections, "Determine if the actual response satisfies the acceptance criteria. "+
		"If any critical requirement is missing or incorrect, mark it as failed. "+
		"Respond concisely with your judgement.")

	return strings.Join(sections, "\n\n")
}
