package importer

import (
	"testing"

	"github.com/retracehq/retrace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bareCapture = `{
  "model": "gpt-4o-mini",
  "temperature": 0.3,
  "max_tokens": 512,
  "messages": [
    {"role": "system", "content": "You are helpful"},
    {"role": "user", "content": "earlier question"},
    {"role": "assistant", "content": "earlier answer"},
    {"role": "user", "content": "Hi"}
  ],
  "tools": [
    {"type": "function", "function": {"name": "lookup", "parameters": {"type": "object"}}}
  ]
}`

func TestParseCapture_BareRequest(t *testing.T) {
	transcript, err := ParseCapture([]byte(bareCapture))
	require.NoError(t, err)

	assert.Equal(t, "You are helpful", transcript.SystemPrompt)
	assert.Equal(t, "Hi", transcript.LastUserMessage)
	assert.Equal(t, "gpt-4o-mini", transcript.ModelName)

	require.Len(t, transcript.MiddleMessages, 2)
	assert.Equal(t, models.RoleUser, transcript.MiddleMessages[0].Role)
	assert.Equal(t, "earlier question", transcript.MiddleMessages[0].Content)
	assert.Equal(t, "earlier answer", transcript.MiddleMessages[1].Content)

	assert.Equal(t, 0.3, transcript.ModelSettings["temperature"])
	assert.Equal(t, float64(512), transcript.ModelSettings["max_tokens"])
	assert.NotContains(t, transcript.ModelSettings, "messages")
	assert.NotContains(t, transcript.ModelSettings, "model")

	require.Len(t, transcript.Tools, 1)
	assert.Equal(t, "lookup", transcript.Tools[0].Function.Name)
}

func TestParseCapture_TracingEnvelope(t *testing.T) {
	envelope := `{
	  "attributes": {
	    "http.request.body.text": {
	      "model": "gpt-4o",
	      "messages": [{"role": "user", "content": "Hi"}]
	    }
	  }
	}`

	transcript, err := ParseCapture([]byte(envelope))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", transcript.ModelName)
	assert.Equal(t, "Hi", transcript.LastUserMessage)
	assert.Empty(t, transcript.SystemPrompt)
	assert.Empty(t, transcript.MiddleMessages)
}

func TestParseCapture_EnvelopeWithStringBody(t *testing.T) {
	envelope := `{
	  "attributes": {
	    "http.request.body.text": "{\"model\": \"gpt-4o\", \"messages\": [{\"role\": \"user\", \"content\": \"Hi\"}]}"
	  }
	}`

	transcript, err := ParseCapture([]byte(envelope))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", transcript.ModelName)
	assert.Equal(t, "Hi", transcript.LastUserMessage)
}

func TestParseCapture_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{
			name:    "not json",
			payload: "nope",
			wantErr: "not valid JSON",
		},
		{
			name:    "missing model",
			payload: `{"messages": [{"role": "user", "content": "Hi"}]}`,
			wantErr: "failed validation",
		},
		{
			name:    "empty messages",
			payload: `{"model": "gpt-4o", "messages": []}`,
			wantErr: "failed validation",
		},
		{
			name:    "bad role",
			payload: `{"model": "gpt-4o", "messages": [{"role": "robot", "content": "Hi"}]}`,
			wantErr: "failed validation",
		},
		{
			name:    "envelope without body",
			payload: `{"attributes": {}}`,
			wantErr: "has no",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCapture([]byte(tt.payload))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseCapture_ToolCallMessagesSurviveSplit(t *testing.T) {
	capture := `{
	  "model": "gpt-4o",
	  "messages": [
	    {"role": "user", "content": "look this up"},
	    {"role": "assistant", "content": "", "tool_calls": [
	      {"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"x\"}"}}
	    ]},
	    {"role": "tool", "content": "{\"result\":42}", "tool_call_id": "call_1"},
	    {"role": "user", "content": "thanks, summarize"}
	  ]
	}`

	transcript, err := ParseCapture([]byte(capture))
	require.NoError(t, err)

	assert.Equal(t, "thanks, summarize", transcript.LastUserMessage)
	require.Len(t, transcript.MiddleMessages, 3)

	assistant := transcript.MiddleMessages[1]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "lookup", assistant.ToolCalls[0].Function.Name)
	assert.Equal(t, "call_1", transcript.MiddleMessages[2].ToolCallID)
}

func TestLoadTestCases_SingleDocument(t *testing.T) {
	doc := `
name: greeting
expectation: must greet
transcript:
  system_prompt: You are helpful
  last_user_message: Hi
  model_name: mock:fast
`
	cases, err := LoadTestCases([]byte(doc))
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "greeting", cases[0].Name)
	assert.Equal(t, "Hi", cases[0].Transcript.LastUserMessage)
}

func TestLoadTestCases_List(t *testing.T) {
	doc := `
- name: one
  transcript:
    last_user_message: first
- name: two
  transcript:
    last_user_message: second
    middle_messages:
      - role: assistant
        content: ack
`
	cases, err := LoadTestCases([]byte(doc))
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "second", cases[1].Transcript.LastUserMessage)
	require.Len(t, cases[1].Transcript.MiddleMessages, 1)
}

func TestLoadTestCases_Invalid(t *testing.T) {
	_, err := LoadTestCases([]byte("name: incomplete\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no last_user_message")

	_, err = LoadTestCases([]byte("- transcript:\n    last_user_message: Hi\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name")
}
