package compose

import (
	"testing"

	"github.com/retracehq/retrace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTranscript() models.CapturedTranscript {
	return models.CapturedTranscript{
		SystemPrompt: "You are helpful",
		MiddleMessages: []models.Message{
			{Role: models.RoleAssistant, Content: "ack"},
		},
		LastUserMessage: "Hi",
		ModelName:       "mock:fast",
		ModelSettings:   models.Settings{"temperature": 0.2},
	}
}

func TestCompose_OverrideUserMessage(t *testing.T) {
	req, err := Compose(sampleTranscript(), models.Overrides{UserMessage: "Hello there"})
	require.NoError(t, err)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, models.Message{Role: models.RoleSystem, Content: "You are helpful"}, req.Messages[0])
	assert.Equal(t, models.Message{Role: models.RoleAssistant, Content: "ack"}, req.Messages[1])
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "Hello there"}, req.Messages[2])
	assert.Equal(t, "Hello there", req.UserMessage)
	assert.Equal(t, "mock:fast", req.ModelName)
}

func TestCompose_Deterministic(t *testing.T) {
	transcript := sampleTranscript()
	overrides := models.Overrides{SystemPrompt: "Be terse", ModelName: "mock:other"}

	first, err := Compose(transcript, overrides)
	require.NoError(t, err)
	second, err := Compose(transcript, overrides)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same inputs must compose identically")
}

func TestCompose_SystemPromptPrecedence(t *testing.T) {
	t.Run("override wins", func(t *testing.T) {
		req, err := Compose(sampleTranscript(), models.Overrides{SystemPrompt: "Be terse"})
		require.NoError(t, err)
		assert.Equal(t, "Be terse", req.SystemPrompt)
		assert.Equal(t, "Be terse", req.Messages[0].Content)
	})

	t.Run("unset falls back to captured", func(t *testing.T) {
		req, err := Compose(sampleTranscript(), models.Overrides{})
		require.NoError(t, err)
		assert.Equal(t, "You are helpful", req.SystemPrompt)
	})

	t.Run("absent everywhere means no system message", func(t *testing.T) {
		transcript := sampleTranscript()
		transcript.SystemPrompt = ""
		req, err := Compose(transcript, models.Overrides{})
		require.NoError(t, err)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, models.RoleAssistant, req.Messages[0].Role)
	})
}

func TestCompose_MiddleMessagesPreserved(t *testing.T) {
	transcript := sampleTranscript()
	transcript.MiddleMessages = []models.Message{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "", ToolCalls: []models.ToolCall{
			{ID: "call_1", Type: "function", Function: models.FunctionCall{Name: "lookup", Arguments: `{"q":"x"}`}},
		}},
		{Role: models.RoleTool, Content: `{"result":42}`, ToolCallID: "call_1"},
		{Role: models.RoleAssistant, Content: "it is 42"},
	}

	req, err := Compose(transcript, models.Overrides{SystemPrompt: "replaced", UserMessage: "replaced too"})
	require.NoError(t, err)

	middle := req.Messages[1 : len(req.Messages)-1]
	assert.Equal(t, transcript.MiddleMessages, middle, "overrides must not touch middle messages")
}

func TestCompose_NoUserMessage(t *testing.T) {
	transcript := sampleTranscript()
	transcript.LastUserMessage = ""

	_, err := Compose(transcript, models.Overrides{})
	require.ErrorIs(t, err, ErrNoUserMessage)
}

func TestCompose_SettingsAndToolsFallback(t *testing.T) {
	transcript := sampleTranscript()
	transcript.ModelSettings = nil
	transcript.Tools = nil

	req, err := Compose(transcript, models.Overrides{})
	require.NoError(t, err)
	assert.NotNil(t, req.ModelSettings, "settings default to an empty map")
	assert.Empty(t, req.Tools)
}

func TestCompose_DoesNotAliasSettings(t *testing.T) {
	transcript := sampleTranscript()
	req, err := Compose(transcript, models.Overrides{})
	require.NoError(t, err)

	req.ModelSettings["temperature"] = 1.0
	assert.Equal(t, 0.2, transcript.ModelSettings["temperature"])
}

func TestMergeOverrides(t *testing.T) {
	defaults := models.Overrides{
		ModelName:     "openai:gpt-4o",
		SystemPrompt:  "default prompt",
		ModelSettings: models.Settings{"temperature": 0.1},
	}

	t.Run("caller fields win", func(t *testing.T) {
		merged := MergeOverrides(defaults, models.Overrides{ModelName: "anthropic:claude"})
		assert.Equal(t, "anthropic:claude", merged.ModelName)
		assert.Equal(t, "default prompt", merged.SystemPrompt)
		assert.Equal(t, defaults.ModelSettings, merged.ModelSettings)
	})

	t.Run("empty caller keeps defaults", func(t *testing.T) {
		merged := MergeOverrides(defaults, models.Overrides{})
		assert.Equal(t, defaults, merged)
	})

	t.Run("settings replace wholesale without mutating defaults", func(t *testing.T) {
		merged := MergeOverrides(defaults, models.Overrides{ModelSettings: models.Settings{"max_tokens": 100}})
		assert.Equal(t, models.Settings{"max_tokens": 100}, merged.ModelSettings)
		assert.Equal(t, models.Settings{"temperature": 0.1}, defaults.ModelSettings)
	})
}
