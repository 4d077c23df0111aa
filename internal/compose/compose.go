// Package compose builds replay-ready model requests from captured
// transcripts and override layers.
package compose

import (
	"errors"

	"github.com/retracehq/retrace/internal/models"
)

// ErrNoUserMessage is returned when neither the transcript nor the overrides
// supply a final user message. This is the one validated input of
// composition; everything else falls back to a captured or empty value.
var ErrNoUserMessage = errors.New("compose: transcript has no user message and no override was supplied")

// Compose resolves overrides against a captured transcript and produces the
// ordered message sequence for replay. It is pure and deterministic: the
// same transcript and overrides always produce the same request.
//
// The result is always [system (if any), middle messages unchanged, user].
func Compose(transcript models.CapturedTranscript, overrides models.Overrides) (models.ComposedRequest, error) {
	userMessage := transcript.LastUserMessage
	if overrides.UserMessage != "" {
		userMessage = overrides.UserMessage
	}
	if userMessage == "" {
		return models.ComposedRequest{}, ErrNoUserMessage
	}

	systemPrompt := transcript.SystemPrompt
	if overrides.SystemPrompt != "" {
		systemPrompt = overrides.SystemPrompt
	}

	modelName := transcript.ModelName
	if overrides.ModelName != "" {
		modelName = overrides.ModelName
	}

	settings := transcript.ModelSettings
	if len(overrides.ModelSettings) > 0 {
		settings = overrides.ModelSettings
	}
	if settings == nil {
		settings = models.Settings{}
	}

	tools := transcript.Tools
	if len(overrides.Tools) > 0 {
		tools = overrides.Tools
	}

	messages := make([]models.Message, 0, len(transcript.MiddleMessages)+2)
	if systemPrompt != "" {
		messages = append(messages, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, transcript.MiddleMessages...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: userMessage})

	return models.ComposedRequest{
		Messages:      messages,
		ModelName:     modelName,
		ModelSettings: settings.Clone(),
		Tools:         tools,
		SystemPrompt:  systemPrompt,
		UserMessage:   userMessage,
	}, nil
}

// MergeOverrides layers caller overrides on top of defaults, field by field.
// A set field in overrides wins; an unset field falls through to defaults.
// Neither input is mutated.
func MergeOverrides(defaults, overrides models.Overrides) models.Overrides {
	merged := defaults
	if overrides.ModelName != "" {
		merged.ModelName = overrides.ModelName
	}
	if overrides.SystemPrompt != "" {
		merged.SystemPrompt = overrides.SystemPrompt
	}
	if overrides.UserMessage != "" {
		merged.UserMessage = overrides.UserMessage
	}
	if len(overrides.ModelSettings) > 0 {
		merged.ModelSettings = overrides.ModelSettings.Clone()
	}
	if len(overrides.Tools) > 0 {
		merged.Tools = overrides.Tools
	}
	return merged
}
