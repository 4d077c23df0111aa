package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retracehq/retrace/internal/models"
)

func TestOverrideFlags(t *testing.T) {
	f := overrideFlags{
		model:        "openai:gpt-4o",
		systemPrompt: "be terse",
		settings:     []string{"temperature=0.2", "max_tokens=512", "stream=false", "stop=END"},
	}

	ov, err := f.overrides()
	require.NoError(t, err)

	assert.Equal(t, "openai:gpt-4o", ov.ModelName)
	assert.Equal(t, "be terse", ov.SystemPrompt)
	assert.Equal(t, models.Settings{
		"temperature": 0.2,
		"max_tokens":  int64(512),
		"stream":      false,
		"stop":        "END",
	}, ov.ModelSettings)
}

func TestOverrideFlags_InvalidSetting(t *testing.T) {
	f := overrideFlags{settings: []string{"temperature"}}
	_, err := f.overrides()
	assert.ErrorContains(t, err, "want key=value")

	f = overrideFlags{settings: []string{"=0.5"}}
	_, err = f.overrides()
	assert.ErrorContains(t, err, "want key=value")
}

func TestOverrideFlags_EmptyIsZero(t *testing.T) {
	var f overrideFlags
	ov, err := f.overrides()
	require.NoError(t, err)
	assert.True(t, ov.IsZero())
}
