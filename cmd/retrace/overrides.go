package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retracehq/retrace/internal/models"
)

// overrideFlags are the replay override options shared by run and exec.
type overrideFlags struct {
	model        string
	systemPrompt string
	userMessage  string
	settings     []string
}

func (f *overrideFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", "", "Override model (provider:model, e.g. openai:gpt-4o)")
	cmd.Flags().StringVar(&f.systemPrompt, "system-prompt", "", "Override system prompt")
	cmd.Flags().StringVar(&f.userMessage, "user-message", "", "Override final user message")
	cmd.Flags().StringArrayVar(&f.settings, "setting", nil, "Override model setting as key=value (can be repeated)")
}

func (f *overrideFlags) overrides() (models.Overrides, error) {
	ov := models.Overrides{
		ModelName:    f.model,
		SystemPrompt: f.systemPrompt,
		UserMessage:  f.userMessage,
	}

	if len(f.settings) > 0 {
		ov.ModelSettings = models.Settings{}
		for _, pair := range f.settings {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" {
				return ov, fmt.Errorf("invalid --setting %q (want key=value)", pair)
			}
			ov.ModelSettings[key] = coerceSettingValue(value)
		}
	}
	return ov, nil
}

// coerceSettingValue keeps numeric and boolean settings typed so the
// backend adapters decode them the same way captured JSON would.
func coerceSettingValue(raw string) any {
	// numbers first: ParseBool would otherwise claim "0" and "1"
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
