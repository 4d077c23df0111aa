package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/retracehq/retrace/internal/models"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	client anthropic.Client
}

func NewAnthropicBackend(apiKey string) *AnthropicBackend {
	return &AnthropicBackend{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
	}
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Call(ctx context.Context, req models.ComposedRequest) (string, error) {
	settings, err := DecodeSettings(req.ModelSettings)
	if err != nil {
		return "", err
	}

	messages, system := toAnthropicMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelName),
		Messages:  messages,
		MaxTokens: anthropicDefaultMaxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if settings.Temperature > 0 {
		params.Temperature = anthropic.Float(settings.Temperature)
	}
	if settings.TopP > 0 {
		params.TopP = anthropic.Float(settings.TopP)
	}
	if settings.MaxTokens > 0 {
		params.MaxTokens = int64(settings.MaxTokens)
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	result, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// toAnthropicMessages converts wire-format messages. The system message is
// lifted out into the Messages API system parameter; tool results become
// user-role tool_result blocks.
func toAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, string) {
	var system string
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			system = msg.Content
		case models.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Function.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case models.RoleTool:
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)},
			})
		default:
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
			})
		}
	}
	return out, system
}

func toAnthropicTools(tools []models.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		properties := map[string]any{}
		var required []string
		if props, ok := tool.Function.Parameters["properties"].(map[string]any); ok {
			properties = props
		}
		if req, ok := tool.Function.Parameters["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
		schema := anthropic.ToolInputSchemaParam{
			Properties: properties,
			Required:   required,
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, tool.Function.Name))
	}
	return out
}
