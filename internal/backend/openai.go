package backend

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"github.com/retracehq/retrace/internal/models"
)

// OpenAIBackend calls the OpenAI chat completions API. It also serves
// OpenAI-compatible endpoints (set a base URL pointing at the gateway).
type OpenAIBackend struct {
	client openai.Client
}

// NewOpenAIBackend builds a backend against api.openai.com, or against
// baseURL when non-empty.
func NewOpenAIBackend(apiKey, baseURL string) *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{client: openai.NewClient(opts...)}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Call(ctx context.Context, req models.ComposedRequest) (string, error) {
	settings, err := DecodeSettings(req.ModelSettings)
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.ModelName),
		Messages: toOpenAIMessages(req.Messages),
	}
	if settings.Temperature > 0 {
		params.Temperature = param.NewOpt(settings.Temperature)
	}
	if settings.TopP > 0 {
		params.TopP = param.NewOpt(settings.TopP)
	}
	if settings.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(settings.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case models.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				out = append(out, assistantWithToolCalls(msg))
			} else {
				out = append(out, openai.AssistantMessage(msg.Content))
			}
		case models.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func assistantWithToolCalls(msg models.Message) openai.ChatCompletionMessageParamUnion {
	calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID:   tc.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			},
		})
	}

	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if msg.Content != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(msg.Content),
		}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func toOpenAITools(tools []models.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		def := shared.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: param.NewOpt(tool.Function.Description),
		}
		if len(tool.Function.Parameters) > 0 {
			def.Parameters = shared.FunctionParameters(tool.Function.Parameters)
		}
		if tool.Function.Strict {
			def.Strict = param.NewOpt(true)
		}
		out = append(out, openai.ChatCompletionFunctionTool(def))
	}
	return out
}
