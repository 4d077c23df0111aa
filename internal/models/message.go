package models

// Role tags a chat message with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single role-tagged chat message in captured wire format.
type Message struct {
	Role       Role       `json:"role" yaml:"role"`
	Content    string     `json:"content" yaml:"content"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation recorded on an assistant message.
type ToolCall struct {
	ID       string       `json:"id" yaml:"id"`
	Type     string       `json:"type" yaml:"type"`
	Function FunctionCall `json:"function" yaml:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments" yaml:"arguments"`
}

// Tool is a tool definition in captured wire format (OpenAI function style).
type Tool struct {
	Type     string       `json:"type" yaml:"type"`
	Function ToolFunction `json:"function" yaml:"function"`
}

// ToolFunction describes a callable function exposed to the model.
type ToolFunction struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Strict      bool           `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// Settings is an opaque bag of model settings (temperature, max_tokens, ...).
// The backend adapters decode the keys they understand and pass the rest through.
type Settings map[string]any

// Clone returns a shallow copy so callers can layer overrides without
// mutating the source map.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
