package models

// CapturedTranscript is a recorded agent conversation stored in split form.
// The first system message and the final user message are pulled out of the
// message list so replay can substitute either one; everything between them
// is kept verbatim as MiddleMessages.
type CapturedTranscript struct {
	SystemPrompt    string    `json:"system_prompt" yaml:"system_prompt"`
	MiddleMessages  []Message `json:"middle_messages" yaml:"middle_messages"`
	LastUserMessage string    `json:"last_user_message" yaml:"last_user_message"`

	ModelName     string   `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	ModelSettings Settings `json:"model_settings,omitempty" yaml:"model_settings,omitempty"`
	Tools         []Tool   `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// ComposedRequest is a fully resolved model invocation, ready for a backend.
// Messages is always the system prompt (when non-empty), then the middle
// messages unchanged, then the user message.
type ComposedRequest struct {
	Messages      []Message `json:"messages"`
	ModelName     string    `json:"model_name"`
	ModelSettings Settings  `json:"model_settings,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`

	// Effective values after override resolution, kept for logging.
	SystemPrompt string `json:"system_prompt,omitempty"`
	UserMessage  string `json:"user_message"`
}
