package models

// Overrides carries optional replacement values applied at composition time.
// A nil or zero field means "use the captured value". Overrides never mutate
// the transcript they are applied to.
type Overrides struct {
	ModelName     string   `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	UserMessage   string   `json:"user_message,omitempty" yaml:"user_message,omitempty"`
	ModelSettings Settings `json:"model_settings,omitempty" yaml:"model_settings,omitempty"`
	Tools         []Tool   `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// IsZero reports whether no override field is set.
func (o Overrides) IsZero() bool {
	return o.ModelName == "" &&
		o.SystemPrompt == "" &&
		o.UserMessage == "" &&
		len(o.ModelSettings) == 0 &&
		len(o.Tools) == 0
}
