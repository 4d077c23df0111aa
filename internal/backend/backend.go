// Package backend is the model-calling boundary. A Backend accepts a
// composed request and returns the model's text response; everything else
// (prompting, retries, evaluation) lives above this interface.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/retracehq/retrace/internal/models"
)

// Backend issues one model call. The caller supplies the timeout through
// ctx; implementations must respect cancellation.
type Backend interface {
	// Name identifies the provider for logging.
	Name() string

	// Call sends the composed request and returns the response text.
	Call(ctx context.Context, req models.ComposedRequest) (string, error)
}

// CallSettings are the model settings keys the adapters understand. Unknown
// keys in the opaque settings map are ignored rather than rejected, so a
// captured transcript from a newer provider still replays.
type CallSettings struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// DecodeSettings extracts the typed settings from an opaque settings map.
// Numeric values captured as JSON (float64) or YAML (int) both decode.
func DecodeSettings(settings models.Settings) (CallSettings, error) {
	var out CallSettings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, fmt.Errorf("building settings decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(settings)); err != nil {
		return out, fmt.Errorf("decoding model settings: %w", err)
	}
	return out, nil
}

// Registry routes model names of the form "provider:model" to the backend
// registered for that provider prefix.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds a registry over the given backends, keyed by Name().
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// Register adds or replaces a backend under its Name().
func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
}

// SplitModelName splits "provider:model" into its parts. A bare model name
// has no provider and is routed to the registry default.
func SplitModelName(name string) (provider, model string) {
	if i := strings.Index(name, ":"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// Resolve returns the backend for a model name and the provider-local model
// identifier to pass on the wire.
func (r *Registry) Resolve(modelName string) (Backend, string, error) {
	provider, model := SplitModelName(modelName)
	if provider == "" {
		return nil, "", fmt.Errorf("model name %q has no provider prefix (want provider:model)", modelName)
	}
	b, ok := r.backends[provider]
	if !ok {
		return nil, "", fmt.Errorf("no backend registered for provider %q", provider)
	}
	return b, model, nil
}

// Call resolves the request's model name and dispatches to the matching
// backend with the provider-local model name substituted.
func (r *Registry) Call(ctx context.Context, req models.ComposedRequest) (string, error) {
	b, model, err := r.Resolve(req.ModelName)
	if err != nil {
		return "", err
	}
	req.ModelName = model
	return b.Call(ctx, req)
}

// Name implements Backend so a Registry can itself stand in wherever a
// single backend is expected.
func (r *Registry) Name() string { return "registry" }
