// Package importer turns raw captured chat requests into replayable
// transcripts: the first system message and the last user message are split
// out, everything else is kept verbatim for middle-message replay.
package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/retracehq/retrace/internal/models"
)

// requestBodyKey is where tracing exports nest the actual chat request.
const requestBodyKey = "http.request.body.text"

// settings keys excluded from the opaque settings map because they are
// modeled explicitly.
var reservedKeys = map[string]bool{
	"model":    true,
	"messages": true,
	"tools":    true,
	"stream":   true,
}

// ParseCapture parses a raw captured payload into a split transcript. Two
// layouts are accepted: a bare chat request ({model, messages, ...}) and a
// tracing-export envelope with the request under attributes.
func ParseCapture(raw []byte) (models.CapturedTranscript, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.CapturedTranscript{}, fmt.Errorf("capture is not valid JSON: %w", err)
	}

	body, err := unwrapRequestBody(doc)
	if err != nil {
		return models.CapturedTranscript{}, err
	}

	if errs := validateAgainstSchema(captureSchema, body); len(errs) > 0 {
		return models.CapturedTranscript{}, fmt.Errorf("capture failed validation: %s", strings.Join(errs, "; "))
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return models.CapturedTranscript{}, fmt.Errorf("re-encoding capture body: %w", err)
	}

	var request struct {
		Model    string           `json:"model"`
		Messages []models.Message `json:"messages"`
		Tools    []models.Tool    `json:"tools"`
	}
	if err := json.Unmarshal(bodyJSON, &request); err != nil {
		return models.CapturedTranscript{}, fmt.Errorf("decoding capture body: %w", err)
	}

	settings := models.Settings{}
	for key, value := range body {
		if !reservedKeys[key] {
			settings[key] = value
		}
	}

	return splitMessages(request.Messages, request.Model, settings, request.Tools), nil
}

// unwrapRequestBody digs the chat request out of a tracing envelope, or
// returns the document itself when it already is one. The nested body may
// be a JSON object or a JSON-encoded string.
func unwrapRequestBody(doc map[string]any) (map[string]any, error) {
	attributes, ok := doc["attributes"].(map[string]any)
	if !ok {
		return doc, nil
	}

	switch body := attributes[requestBodyKey].(type) {
	case map[string]any:
		return body, nil
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			return nil, fmt.Errorf("request body in capture envelope is not valid JSON: %w", err)
		}
		return parsed, nil
	case nil:
		return nil, fmt.Errorf("capture envelope has no %q attribute", requestBodyKey)
	default:
		return nil, fmt.Errorf("capture envelope %q has unexpected type %T", requestBodyKey, body)
	}
}

// splitMessages implements the split storage strategy: the first system
// message and the last user message come out, the rest stay in order.
func splitMessages(messages []models.Message, modelName string, settings models.Settings, tools []models.Tool) models.CapturedTranscript {
	systemIndex := -1
	for i, msg := range messages {
		if msg.Role == models.RoleSystem {
			systemIndex = i
			break
		}
	}

	lastUserIndex := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			lastUserIndex = i
			break
		}
	}

	transcript := models.CapturedTranscript{
		ModelName:     modelName,
		ModelSettings: settings,
		Tools:         tools,
	}
	if systemIndex >= 0 {
		transcript.SystemPrompt = messages[systemIndex].Content
	}
	if lastUserIndex >= 0 {
		transcript.LastUserMessage = messages[lastUserIndex].Content
	}

	for i, msg := range messages {
		if i == systemIndex || i == lastUserIndex {
			continue
		}
		transcript.MiddleMessages = append(transcript.MiddleMessages, msg)
	}
	return transcript
}
