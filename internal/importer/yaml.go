package importer

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/retracehq/retrace/internal/models"
)

// LoadTestCases parses a YAML document holding either one test case or a
// list of them. Seed files use the same split transcript layout the store
// keeps.
func LoadTestCases(data []byte) ([]models.TestCase, error) {
	var list []models.TestCase
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return validateTestCases(list)
	}

	var single models.TestCase
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parsing test case YAML: %w", err)
	}
	return validateTestCases([]models.TestCase{single})
}

func validateTestCases(cases []models.TestCase) ([]models.TestCase, error) {
	for i, tc := range cases {
		if tc.Name == "" {
			return nil, fmt.Errorf("test case %d: missing name", i)
		}
		if tc.Transcript.LastUserMessage == "" {
			return nil, fmt.Errorf("test case %q: transcript has no last_user_message", tc.Name)
		}
	}
	return cases, nil
}
