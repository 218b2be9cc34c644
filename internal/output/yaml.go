package output

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats results as YAML documents.
type YAMLFormatter struct{}

// Format marshals v as YAML. Tabular results are marshalled as they are, not as their rows.
func (f *YAMLFormatter) Format(v interface{}) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}
