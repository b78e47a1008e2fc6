package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/respiralab/coughdx/pkg/inference"
)

// Formatter renders a classification result into report bytes
type Formatter interface {
	Format(result *inference.Result) ([]byte, error)

	// Filename is the report name the result is stored under
	Filename() string
}

// ForFormat returns the formatter for an output format name. Unknown
// formats fall back to text, the format deployments consume.
func ForFormat(format string) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{}
	case "yaml":
		return &YAMLFormatter{}
	default:
		return &TextFormatter{}
	}
}

// validate rejects results the formatters cannot render coherently
func validate(result *inference.Result) error {
	if result == nil {
		return fmt.Errorf("result must not be nil")
	}
	if len(result.Classes) != len(result.Probabilities) {
		return fmt.Errorf("result has %d classes but %d probabilities",
			len(result.Classes), len(result.Probabilities))
	}
	return nil
}

// TextFormatter renders the plain-text report consumed by deployments:
// the predicted label followed by one indented line per class probability,
// in class order.
type TextFormatter struct{}

func (f *TextFormatter) Format(result *inference.Result) ([]byte, error) {
	if err := validate(result); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Prediction: %s\n", result.Label)
	b.WriteString("Class probabilities:\n")
	for i, class := range result.Classes {
		fmt.Fprintf(&b, "  %s: %.4f\n", class, result.Probabilities[i])
	}

	return []byte(b.String()), nil
}

func (f *TextFormatter) Filename() string {
	return "output.txt"
}

// JSONFormatter renders the result as indented JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Format(result *inference.Result) ([]byte, error) {
	if err := validate(result); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result to json: %w", err)
	}

	return append(data, '\n'), nil
}

func (f *JSONFormatter) Filename() string {
	return "output.json"
}

// YAMLFormatter renders the result as YAML
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(result *inference.Result) ([]byte, error) {
	if err := validate(result); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result to yaml: %w", err)
	}

	return data, nil
}

func (f *YAMLFormatter) Filename() string {
	return "output.yaml"
}
