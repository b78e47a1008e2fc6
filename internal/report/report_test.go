package report

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/respiralab/coughdx/pkg/inference"
)

func testResult() *inference.Result {
	return &inference.Result{
		Label:         "viral",
		Classes:       []string{"neither", "viral", "bacterial"},
		Probabilities: []float64{0.1024, 0.7851, 0.1125},
	}
}

// TestForFormat checks formatter selection and the text fallback
func TestForFormat(t *testing.T) {
	type test struct {
		format string
		want   string
	}

	tests := []test{
		{"text", "output.txt"},
		{"json", "output.json"},
		{"JSON", "output.json"},
		{"yaml", "output.yaml"},
		{"", "output.txt"},
		{"csv", "output.txt"},
	}

	for _, tt := range tests {
		if got := ForFormat(tt.format).Filename(); got != tt.want {
			t.Errorf("ForFormat(%q): want filename %s, got %s", tt.format, tt.want, got)
		}
	}
}

// TestTextFormat checks the exact bytes deployments parse
func TestTextFormat(t *testing.T) {
	data, err := (&TextFormatter{}).Format(testResult())
	if err != nil {
		t.Fatalf("Format: unexpected error: %v", err)
	}

	want := "Prediction: viral\n" +
		"Class probabilities:\n" +
		"  neither: 0.1024\n" +
		"  viral: 0.7851\n" +
		"  bacterial: 0.1125\n"

	if string(data) != want {
		t.Errorf("Format: output mismatch\nwant:\n%s\ngot:\n%s", want, data)
	}
}

func TestJSONFormat(t *testing.T) {
	data, err := (&JSONFormatter{}).Format(testResult())
	if err != nil {
		t.Fatalf("Format: unexpected error: %v", err)
	}

	if !strings.Contains(string(data), "\n  ") {
		t.Error("Format: want indented json output")
	}

	var decoded inference.Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Format: output is not valid json: %v", err)
	}

	if decoded.Label != "viral" {
		t.Errorf("Format: want label viral, got %s", decoded.Label)
	}
	if len(decoded.Classes) != 3 || decoded.Classes[2] != "bacterial" {
		t.Errorf("Format: classes not preserved: %v", decoded.Classes)
	}
	if len(decoded.Probabilities) != 3 || decoded.Probabilities[1] != 0.7851 {
		t.Errorf("Format: probabilities not preserved: %v", decoded.Probabilities)
	}
}

func TestYAMLFormat(t *testing.T) {
	data, err := (&YAMLFormatter{}).Format(testResult())
	if err != nil {
		t.Fatalf("Format: unexpected error: %v", err)
	}

	var decoded struct {
		Label         string    `yaml:"label"`
		Classes       []string  `yaml:"classes"`
		Probabilities []float64 `yaml:"probabilities"`
	}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Format: output is not valid yaml: %v", err)
	}

	if decoded.Label != "viral" {
		t.Errorf("Format: want label viral, got %s", decoded.Label)
	}
	if len(decoded.Probabilities) != 3 || decoded.Probabilities[0] != 0.1024 {
		t.Errorf("Format: probabilities not preserved: %v", decoded.Probabilities)
	}
}

// TestFormatValidation checks malformed results are rejected by every
// formatter
func TestFormatValidation(t *testing.T) {
	mismatched := &inference.Result{
		Label:         "viral",
		Classes:       []string{"neither", "viral"},
		Probabilities: []float64{1.0},
	}

	formatters := []Formatter{&TextFormatter{}, &JSONFormatter{}, &YAMLFormatter{}}
	for _, f := range formatters {
		if _, err := f.Format(nil); err == nil {
			t.Errorf("%s.Format(nil): want error, got nil", f.Filename())
		}
		if _, err := f.Format(mismatched); err == nil {
			t.Errorf("%s.Format(mismatched): want error, got nil", f.Filename())
		}
	}
}
