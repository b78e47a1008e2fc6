package inference

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/audio/melspec"
	"github.com/respiralab/coughdx/pkg/logging"
)

// Model produces one raw score per class from a feature tensor. Scores are
// unnormalized logits; the engine owns the probability conversion.
type Model interface {
	Predict(ctx context.Context, tensor *melspec.FeatureTensor) ([]float64, error)
	Close() error
}

// Result is the outcome of classifying one recording
type Result struct {
	Label         string    `json:"label"`
	Classes       []string  `json:"classes"`
	Probabilities []float64 `json:"probabilities"`
}

// Engine turns model logits into a labeled probability distribution
type Engine struct {
	model   Model
	classes []string
	logger  logging.Logger
}

// NewEngine creates an Engine classifying into the given ordered class list
func NewEngine(model Model, classes []string, logger logging.Logger) (*Engine, error) {
	if model == nil {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeInvalidParameter,
			"model must not be nil", nil)
	}
	if len(classes) == 0 {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeInvalidParameter,
			"class list must not be empty", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	owned := make([]string, len(classes))
	copy(owned, classes)

	return &Engine{
		model:   model,
		classes: owned,
		logger:  logger,
	}, nil
}

// Classes returns the ordered class list
func (e *Engine) Classes() []string {
	classes := make([]string, len(e.classes))
	copy(classes, e.classes)
	return classes
}

// Classify runs the model on the tensor and returns the predicted label with
// the full softmax distribution. A logit count that disagrees with the class
// list is an error, never a silent truncation. Ties resolve to the
// lowest-index class.
func (e *Engine) Classify(ctx context.Context, tensor *melspec.FeatureTensor) (*Result, error) {
	if tensor == nil || tensor.MelBands == 0 || tensor.TimeSteps == 0 {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeInvalidParameter,
			"empty feature tensor", nil)
	}

	logits, err := e.model.Predict(ctx, tensor)
	if err != nil {
		return nil, err
	}

	if len(logits) != len(e.classes) {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelShape,
			fmt.Sprintf("model produced %d logits for %d classes", len(logits), len(e.classes)), nil)
	}
	for i, logit := range logits {
		if math.IsNaN(logit) || math.IsInf(logit, 0) {
			return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
				fmt.Sprintf("model produced non-finite logit %v for class %s", logit, e.classes[i]), nil)
		}
	}

	probabilities := softmax(logits)
	best := floats.MaxIdx(probabilities)

	result := &Result{
		Label:         e.classes[best],
		Classes:       e.Classes(),
		Probabilities: probabilities,
	}

	e.logger.Debug("Classified feature tensor", logging.Fields{
		"label":      result.Label,
		"classes":    len(e.classes),
		"mel_bands":  tensor.MelBands,
		"time_steps": tensor.TimeSteps,
	})

	return result, nil
}

// Close releases the underlying model
func (e *Engine) Close() error {
	return e.model.Close()
}

// softmax converts logits to a probability distribution. The max logit is
// subtracted first so large scores cannot overflow the exponentials.
func softmax(logits []float64) []float64 {
	maxLogit := floats.Max(logits)

	probabilities := make([]float64, len(logits))
	sum := 0.0
	for i, logit := range logits {
		probabilities[i] = math.Exp(logit - maxLogit)
		sum += probabilities[i]
	}

	for i := range probabilities {
		probabilities[i] /= sum
	}

	return probabilities
}
