package audio

import "errors"

// Stage identifies the pipeline stage an error originated from
type Stage string

const (
	StageDecode   Stage = "decode"
	StageSpectral Stage = "spectral"
	StageDenoise  Stage = "denoise"
	StageSegment  Stage = "segment"
	StageFeatures Stage = "features"
	StageClassify Stage = "classify"
	StageStorage  Stage = "storage"
)

// PipelineError represents processing errors with the stage they came from
type PipelineError struct {
	Stage   Stage  `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeDecodeFailed     = "DECODE_FAILED"
	ErrCodeNoActivity       = "NO_ACTIVITY"
	ErrCodeDegenerateInput  = "DEGENERATE_INPUT"
	ErrCodeModelShape       = "MODEL_SHAPE_MISMATCH"
	ErrCodeModelRuntime     = "MODEL_RUNTIME_FAILED"
	ErrCodeStorage          = "STORAGE_FAILED"
)

// NewPipelineError creates a new pipeline error
func NewPipelineError(stage Stage, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Stage:   stage,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// errorHasCode reports whether err is a *PipelineError carrying the given code
func errorHasCode(err error, code string) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsNoActivity reports whether err means no sample crossed the activity threshold
func IsNoActivity(err error) bool {
	return errorHasCode(err, ErrCodeNoActivity)
}

// IsInvalidParameter reports whether err came from component parameter validation
func IsInvalidParameter(err error) bool {
	return errorHasCode(err, ErrCodeInvalidParameter)
}

// IsModelShape reports whether err means the model output disagrees with the
// configured class list
func IsModelShape(err error) bool {
	return errorHasCode(err, ErrCodeModelShape)
}
