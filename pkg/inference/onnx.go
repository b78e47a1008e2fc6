package inference

import (
	"context"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/audio/melspec"
	"github.com/respiralab/coughdx/pkg/logging"
)

// ONNXConfig holds configuration for the ONNX Runtime backed model
type ONNXConfig struct {
	// ModelPath is the .onnx file to load
	ModelPath string `json:"model_path"`

	// Device selects the execution provider: cpu, cuda, or coreml
	Device string `json:"device"`

	// IntraOpThreads caps the threads used inside an operator.
	// Zero keeps the runtime default.
	IntraOpThreads int `json:"intra_op_threads"`

	// LibraryPath overrides the onnxruntime shared library location
	LibraryPath string `json:"library_path"`
}

// DefaultONNXConfig returns a CPU-only model configuration
func DefaultONNXConfig() *ONNXConfig {
	return &ONNXConfig{
		Device: "cpu",
	}
}

// Validate checks config values
func (c *ONNXConfig) Validate() error {
	if c.ModelPath == "" {
		return audio.NewPipelineError(audio.StageClassify, audio.ErrCodeInvalidParameter,
			"model path must not be empty", nil)
	}

	switch strings.ToLower(c.Device) {
	case "", "cpu", "cuda", "coreml":
	default:
		return audio.NewPipelineError(audio.StageClassify, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("unsupported device %q, expected cpu, cuda, or coreml", c.Device), nil)
	}

	if c.IntraOpThreads < 0 {
		return audio.NewPipelineError(audio.StageClassify, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("intra-op threads must not be negative, got %d", c.IntraOpThreads), nil)
	}

	return nil
}

// ONNXModel runs a classification network through ONNX Runtime. The session
// accepts a variable time dimension, so segments of any length can be
// classified without padding.
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string

	// melBands is the static band dimension from the model, or 0 when the
	// model leaves it dynamic
	melBands int

	ownsEnvironment bool
	config          *ONNXConfig
	logger          logging.Logger
}

// NewONNXModel loads the network at config.ModelPath and prepares a session
// on the configured device
func NewONNXModel(config *ONNXConfig, logger logging.Logger) (*ONNXModel, error) {
	if config == nil {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeInvalidParameter,
			"config must not be nil", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
			fmt.Sprintf("model file not accessible: %s", config.ModelPath), err)
	}

	if config.LibraryPath != "" {
		ort.SetSharedLibraryPath(config.LibraryPath)
	}

	model := &ONNXModel{
		config: config,
		logger: logger,
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
				"failed to initialize ONNX runtime environment", err)
		}
		model.ownsEnvironment = true
	}

	inputs, outputs, err := ort.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		model.releaseEnvironment()
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
			"failed to inspect model inputs and outputs", err)
	}
	if len(inputs) != 1 {
		model.releaseEnvironment()
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelShape,
			fmt.Sprintf("expected a single model input, got %d", len(inputs)), nil)
	}
	if len(outputs) == 0 {
		model.releaseEnvironment()
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelShape,
			"model declares no outputs", nil)
	}

	model.inputName = inputs[0].Name
	model.outputName = outputs[0].Name

	dims := inputs[0].Dimensions
	if len(dims) != 4 {
		model.releaseEnvironment()
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelShape,
			fmt.Sprintf("expected rank-4 model input, got rank %d", len(dims)), nil)
	}
	if dims[2] > 0 {
		model.melBands = int(dims[2])
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		model.releaseEnvironment()
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
			"failed to create session options", err)
	}
	defer options.Destroy()

	if config.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
			model.releaseEnvironment()
			return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
				"failed to set intra-op thread count", err)
		}
	}

	switch strings.ToLower(config.Device) {
	case "cuda":
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			model.releaseEnvironment()
			return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
				"failed to create CUDA provider options", err)
		}
		defer cudaOptions.Destroy()

		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			model.releaseEnvironment()
			return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
				"failed to enable CUDA execution provider", err)
		}
	case "coreml":
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			model.releaseEnvironment()
			return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
				"failed to enable CoreML execution provider", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath,
		[]string{model.inputName}, []string{model.outputName}, options)
	if err != nil {
		model.releaseEnvironment()
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
			fmt.Sprintf("failed to create session for %s", config.ModelPath), err)
	}
	model.session = session

	logger.Debug("Loaded ONNX model", logging.Fields{
		"model_path":  config.ModelPath,
		"device":      config.Device,
		"input_name":  model.inputName,
		"output_name": model.outputName,
		"mel_bands":   model.melBands,
	})

	return model, nil
}

// Predict runs the network on one feature tensor and returns the raw logits
func (m *ONNXModel) Predict(ctx context.Context, tensor *melspec.FeatureTensor) ([]float64, error) {
	if m.session == nil {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
			"model session is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.melBands > 0 && tensor.MelBands != m.melBands {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelShape,
			fmt.Sprintf("tensor has %d mel bands, model expects %d", tensor.MelBands, m.melBands), nil)
	}

	input, err := ort.NewTensor(ort.NewShape(tensor.Shape()...), tensor.Flatten())
	if err != nil {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
			"failed to create input tensor", err)
	}
	defer input.Destroy()

	// The runtime allocates the output, sized by the network
	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
			"model execution failed", err)
	}

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeModelRuntime,
			"model output is not a float32 tensor", nil)
	}
	defer outTensor.Destroy()

	data := outTensor.GetData()
	logits := make([]float64, len(data))
	for i, v := range data {
		logits[i] = float64(v)
	}

	return logits, nil
}

// Close releases the session and, when this model initialized it, the
// runtime environment
func (m *ONNXModel) Close() error {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	m.releaseEnvironment()
	return nil
}

func (m *ONNXModel) releaseEnvironment() {
	if m.ownsEnvironment {
		ort.DestroyEnvironment()
		m.ownsEnvironment = false
	}
}
