package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/respiralab/coughdx/configs"
	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/audio/denoise"
	"github.com/respiralab/coughdx/pkg/audio/melspec"
	"github.com/respiralab/coughdx/pkg/audio/segment"
	"github.com/respiralab/coughdx/pkg/inference"
)

var (
	pipelineTestTimeout      time.Duration
	pipelineTestVerbose      bool
	pipelineTestShowConfig   bool
	pipelineTestModel        string
	pipelineTestDevice       string
	pipelineTestDumpDir      string
	pipelineTestSkipClassify bool
)

var pipelineTestCmd = &cobra.Command{
	Use:   "pipeline-test [recording.wav]",
	Short: "Test each classification pipeline stage against a recording",
	Long: `Run the pipeline stage by stage against a recording and report what
each stage produced.

This command provides comprehensive testing of the classification pipeline:
- Configuration loading and validation
- WAV decoding and signal statistics
- Noise profile estimation and spectral gate suppression
- Cough onset detection and segment extraction
- Mel spectrogram featurization
- Model classification (skipped when no model is available)

Unlike the classify command, stage failures are reported and the remaining
stages still run where they can, so a bad recording can be diagnosed in one
pass.

Examples:
  # Inspect every stage of a recording
  coughdx pipeline-test recording.wav --verbose

  # Diagnose the signal stages without a model
  coughdx pipeline-test --skip-classify recording.wav

  # Keep the intermediate audio from each stage
  coughdx pipeline-test --dump-audio ./debug recording.wav

  # Test against a specific model on a specific device
  coughdx pipeline-test --model ./models/cough.onnx --device cpu recording.wav`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineTest,
}

func init() {
	rootCmd.AddCommand(pipelineTestCmd)

	pipelineTestCmd.Flags().DurationVar(&pipelineTestTimeout, "timeout", 2*time.Minute,
		"operation timeout")
	pipelineTestCmd.Flags().BoolVarP(&pipelineTestVerbose, "verbose", "v", false,
		"verbose output")
	pipelineTestCmd.Flags().BoolVar(&pipelineTestShowConfig, "show-config", false,
		"show resolved stage configuration details")
	pipelineTestCmd.Flags().StringVarP(&pipelineTestModel, "model", "m", "",
		"path to the ONNX model file")
	pipelineTestCmd.Flags().StringVar(&pipelineTestDevice, "device", "",
		"execution device (cpu, cuda, coreml)")
	pipelineTestCmd.Flags().StringVar(&pipelineTestDumpDir, "dump-audio", "",
		"directory for intermediate audio dumps")
	pipelineTestCmd.Flags().BoolVar(&pipelineTestSkipClassify, "skip-classify", false,
		"stop after featurization")
}

func runPipelineTest(cmd *cobra.Command, args []string) error {
	verbose := pipelineTestVerbose || viper.GetBool("verbose")
	recording := args[0]

	printHeader("Classification Pipeline Testing", recording)

	ctx, cancel := context.WithTimeout(context.Background(), pipelineTestTimeout)
	defer cancel()

	timer := NewPerformanceTimer()
	timer.StartEvent("total_test")

	// Step 1: Configuration and Validation
	timer.StartEvent("config_validation")
	printStep(1, "Pipeline Configuration and Validation")

	appConfig, err := configs.LoadConfig()
	if err != nil {
		printError("Failed to load application config: %v", err)
		return fmt.Errorf("failed to load application config: %w", err)
	}
	printSuccess("Application configuration loaded")

	denoiseConfig := &denoise.Config{
		WindowSize:        appConfig.Denoise.WindowSize,
		HopLength:         appConfig.Denoise.HopLength,
		ReferenceDuration: appConfig.Denoise.ReferenceDuration,
		Level:             appConfig.Denoise.Level,
	}
	segmentConfig := &segment.Config{
		AmplitudeThreshold: appConfig.Segment.AmplitudeThreshold,
		SegmentDuration:    appConfig.Segment.SegmentDuration,
		PreRoll:            appConfig.Segment.PreRoll,
	}
	featuresConfig := &melspec.Config{
		MelBands:   appConfig.Features.MelBands,
		WindowSize: appConfig.Features.WindowSize,
		HopLength:  appConfig.Features.HopLength,
		LowFreq:    appConfig.Features.LowFreq,
		HighFreq:   appConfig.Features.HighFreq,
		TopDB:      appConfig.Features.TopDB,
		NormLow:    appConfig.Features.NormLow,
		NormHigh:   appConfig.Features.NormHigh,
	}

	if err := denoiseConfig.Validate(); err != nil {
		printError("Denoise configuration invalid: %v", err)
		return fmt.Errorf("denoise configuration invalid: %w", err)
	}
	if err := segmentConfig.Validate(); err != nil {
		printError("Segment configuration invalid: %v", err)
		return fmt.Errorf("segment configuration invalid: %w", err)
	}
	if err := featuresConfig.Validate(); err != nil {
		printError("Features configuration invalid: %v", err)
		return fmt.Errorf("features configuration invalid: %w", err)
	}
	printSuccess("Stage configurations validated")

	timer.EndEvent("config_validation")
	fmt.Println()

	if pipelineTestShowConfig {
		printSectionHeader("Pipeline Configuration")
		displayPipelineConfiguration(appConfig, verbose)
		fmt.Println()
	}

	// Step 2: Decode Recording
	timer.StartEvent("decode")
	printStep(2, "Recording Decode")

	if _, err := os.Stat(recording); os.IsNotExist(err) {
		printError("Recording does not exist: %s", recording)
		return fmt.Errorf("recording does not exist: %s", recording)
	}
	printSuccess("Recording found and accessible")

	signal, err := audio.DecodeWAVFile(recording)
	if err != nil {
		printError("Decoding failed: %v", err)
		return fmt.Errorf("decoding failed: %w", err)
	}
	printSuccess("Recording decoded successfully")
	displayRecordingInfo(signal, verbose)

	timer.EndEvent("decode")
	fmt.Println()

	// Step 3: Noise Suppression
	cleaned := signal
	denoised := false

	timer.StartEvent("noise_suppression")
	printStep(3, "Noise Suppression")

	if signal.Duration <= appConfig.Pipeline.MinDenoiseDuration {
		printInfo("Recording is %.3fs, at or below the %.3fs cleanup gate",
			signal.Seconds(), appConfig.Pipeline.MinDenoiseDuration.Seconds())
		printInfo("Suppression skipped, classifying the raw recording")
	} else {
		suppressor, err := denoise.NewSuppressor(denoiseConfig, nil)
		if err != nil {
			printError("Failed to create suppressor: %v", err)
			return fmt.Errorf("failed to create suppressor: %w", err)
		}

		profile, err := suppressor.EstimateNoise(signal)
		if err != nil {
			printError("Noise estimation failed: %v", err)
			return fmt.Errorf("noise estimation failed: %w", err)
		}
		printSuccess("Noise profile estimated from leading %v", denoiseConfig.ReferenceDuration)
		if verbose {
			displayNoiseProfile(profile)
		}

		cleaned, err = suppressor.Suppress(signal, profile)
		if err != nil {
			printError("Suppression failed: %v", err)
			return fmt.Errorf("suppression failed: %w", err)
		}
		denoised = true
		printSuccess("Spectral gate applied at level %.2f", denoiseConfig.Level)
		displayRecordingInfo(cleaned, verbose)
		dumpStageAudio("denoised.wav", cleaned)
	}

	timer.EndEvent("noise_suppression")
	fmt.Println()

	// Step 4: Cough Segmentation
	classifiable := cleaned
	segmented := false

	if denoised {
		timer.StartEvent("segmentation")
		printStep(4, "Cough Segmentation")

		segmenter, err := segment.NewSegmenter(segmentConfig, nil)
		if err != nil {
			printError("Failed to create segmenter: %v", err)
			return fmt.Errorf("failed to create segmenter: %w", err)
		}

		seg, err := segmenter.ExtractSegment(cleaned)
		if audio.IsNoActivity(err) {
			printWarning("No sample exceeded the %.3f amplitude threshold", segmentConfig.AmplitudeThreshold)
			printWarning("The classify command would reject this recording")
		} else if err != nil {
			printError("Segmentation failed: %v", err)
			return fmt.Errorf("segmentation failed: %w", err)
		} else {
			segmented = true
			classifiable = seg.Signal
			printSuccess("Cough onset detected")
			printInfo("Onset Sample: %d (%.3fs)", seg.OnsetIndex,
				float64(seg.OnsetIndex)/float64(cleaned.SampleRate))
			printInfo("Window: samples %d to %d (%.3fs)", seg.Start, seg.End,
				seg.Signal.Seconds())
			dumpStageAudio("segment.wav", seg.Signal)
		}

		timer.EndEvent("segmentation")
		fmt.Println()
	}

	// Step 5: Mel Featurization
	timer.StartEvent("featurization")
	printStep(5, "Mel Featurization")

	featurizer, err := melspec.NewFeaturizer(featuresConfig, nil)
	if err != nil {
		printError("Failed to create featurizer: %v", err)
		return fmt.Errorf("failed to create featurizer: %w", err)
	}

	tensor, err := featurizer.Compute(classifiable)
	if err != nil {
		printError("Featurization failed: %v", err)
		return fmt.Errorf("featurization failed: %w", err)
	}
	printSuccess("Mel spectrogram computed")
	printInfo("Tensor Shape: %d bands x %d steps", tensor.MelBands, tensor.TimeSteps)
	printInfo("Dynamic Range: %.2f dB to %.2f dB before normalization", tensor.Low, tensor.High)
	if tensor.Degenerate {
		printWarning("Input had no dynamic range, tensor filled with the midpoint value")
	}

	timer.EndEvent("featurization")
	fmt.Println()

	// Step 6: Classification
	classified := false
	var result *inference.Result

	if !pipelineTestSkipClassify {
		timer.StartEvent("classification")
		printStep(6, "Model Classification")

		modelPath := appConfig.Model.ResolvePath()
		if pipelineTestModel != "" {
			modelPath = pipelineTestModel
		}

		if modelPath == "" {
			printWarning("No model configured, skipping classification")
		} else if _, err := os.Stat(modelPath); os.IsNotExist(err) {
			printWarning("Model not found at %s, skipping classification", modelPath)
		} else {
			result, err = runTestClassification(ctx, appConfig, modelPath, tensor)
			if err != nil {
				printError("Classification failed: %v", err)
			} else {
				classified = true
				printSuccess("Prediction: %s", result.Label)
				for i, class := range result.Classes {
					fmt.Printf("      %-12s %.4f\n", class+":", result.Probabilities[i])
				}
			}
		}

		timer.EndEvent("classification")
		fmt.Println()
	}

	// Performance Summary
	timer.EndEvent("total_test")
	if verbose {
		printSectionHeader("Performance Summary")
		displayStagePerformanceSummary(timer)
		fmt.Println()
	}

	// Test Summary
	printSectionHeader("Test Summary")
	printResult("Configuration", true)
	printResult("Decode", signal != nil)
	if denoised {
		printResult("Noise Suppression", true)
		printResult("Segmentation", segmented)
	}
	printResult("Featurization", tensor != nil)
	if !pipelineTestSkipClassify {
		printResult("Classification", classified)
	}

	fmt.Println()
	printInfo("Recording Summary:")
	fmt.Printf("   Duration: %.3f seconds\n", signal.Seconds())
	fmt.Printf("   Sample Rate: %d Hz\n", signal.SampleRate)
	fmt.Printf("   Classified Samples: %d\n", len(classifiable.PCM))
	if classified {
		fmt.Printf("   Prediction: %s\n", result.Label)
	}

	fmt.Printf("\n%sTotal Test Duration: %v%s\n", ColorBold, timer.GetTotalDuration(), ColorReset)

	return nil
}

func runTestClassification(ctx context.Context, appConfig *configs.Config, modelPath string, tensor *melspec.FeatureTensor) (*inference.Result, error) {
	onnxConfig := &inference.ONNXConfig{
		ModelPath:      modelPath,
		Device:         appConfig.Model.Device,
		IntraOpThreads: appConfig.Model.IntraOpThreads,
		LibraryPath:    appConfig.Model.LibraryPath,
	}
	if pipelineTestDevice != "" {
		onnxConfig.Device = pipelineTestDevice
	}

	model, err := inference.NewONNXModel(onnxConfig, nil)
	if err != nil {
		return nil, err
	}

	engine, err := inference.NewEngine(model, appConfig.Model.Classes, nil)
	if err != nil {
		model.Close()
		return nil, err
	}
	defer engine.Close()

	return engine.Classify(ctx, tensor)
}

func displayPipelineConfiguration(appConfig *configs.Config, verbose bool) {
	printInfo("Denoise Settings:")
	fmt.Printf("      Window Size: %d\n", appConfig.Denoise.WindowSize)
	fmt.Printf("      Hop Length: %d\n", appConfig.Denoise.HopLength)
	fmt.Printf("      Reference Duration: %v\n", appConfig.Denoise.ReferenceDuration)
	fmt.Printf("      Suppression Level: %.2f\n", appConfig.Denoise.Level)

	printInfo("Segment Settings:")
	fmt.Printf("      Amplitude Threshold: %.3f\n", appConfig.Segment.AmplitudeThreshold)
	fmt.Printf("      Segment Duration: %v\n", appConfig.Segment.SegmentDuration)
	fmt.Printf("      Pre-Roll: %v\n", appConfig.Segment.PreRoll)

	printInfo("Feature Settings:")
	fmt.Printf("      Mel Bands: %d\n", appConfig.Features.MelBands)
	fmt.Printf("      Window Size: %d\n", appConfig.Features.WindowSize)
	fmt.Printf("      Hop Length: %d\n", appConfig.Features.HopLength)
	fmt.Printf("      Top dB: %.1f\n", appConfig.Features.TopDB)
	fmt.Printf("      Norm Range: [%.1f, %.1f]\n", appConfig.Features.NormLow, appConfig.Features.NormHigh)

	if verbose {
		printInfo("Pipeline Settings:")
		fmt.Printf("      Cleanup Gate: %v\n", appConfig.Pipeline.MinDenoiseDuration)
		fmt.Printf("      Timeout: %v\n", appConfig.Pipeline.Timeout)

		printInfo("Model Settings:")
		fmt.Printf("      Model Path: %s\n", appConfig.Model.ResolvePath())
		fmt.Printf("      Device: %s\n", appConfig.Model.Device)
		fmt.Printf("      Classes: %s\n", strings.Join(appConfig.Model.Classes, ", "))
	}
}

func displayRecordingInfo(signal *audio.Signal, verbose bool) {
	printInfo("Signal Properties:")
	fmt.Printf("      Samples: %d\n", len(signal.PCM))
	fmt.Printf("      Sample Rate: %d Hz\n", signal.SampleRate)
	fmt.Printf("      Source Channels: %d\n", signal.Channels)
	fmt.Printf("      Duration: %.3f seconds\n", signal.Seconds())

	if verbose && len(signal.PCM) > 0 {
		var sum, min, max float64
		min = signal.PCM[0]
		max = signal.PCM[0]

		for _, sample := range signal.PCM {
			sum += sample
			if sample < min {
				min = sample
			}
			if sample > max {
				max = sample
			}
		}

		avg := sum / float64(len(signal.PCM))
		peakAmplitude := max
		if -min > max {
			peakAmplitude = -min
		}

		printInfo("Signal Statistics:")
		fmt.Printf("      Average Amplitude: %.6f\n", avg)
		fmt.Printf("      Peak Amplitude: %.6f\n", peakAmplitude)
		if max > min {
			fmt.Printf("      Dynamic Range: %.6f (%.2f dB)\n", max-min, 20*math.Log10(max-min))
		}

		if peakAmplitude > 0.99 {
			printWarning("Potential clipping detected (peak > 0.99)")
		}
		if avg < 0.001 && avg > -0.001 && peakAmplitude < 0.001 {
			printWarning("Very low signal level detected")
		}
	}
}

func displayNoiseProfile(profile *denoise.NoiseProfile) {
	var sum, peak float64
	for _, power := range profile.Power {
		sum += power
		if power > peak {
			peak = power
		}
	}
	mean := 0.0
	if len(profile.Power) > 0 {
		mean = sum / float64(len(profile.Power))
	}

	printInfo("Noise Profile:")
	fmt.Printf("      Frequency Bins: %d\n", len(profile.Power))
	fmt.Printf("      Mean Power: %.9f\n", mean)
	fmt.Printf("      Peak Power: %.9f\n", peak)
}

func dumpStageAudio(name string, signal *audio.Signal) {
	if pipelineTestDumpDir == "" {
		return
	}

	path := filepath.Join(pipelineTestDumpDir, name)
	if err := os.MkdirAll(pipelineTestDumpDir, 0o755); err != nil {
		printWarning("Failed to create dump directory: %v", err)
		return
	}
	if err := audio.EncodeWAVFile(path, signal); err != nil {
		printWarning("Failed to dump %s: %v", name, err)
		return
	}
	printInfo("Dumped: %s", path)
}

func displayStagePerformanceSummary(timer *PerformanceTimer) {
	printInfo("Performance Breakdown:")

	events := []string{
		"config_validation", "decode", "noise_suppression",
		"segmentation", "featurization", "classification",
	}

	for _, event := range events {
		duration := timer.GetDuration(event)
		if duration > 0 {
			fmt.Printf("      %s: %v\n", displayEventName(event), duration)
		}
	}
}
