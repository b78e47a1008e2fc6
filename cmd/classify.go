package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/respiralab/coughdx/internal/app"
)

var (
	// Classify command flags
	classifyInputFile  string
	classifyOutputFile string
	classifyModelPath  string
	classifyDevice     string
	classifySessionID  string
	classifyDumpDir    string
	classifyTimeout    time.Duration
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify [flags] [recording.wav]",
	Short: "Classify a cough recording",
	Long: `Run the full classification pipeline over one recording.

The recording is denoised by spectral gating, reduced to the cough segment,
converted to a normalized mel spectrogram, and classified by the configured
ONNX model. Recordings of one second or less skip the cleanup stages.

The recording comes from the positional argument, the configured input
directory, or the session's S3 input prefix. The report is written next to
where the recording came from unless --output-file overrides it.

Examples:
  # Classify a local file with an explicit model
  coughdx classify --model ./models/cough.onnx recording.wav

  # Classify through the configured exchange directories
  coughdx classify

  # Classify an S3 session exchange
  coughdx classify --session 7f3b2c1d

  # Keep the intermediate audio for debugging
  coughdx classify --dump-audio ./debug recording.wav

  # Emit the report as JSON to a chosen location
  coughdx classify -o json --output-file report.json recording.wav`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyInputFile, "input-file", "i", "",
		"recording to classify (overrides the configured store)")
	classifyCmd.Flags().StringVar(&classifyOutputFile, "output-file", "",
		"write the report to this path instead of the configured store")
	classifyCmd.Flags().StringVarP(&classifyModelPath, "model", "m", "",
		"path to the ONNX model file")
	classifyCmd.Flags().StringVar(&classifyDevice, "device", "",
		"execution device (cpu, cuda, coreml)")
	classifyCmd.Flags().StringVar(&classifySessionID, "session", "",
		"session ID for the S3 exchange")
	classifyCmd.Flags().StringVar(&classifyDumpDir, "dump-audio", "",
		"directory for intermediate audio dumps")
	classifyCmd.Flags().DurationVar(&classifyTimeout, "timeout", 0,
		"overall processing timeout (default from configuration)")

	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	inputFile := classifyInputFile
	if len(args) > 0 {
		inputFile = args[0]
	}

	appCtx := &app.Context{
		ConfigFile:   configFile,
		InputFile:    inputFile,
		OutputFile:   classifyOutputFile,
		OutputFormat: outputFormat,
		ModelPath:    classifyModelPath,
		Device:       classifyDevice,
		SessionID:    classifySessionID,
		DumpDir:      classifyDumpDir,
		Timeout:      classifyTimeout,
		Verbose:      verbose,
	}

	classifier, err := app.NewApp(appCtx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	return classifier.Run(ctx)
}
