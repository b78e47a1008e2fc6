package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/respiralab/coughdx/configs"
)

// configTestCmd represents the config test command
var configTestCmd = &cobra.Command{
	Use:   "config-test",
	Short: "Test and display all configuration values",
	Long: `Test configuration loading and display all values to verify proper parsing.

This command loads the configuration and displays all values in a structured format
to help verify that your YAML configuration is being parsed correctly.

Examples:
  # Test with default config file
  coughdx config-test

  # Test with specific config file
  coughdx --config /path/to/config.yaml config-test`,
	RunE: runConfigTest,
}

func init() {
	rootCmd.AddCommand(configTestCmd)
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	fmt.Println("COUGHDX CONFIGURATION TEST")
	fmt.Println(strings.Repeat("=", 80))

	// Load configuration
	config, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	printSection("APPLICATION SETTINGS")
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)
	printKeyValue("Output Format", config.OutputFormat)

	printSection("DENOISE CONFIGURATION")
	printKeyValue("Window Size", fmt.Sprintf("%d", config.Denoise.WindowSize))
	printKeyValue("Hop Length", fmt.Sprintf("%d", config.Denoise.HopLength))
	printKeyValue("Reference Duration", config.Denoise.ReferenceDuration.String())
	printKeyValue("Suppression Level", fmt.Sprintf("%.2f", config.Denoise.Level))

	printSection("SEGMENT CONFIGURATION")
	printKeyValue("Amplitude Threshold", fmt.Sprintf("%.3f", config.Segment.AmplitudeThreshold))
	printKeyValue("Segment Duration", config.Segment.SegmentDuration.String())
	printKeyValue("Pre-Roll", config.Segment.PreRoll.String())

	printSection("FEATURES CONFIGURATION")
	printKeyValue("Mel Bands", fmt.Sprintf("%d", config.Features.MelBands))
	printKeyValue("Window Size", fmt.Sprintf("%d", config.Features.WindowSize))
	printKeyValue("Hop Length", fmt.Sprintf("%d", config.Features.HopLength))
	printKeyValue("Low Frequency", fmt.Sprintf("%.1f Hz", config.Features.LowFreq))
	if config.Features.HighFreq > 0 {
		printKeyValue("High Frequency", fmt.Sprintf("%.1f Hz", config.Features.HighFreq))
	} else {
		printKeyValue("High Frequency", "Nyquist")
	}
	printKeyValue("Top dB", fmt.Sprintf("%.1f", config.Features.TopDB))
	printKeyValue("Norm Range", fmt.Sprintf("[%.1f, %.1f]", config.Features.NormLow, config.Features.NormHigh))

	printSection("MODEL CONFIGURATION")
	printKeyValue("Path", config.Model.Path)
	printKeyValue("Directory", config.Model.Dir)
	printKeyValue("Filename", config.Model.Filename)
	printKeyValue("Resolved Path", config.Model.ResolvePath())
	printKeyValue("Classes", fmt.Sprintf("(%d) %v", len(config.Model.Classes), config.Model.Classes))
	printKeyValue("Device", config.Model.Device)
	printKeyValue("Intra-Op Threads", fmt.Sprintf("%d", config.Model.IntraOpThreads))
	printKeyValue("Library Path", config.Model.LibraryPath)

	printSection("PIPELINE CONFIGURATION")
	printKeyValue("Cleanup Gate", config.Pipeline.MinDenoiseDuration.String())
	printKeyValue("Dump Directory", config.Pipeline.DumpDir)
	printKeyValue("Timeout", config.Pipeline.Timeout.String())

	printSection("STORAGE CONFIGURATION")
	printKeyValue("Mode", config.Storage.Mode)
	printKeyValue("Resolved Mode", storageModeForDisplay(config))
	printKeyValue("Input Directory", config.Storage.InputDir)
	printKeyValue("Audio Filename", config.Storage.AudioFilename)
	printKeyValue("Output Directory", config.Storage.OutputDir)

	printSubsection("S3")
	printKeyValue("  Endpoint", config.Storage.S3.Endpoint)
	printKeyValue("  Region", config.Storage.S3.Region)
	printKeyValue("  Bucket", config.Storage.S3.Bucket)
	printKeyValue("  Use SSL", fmt.Sprintf("%t", config.Storage.S3.UseSSL))
	printKeyValue("  Session ID", config.Storage.S3.SessionID)
	printKeyValue("  Access Key Set", fmt.Sprintf("%t", config.Storage.S3.AccessKey != ""))
	printKeyValue("  Secret Key Set", fmt.Sprintf("%t", config.Storage.S3.SecretKey != ""))

	fmt.Println()
	if err := configs.ValidateConfig(config); err != nil {
		fmt.Println(ColorRed + strings.Repeat("-", 80))
		fmt.Printf("CONFIGURATION VALIDATION FAILED: %v\n", err)
		fmt.Println(strings.Repeat("=", 80) + ColorReset)
		return err
	}

	fmt.Println(ColorGreen + strings.Repeat("-", 80))
	fmt.Println("CONFIGURATION TEST COMPLETED SUCCESSFULLY")
	fmt.Printf("Config file: %s\n", getConfigFilePath())
	fmt.Println(strings.Repeat("=", 80) + ColorReset)

	return nil
}

func storageModeForDisplay(config *configs.Config) string {
	if strings.EqualFold(config.Storage.Mode, "auto") || config.Storage.Mode == "" {
		if config.Storage.S3.Bucket != "" {
			return "s3"
		}
		return "local"
	}
	return strings.ToLower(config.Storage.Mode)
}

func getConfigFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	homeDir, _ := os.UserHomeDir()
	return fmt.Sprintf("%s/.config/coughdx/coughdx.yaml", homeDir)
}
