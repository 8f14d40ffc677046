package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/hardware"
	"github.com/alchemist-av/alchemist/internal/observability"
)

var detectJSON bool

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect ffmpeg capabilities and the hardware encode path",
	Long: `Probe the host for ffmpeg, ffprobe and GPU hardware, and print what
the encoder planner would have to work with. Hardware encoders are
confirmed with a short null-sink smoke encode, so a listed encoder is one
that actually works.`,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "output capabilities as JSON")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)

	ctx := context.Background()
	hw := hardware.Detect(ctx, logger)
	caps, err := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, logger).Detect(ctx, hw)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg capabilities: %w", err)
	}

	if detectJSON {
		data, err := json.MarshalIndent(caps, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling capabilities: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printCapabilities(caps)
	return nil
}

func printCapabilities(caps *ffmpeg.Capabilities) {
	fmt.Printf("FFmpeg:          %s (%s)\n", caps.FFmpegPath, caps.Version)
	fmt.Printf("FFprobe:         %s\n", caps.FFprobePath)

	vendor := string(caps.Hardware.Vendor)
	if caps.Hardware.Device != "" {
		vendor += " (" + caps.Hardware.Device + ")"
	}
	fmt.Printf("Vendor:          %s\n", vendor)
	if caps.Hardware.VAAPIDevice != "" {
		fmt.Printf("VAAPI device:    %s\n", caps.Hardware.VAAPIDevice)
	}

	fmt.Printf("Video encoders:  %s\n", joinOrNone(caps.VideoEncoders))
	fmt.Printf("Audio encoders:  %s\n", joinOrNone(caps.AudioEncoders))
	fmt.Printf("HW accels:       %s\n", joinOrNone(caps.HWAccels))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
