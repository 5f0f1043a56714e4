package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Build identity, set with -ldflags at release time.
var (
	commitHash = ""
	buildTime  = ""
)

// Global flags
var (
	configFlag   string
	logLevelFlag string
)

// rootCmd is the main Cobra command for the flipbook CLI.
var rootCmd = &cobra.Command{
	Use:   "flipbook",
	Short: "Flipbook photo booth - capture, composite and print a webcam flipbook",
	Long: `Flipbook runs a photo booth session from the command line. After a short
countdown it captures a timed burst of webcam frames, composites each one into
a branded frame, and writes a printable A4 sheet, an animated preview and a
download bundle. An optional cover illustration is generated with Gemini.

Examples:
  flipbook capture --style minimal-black
  flipbook capture --strategy record --frames 20 --prompt "a quiet harbor"
  flipbook capture --camera synthetic --no-audio
  flipbook styles
  flipbook cover --prompt "paper cranes" --out cover.png`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file (default ~/.config/flipbook/config.toml or ./flipbook.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(newCaptureCommand())
	rootCmd.AddCommand(newStylesCommand())
	rootCmd.AddCommand(newCoverCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
