// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"moray/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagProvider string
	flagSkip     []string
	flagPlayer   string
	flagAudio    string
	flagJSON     bool
	flagNoPlay   bool
	flagDebug    bool
)

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "moray <content-id> [season episode]",
	Short: "Resolve and play streams from embed providers",
	Long: `Moray resolves a direct stream URL for a movie or episode by sweeping
a chain of embed providers, caching what it finds, and handing the result
to mpv/vlc. When every provider fails it can serve the embed page through
its own origin and intercept the media URLs the page loads.`,
	PersistentPreRunE: loadConfig,
	RunE:              resolveRun,
	Args:              cobra.RangeArgs(1, 3),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "", "Force a single provider by id")
	rootCmd.PersistentFlags().StringSliceVarP(&flagSkip, "skip", "s", nil, "Provider ids to skip")
	rootCmd.PersistentFlags().StringVar(&flagPlayer, "player", "", "Media player: mpv | vlc | iina | celluloid")
	rootCmd.PersistentFlags().StringVarP(&flagAudio, "audio", "a", "", "Audio track (default: legendado)")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Output the resolution result as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagNoPlay, "no-play", false, "Resolve only, do not launch a player")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.Flags().IntVar(&flagSeason, "season", 0, "Season number (series)")
	rootCmd.Flags().IntVar(&flagEpisode, "episode", 0, "Episode number (series)")
	rootCmd.Flags().StringVar(&flagTitle, "title", "", "Title hint for slug guessing")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagPlayer != "" {
		cfg.Player = flagPlayer
	}
	if flagAudio != "" {
		cfg.AudioTrack = flagAudio
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.SetOutput(os.Stderr)
	if cfg.Debug {
		log.SetPrefix("[moray] ")
	} else {
		log.SetFlags(0)
	}

	return nil
}

// debugf logs a message if debug mode is enabled.
func debugf(format string, args ...interface{}) {
	if cfg != nil && cfg.Debug {
		log.Printf(format, args...)
	}
}
