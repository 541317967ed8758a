package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/attrib-app/attrib/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "attrib",
	Short: "attrib - marketing attribution models for journey data",
	Long: `attrib credits marketing channels for conversions using heuristic,
Markov chain and Shapley value attribution models.

Upload a CSV of touchpoints in the web app, or run a model directly with
'attrib run'. Running without a subcommand starts the server (same as
'attrib serve').`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./attrib.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().IntP("port", "p", 8080, "port to listen on")
}

// loadConfig runs before every command: settings from defaults, file,
// ATTRIB_* env vars and changed flags, then a logger at the chosen level.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	level, err := c.Level()
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	cfg = c
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if c.File != "" {
		logger.Debug("loaded config file", "path", c.File)
	}
	return nil
}
