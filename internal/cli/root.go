// Package cli implements the scribe command line.
package cli

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"scribeflow/internal/bootstrap"
	"scribeflow/internal/config"
)

type rootOptions struct {
	verbose bool
	quiet   bool
	cfg     *config.Config
	logger  *slog.Logger
}

// NewRootCommand returns the scribe command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "scribe",
		Short: "Transcribe audio with a chain of speech-to-text engines",
		Long: `scribe runs the scribeflow transcription pipeline. Jobs try the configured
engines in order (local whisper.cpp, Google, OpenAI, FPT) and report staged
progress while they run.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				slog.Debug("no .env file found, using environment variables")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if opts.verbose {
				level = "debug"
			}
			if opts.quiet {
				level = "error"
			}
			opts.cfg = cfg
			opts.logger = bootstrap.NewLogger(level, cmd.ErrOrStderr())
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress non-error output")

	root.AddCommand(newServeCommand(opts), newTranscribeCommand(opts))
	return root
}
