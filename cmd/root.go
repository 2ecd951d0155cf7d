package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/atelier/internal/config"
	"github.com/agentic-research/atelier/internal/logs"
	"github.com/agentic-research/atelier/internal/preview"
	"github.com/agentic-research/atelier/internal/transform"
)

var (
	configPath string
	logLevel   string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

// errBlocked is returned when a build produced diagnostics; they have
// already been printed.
var errBlocked = errors.New("preview blocked")

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to atelier.hcl (default $"+config.EnvConfig+" or ./"+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

var rootCmd = &cobra.Command{
	Use:           "atelier",
	Short:         "Agent-driven component workspace: edit tools, transform and live preview assembly",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(config.Path(configPath), cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		cfg = c

		name := logLevel
		if name == "" {
			name = cfg.LogLevelName()
		}
		level, err := logs.ParseLevel(name)
		if err != nil {
			return err
		}
		logs.Level.Set(level)

		l, closer, err := logs.New(os.Stderr, cfg.LogFilePath())
		if err != nil {
			return err
		}
		logger, logCloser = l, closer
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// newBuilder wires the transform engine and assembler from the loaded
// configuration.
func newBuilder() *preview.Builder {
	opts := cfg.TransformOptions()
	opts.Logger = logger
	return preview.NewBuilder(
		transform.New(opts),
		preview.NewAssembler(cfg.EntryCandidates, logger),
		preview.NewTracker(),
		logger,
	)
}

// Execute runs the root command and exits non-zero on failure: 2 when a
// build was blocked by diagnostics, 1 otherwise.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errBlocked) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
