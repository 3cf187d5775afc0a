// Package cmd provides the CLI commands for eventindexer.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/eventindexer/internal/config"
	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/logging"
	"github.com/Aman-CERP/eventindexer/internal/profiling"
	"github.com/Aman-CERP/eventindexer/pkg/version"
)

// skipConfigAnnotation marks commands that run without loading configuration.
const skipConfigAnnotation = "skip_config"

// rootOptions holds the persistent flags and what PersistentPreRunE derives
// from them.
type rootOptions struct {
	configPath string
	debug      bool
	profile    profiling.Options

	cfg            *config.Config
	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the eventindexer CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventindexer",
		Short: "Index Snowplow event logs into time-partitioned search indexes",
		Long: `eventindexer ingests Snowplow event log objects into search partitions
named after the run timestamp in the object key, and deletes partitions
older than the retention window after every load.

Objects are read from a local blob directory or Google Cloud Storage.
Partitions are bleve indexes kept under search.endpoint.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return opts.teardown()
		},
	}
	cmd.SetVersionTemplate("eventindexer version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: ./.eventindexer.yaml if present)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write an execution trace to this file")

	cmd.AddCommand(newIngestCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newSweepCmd(opts))
	cmd.AddCommand(newPartitionsCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Exit codes returned by Execute.
const (
	exitOK        = 0
	exitFailure   = 1
	exitTransient = 75 // EX_TEMPFAIL: retrying later may succeed
)

// Execute runs the root command until it finishes or the process is
// interrupted, reports any error, and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &rootOptions{}
	return opts.run(ctx, newRootCmd(opts))
}

func (o *rootOptions) run(ctx context.Context, root *cobra.Command) int {
	c, err := root.ExecuteContextC(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if terr := o.teardown(); err == nil {
		err = terr
	}
	return reportError(c, err, o.debug)
}

// reportError writes err for the command that failed and maps it to an exit
// code. Commands run with --json get a JSON error document on stdout.
func reportError(c *cobra.Command, err error, debug bool) int {
	if err == nil {
		return exitOK
	}
	if c == nil {
		c = &cobra.Command{}
	}
	reported := false
	if f := c.Flags().Lookup("json"); f != nil && f.Value.String() == "true" {
		if data, jerr := errors.FormatJSON(err); jerr == nil {
			fmt.Fprintln(c.OutOrStdout(), string(data))
			reported = true
		}
	}
	if !reported {
		fmt.Fprint(c.ErrOrStderr(), errors.FormatForUser(err, debug))
	}
	if errors.IsRetryable(err) {
		return exitTransient
	}
	return exitFailure
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	if o.profile.Enabled() {
		p, err := profiling.Start(o.profile)
		if err != nil {
			return err
		}
		o.profiler = p
	}

	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	cfg, err := config.Load(".", o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		Format:    logging.FormatAuto,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if o.debug {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	o.loggingCleanup = cleanup

	slog.Debug("config_loaded",
		slog.String("source", cfg.Source()),
		slog.String("endpoint", cfg.Search.Endpoint),
		slog.Int("retention_days", cfg.Retention.DaysToKeep))
	return nil
}

func (o *rootOptions) teardown() error {
	var err error
	if o.profiler != nil {
		err = o.profiler.Stop()
		o.profiler = nil
	}
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	return err
}
