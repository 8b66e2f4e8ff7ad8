// Command celltool runs the cell tracer pipeline from the command line:
// label pixmap to entities, feature extraction, cluster merging and
// rendering.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cell-tracer/internal/config"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/logger"
	"cell-tracer/internal/metrics"
	"cell-tracer/internal/storage"
	"cell-tracer/internal/version"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what every subcommand shares. It is filled in by the root
// command's pre-run hook.
type app struct {
	configPath  string
	logLevel    string
	metricsFile string

	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	store   *storage.Storage
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.Metrics.Textfile = a.metricsFile
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(cmd.ErrOrStderr(), level, cfg.Log.Console)
	a.metrics = metrics.New()
	a.store = storage.New(storage.S3ConfigFromEnv(), a.log)
	return nil
}

func (a *app) finish() error {
	if a.cfg == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// newLedger returns a ledger wired to the app's logger and metrics.
func (a *app) newLedger() *ledger.Ledger {
	return ledger.New(ledger.Options{Logger: a.log, Metrics: a.metrics})
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "celltool",
		Short:         "Segmented cell entities: generate, measure, cluster and render",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.finish()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus text metrics to this file on exit")

	root.AddCommand(
		newGenerateCmd(a),
		newExtractCmd(a),
		newMergeCSVCmd(a),
		newToPixmapCmd(a),
		newClusterDrawCmd(a),
		newConvertCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "celltool %s\n", version.String())
			},
		},
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "celltool: %v\n", err)
		os.Exit(1)
	}
}
