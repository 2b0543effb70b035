package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"epi-data-pipeline/internal/config"
	"epi-data-pipeline/internal/pipeline"
	"epi-data-pipeline/internal/store"
)

// Exit codes
const (
	exitOK       = 0
	exitPipeline = 1
	exitUsage    = 2
)

// usageError marks bad arguments, flags or configuration
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// app holds what every subcommand needs once the config is loaded
type app struct {
	configFile string
	cfg        *config.Config
	ledger     *store.Store
}

func initLog(cfg config.LoggingConfig) {
	logLevel, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(logLevel)
	}

	log.SetOutput(os.Stderr)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&prefixed.TextFormatter{
		ForceFormatting: true,
		FullTimestamp:   true,
	})
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return usageError{err}
	}
	a.cfg = cfg
	initLog(cfg.Logging)

	if cfg.Store.DBPath != "" {
		st, err := store.Open(cfg.Store.DBPath)
		if err != nil {
			log.WithError(err).WithField("path", cfg.Store.DBPath).Warn("Run ledger unavailable, continuing without it")
		} else {
			a.ledger = st
		}
	}
	return nil
}

func (a *app) close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			log.WithError(err).Warn("Failed to close run ledger")
		}
	}
}

func (a *app) options() pipeline.Options {
	opts := pipeline.Options{
		Workers:         a.cfg.Pipeline.Workers,
		SkipInvalidRows: a.cfg.Ingest.SkipInvalidRows,
		TopN:            a.cfg.Analysis.TopN,
		RollingWindow:   a.cfg.Analysis.RollingWindow,
		ReportWorkbook:  a.cfg.Export.ReportXLSX,
		MetricsTextfile: a.cfg.Metrics.Textfile,
		Logger:          log.StandardLogger(),
	}
	// a nil *store.Store must not end up as a non-nil Ledger interface
	if a.ledger != nil {
		opts.Ledger = a.ledger
	}
	if a.cfg.Metrics.Textfile != "" {
		opts.Metrics = pipeline.NewMetrics()
	}
	return opts
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "pipeline",
		Short:             "Epidemiological batch pipeline",
		Long:              "Cleans raw per-place daily case records into a canonical Parquet dataset and summarizes it into a JSON report.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              usageArgs(cobra.NoArgs),
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "path to a YAML config file")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(&cobra.Command{
		Use:   "process <raw.csv> <canonical.parquet>",
		Short: "Ingest, clean and derive the canonical dataset",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := pipeline.Process(cmd.Context(), a.options(), args[0], args[1])
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "analyze <canonical.parquet> <report.json>",
		Short: "Compute the aggregate report from a canonical dataset",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := pipeline.Analyze(cmd.Context(), a.options(), args[0], args[1])
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run <raw.csv> <canonical.parquet> <report.json>",
		Short: "Run process followed by analyze",
		Args:  usageArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.options()
			if _, err := pipeline.Process(cmd.Context(), opts, args[0], args[1]); err != nil {
				return err
			}
			_, _, err := pipeline.Analyze(cmd.Context(), opts, args[1], args[2])
			return err
		},
	})

	root.AddCommand(newRunsCmd(a), newReportCmd())

	return root
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ue usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	return exitPipeline
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}
