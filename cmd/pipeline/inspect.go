package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/internal/pipeline"
	"epi-data-pipeline/internal/store"
)

var errNoLedger = errors.New("no run ledger configured, set store.db_path")

// errLedgerUnavailable is returned when a ledger is configured but failed to open
var errLedgerUnavailable = errors.New("run ledger unavailable")

func (a *app) requireLedger() (*store.Store, error) {
	if a.cfg.Store.DBPath == "" {
		return nil, usageError{errNoLedger}
	}
	if a.ledger == nil {
		return nil, fmt.Errorf("%w: %s", errLedgerUnavailable, a.cfg.Store.DBPath)
	}
	return a.ledger, nil
}

func newRunsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or show the stages and errors of one run",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.requireLedger()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				runs, err := st.ListRuns()
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs)
			}
			return printRun(cmd.OutOrStdout(), st, args[0])
		},
	}
}

func printRuns(out io.Writer, runs []store.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOPERATION\tSTATUS\tCREATED\tINPUT\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Operation, r.Status, r.CreatedAt.UTC().Format(time.RFC3339), r.Input, r.Output)
	}
	return w.Flush()
}

func printRun(out io.Writer, st *store.Store, runID string) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	stages, err := st.GetStageProgress(runID)
	if err != nil {
		return err
	}
	runErrs, err := st.GetRunErrors(runID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	fmt.Fprintf(w, "Operation:\t%s\n", run.Operation)
	fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	fmt.Fprintf(w, "Input:\t%s\n", run.Input)
	fmt.Fprintf(w, "Output:\t%s\n", run.Output)
	fmt.Fprintf(w, "Created:\t%s\n", run.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STAGE\tSTATUS\tRECORDS IN\tRECORDS OUT\tDURATION")
	for _, s := range stages {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", s.StageName, s.Status, s.RecordsIn, s.RecordsOut, s.Duration)
	}
	for _, e := range runErrs {
		fmt.Fprintf(w, "\nError in %s:\t%s\n", e.Stage, e.Message)
	}
	return w.Flush()
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <report.json>",
		Short: "Print a previously written aggregate report",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := pipeline.ReadReport(args[0])
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
}

func printReport(out io.Writer, r *model.AggregateReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Period:\t%s to %s\n", r.Period.Start, r.Period.End)
	fmt.Fprintf(w, "Coverage:\t%d regions, %d places\n", r.Coverage.Regions, r.Coverage.Places)
	fmt.Fprintf(w, "Confirmed:\t%d\n", r.Totals.Confirmed)
	fmt.Fprintf(w, "Deaths:\t%d\n", r.Totals.Deaths)
	fmt.Fprintf(w, "Mortality:\t%.4f\n", r.Metrics.OverallMortality)
	fmt.Fprintf(w, "Rolling mean confirmed:\t%.1f\n", r.Metrics.RollingMeanConfirmed)
	fmt.Fprintf(w, "Rolling mean deaths:\t%.1f\n", r.Metrics.RollingMeanDeaths)

	printRanking(w, "TOP CONFIRMED", r.TopConfirmed)
	printRanking(w, "TOP DEATHS", r.TopDeaths)
	return w.Flush()
}

func printRanking(w io.Writer, title string, entries []model.RankEntry) {
	fmt.Fprintf(w, "\n%s\tREGION\tVALUE\n", title)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\n", e.Place, e.Region, e.Value)
	}
}
