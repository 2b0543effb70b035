package pipeline

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/internal/schema"
)

// Default analysis parameters
const (
	DefaultTopN          = 5
	DefaultRollingWindow = 7
)

// Options configures Process and Analyze. Zero values fall back to the
// defaults; Ledger and Metrics are optional.
type Options struct {
	Registry        *schema.Registry
	Workers         int
	SkipInvalidRows bool
	TopN            int
	RollingWindow   int
	ReportWorkbook  string // optional xlsx export of Analyze
	MetricsTextfile string
	Ledger          Ledger
	Metrics         *Metrics
	Logger          logrus.FieldLogger
}

func (o Options) registry() (*schema.Registry, error) {
	if o.Registry != nil {
		return o.Registry, nil
	}
	return schema.Load()
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (o Options) topN() int {
	if o.TopN <= 0 {
		return DefaultTopN
	}
	return o.TopN
}

func (o Options) window() int {
	if o.RollingWindow <= 0 {
		return DefaultRollingWindow
	}
	return o.RollingWindow
}

// ------------------- Pipeline Runners -------------------

// Process ingests the raw file, keeps city rows, imputes, derives the
// mortality rate and writes the canonical dataset.
func Process(ctx context.Context, opts Options, rawPath, canonicalPath string) (summary *model.RunSummary, err error) {
	t := newTracker(model.OperationProcess, rawPath, canonicalPath, opts)
	defer func() { summary = t.finish(err, opts.MetricsTextfile) }()

	reg, err := opts.registry()
	if err != nil {
		return nil, err
	}

	// --- INGESTION STAGE ---
	log, done := t.stage(StageIngestion, 0)
	ingested, err := Ingest(ctx, reg, rawPath, opts.SkipInvalidRows, log)
	if err != nil {
		return nil, err
	}
	t.summary.SkippedRows = ingested.Skipped
	done(len(ingested.Records))

	// --- CLEANING STAGE ---
	log, done = t.stage(StageCleaning, len(ingested.Records))
	cleaned, err := Clean(ctx, ingested.Records, opts.Workers, opts.SkipInvalidRows, log)
	if err != nil {
		return nil, err
	}
	t.summary.SkippedRows += cleaned.Skipped
	done(len(cleaned.Records))

	// --- DERIVATION STAGE ---
	_, done = t.stage(StageDerivation, len(cleaned.Records))
	ds, err := Derive(ctx, cleaned.Records, opts.Workers)
	if err != nil {
		return nil, err
	}
	done(len(ds))

	// --- WRITE STAGE ---
	_, done = t.stage(StageWrite, len(ds))
	result, err := WriteDataset(ds, canonicalPath)
	if err != nil {
		return nil, err
	}
	t.export(result)
	done(result.RecordCount)

	return nil, nil
}

// Analyze reads a canonical dataset, computes the aggregate report and
// writes it as JSON, plus an xlsx workbook when configured.
func Analyze(ctx context.Context, opts Options, canonicalPath, reportPath string) (report *model.AggregateReport, summary *model.RunSummary, err error) {
	t := newTracker(model.OperationAnalyze, canonicalPath, reportPath, opts)
	defer func() { summary = t.finish(err, opts.MetricsTextfile) }()

	reg, err := opts.registry()
	if err != nil {
		return nil, nil, err
	}

	// --- READ STAGE ---
	_, done := t.stage(StageRead, 0)
	ds, err := ReadDataset(reg, canonicalPath)
	if err != nil {
		return nil, nil, err
	}
	done(len(ds))

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// --- AGGREGATION STAGE ---
	_, done = t.stage(StageAggregation, len(ds))
	report = BuildReport(ds, opts.topN(), opts.window())
	done(len(report.TopConfirmed) + len(report.TopDeaths))

	// --- EXPORT STAGE ---
	_, done = t.stage(StageExport, 1)
	result, err := WriteReport(report, reportPath)
	if err != nil {
		return nil, nil, err
	}
	t.export(result)
	exported := 1

	if opts.ReportWorkbook != "" {
		wb, err := WriteReportWorkbook(report, RegionWeekly(ds), DailySeries(ds, opts.window()), opts.ReportWorkbook)
		if err != nil {
			return nil, nil, err
		}
		t.export(wb)
		exported++
	}
	done(exported)

	return report, nil, nil
}
