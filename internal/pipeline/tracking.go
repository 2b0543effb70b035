package pipeline

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/pkg/utils"
)

// Ledger persists run history. Implemented by store.Store.
type Ledger interface {
	CreateRun(runID, operation, input, output string) error
	UpdateRunStatus(runID, status string) error
	SaveRunError(runID, stage string, err error) error
	SaveStageProgress(runID string, stage model.StageMetrics) error
}

// Metrics holds the run metrics of this process in a private registry, so
// they can be written to a textfile collector once the batch job ends.
type Metrics struct {
	registry      *prometheus.Registry
	stageRecords  *prometheus.GaugeVec
	stageDuration *prometheus.GaugeVec
	skippedRows   *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
}

// NewMetrics registers the pipeline gauges on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epi_pipeline_stage_records",
			Help: "Records emitted by a pipeline stage in the last run.",
		}, []string{"operation", "stage"}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epi_pipeline_stage_duration_seconds",
			Help: "Wall time of a pipeline stage in the last run.",
		}, []string{"operation", "stage"}),
		skippedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epi_pipeline_skipped_rows",
			Help: "Raw rows skipped because they failed type coercion.",
		}, []string{"operation"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epi_pipeline_last_run_success",
			Help: "1 if the last run succeeded, 0 otherwise.",
		}, []string{"operation"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epi_pipeline_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(m.stageRecords, m.stageDuration, m.skippedRows, m.lastSuccess, m.lastRun)
	return m
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the metrics in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := utils.EnsureParentDir(path); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observe(summary *model.RunSummary) {
	for _, st := range summary.Stages {
		m.stageRecords.WithLabelValues(summary.Operation, st.StageName).Set(float64(st.RecordsOut))
		m.stageDuration.WithLabelValues(summary.Operation, st.StageName).Set(st.Duration.Seconds())
	}
	m.skippedRows.WithLabelValues(summary.Operation).Set(float64(summary.SkippedRows))
	success := 0.0
	if summary.Status == model.StatusCompleted {
		success = 1
	}
	m.lastSuccess.WithLabelValues(summary.Operation).Set(success)
	m.lastRun.WithLabelValues(summary.Operation).Set(float64(summary.EndTime.Unix()))
}

// tracker follows one run through its stages
type tracker struct {
	summary *model.RunSummary
	log     *logrus.Entry
	ledger  Ledger
	metrics *Metrics
}

func newTracker(operation, input, output string, opts Options) *tracker {
	runID := uuid.New().String()
	t := &tracker{
		summary: &model.RunSummary{
			RunID:     runID,
			Operation: operation,
			Input:     input,
			Output:    output,
			Status:    model.StatusRunning,
			StartTime: time.Now(),
		},
		log: opts.logger().WithFields(logrus.Fields{
			"run_id":    runID,
			"operation": operation,
		}),
		ledger:  opts.Ledger,
		metrics: opts.Metrics,
	}

	if t.ledger != nil {
		if err := t.ledger.CreateRun(runID, operation, input, output); err != nil {
			t.log.WithError(err).Warn("Failed to record run in ledger")
			t.ledger = nil
		}
	}
	t.log.WithFields(logrus.Fields{"input": input, "output": output}).Infof("🚀 Starting %s", operation)
	return t
}

// stage starts timing a stage. The returned func closes it.
func (t *tracker) stage(name string, recordsIn int) (*logrus.Entry, func(recordsOut int)) {
	start := time.Now()
	log := t.log.WithField("stage", name)
	log.WithField("records_in", recordsIn).Debug("Stage started")

	return log, func(recordsOut int) {
		end := time.Now()
		st := model.StageMetrics{
			StageName:  name,
			StartTime:  start,
			EndTime:    end,
			Duration:   end.Sub(start),
			RecordsIn:  recordsIn,
			RecordsOut: recordsOut,
			Status:     model.StatusCompleted,
		}
		t.summary.Stages = append(t.summary.Stages, st)
		log.WithFields(logrus.Fields{
			"records_in":  recordsIn,
			"records_out": recordsOut,
			"duration_ms": st.Duration.Milliseconds(),
		}).Info("✅ Stage completed")

		if t.ledger != nil {
			if err := t.ledger.SaveStageProgress(t.summary.RunID, st); err != nil {
				log.WithError(err).Warn("Failed to record stage progress")
			}
		}
	}
}

func (t *tracker) export(result model.ExportResult) {
	t.summary.Exports = append(t.summary.Exports, result)
	t.log.WithFields(logrus.Fields{
		"type":    result.Type,
		"path":    result.Path,
		"records": result.RecordCount,
	}).Info("💾 Export written")
}

// finish closes the run and flushes it to the ledger and metrics.
func (t *tracker) finish(err error, metricsTextfile string) *model.RunSummary {
	t.summary.EndTime = time.Now()
	if err != nil {
		t.summary.Status = model.StatusFailed
		t.summary.Error = err.Error()
		t.log.WithError(err).Error("❌ Run failed")
	} else {
		t.summary.Status = model.StatusCompleted
		t.log.WithField("duration", t.summary.EndTime.Sub(t.summary.StartTime)).Info("🏁 Run completed")
	}

	if t.ledger != nil {
		if err != nil {
			stage := ""
			var pe *Error
			if errors.As(err, &pe) {
				stage = pe.Stage
			}
			if lerr := t.ledger.SaveRunError(t.summary.RunID, stage, err); lerr != nil {
				t.log.WithError(lerr).Warn("Failed to record run error")
			}
		}
		if lerr := t.ledger.UpdateRunStatus(t.summary.RunID, t.summary.Status); lerr != nil {
			t.log.WithError(lerr).Warn("Failed to update run status")
		}
	}

	if t.metrics != nil {
		t.metrics.observe(t.summary)
		if metricsTextfile != "" {
			if merr := t.metrics.WriteTextfile(metricsTextfile); merr != nil {
				t.log.WithError(merr).Warn("Failed to write metrics textfile")
			}
		}
	}
	return t.summary
}
