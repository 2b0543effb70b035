package model

import "time"

// Operation names
const (
	OperationProcess = "process"
	OperationAnalyze = "analyze"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StageMetrics represents metrics for a specific pipeline stage
type StageMetrics struct {
	StageName  string        `json:"stage_name"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	RecordsIn  int           `json:"records_in"`
	RecordsOut int           `json:"records_out"`
	Status     string        `json:"status"`
}

// RunSummary describes one finished process or analyze run
type RunSummary struct {
	RunID       string         `json:"run_id"`
	Operation   string         `json:"operation"`
	Input       string         `json:"input"`
	Output      string         `json:"output"`
	Status      string         `json:"status"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	SkippedRows int            `json:"skipped_rows"`
	Stages      []StageMetrics `json:"stages"`
	Exports     []ExportResult `json:"exports"`
	Error       string         `json:"error,omitempty"`
}

// Stage returns the metrics of the named stage, if recorded.
func (s *RunSummary) Stage(name string) (StageMetrics, bool) {
	for _, st := range s.Stages {
		if st.StageName == name {
			return st, true
		}
	}
	return StageMetrics{}, false
}
