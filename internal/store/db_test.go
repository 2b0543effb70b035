package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"epi-data-pipeline/internal/model"
)

type LedgerTestSuite struct {
	suite.Suite
	store *Store
}

func (s *LedgerTestSuite) SetupTest() {
	st, err := Open(filepath.Join(s.T().TempDir(), "ledger.db"))
	if err != nil {
		s.T().Fatalf("open ledger with error: %s", err)
	}
	s.store = st
}

func (s *LedgerTestSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *LedgerTestSuite) TestCreateAndGetRun() {
	s.Require().NoError(s.store.CreateRun("run-1", model.OperationProcess, "raw.csv", "out.parquet"))

	run, err := s.store.GetRun("run-1")
	s.Require().NoError(err)
	s.Equal("run-1", run.ID)
	s.Equal(model.OperationProcess, run.Operation)
	s.Equal("raw.csv", run.Input)
	s.Equal("out.parquet", run.Output)
	s.Equal(model.StatusRunning, run.Status)
	s.False(run.CreatedAt.IsZero())
}

func (s *LedgerTestSuite) TestGetUnknownRun() {
	_, err := s.store.GetRun("missing")
	s.ErrorIs(err, ErrRunNotFound)
}

func (s *LedgerTestSuite) TestUpdateRunStatus() {
	s.Require().NoError(s.store.CreateRun("run-2", model.OperationAnalyze, "in.parquet", "report.json"))
	s.Require().NoError(s.store.UpdateRunStatus("run-2", model.StatusCompleted))

	run, err := s.store.GetRun("run-2")
	s.Require().NoError(err)
	s.Equal(model.StatusCompleted, run.Status)

	s.ErrorIs(s.store.UpdateRunStatus("nope", model.StatusFailed), ErrRunNotFound)
}

func (s *LedgerTestSuite) TestRunErrors() {
	s.Require().NoError(s.store.CreateRun("run-3", model.OperationProcess, "raw.csv", "out.parquet"))
	s.Require().NoError(s.store.SaveRunError("run-3", "ingestion", errors.New("bad date")))
	s.Require().NoError(s.store.SaveRunError("run-3", "ingestion", nil))

	errs, err := s.store.GetRunErrors("run-3")
	s.Require().NoError(err)
	s.Require().Len(errs, 1)
	s.Equal("ingestion", errs[0].Stage)
	s.Equal("bad date", errs[0].Message)
}

func (s *LedgerTestSuite) TestStageProgress() {
	s.Require().NoError(s.store.CreateRun("run-4", model.OperationProcess, "raw.csv", "out.parquet"))

	start := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	stages := []model.StageMetrics{
		{StageName: "ingestion", Status: model.StatusCompleted, StartTime: start, EndTime: start.Add(2 * time.Second), RecordsIn: 0, RecordsOut: 10},
		{StageName: "cleaning", Status: model.StatusCompleted, StartTime: start.Add(2 * time.Second), EndTime: start.Add(3 * time.Second), RecordsIn: 10, RecordsOut: 8},
	}
	for _, st := range stages {
		s.Require().NoError(s.store.SaveStageProgress("run-4", st))
	}

	got, err := s.store.GetStageProgress("run-4")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("ingestion", got[0].StageName)
	s.Equal(10, got[0].RecordsOut)
	s.Equal(2*time.Second, got[0].Duration)
	s.Equal("cleaning", got[1].StageName)
	s.Equal(8, got[1].RecordsOut)
}

func (s *LedgerTestSuite) TestListRuns() {
	s.Require().NoError(s.store.CreateRun("a", model.OperationProcess, "raw.csv", "out.parquet"))
	s.Require().NoError(s.store.CreateRun("b", model.OperationAnalyze, "out.parquet", "report.json"))

	runs, err := s.store.ListRuns()
	s.Require().NoError(err)
	s.Len(runs, 2)
}

func TestLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}
