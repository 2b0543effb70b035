package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epi-data-pipeline/internal/store"
)

const rawCSV = `date,state,city,place_type,city_ibge_code,epidemiological_week,estimated_population_2019,new_confirmed,last_available_confirmed,new_deaths,last_available_deaths
2020-03-01,SP,,state,35,202010,45919049,5,5,0,0
2020-03-01,SP,CityX,city,3550308,202010,12252023,10,10,1,1
2020-03-02,SP,CityX,city,3550308,202010,12252023,10,20,1,2
`

func execute(t *testing.T, args ...string) int {
	t.Helper()
	code, _ := executeOutput(t, args...)
	return code
}

func executeOutput(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	a := &app{}
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	a.close()
	return exitCode(err), out.String()
}

func writeConfig(t *testing.T, dir string) (cfg, dbPath string) {
	t.Helper()
	dbPath = filepath.Join(dir, "runs.db")
	cfg = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("store:\n  db_path: "+dbPath+"\nlogging:\n  level: error\n"), 0644))
	return cfg, dbPath
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(raw, []byte(rawCSV), 0644))

	cfg, _ := writeConfig(t, dir)

	canonical := filepath.Join(dir, "out", "canonical.parquet")
	report := filepath.Join(dir, "out", "report.json")

	assert.Equal(t, exitOK, execute(t, "--config", cfg, "run", raw, canonical, report))
	assert.FileExists(t, canonical)
	assert.FileExists(t, report)
	assert.FileExists(t, filepath.Join(dir, "runs.db"))

	assert.Equal(t, exitOK, execute(t, "--config", cfg, "analyze", canonical, report))
}

func TestRunsCommand(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(raw, []byte(rawCSV), 0644))
	cfg, dbPath := writeConfig(t, dir)

	canonical := filepath.Join(dir, "canonical.parquet")
	require.Equal(t, exitOK, execute(t, "--config", cfg, "process", raw, canonical))
	require.Equal(t, exitPipeline, execute(t, "--config", cfg, "analyze", filepath.Join(dir, "absent.parquet"), filepath.Join(dir, "r.json")))

	code, out := executeOutput(t, "--config", cfg, "runs")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "OPERATION")
	assert.Contains(t, out, "process")
	assert.Contains(t, out, "analyze")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "failed")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	runs, err := st.ListRuns()
	require.NoError(t, err)
	require.NoError(t, st.Close())

	var processID, analyzeID string
	for _, r := range runs {
		switch r.Operation {
		case "process":
			processID = r.ID
		case "analyze":
			analyzeID = r.ID
		}
	}
	require.NotEmpty(t, processID)
	require.NotEmpty(t, analyzeID)

	code, out = executeOutput(t, "--config", cfg, "runs", processID)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, processID)
	assert.Contains(t, out, "ingestion")
	assert.Contains(t, out, "cleaning")
	assert.Contains(t, out, "derivation")
	assert.Contains(t, out, "write")

	code, out = executeOutput(t, "--config", cfg, "runs", analyzeID)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Error in read")
	assert.Contains(t, out, "absent.parquet")

	assert.Equal(t, exitPipeline, execute(t, "--config", cfg, "runs", "no-such-run"))
	assert.Equal(t, exitUsage, execute(t, "--config", cfg, "runs", "a", "b"))
	assert.Equal(t, exitUsage, execute(t, "runs"))
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(raw, []byte(rawCSV), 0644))
	canonical := filepath.Join(dir, "canonical.parquet")
	report := filepath.Join(dir, "report.json")
	require.Equal(t, exitOK, execute(t, "run", raw, canonical, report))

	code, out := executeOutput(t, "report", report)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "2020-03-01 to 2020-03-02")
	assert.Contains(t, out, "1 regions, 1 places")
	assert.Contains(t, out, "0.1000")
	assert.Contains(t, out, "TOP CONFIRMED")
	assert.Contains(t, out, "CityX")

	assert.Equal(t, exitPipeline, execute(t, "report", filepath.Join(dir, "absent.json")))
	assert.Equal(t, exitUsage, execute(t, "report"))
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	badCfg := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badCfg, []byte("analysis:\n  top_n: 0\n"), 0644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"missing arguments", []string{"process", "only-one.csv"}, exitUsage},
		{"unknown flag", []string{"analyze", "--nope", "a", "b"}, exitUsage},
		{"stray argument", []string{"stray"}, exitUsage},
		{"invalid config", []string{"--config", badCfg, "process", "a.csv", "b.parquet"}, exitUsage},
		{"missing input", []string{"process", filepath.Join(dir, "absent.csv"), filepath.Join(dir, "c.parquet")}, exitPipeline},
		{"corrupt dataset", []string{"analyze", badCfg, filepath.Join(dir, "r.json")}, exitPipeline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, execute(t, tt.args...))
		})
	}
}
