package pipeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/pkg/utils"
)

// WriteReport writes the aggregate report as indented UTF-8 JSON.
func WriteReport(report *model.AggregateReport, path string) (model.ExportResult, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return model.ExportResult{}, newError(KindSerialization, StageExport, path, fmt.Errorf("failed to encode JSON: %w", err))
	}
	data = append(data, '\n')

	err = utils.WriteFileAtomic(path, func(w *bufio.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return model.ExportResult{}, newError(KindIO, StageExport, path, err)
	}
	return model.ExportResult{Type: "json", Path: path, RecordCount: 1}, nil
}

// ReadReport loads a report snapshot written by WriteReport.
func ReadReport(path string) (*model.AggregateReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(KindInputNotFound, StageRead, path, err)
		}
		return nil, newError(KindIO, StageRead, path, err)
	}
	var report model.AggregateReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, newError(KindFormat, StageRead, path, err)
	}
	return &report, nil
}

// Workbook sheets of the spreadsheet report
const (
	SheetSummary      = "Summary"
	SheetTopConfirmed = "TopConfirmed"
	SheetTopDeaths    = "TopDeaths"
	SheetRegionWeekly = "RegionWeekly"
	SheetDaily        = "Daily"
)

// WriteReportWorkbook exports the report, the weekly region figures and the
// daily series as an xlsx workbook for spreadsheet consumers.
func WriteReportWorkbook(report *model.AggregateReport, weekly []model.RegionWeek, daily []model.DailyPoint, path string) (result model.ExportResult, err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = newError(KindIO, StageExport, path, cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return result, newError(KindSerialization, StageExport, path, err)
	}

	summary := [][]interface{}{
		{"metric", "value"},
		{"period_start", report.Period.Start},
		{"period_end", report.Period.End},
		{"regions", report.Coverage.Regions},
		{"places", report.Coverage.Places},
		{"total_confirmed", report.Totals.Confirmed},
		{"total_deaths", report.Totals.Deaths},
		{"overall_mortality", report.Metrics.OverallMortality},
		{"rolling_mean_confirmed", report.Metrics.RollingMeanConfirmed},
		{"rolling_mean_deaths", report.Metrics.RollingMeanDeaths},
	}
	if err := writeSheet(f, SheetSummary, summary); err != nil {
		return result, newError(KindSerialization, StageExport, path, err)
	}

	rows := 0
	for _, ranking := range []struct {
		sheet   string
		entries []model.RankEntry
	}{
		{SheetTopConfirmed, report.TopConfirmed},
		{SheetTopDeaths, report.TopDeaths},
	} {
		table := [][]interface{}{{"rank", "region", "place", "value"}}
		for i, e := range ranking.entries {
			table = append(table, []interface{}{i + 1, e.Region, e.Place, e.Value})
		}
		if err := newSheet(f, ranking.sheet, table); err != nil {
			return result, newError(KindSerialization, StageExport, path, err)
		}
		rows += len(ranking.entries)
	}

	weeklyTable := [][]interface{}{{"region", "epidemiological_week", "cumulative_deaths", "population", "deaths_per_100k"}}
	for _, w := range weekly {
		weeklyTable = append(weeklyTable, []interface{}{w.Region, w.EpidemiologicalWeek, w.CumulativeDeaths, w.Population, w.DeathsPer100k})
	}
	if err := newSheet(f, SheetRegionWeekly, weeklyTable); err != nil {
		return result, newError(KindSerialization, StageExport, path, err)
	}

	dailyTable := [][]interface{}{{"date", "new_confirmed", "new_deaths", "rolling_mean_confirmed", "rolling_mean_deaths"}}
	for _, d := range daily {
		dailyTable = append(dailyTable, []interface{}{d.Date.Format(dateLayout), d.NewConfirmed, d.NewDeaths, d.RollingMeanConfirmed, d.RollingMeanDeaths})
	}
	if err := newSheet(f, SheetDaily, dailyTable); err != nil {
		return result, newError(KindSerialization, StageExport, path, err)
	}
	rows += len(weekly) + len(daily)

	err = utils.WriteFileAtomic(path, func(w *bufio.Writer) error {
		return f.Write(w)
	})
	if err != nil {
		return result, newError(KindIO, StageExport, path, err)
	}
	return model.ExportResult{Type: "xlsx", Path: path, RecordCount: rows}, nil
}

func newSheet(f *excelize.File, name string, rows [][]interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	return writeSheet(f, name, rows)
}

func writeSheet(f *excelize.File, name string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", name, i+1, err)
		}
	}
	return nil
}
