package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epi-data-pipeline/internal/model"
)

func sampleDataset() model.Dataset {
	ds := model.Dataset{
		rec("2020-03-01", "SP", "3550308", "CityX", 10, 10, 1, 1),
		rec("2020-03-02", "SP", "3550308", "CityX", 10, 20, 1, 2),
		rec("2020-03-02", "RJ", "3304557", "São Gonçalo", 0, 0, 0, 0),
	}
	ds[0].PopulationEstimate = 12252023
	ds[1].PopulationEstimate = 12252023
	ds[2].EpidemiologicalWeek = ""
	return ds
}

func TestDatasetRoundTrip(t *testing.T) {
	ds := sampleDataset()
	path := filepath.Join(t.TempDir(), "nested", "dir", "canonical.parquet")

	result, err := WriteDataset(ds, path)
	require.NoError(t, err)
	assert.Equal(t, model.ExportResult{Type: "parquet", Path: path, RecordCount: 3}, result)

	got, err := ReadDataset(testRegistry(), path)
	require.NoError(t, err)
	assert.Equal(t, ds, got)
}

func TestDatasetRoundTripEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	_, err := WriteDataset(model.Dataset{}, path)
	require.NoError(t, err)

	got, err := ReadDataset(testRegistry(), path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteDatasetIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.parquet"), filepath.Join(dir, "b.parquet")

	_, err := WriteDataset(sampleDataset(), a)
	require.NoError(t, err)
	_, err = WriteDataset(sampleDataset(), b)
	require.NoError(t, err)

	first, err := os.ReadFile(a)
	require.NoError(t, err)
	second, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteDatasetUnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := WriteDataset(sampleDataset(), filepath.Join(blocker, "canonical.parquet"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.Contains(t, err.Error(), StageWrite)
}

func TestReadDatasetErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadDataset(testRegistry(), filepath.Join(dir, "absent.parquet"))
		assert.ErrorIs(t, err, ErrInputNotFound)
	})

	t.Run("not parquet", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.parquet")
		require.NoError(t, os.WriteFile(path, []byte("date,state\n2020-03-01,SP\n"), 0644))
		_, err := ReadDataset(testRegistry(), path)
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("missing column", func(t *testing.T) {
		type partialRow struct {
			Date       int32  `parquet:"date,date"`
			RegionCode string `parquet:"region_code"`
		}
		path := filepath.Join(dir, "partial.parquet")
		require.NoError(t, parquet.WriteFile(path, []partialRow{{Date: 18322, RegionCode: "SP"}}))

		_, err := ReadDataset(testRegistry(), path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFormat)
		assert.Contains(t, err.Error(), "place_id")
	})

	t.Run("wrong column kind", func(t *testing.T) {
		type textDateRow struct {
			Date                string  `parquet:"date"`
			RegionCode          string  `parquet:"region_code"`
			PlaceID             string  `parquet:"place_id"`
			PlaceName           string  `parquet:"place_name"`
			EpidemiologicalWeek string  `parquet:"epidemiological_week"`
			NewConfirmed        int64   `parquet:"new_confirmed"`
			CumulativeConfirmed int64   `parquet:"cumulative_confirmed"`
			NewDeaths           int64   `parquet:"new_deaths"`
			CumulativeDeaths    int64   `parquet:"cumulative_deaths"`
			PopulationEstimate  int64   `parquet:"population_estimate"`
			MortalityRate       float64 `parquet:"mortality_rate"`
		}
		path := filepath.Join(dir, "textdate.parquet")
		require.NoError(t, parquet.WriteFile(path, []textDateRow{{Date: "2020-03-01", RegionCode: "SP", PlaceID: "1"}}))

		_, err := ReadDataset(testRegistry(), path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFormat)
		assert.Contains(t, err.Error(), "column date")
	})
}
