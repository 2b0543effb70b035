package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/internal/schema"
	"epi-data-pipeline/pkg/utils"
)

// Version is written into the parquet footer
const Version = "1.0.0"

const secondsPerDay = 24 * 60 * 60

// canonicalRow is the on-disk layout of a Record. Column names match the
// canonical columns of the schema registry.
type canonicalRow struct {
	Date                int32   `parquet:"date,date"`
	RegionCode          string  `parquet:"region_code,dict"`
	PlaceID             string  `parquet:"place_id,dict"`
	PlaceName           string  `parquet:"place_name,dict"`
	EpidemiologicalWeek string  `parquet:"epidemiological_week,dict"`
	NewConfirmed        int64   `parquet:"new_confirmed"`
	CumulativeConfirmed int64   `parquet:"cumulative_confirmed"`
	NewDeaths           int64   `parquet:"new_deaths"`
	CumulativeDeaths    int64   `parquet:"cumulative_deaths"`
	PopulationEstimate  int64   `parquet:"population_estimate"`
	MortalityRate       float64 `parquet:"mortality_rate"`
}

// physicalKind is the parquet kind each semantic type is stored as
var physicalKind = map[schema.Type]parquet.Kind{
	schema.TypeDate:        parquet.Int32,
	schema.TypeCategorical: parquet.ByteArray,
	schema.TypeString:      parquet.ByteArray,
	schema.TypeInteger:     parquet.Int64,
	schema.TypePopulation:  parquet.Int64,
	schema.TypeRatio:       parquet.Double,
}

func toRow(r model.Record) canonicalRow {
	return canonicalRow{
		Date:                int32(r.Date.Unix() / secondsPerDay),
		RegionCode:          r.RegionCode,
		PlaceID:             r.PlaceID,
		PlaceName:           r.PlaceName,
		EpidemiologicalWeek: r.EpidemiologicalWeek,
		NewConfirmed:        r.NewConfirmed,
		CumulativeConfirmed: r.CumulativeConfirmed,
		NewDeaths:           r.NewDeaths,
		CumulativeDeaths:    r.CumulativeDeaths,
		PopulationEstimate:  r.PopulationEstimate,
		MortalityRate:       r.MortalityRate,
	}
}

func fromRow(r canonicalRow) model.Record {
	return model.Record{
		Date:                time.Unix(int64(r.Date)*secondsPerDay, 0).UTC(),
		RegionCode:          r.RegionCode,
		PlaceID:             r.PlaceID,
		PlaceName:           r.PlaceName,
		EpidemiologicalWeek: r.EpidemiologicalWeek,
		NewConfirmed:        r.NewConfirmed,
		CumulativeConfirmed: r.CumulativeConfirmed,
		NewDeaths:           r.NewDeaths,
		CumulativeDeaths:    r.CumulativeDeaths,
		PopulationEstimate:  r.PopulationEstimate,
		MortalityRate:       r.MortalityRate,
	}
}

// WriteDataset persists the canonical dataset as zstd-compressed parquet,
// creating parent directories as needed.
func WriteDataset(ds model.Dataset, path string) (model.ExportResult, error) {
	rows := make([]canonicalRow, len(ds))
	for i, r := range ds {
		rows[i] = toRow(r)
	}

	err := utils.WriteFileAtomic(path, func(w *bufio.Writer) error {
		pw := parquet.NewGenericWriter[canonicalRow](w,
			parquet.Compression(&parquet.Zstd),
			parquet.CreatedBy("epi-data-pipeline", Version, ""),
		)
		if _, err := pw.Write(rows); err != nil {
			return newError(KindSerialization, StageWrite, path, err)
		}
		if err := pw.Close(); err != nil {
			return newError(KindSerialization, StageWrite, path, err)
		}
		return nil
	})
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return model.ExportResult{}, err
		}
		return model.ExportResult{}, newError(KindIO, StageWrite, path, err)
	}

	return model.ExportResult{Type: "parquet", Path: path, RecordCount: len(ds)}, nil
}

// ReadDataset reloads a canonical dataset written by WriteDataset. The file
// schema is checked against the canonical columns of reg.
func ReadDataset(reg *schema.Registry, path string) (model.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(KindInputNotFound, StageRead, path, err)
		}
		return nil, newError(KindIO, StageRead, path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, newError(KindIO, StageRead, path, err)
	}

	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return nil, newError(KindFormat, StageRead, path, err)
	}
	if err := checkSchema(reg, pf.Schema()); err != nil {
		return nil, newError(KindFormat, StageRead, path, err)
	}

	rows, err := parquet.Read[canonicalRow](file, stat.Size())
	if err != nil {
		return nil, newError(KindFormat, StageRead, path, err)
	}

	ds := make(model.Dataset, len(rows))
	for i, r := range rows {
		ds[i] = fromRow(r)
	}
	return ds, nil
}

func checkSchema(reg *schema.Registry, s *parquet.Schema) error {
	for _, col := range reg.Canonical() {
		leaf, ok := s.Lookup(col.Name)
		if !ok {
			return fmt.Errorf("missing column %s", col.Name)
		}
		want, known := physicalKind[col.Type]
		if !known {
			continue
		}
		if got := leaf.Node.Type().Kind(); got != want {
			return fmt.Errorf("column %s stored as %s, want %s", col.Name, got, want)
		}
	}
	return nil
}
