package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/internal/schema"
	"epi-data-pipeline/pkg/utils"
)

const dateLayout = "2006-01-02"

var errMissingValue = errors.New("missing value in non-nullable column")

// headerIndex maps every sourced registry column to its position in the CSV
// header. Absent optional columns map to -1.
func headerIndex(reg *schema.Registry, headers []string) (map[string]int, error) {
	positions := make(map[string]int, len(headers))
	for i, h := range headers {
		// Clean header names: trim whitespace and remove ALL quotes
		clean := strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
		clean = strings.TrimPrefix(clean, "\ufeff")
		if _, dup := positions[clean]; !dup {
			positions[clean] = i
		}
	}

	index := make(map[string]int)
	var missing []string
	for _, col := range reg.Sourced() {
		pos, ok := positions[col.Source]
		if !ok {
			if col.Required {
				missing = append(missing, col.Source)
			}
			pos = -1
		}
		index[col.Name] = pos
	}
	if len(missing) > 0 {
		return nil, newError(KindSchemaValidation, StageIngestion,
			"column "+strings.Join(missing, ", "), fmt.Errorf("required column absent from source"))
	}
	return index, nil
}

// coerceRow converts one CSV row into typed values per the registry.
func coerceRow(reg *schema.Registry, index map[string]int, row []string, rowNum int) (model.GenericRecord, error) {
	rec := make(model.GenericRecord, len(index))
	for _, col := range reg.Sourced() {
		pos := index[col.Name]
		raw := ""
		if pos >= 0 && pos < len(row) {
			raw = row[pos]
		}

		if reg.IsMissing(raw) {
			if !col.Nullable {
				return nil, rowError(rowNum, col.Name, errMissingValue)
			}
			rec[col.Name] = nil
			continue
		}

		value, err := coerceValue(col.Type, raw)
		if err != nil {
			return nil, rowError(rowNum, col.Name, err)
		}
		rec[col.Name] = value
	}
	return rec, nil
}

func coerceValue(t schema.Type, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case schema.TypeDate:
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", raw)
		}
		return d, nil
	case schema.TypeInteger:
		return utils.ParseInt(raw)
	case schema.TypePopulation, schema.TypeRatio:
		return utils.ParseFloat(raw)
	default:
		return raw, nil
	}
}

func rowError(rowNum int, column string, err error) *Error {
	return newError(KindParse, StageIngestion, fmt.Sprintf("row %d, column %s", rowNum, column), err)
}

// toRawRecord moves typed values into a RawRecord.
func toRawRecord(rec model.GenericRecord, rowNum int) model.RawRecord {
	raw := model.RawRecord{Row: rowNum}
	if d, ok := rec[schema.ColDate].(time.Time); ok {
		raw.Date = d
	}
	raw.RegionCode = stringValue(rec[schema.ColRegionCode])
	raw.PlaceID = stringValue(rec[schema.ColPlaceID])
	raw.PlaceName = stringValue(rec[schema.ColPlaceName])
	raw.PlaceType = stringValue(rec[schema.ColPlaceType])
	raw.EpidemiologicalWeek = stringValue(rec[schema.ColEpidemiologicalWeek])
	if f, ok := rec[schema.ColPopulationEstimate].(float64); ok {
		raw.PopulationEstimate = &f
	}
	raw.NewConfirmed = intPointer(rec[schema.ColNewConfirmed])
	raw.NewDeaths = intPointer(rec[schema.ColNewDeaths])
	raw.CumulativeConfirmed = intPointer(rec[schema.ColCumulativeConfirmed])
	raw.CumulativeDeaths = intPointer(rec[schema.ColCumulativeDeaths])
	return raw
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func intPointer(v interface{}) *int64 {
	i, ok := v.(int64)
	if !ok {
		return nil
	}
	return &i
}
