package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/internal/schema"
	"epi-data-pipeline/pkg/utils"
)

// defaultWorkers is used when a stage is given a non-positive worker count
const defaultWorkers = 4

// minChunk keeps small inputs on a single worker
const minChunk = 1024

// parallelMap applies fn to every element of in on up to workers goroutines.
// Each worker owns a contiguous chunk, so out[i] always corresponds to in[i].
func parallelMap[In, Out any](ctx context.Context, in []In, workers int, fn func(In) Out) ([]Out, error) {
	out := make([]Out, len(in))
	if len(in) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = defaultWorkers
	}

	chunk := (len(in) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(in); start += chunk {
		lo, hi := start, start+chunk
		if hi > len(in) {
			hi = len(in)
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%minChunk == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				out[i] = fn(in[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ------------------- Cleaner / Filter -------------------

// CleanResult is the output of the cleaning stage
type CleanResult struct {
	Records []model.CityRecord
	Skipped int
}

// Clean keeps only city rows and imputes missing counters. City rows without
// a place identifier or with a missing or negative cumulative count fail with
// a parse error, or are skipped when skipInvalid is set. The input is never
// modified.
func Clean(ctx context.Context, in []model.RawRecord, workers int, skipInvalid bool, log logrus.FieldLogger) (*CleanResult, error) {
	result := &CleanResult{}
	var cities []model.RawRecord
	for _, rec := range in {
		if rec.PlaceType != model.PlaceTypeCity {
			continue
		}
		if err := checkCityRecord(rec); err != nil {
			if !skipInvalid {
				return nil, err
			}
			result.Skipped++
			log.WithError(err).Warn("Skipping invalid city row")
			continue
		}
		cities = append(cities, rec)
	}

	out, err := parallelMap(ctx, cities, workers, cleanRecord)
	if err != nil {
		return nil, err
	}
	result.Records = out
	return result, nil
}

// checkCityRecord enforces the fields a canonical record cannot do without.
func checkCityRecord(rec model.RawRecord) error {
	if rec.PlaceID == "" {
		return cityError(rec.Row, schema.ColPlaceID, errMissingValue)
	}
	for _, c := range []struct {
		column string
		value  *int64
	}{
		{schema.ColCumulativeConfirmed, rec.CumulativeConfirmed},
		{schema.ColCumulativeDeaths, rec.CumulativeDeaths},
	} {
		if c.value == nil {
			return cityError(rec.Row, c.column, errMissingValue)
		}
		if *c.value < 0 {
			return cityError(rec.Row, c.column, fmt.Errorf("negative cumulative count %d", *c.value))
		}
	}
	return nil
}

func cityError(rowNum int, column string, err error) *Error {
	return newError(KindParse, StageCleaning, fmt.Sprintf("row %d, column %s", rowNum, column), err)
}

func cleanRecord(rec model.RawRecord) model.CityRecord {
	return model.CityRecord{
		Date:                rec.Date,
		RegionCode:          rec.RegionCode,
		PlaceID:             rec.PlaceID,
		PlaceName:           rec.PlaceName,
		PlaceType:           rec.PlaceType,
		EpidemiologicalWeek: rec.EpidemiologicalWeek,
		PopulationEstimate:  imputePopulation(rec.PopulationEstimate),
		NewConfirmed:        imputeCount(rec.NewConfirmed),
		CumulativeConfirmed: *rec.CumulativeConfirmed,
		NewDeaths:           imputeCount(rec.NewDeaths),
		CumulativeDeaths:    *rec.CumulativeDeaths,
	}
}

// imputeCount replaces a missing count with 0 and clamps upstream negative
// corrections to 0.
func imputeCount(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func imputePopulation(v *float64) int64 {
	if v == nil || *v < 0 {
		return model.UnknownPopulation
	}
	return int64(math.Round(*v))
}

// ------------------- Derived-Field Calculator -------------------

// Derive computes the mortality rate of every record and projects the
// canonical column set.
func Derive(ctx context.Context, in []model.CityRecord, workers int) (model.Dataset, error) {
	out, err := parallelMap(ctx, in, workers, deriveRecord)
	if err != nil {
		return nil, err
	}
	return model.Dataset(out), nil
}

func deriveRecord(rec model.CityRecord) model.Record {
	return model.Record{
		Date:                rec.Date,
		RegionCode:          rec.RegionCode,
		PlaceID:             rec.PlaceID,
		PlaceName:           rec.PlaceName,
		EpidemiologicalWeek: rec.EpidemiologicalWeek,
		NewConfirmed:        rec.NewConfirmed,
		CumulativeConfirmed: rec.CumulativeConfirmed,
		NewDeaths:           rec.NewDeaths,
		CumulativeDeaths:    rec.CumulativeDeaths,
		PopulationEstimate:  rec.PopulationEstimate,
		MortalityRate:       MortalityRate(rec.CumulativeDeaths, rec.CumulativeConfirmed),
	}
}

// MortalityRate is deaths/confirmed rounded to 4 decimals, or 0 when there
// are no confirmed cases. The result is clamped to [0, 1]: upstream reports
// occasionally list more deaths than confirmed cases.
func MortalityRate(deaths, confirmed int64) float64 {
	if confirmed <= 0 || deaths <= 0 {
		return 0
	}
	if deaths >= confirmed {
		return 1
	}
	return utils.RoundRatio64(deaths, confirmed, 4)
}
