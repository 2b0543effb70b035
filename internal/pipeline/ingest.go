package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/internal/schema"
)

// IngestResult is the typed, pre-filter output of the ingestion stage
type IngestResult struct {
	Records []model.RawRecord
	Skipped int
}

// Ingest reads the delimited raw file at path and materializes typed rows
// per the registry.
func Ingest(ctx context.Context, reg *schema.Registry, path string, skipInvalid bool, log logrus.FieldLogger) (*IngestResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(KindInputNotFound, StageIngestion, path, err)
		}
		return nil, newError(KindIO, StageIngestion, path, err)
	}
	defer file.Close()

	return IngestReader(ctx, reg, file, path, skipInvalid, log)
}

// IngestReader is Ingest over an already opened stream. source names the
// stream in logs and errors.
func IngestReader(ctx context.Context, reg *schema.Registry, r io.Reader, source string, skipInvalid bool, log logrus.FieldLogger) (*IngestResult, error) {
	log = log.WithField("source", source)
	log.Info("📄 Starting CSV ingestion")

	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.ReuseRecord = true

	headers, err := csvReader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, newError(KindSchemaValidation, StageIngestion, source, fmt.Errorf("empty input, no header row"))
		}
		return nil, newError(KindIO, StageIngestion, source, fmt.Errorf("failed to read CSV header: %w", err))
	}

	index, err := headerIndex(reg, headers)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{}
	rowNum := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		rowNum++

		var rowErr error
		var rec model.GenericRecord
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, newError(KindIO, StageIngestion, source, fmt.Errorf("CSV read error: %w", err))
			}
			rowErr = newError(KindParse, StageIngestion, fmt.Sprintf("row %d", rowNum), err)
		} else {
			rec, rowErr = coerceRow(reg, index, row, rowNum)
		}

		if rowErr != nil {
			if !skipInvalid {
				return nil, rowErr
			}
			result.Skipped++
			log.WithError(rowErr).Warn("Skipping invalid row")
			continue
		}

		result.Records = append(result.Records, toRawRecord(rec, rowNum))
		if len(result.Records)%100000 == 0 {
			log.Debugf("📄 CSV: Processed %d records", len(result.Records))
		}
	}

	log.WithFields(logrus.Fields{
		"records": len(result.Records),
		"skipped": result.Skipped,
	}).Info("📄 CSV ingestion done")
	return result, nil
}
