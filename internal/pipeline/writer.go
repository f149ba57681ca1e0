package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tanalabo/kumacollect/internal/db"
	"github.com/tanalabo/kumacollect/internal/sighting"
)

// DefaultBatchSize keeps each insert under the store API's payload
// limit.
const DefaultBatchSize = 100

// Store is the write side of the persistent record store.
type Store interface {
	InsertSightings(ctx context.Context, rows []db.Sighting) (int, error)
}

// Writer commits accepted records in fixed-size batches. Each batch is
// independent: a failed batch is logged and skipped, and batches
// already committed stay committed.
type Writer struct {
	store     Store
	batchSize int
	logger    zerolog.Logger
}

func NewWriter(store Store, batchSize int, logger zerolog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Write persists the records and returns the count the store confirmed.
// The caller compares it against len(records); a shortfall is logged
// here as well but never fails the run.
func (w *Writer) Write(ctx context.Context, records []sighting.Record) int {
	if len(records) == 0 {
		return 0
	}

	confirmed := 0
	for start := 0; start < len(records); start += w.batchSize {
		end := min(start+w.batchSize, len(records))
		rows := toRows(records[start:end])

		written, err := w.store.InsertSightings(ctx, rows)
		if err != nil {
			w.logger.Error().
				Err(err).
				Int("batch_start", start).
				Int("batch_size", len(rows)).
				Msg("batch insert failed")
			continue
		}
		if written != len(rows) {
			w.logger.Warn().
				Int("submitted", len(rows)).
				Int("confirmed", written).
				Msg("store confirmed fewer rows than submitted")
		}
		confirmed += written
	}

	if confirmed != len(records) {
		w.logger.Warn().
			Int("accepted", len(records)).
			Int("persisted", confirmed).
			Msg("persistence discrepancy")
	}
	return confirmed
}

func toRows(records []sighting.Record) []db.Sighting {
	rows := make([]db.Sighting, 0, len(records))
	for _, r := range records {
		rows = append(rows, db.Sighting{
			ID:         r.ID,
			Date:       r.Date,
			Prefecture: r.Prefecture,
			City:       r.City,
			Location:   r.Locality,
			Lat:        r.Lat,
			Lng:        r.Lng,
			Source:     r.Source,
			Summary:    r.Summary,
		})
	}
	return rows
}
