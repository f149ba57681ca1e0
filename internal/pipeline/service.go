// Package pipeline drives raw candidates from any source through
// normalization, identity assignment, dedup, and coordinate resolution,
// and writes the survivors to the store in bounded batches.
package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tanalabo/kumacollect/internal/sighting"
)

// Resolver resolves a place-name triple to coordinates. The boolean is
// false for any failure — not found, transport error, bad response —
// which all leave the record unresolved.
type Resolver interface {
	Resolve(ctx context.Context, prefecture, city, locality string) (lat, lng float64, ok bool)
}

// Batch is one source's worth of raw candidates plus the per-source
// configuration: which fingerprint scheme to use and how to normalize
// dates.
type Batch struct {
	Source     string
	Candidates []sighting.Candidate
	Scheme     sighting.Scheme
	Normalize  sighting.NormalizeOptions
}

// Summary counts what happened to a batch's candidates.
type Summary struct {
	Source     string `json:"source,omitempty"`
	Fetched    int    `json:"fetched"`
	Invalid    int    `json:"invalid"`
	Duplicates int    `json:"duplicates"`
	Unresolved int    `json:"unresolved"`
	Accepted   int    `json:"accepted"`
	Persisted  int    `json:"persisted"`
}

// Add folds another summary's counts in, for the cross-source total.
func (s *Summary) Add(other Summary) {
	s.Fetched += other.Fetched
	s.Invalid += other.Invalid
	s.Duplicates += other.Duplicates
	s.Unresolved += other.Unresolved
	s.Accepted += other.Accepted
	s.Persisted += other.Persisted
}

// Service is the ingestion orchestrator. One Service spans a whole
// execution: its gate carries known identities across sources so a
// report already accepted from one source is a duplicate in the next.
type Service struct {
	gate     *sighting.Gate
	resolver Resolver
	logger   zerolog.Logger
}

func NewService(gate *sighting.Gate, resolver Resolver, logger zerolog.Logger) *Service {
	return &Service{
		gate:     gate,
		resolver: resolver,
		logger:   logger,
	}
}

// Ingest runs one source's candidates through the record state machine
// and returns the accepted records in source order. Rejections are
// terminal per record and never abort the batch.
func (s *Service) Ingest(ctx context.Context, batch Batch) (Summary, []sighting.Record) {
	summary := Summary{Source: batch.Source, Fetched: len(batch.Candidates)}
	accepted := make([]sighting.Record, 0, len(batch.Candidates))

	for _, candidate := range batch.Candidates {
		record, ok := sighting.Normalize(candidate, batch.Normalize)
		if !ok {
			summary.Invalid++
			s.logger.Debug().
				Str("source", batch.Source).
				Str("prefecture", candidate.Prefecture).
				Msg("candidate rejected by validation")
			continue
		}

		record.ID = sighting.Fingerprint(record, batch.Scheme)
		if !s.gate.IsNew(record.ID) {
			summary.Duplicates++
			continue
		}

		if !record.HasCoords() {
			lat, lng, resolved := s.resolver.Resolve(ctx, record.Prefecture, record.City, record.Locality)
			if !resolved {
				summary.Unresolved++
				s.logger.Debug().
					Str("source", batch.Source).
					Str("prefecture", record.Prefecture).
					Str("city", record.City).
					Msg("candidate coordinates unresolved")
				continue
			}
			record = record.WithCoords(lat, lng)
		}

		accepted = append(accepted, record)
		summary.Accepted++
		s.logger.Info().
			Str("source", batch.Source).
			Str("id", record.ID).
			Str("prefecture", record.Prefecture).
			Str("city", record.City).
			Str("date", record.Date).
			Msg("sighting accepted")
	}

	s.logger.Info().
		Str("source", batch.Source).
		Int("fetched", summary.Fetched).
		Int("invalid", summary.Invalid).
		Int("duplicates", summary.Duplicates).
		Int("unresolved", summary.Unresolved).
		Int("accepted", summary.Accepted).
		Msg("source batch processed")
	return summary, accepted
}
