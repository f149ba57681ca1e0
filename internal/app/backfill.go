package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tanalabo/kumacollect/internal/cli"
	"github.com/tanalabo/kumacollect/internal/config"
	"github.com/tanalabo/kumacollect/internal/db"
	"github.com/tanalabo/kumacollect/internal/geocode"
	"github.com/tanalabo/kumacollect/internal/globaltime"
	"github.com/tanalabo/kumacollect/internal/logging"
	"github.com/tanalabo/kumacollect/internal/pipeline"
	"github.com/tanalabo/kumacollect/internal/sighting"
)

func runBackfill(args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	year := fs.Int("year", 0, "Year to backfill (required)")
	fromMonth := fs.Int("from-month", 1, "First month to backfill (1-12)")
	toMonth := fs.Int("to-month", 12, "Last month to backfill (1-12)")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "backfill does not accept positional arguments")
		return 2
	}

	now := globaltime.Now()
	if *year < 2000 || *year > now.Year() {
		fmt.Fprintf(os.Stderr, "--year must be between 2000 and %d\n", now.Year())
		return 2
	}
	if *fromMonth < 1 || *fromMonth > 12 || *toMonth < 1 || *toMonth > 12 || *fromMonth > *toMonth {
		fmt.Fprintln(os.Stderr, "--from-month and --to-month must satisfy 1 <= from <= to <= 12")
		return 2
	}

	// Future months of the current year have no coverage yet.
	last := *toMonth
	if *year == now.Year() && last > int(now.Month()) {
		last = int(now.Month())
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("backfill failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	known, err := pool.ListKnownIdentities(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("loading known identities failed")
		fmt.Fprintf(os.Stderr, "Failed to load known identities: %v\n", err)
		return 1
	}

	// One gate spans all months so re-reported incidents collapse
	// across month boundaries within the same run.
	gate := sighting.NewGate(known)
	resolver := geocode.NewClient(geocode.Options{Endpoint: cfg.GeocoderURL})
	svc := pipeline.NewService(gate, resolver, logger)
	writer := pipeline.NewWriter(pool, cfg.InsertBatchSize, logger)

	logger.Info().
		Int("year", *year).
		Int("from_month", *fromMonth).
		Int("to_month", last).
		Int("known_identities", gate.Size()).
		Msg("backfill run started")

	var total pipeline.Summary
	monthFailures := 0
	months := 0

	for m := *fromMonth; m <= last; m++ {
		months++
		month := sighting.TargetMonth{Year: *year, Month: time.Month(m)}

		candidates, err := newsCandidates(ctx, cfg, logger, month, cfg.BackfillFetchLimit)
		if err != nil {
			monthFailures++
			logger.Error().Err(err).Str("month", month.String()).Msg("backfill month fetch failed")
			fmt.Fprintf(os.Stderr, "Failed to fetch %s: %v\n", month.String(), err)
			continue
		}

		summary, accepted := svc.Ingest(ctx, pipeline.Batch{
			Source:     sourceNews,
			Candidates: candidates,
			Scheme:     sighting.SchemeNarrow,
			Normalize: sighting.NormalizeOptions{
				Month:           month,
				FallbackDay:     cfg.FallbackDay,
				SummaryMaxRunes: cfg.SummaryMaxRunes,
			},
		})
		summary.Persisted = writer.Write(ctx, accepted)
		total.Add(summary)

		fmt.Printf("%s: fetched=%d invalid=%d duplicates=%d unresolved=%d accepted=%d persisted=%d\n",
			month.String(), summary.Fetched, summary.Invalid, summary.Duplicates,
			summary.Unresolved, summary.Accepted, summary.Persisted)
	}

	fmt.Printf("total: fetched=%d invalid=%d duplicates=%d unresolved=%d accepted=%d persisted=%d\n",
		total.Fetched, total.Invalid, total.Duplicates,
		total.Unresolved, total.Accepted, total.Persisted)

	if months > 0 && monthFailures == months {
		return 1
	}
	return 0
}
