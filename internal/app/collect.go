package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanalabo/kumacollect/internal/cli"
	"github.com/tanalabo/kumacollect/internal/config"
	"github.com/tanalabo/kumacollect/internal/db"
	"github.com/tanalabo/kumacollect/internal/extract"
	"github.com/tanalabo/kumacollect/internal/geocode"
	"github.com/tanalabo/kumacollect/internal/globaltime"
	"github.com/tanalabo/kumacollect/internal/logging"
	"github.com/tanalabo/kumacollect/internal/notify"
	"github.com/tanalabo/kumacollect/internal/pipeline"
	"github.com/tanalabo/kumacollect/internal/reader"
	"github.com/tanalabo/kumacollect/internal/sighting"
	"github.com/tanalabo/kumacollect/internal/source"
)

const (
	sourceNews     = "news"
	sourceKumamap  = "kumamap"
	sourceOfficial = "official"
)

func runCollect(args []string) int {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	sourcesFlag := fs.String("sources", "news,kumamap,official", "Comma-separated sources: news, kumamap, official")
	monthFlag := fs.String("month", "", "Target month as YYYY-MM (default: current month)")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	notifyFlag := fs.Bool("notify", true, "Send a Slack notification for newly stored sightings")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "collect does not accept positional arguments")
		return 2
	}

	selected, err := parseSources(*sourcesFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --sources: %v\n", err)
		return 2
	}

	month := sighting.MonthOf(globaltime.Now())
	if strings.TrimSpace(*monthFlag) != "" {
		month, err = parseMonth(*monthFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --month: %v\n", err)
			return 2
		}
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
		logger.Error().Err(err).Msg("collect failed to connect to database")
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

	gate := sighting.NewGate(known)
	resolver := geocode.NewClient(geocode.Options{Endpoint: cfg.GeocoderURL})
	svc := pipeline.NewService(gate, resolver, logger)
	writer := pipeline.NewWriter(pool, cfg.InsertBatchSize, logger)

	logger.Info().
		Str("month", month.String()).
		Strs("sources", selected).
		Int("known_identities", gate.Size()).
		Msg("collection run started")

	var total pipeline.Summary
	var highlights []sighting.Record
	fetchFailures := 0

	for _, name := range selected {
		batch, err := fetchBatch(ctx, cfg, logger, name, month)
		if err != nil {
			fetchFailures++
			logger.Error().Err(err).Str("source", name).Msg("source fetch failed")
			fmt.Fprintf(os.Stderr, "Failed to fetch %s: %v\n", name, err)
			continue
		}

		summary, accepted := svc.Ingest(ctx, batch)
		summary.Persisted = writer.Write(ctx, accepted)
		total.Add(summary)
		highlights = append(highlights, accepted...)

		fmt.Printf("%s: fetched=%d invalid=%d duplicates=%d unresolved=%d accepted=%d persisted=%d\n",
			name, summary.Fetched, summary.Invalid, summary.Duplicates,
			summary.Unresolved, summary.Accepted, summary.Persisted)
	}

	if *notifyFlag {
		slack := notify.NewSlack(notify.SlackOptions{
			WebhookURL: cfg.SlackWebhookURL,
			MapURL:     cfg.MapURL,
			Logger:     logger,
		})
		slack.NewSightings(ctx, total.Persisted, highlights)
	}

	fmt.Printf("total: fetched=%d invalid=%d duplicates=%d unresolved=%d accepted=%d persisted=%d\n",
		total.Fetched, total.Invalid, total.Duplicates,
		total.Unresolved, total.Accepted, total.Persisted)

	if fetchFailures == len(selected) {
		return 1
	}
	return 0
}

// fetchBatch retrieves one source's raw candidates together with its
// fingerprint scheme and date policy.
func fetchBatch(ctx context.Context, cfg *config.Config, logger zerolog.Logger, name string, month sighting.TargetMonth) (pipeline.Batch, error) {
	switch name {
	case sourceNews:
		candidates, err := newsCandidates(ctx, cfg, logger, month, cfg.NewsFetchLimit)
		if err != nil {
			return pipeline.Batch{}, err
		}
		return pipeline.Batch{
			Source:     sourceNews,
			Candidates: candidates,
			Scheme:     sighting.SchemeNarrow,
			Normalize: sighting.NormalizeOptions{
				Month:           month,
				FallbackDay:     cfg.FallbackDay,
				SummaryMaxRunes: cfg.SummaryMaxRunes,
			},
		}, nil

	case sourceKumamap:
		km := source.NewKumamap(source.KumamapOptions{
			APIURL: cfg.KumamapAPIURL,
			Logger: logger,
		})
		candidates, err := km.Fetch(ctx)
		if err != nil {
			return pipeline.Batch{}, err
		}
		return pipeline.Batch{
			Source:     sourceKumamap,
			Candidates: candidates,
			Scheme:     sighting.SchemeWide,
			Normalize: sighting.NormalizeOptions{
				Month:           month,
				FallbackDay:     cfg.FallbackDay,
				SummaryMaxRunes: cfg.SummaryMaxRunes,
				TrustSourceDate: true,
			},
		}, nil

	case sourceOfficial:
		official := source.NewOfficial(source.OfficialOptions{
			CSVURL:     cfg.AkitaCSVURL,
			CutoffYear: cfg.OfficialCutoffYear,
			Logger:     logger,
		})
		candidates, err := official.Fetch(ctx)
		if err != nil {
			return pipeline.Batch{}, err
		}
		return pipeline.Batch{
			Source:     sourceOfficial,
			Candidates: candidates,
			Scheme:     sighting.SchemeWide,
			Normalize: sighting.NormalizeOptions{
				Month:           month,
				FallbackDay:     cfg.FallbackDay,
				SummaryMaxRunes: cfg.SummaryMaxRunes,
				TrustSourceDate: true,
			},
		}, nil

	default:
		return pipeline.Batch{}, fmt.Errorf("unknown source %q", name)
	}
}

// newsCandidates searches the news feed for the target month and runs
// every headline through article preview and structured extraction. A
// failed preview degrades to headline-only extraction; a failed
// extraction skips the item.
func newsCandidates(ctx context.Context, cfg *config.Config, logger zerolog.Logger, month sighting.TargetMonth, limit int) ([]sighting.Candidate, error) {
	feed := source.NewNewsFeed(source.NewsFeedOptions{BaseURL: cfg.NewsFeedURL})
	items, err := feed.SearchMonth(ctx, month.Year, month.Month, limit)
	if err != nil {
		return nil, fmt.Errorf("search news feed: %w", err)
	}

	extractor := extract.NewClient(extract.Options{
		Endpoint: cfg.ExtractorEndpoint,
		Model:    cfg.ExtractorModel,
		APIKey:   cfg.ExtractorAPIKey,
	})

	candidates := make([]sighting.Candidate, 0, len(items))
	for _, item := range items {
		body, err := reader.ArticleText(ctx, item.Link, reader.FetchOptions{})
		if err != nil {
			logger.Debug().
				Err(err).
				Str("url", item.Link).
				Msg("article preview unavailable, extracting from headline only")
			body = ""
		}

		result, err := extractor.Extract(ctx, item.Title, body)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("title", item.Title).
				Msg("extraction failed, skipping item")
			continue
		}

		candidates = append(candidates, sighting.Candidate{
			Prefecture: result.Prefecture,
			City:       result.City,
			Locality:   result.Locality,
			Summary:    result.Summary,
			Source:     item.Link,
			Date:       result.Date,
			Relevant:   result.IsSighting,
		})
	}
	return candidates, nil
}

func parseSources(raw string) ([]string, error) {
	var selected []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		switch name {
		case sourceNews, sourceKumamap, sourceOfficial:
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, name)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	return selected, nil
}

func parseMonth(raw string) (sighting.TargetMonth, error) {
	parsed, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return sighting.TargetMonth{}, fmt.Errorf("must be YYYY-MM")
	}
	return sighting.MonthOf(parsed), nil
}
