package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanalabo/kumacollect/internal/sighting"
)

// fakeResolver resolves from a fixed table keyed by the concatenated
// query fields, mirroring how the real resolver builds its queries.
type fakeResolver struct {
	coords map[string][2]float64
	calls  []string
}

func (f *fakeResolver) Resolve(_ context.Context, prefecture, city, locality string) (float64, float64, bool) {
	primary := prefecture + city + locality
	f.calls = append(f.calls, primary)
	if c, ok := f.coords[primary]; ok {
		return c[0], c[1], true
	}
	if locality != "" {
		if c, ok := f.coords[prefecture+city]; ok {
			return c[0], c[1], true
		}
	}
	return 0, 0, false
}

func newsCandidate(city, summary string) sighting.Candidate {
	return sighting.Candidate{
		Prefecture: "秋田県",
		City:       city,
		Summary:    summary,
		Source:     "https://example.com/news/" + city,
		Relevant:   true,
	}
}

func juneBatch(source string, candidates ...sighting.Candidate) Batch {
	return Batch{
		Source:     source,
		Candidates: candidates,
		Scheme:     sighting.SchemeNarrow,
		Normalize: sighting.NormalizeOptions{
			Month:       sighting.TargetMonth{Year: 2025, Month: time.June},
			FallbackDay: 15,
		},
	}
}

func TestIngestAcceptsAndResolves(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{coords: map[string][2]float64{
		"秋田県秋田市": {39.7186, 140.1024},
	}}
	svc := NewService(sighting.NewGate(nil), resolver, zerolog.Nop())

	summary, accepted := svc.Ingest(context.Background(), juneBatch("news", newsCandidate("秋田市", "目撃")))
	if summary.Accepted != 1 || summary.Fetched != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(accepted) != 1 {
		t.Fatalf("got %d accepted records, want 1", len(accepted))
	}

	rec := accepted[0]
	if rec.ID == "" || len(rec.ID) != sighting.FingerprintLength {
		t.Fatalf("record has no identity: %q", rec.ID)
	}
	if !rec.HasCoords() || rec.Lat != 39.7186 {
		t.Fatalf("record not resolved: %+v", rec)
	}
	if rec.Date != "2025-06-15" {
		t.Fatalf("undated candidate should take the fallback day, got %q", rec.Date)
	}
}

func TestIngestRejectsInvalidBeforeGeocoding(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{coords: map[string][2]float64{}}
	svc := NewService(sighting.NewGate(nil), resolver, zerolog.Nop())

	c := newsCandidate("秋田市", "目撃")
	c.Prefecture = "秋田県・青森県"

	summary, accepted := svc.Ingest(context.Background(), juneBatch("news", c))
	if summary.Invalid != 1 || summary.Accepted != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(accepted) != 0 {
		t.Fatalf("invalid candidate must not be accepted")
	}
	if len(resolver.calls) != 0 {
		t.Fatalf("geocoding must not be attempted for invalid candidates, got %q", resolver.calls)
	}
}

func TestIngestCountsUnresolved(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{coords: map[string][2]float64{}}
	svc := NewService(sighting.NewGate(nil), resolver, zerolog.Nop())

	summary, accepted := svc.Ingest(context.Background(), juneBatch("news", newsCandidate("謎の市", "目撃")))
	if summary.Unresolved != 1 || summary.Accepted != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(accepted) != 0 {
		t.Fatalf("unresolved candidate must not be accepted")
	}
}

func TestIngestSameRunDuplicateCollapses(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{coords: map[string][2]float64{
		"秋田県秋田市": {39.7186, 140.1024},
	}}
	svc := NewService(sighting.NewGate(nil), resolver, zerolog.Nop())

	summary, accepted := svc.Ingest(context.Background(), juneBatch("news",
		newsCandidate("秋田市", "目撃その1"),
		newsCandidate("秋田市", "目撃その2"),
	))
	if summary.Accepted != 1 || summary.Duplicates != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(accepted) != 1 {
		t.Fatalf("got %d accepted records, want 1", len(accepted))
	}
}

func TestIngestCrossSourceDedup(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{coords: map[string][2]float64{
		"秋田県秋田市": {39.7186, 140.1024},
	}}
	gate := sighting.NewGate(nil)
	svc := NewService(gate, resolver, zerolog.Nop())

	first, acceptedA := svc.Ingest(context.Background(), juneBatch("news", newsCandidate("秋田市", "目撃")))
	if first.Accepted != 1 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	// A second source reporting the same place and day normalizes to the
	// same narrow fingerprint and must be filtered by the shared gate.
	second, acceptedB := svc.Ingest(context.Background(), juneBatch("mirror", newsCandidate("秋田市", "別の記事")))
	if second.Duplicates != 1 || second.Accepted != 0 {
		t.Fatalf("unexpected second summary: %+v", second)
	}
	if len(acceptedA)+len(acceptedB) != 1 {
		t.Fatalf("exactly one record must survive across sources")
	}
}

func TestIngestSecondRunIsIdempotent(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{coords: map[string][2]float64{
		"秋田県秋田市": {39.7186, 140.1024},
		"秋田県横手市": {39.3138, 140.5666},
	}}
	candidates := []sighting.Candidate{
		newsCandidate("秋田市", "目撃"),
		newsCandidate("横手市", "目撃"),
	}

	firstGate := sighting.NewGate(nil)
	firstRun, acceptedFirst := NewService(firstGate, resolver, zerolog.Nop()).
		Ingest(context.Background(), juneBatch("news", candidates...))
	if firstRun.Accepted != 2 {
		t.Fatalf("unexpected first run: %+v", firstRun)
	}

	// The store now knows both identities; an unchanged second run must
	// accept nothing.
	known := make([]string, 0, len(acceptedFirst))
	for _, rec := range acceptedFirst {
		known = append(known, rec.ID)
	}
	secondRun, acceptedSecond := NewService(sighting.NewGate(known), resolver, zerolog.Nop()).
		Ingest(context.Background(), juneBatch("news", candidates...))
	if secondRun.Accepted != 0 || secondRun.Duplicates != 2 {
		t.Fatalf("unexpected second run: %+v", secondRun)
	}
	if len(acceptedSecond) != 0 {
		t.Fatalf("second run must accept nothing")
	}
}

func TestIngestSkipsResolverWhenSourceHasCoords(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{coords: map[string][2]float64{}}
	svc := NewService(sighting.NewGate(nil), resolver, zerolog.Nop())

	c := sighting.Candidate{
		Prefecture: "秋田県",
		Locality:   "雄和地区",
		Source:     "akita_opendata",
		Date:       "2025-06-03",
		Lat:        39.72,
		Lng:        140.1,
		HasCoords:  true,
		Relevant:   true,
	}
	batch := juneBatch("official", c)
	batch.Scheme = sighting.SchemeWide
	batch.Normalize.TrustSourceDate = true

	summary, accepted := svc.Ingest(context.Background(), batch)
	if summary.Accepted != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(resolver.calls) != 0 {
		t.Fatalf("resolver must not be called for pre-resolved candidates")
	}
	if accepted[0].Lat != 39.72 || accepted[0].Lng != 140.1 {
		t.Fatalf("source coordinates were lost: %+v", accepted[0])
	}
}

func TestSummaryAdd(t *testing.T) {
	t.Parallel()

	total := Summary{}
	total.Add(Summary{Fetched: 3, Invalid: 1, Accepted: 2, Persisted: 2})
	total.Add(Summary{Fetched: 5, Duplicates: 4, Unresolved: 1})
	if total.Fetched != 8 || total.Invalid != 1 || total.Duplicates != 4 || total.Unresolved != 1 || total.Accepted != 2 || total.Persisted != 2 {
		t.Fatalf("unexpected total: %+v", total)
	}
}
