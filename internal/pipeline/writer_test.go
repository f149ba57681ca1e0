package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tanalabo/kumacollect/internal/db"
	"github.com/tanalabo/kumacollect/internal/sighting"
)

type fakeStore struct {
	batches   [][]db.Sighting
	failBatch int // 1-based index of a batch to fail; 0 disables
	short     int // rows to under-confirm on every batch
}

func (f *fakeStore) InsertSightings(_ context.Context, rows []db.Sighting) (int, error) {
	f.batches = append(f.batches, rows)
	if f.failBatch > 0 && len(f.batches) == f.failBatch {
		return 0, fmt.Errorf("store unavailable")
	}
	confirmed := len(rows) - f.short
	if confirmed < 0 {
		confirmed = 0
	}
	return confirmed, nil
}

func makeRecords(n int) []sighting.Record {
	records := make([]sighting.Record, 0, n)
	for i := 0; i < n; i++ {
		r := sighting.Record{
			Date:       "2025-06-15",
			Prefecture: "秋田県",
			City:       fmt.Sprintf("市%d", i),
			Source:     "test",
		}
		r = r.WithCoords(39.0+float64(i)/1000, 140.0)
		r.ID = sighting.Fingerprint(r, sighting.SchemeNarrow)
		records = append(records, r)
	}
	return records
}

func TestWriteSplitsIntoBatches(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	writer := NewWriter(store, 100, zerolog.Nop())

	confirmed := writer.Write(context.Background(), makeRecords(250))
	if confirmed != 250 {
		t.Fatalf("confirmed %d rows, want 250", confirmed)
	}
	if len(store.batches) != 3 {
		t.Fatalf("issued %d batches, want 3", len(store.batches))
	}
	sizes := []int{len(store.batches[0]), len(store.batches[1]), len(store.batches[2])}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Fatalf("unexpected batch sizes: %v", sizes)
	}
}

func TestWritePreservesRecordOrder(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	writer := NewWriter(store, 100, zerolog.Nop())
	records := makeRecords(150)

	writer.Write(context.Background(), records)

	var got []string
	for _, batch := range store.batches {
		for _, row := range batch {
			got = append(got, row.ID)
		}
	}
	if len(got) != len(records) {
		t.Fatalf("row count %d, want %d", len(got), len(records))
	}
	for i, rec := range records {
		if got[i] != rec.ID {
			t.Fatalf("row %d out of order: %q != %q", i, got[i], rec.ID)
		}
	}
}

func TestWriteFailedBatchDoesNotStopLaterBatches(t *testing.T) {
	t.Parallel()

	store := &fakeStore{failBatch: 2}
	writer := NewWriter(store, 100, zerolog.Nop())

	confirmed := writer.Write(context.Background(), makeRecords(250))
	if confirmed != 150 {
		t.Fatalf("confirmed %d rows, want 150", confirmed)
	}
	if len(store.batches) != 3 {
		t.Fatalf("issued %d batches, want 3", len(store.batches))
	}
}

func TestWriteReportsStoreConfirmedCount(t *testing.T) {
	t.Parallel()

	store := &fakeStore{short: 1}
	writer := NewWriter(store, 100, zerolog.Nop())

	// The store's count is authoritative even when it disagrees.
	confirmed := writer.Write(context.Background(), makeRecords(250))
	if confirmed != 247 {
		t.Fatalf("confirmed %d rows, want 247", confirmed)
	}
}

func TestWriteEmptyInput(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	writer := NewWriter(store, 100, zerolog.Nop())
	if confirmed := writer.Write(context.Background(), nil); confirmed != 0 {
		t.Fatalf("confirmed %d rows for empty input", confirmed)
	}
	if len(store.batches) != 0 {
		t.Fatalf("no batches should be issued for empty input")
	}
}

func TestToRowsMapsLocality(t *testing.T) {
	t.Parallel()

	r := sighting.Record{
		ID:         "aaaabbbbcccc",
		Date:       "2025-06-03",
		Prefecture: "秋田県",
		City:       "秋田市",
		Locality:   "雄和地区",
		Source:     "https://example.com/1",
		Summary:    "目撃",
	}
	r = r.WithCoords(39.7, 140.1)

	rows := toRows([]sighting.Record{r})
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Location != "雄和地区" {
		t.Fatalf("locality must map to the location column, got %q", rows[0].Location)
	}
	if rows[0].ID != "aaaabbbbcccc" || rows[0].Lat != 39.7 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}
