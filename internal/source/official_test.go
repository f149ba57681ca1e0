package source

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

const sampleOfficialCSV = `獣種,発見日,緯度,経度,市町村,地区,状況
ツキノワグマ,2025/06/03,39.7186,140.1024,秋田市,雄和,成獣1頭が道路を横断
イノシシ,2025/06/03,39.5,140.2,由利本荘市,石沢,田畑を荒らした跡
クマ,2023/10/01,39.9,140.3,大館市,比内,柿の木に登っていた
クマ,2025/06/04,,140.4,北秋田市,森吉,座標欠損の行
熊,2025-06-05,40.2,140.37,大館市,,
`

func newOfficialStub(t *testing.T, body []byte) *Official {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return NewOfficial(OfficialOptions{
		CSVURL:     server.URL,
		CutoffYear: 2024,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
}

func TestOfficialFetchUTF8(t *testing.T) {
	t.Parallel()

	client := newOfficialStub(t, []byte(sampleOfficialCSV))
	candidates, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	// Non-bear, pre-cutoff, and coordinate-less rows are skipped.
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	first := candidates[0]
	if first.Prefecture != "秋田県" || first.City != "秋田市" || first.Locality != "雄和" {
		t.Fatalf("unexpected place: %+v", first)
	}
	if first.Date != "2025-06-03" {
		t.Fatalf("unexpected date: %q", first.Date)
	}
	if first.Summary != "成獣1頭が道路を横断" {
		t.Fatalf("unexpected summary: %q", first.Summary)
	}
	if first.Source != "akita_opendata" {
		t.Fatalf("unexpected source: %q", first.Source)
	}

	second := candidates[1]
	if second.Date != "2025-06-05" {
		t.Fatalf("unexpected date for dashed format: %q", second.Date)
	}
	if second.Summary != "クマ目撃情報" {
		t.Fatalf("empty situation must default, got %q", second.Summary)
	}
}

func TestOfficialFetchShiftJIS(t *testing.T) {
	t.Parallel()

	encoded, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(sampleOfficialCSV))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if bytes.Equal(encoded, []byte(sampleOfficialCSV)) {
		t.Fatalf("fixture did not round-trip through Shift-JIS")
	}

	client := newOfficialStub(t, encoded)
	candidates, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Locality != "雄和" {
		t.Fatalf("Shift-JIS text decoded wrong: %q", candidates[0].Locality)
	}
}

func TestOfficialFetchEnglishHeaders(t *testing.T) {
	t.Parallel()

	csvBody := strings.Join([]string{
		"animal_type,date,latitude,longitude,municipality,location,situation",
		"クマ,2025/06/03,39.7,140.1,秋田市,雄和,目撃",
	}, "\n")

	client := newOfficialStub(t, []byte(csvBody))
	candidates, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].City != "秋田市" {
		t.Fatalf("english header row parsed wrong: %+v", candidates[0])
	}
}
