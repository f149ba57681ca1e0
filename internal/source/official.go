package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/tanalabo/kumacollect/internal/sighting"
)

const (
	officialPrefecture = "秋田県"
	officialSourceTag  = "akita_opendata"

	// officialSummaryMaxRunes bounds the 状況 column; the canonical
	// record applies its own wider bound later.
	officialSummaryMaxRunes = 100

	defaultOfficialTimeout = 60 * time.Second
	maxOfficialBytes       = 32 << 20
)

// officialAnimalKeywords select bear rows from the multi-species
// wildlife export.
var officialAnimalKeywords = []string{"クマ", "熊", "ツキノワグマ"}

// Official fetches the Akita prefecture CKAN open-data CSV. The export
// is Shift-JIS most of the time, UTF-8 on occasion, and mixes Japanese
// and English column headers across revisions.
type Official struct {
	csvURL     string
	cutoffYear int
	httpClient *http.Client
	logger     zerolog.Logger
}

// OfficialOptions controls Official construction.
type OfficialOptions struct {
	CSVURL     string
	CutoffYear int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func NewOfficial(opts OfficialOptions) *Official {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOfficialTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Official{
		csvURL:     strings.TrimSpace(opts.CSVURL),
		cutoffYear: opts.CutoffYear,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// Fetch downloads and parses the CSV into raw candidates. Rows that are
// not bear sightings, predate the cutoff year, or lack a date or
// coordinates are skipped.
func (o *Official) Fetch(ctx context.Context) ([]sighting.Candidate, error) {
	if o.csvURL == "" {
		return nil, fmt.Errorf("official: CSV URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.csvURL, nil)
	if err != nil {
		return nil, fmt.Errorf("official: build request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("official: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("official: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOfficialBytes))
	if err != nil {
		return nil, fmt.Errorf("official: read body: %w", err)
	}

	candidates, err := o.parseCSV(decodeShiftJIS(body))
	if err != nil {
		return nil, err
	}

	o.logger.Info().Int("adapted", len(candidates)).Msg("official rows fetched")
	return candidates, nil
}

// decodeShiftJIS converts a Shift-JIS body to UTF-8. Valid UTF-8 input
// passes through untouched: Japanese UTF-8 bytes would otherwise decode
// as Shift-JIS mojibake without an error, so validity is the only
// reliable signal.
func decodeShiftJIS(body []byte) []byte {
	if utf8.Valid(body) {
		return body
	}
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), body)
	if err != nil {
		return body
	}
	return decoded
}

func (o *Official) parseCSV(data []byte) ([]sighting.Candidate, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("official: read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	var candidates []sighting.Candidate
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn row should not sink the rest of the export.
			o.logger.Debug().Err(err).Msg("official row unreadable")
			continue
		}

		candidate, ok := o.adaptRow(columns, row)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (o *Official) adaptRow(columns map[string]int, row []string) (sighting.Candidate, bool) {
	animal := field(columns, row, "獣種", "animal_type")
	if !animalIsBear(animal) {
		return sighting.Candidate{}, false
	}

	dateRaw := field(columns, row, "発見日", "date")
	if dateRaw == "" {
		return sighting.Candidate{}, false
	}
	reported, err := dateparse.ParseAny(dateRaw)
	if err != nil {
		return sighting.Candidate{}, false
	}
	if o.cutoffYear > 0 && reported.Year() < o.cutoffYear {
		return sighting.Candidate{}, false
	}

	lat, err := strconv.ParseFloat(field(columns, row, "緯度", "latitude"), 64)
	if err != nil {
		return sighting.Candidate{}, false
	}
	lng, err := strconv.ParseFloat(field(columns, row, "経度", "longitude"), 64)
	if err != nil {
		return sighting.Candidate{}, false
	}

	summary := field(columns, row, "状況", "situation")
	if summary == "" {
		summary = "クマ目撃情報"
	} else if runes := []rune(summary); len(runes) > officialSummaryMaxRunes {
		summary = string(runes[:officialSummaryMaxRunes])
	}

	return sighting.Candidate{
		Prefecture: officialPrefecture,
		City:       field(columns, row, "市町村", "municipality"),
		Locality:   field(columns, row, "地区", "location"),
		Summary:    summary,
		Source:     officialSourceTag,
		Date:       reported.Format("2006-01-02"),
		Lat:        lat,
		Lng:        lng,
		HasCoords:  true,
		Relevant:   true,
	}, true
}

// field reads a cell by its Japanese header name, falling back to the
// English name used by older revisions of the export.
func field(columns map[string]int, row []string, names ...string) string {
	for _, name := range names {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			continue
		}
		if value := strings.TrimSpace(row[idx]); value != "" {
			return value
		}
	}
	return ""
}

func animalIsBear(animal string) bool {
	for _, keyword := range officialAnimalKeywords {
		if strings.Contains(animal, keyword) {
			return true
		}
	}
	return false
}
