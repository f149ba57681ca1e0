package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/tanalabo/kumacollect/internal/sighting"
	sightingschema "github.com/tanalabo/kumacollect/schema"
)

const (
	// DefaultKumamapURL is the kumamap.com sightings API.
	DefaultKumamapURL = "https://kumamap.com/api/sightings"

	defaultKumamapTimeout = 60 * time.Second
	maxKumamapBytes       = 32 << 20
)

// Kumamap fetches the community sightings API and adapts its items
// into raw candidates. Items arrive with coordinates, so candidates
// from this source skip geocoding.
type Kumamap struct {
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// KumamapOptions controls Kumamap construction.
type KumamapOptions struct {
	APIURL     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func NewKumamap(opts KumamapOptions) *Kumamap {
	apiURL := strings.TrimSpace(opts.APIURL)
	if apiURL == "" {
		apiURL = DefaultKumamapURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultKumamapTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Kumamap{apiURL: apiURL, httpClient: httpClient, logger: opts.Logger}
}

// Fetch retrieves the full API dump and adapts every usable item.
// Hidden items and items without coordinates or a parseable timestamp
// are skipped, not errors.
func (k *Kumamap) Fetch(ctx context.Context) ([]sighting.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("kumamap: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kumamap: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kumamap: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKumamapBytes))
	if err != nil {
		return nil, fmt.Errorf("kumamap: read body: %w", err)
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(body, &rawItems); err != nil {
		return nil, fmt.Errorf("kumamap: decode array: %w", err)
	}

	candidates := make([]sighting.Candidate, 0, len(rawItems))
	skipped := 0
	for _, raw := range rawItems {
		candidate, ok := k.adaptItem(raw)
		if !ok {
			skipped++
			continue
		}
		candidates = append(candidates, candidate)
	}

	k.logger.Info().
		Int("adapted", len(candidates)).
		Int("skipped", skipped).
		Msg("kumamap items fetched")
	return candidates, nil
}

func (k *Kumamap) adaptItem(raw json.RawMessage) (sighting.Candidate, bool) {
	item, err := sightingschema.ValidateSightingItem(raw)
	if err != nil {
		k.logger.Debug().Err(err).Msg("kumamap item failed schema validation")
		return sighting.Candidate{}, false
	}
	if item.Hidden {
		return sighting.Candidate{}, false
	}
	if item.Location.Lat == nil || item.Location.Lng == nil {
		return sighting.Candidate{}, false
	}

	reported, err := dateparse.ParseAny(item.Timestamp)
	if err != nil {
		k.logger.Debug().Str("timestamp", item.Timestamp).Msg("kumamap item has unparseable timestamp")
		return sighting.Candidate{}, false
	}

	return sighting.Candidate{
		Prefecture: strings.TrimSpace(item.Location.JP.Prefecture),
		City:       "",
		Locality:   strings.TrimSpace(item.Location.JP.Locality),
		Summary:    item.Description["jp"],
		Source:     kumamapSourceRef(item),
		Date:       reported.UTC().Format("2006-01-02"),
		Lat:        *item.Location.Lat,
		Lng:        *item.Location.Lng,
		HasCoords:  true,
		Relevant:   true,
	}, true
}

// kumamapSourceRef prefers the item's first source URL and falls back
// to a synthetic provenance tag so the persisted row is never blank.
func kumamapSourceRef(item *sightingschema.SightingItem) string {
	for _, u := range item.SourceURLs {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			return trimmed
		}
	}
	itemType := strings.TrimSpace(item.Type)
	if itemType == "" {
		itemType = "unknown"
	}
	return "kumamap_" + itemType
}
