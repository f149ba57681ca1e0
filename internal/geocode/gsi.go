// Package geocode resolves Japanese place names to coordinates through
// the GSI (国土地理院) address search API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the GSI address search service.
const DefaultEndpoint = "https://msearch.gsi.go.jp/address-search/AddressSearch"

const defaultTimeout = 10 * time.Second

// ErrNotFound reports that the service returned no candidate for the
// query. Callers treat it the same as any transport failure: the record
// stays unresolved.
var ErrNotFound = fmt.Errorf("geocode: no result")

// Client queries the GSI address search API. Only the first candidate
// of a response is ever used; the service orders by relevance and this
// pipeline does no disambiguation of its own.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Options controls Client construction.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(opts Options) *Client {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

// gsiFeature is the subset of a GSI response feature this client reads.
// Coordinates come back GeoJSON-style as [lng, lat].
type gsiFeature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// Lookup resolves one query string to the first candidate's (lat, lng).
func (c *Client) Lookup(ctx context.Context, query string) (float64, float64, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return 0, 0, fmt.Errorf("geocode: empty query")
	}

	requestURL := c.endpoint + "?q=" + url.QueryEscape(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocode: status %d", resp.StatusCode)
	}

	var features []gsiFeature
	if err := json.NewDecoder(resp.Body).Decode(&features); err != nil {
		return 0, 0, fmt.Errorf("geocode: decode response: %w", err)
	}
	if len(features) == 0 || len(features[0].Geometry.Coordinates) < 2 {
		return 0, 0, ErrNotFound
	}

	coords := features[0].Geometry.Coordinates
	return coords[1], coords[0], nil
}

// Resolve turns a (prefecture, city, locality) triple into coordinates.
// The primary query concatenates all three fields; when it misses and
// locality was non-empty, one relaxed retry drops the locality. There
// is no further fallback to prefecture-only resolution — a coarser hit
// would place the marker at the prefecture office, which is worse than
// no marker. The boolean is false when resolution failed for any
// reason, transport errors included.
func (c *Client) Resolve(ctx context.Context, prefecture, city, locality string) (float64, float64, bool) {
	lat, lng, err := c.Lookup(ctx, prefecture+city+locality)
	if err == nil {
		return lat, lng, true
	}

	// An empty city would degrade the retry to a prefecture-only query,
	// which is excluded outright.
	if strings.TrimSpace(locality) != "" && strings.TrimSpace(city) != "" {
		lat, lng, err = c.Lookup(ctx, prefecture+city)
		if err == nil {
			return lat, lng, true
		}
	}

	return 0, 0, false
}
