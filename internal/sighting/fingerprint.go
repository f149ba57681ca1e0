package sighting

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// FingerprintLength is the number of hex characters kept from the
// digest. 12 characters of a 128-bit hash is ample collision resistance
// for a store of a few thousand rows, and it matches the ids already in
// the bear_sightings table.
const FingerprintLength = 12

// Scheme selects which normalized fields feed the fingerprint. The
// choice is per-source configuration, not per-record.
type Scheme string

const (
	// SchemeNarrow keys on (prefecture, city, date) — for sources that
	// report at most one event per locality per day, such as the news
	// feed, where reports of the same incident should collapse.
	SchemeNarrow Scheme = "narrow"

	// SchemeWide adds locality and the coordinate pair as text — for
	// sources where the same city and day can carry many independent
	// events that differ only by exact place.
	SchemeWide Scheme = "wide"
)

// ParseScheme resolves a scheme name from configuration.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(name))) {
	case SchemeNarrow:
		return SchemeNarrow, nil
	case SchemeWide:
		return SchemeWide, nil
	default:
		return "", fmt.Errorf("unknown fingerprint scheme %q", name)
	}
}

// Fingerprint derives the stable identity of a normalized record under
// the given scheme. It is a pure function: the same normalized fields
// always produce the same token, whatever source produced the record.
func Fingerprint(r Record, scheme Scheme) string {
	var parts []string
	switch scheme {
	case SchemeWide:
		parts = []string{r.Prefecture, r.Locality, r.Date, coordText(r.Lat), coordText(r.Lng)}
	default:
		parts = []string{r.Prefecture, r.City, r.Date}
	}

	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// coordText renders a coordinate the shortest-round-trip way so that
// the wide fingerprint is stable across runs.
func coordText(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
