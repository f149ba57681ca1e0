// Package sighting holds the canonical bear-sighting record shape and
// the normalization, fingerprint, and dedup rules shared by every
// collection source.
package sighting

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultFallbackDay is substituted when a source reports no usable
	// date: "better an approximate date than none" for map display.
	DefaultFallbackDay = 15

	// DefaultSummaryMaxRunes bounds the free-text summary column.
	DefaultSummaryMaxRunes = 500

	prefectureMaxRunes = 5
)

// prefectureSuffixes are the four Japanese administrative-unit endings
// a valid prefecture name must carry (都, 道, 府, 県).
var prefectureSuffixes = []string{"都", "道", "府", "県"}

// multiValueSeparators mark a prefecture field that names more than one
// prefecture ("秋田県・青森県"); such candidates cannot be geocoded to a
// single point and are rejected outright.
var multiValueSeparators = []string{"、", "・"}

// Candidate is a raw, source-specific report before validation. Only
// adapters and the extraction client construct these; they are never
// persisted.
type Candidate struct {
	Prefecture string
	City       string
	Locality   string
	Summary    string
	Source     string
	Date       string // YYYY-MM-DD when the source supplies one; may be empty or partial

	// Lat/Lng are set when the source already reports coordinates
	// (kumamap, open-data CSV). HasCoords distinguishes an unset pair
	// from a genuine 0,0.
	Lat       float64
	Lng       float64
	HasCoords bool

	// Relevant is the extraction service's accept/reject judgment.
	// Structured sources that pre-filter rows set it to true.
	Relevant bool
}

// Record is the canonical persisted sighting. It is immutable once
// built; corrections happen through new collection runs, never updates.
type Record struct {
	ID         string
	Date       string
	Prefecture string
	City       string
	Locality   string
	Lat        float64
	Lng        float64
	Source     string
	Summary    string

	hasCoords bool
}

// HasCoords reports whether the record's coordinate pair is resolved.
func (r Record) HasCoords() bool { return r.hasCoords }

// WithCoords returns a copy of the record with the coordinate pair set.
func (r Record) WithCoords(lat, lng float64) Record {
	r.Lat = lat
	r.Lng = lng
	r.hasCoords = true
	return r
}

// TargetMonth is the month a collection run attributes undated reports
// to, in YYYY-MM form.
type TargetMonth struct {
	Year  int
	Month time.Month
}

// MonthOf builds the target month for an arbitrary instant.
func MonthOf(t time.Time) TargetMonth {
	return TargetMonth{Year: t.Year(), Month: t.Month()}
}

func (m TargetMonth) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// Day renders a full date within the month.
func (m TargetMonth) Day(day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", m.Year, m.Month, day)
}

// NormalizeOptions carries the policy knobs for Normalize.
type NormalizeOptions struct {
	Month           TargetMonth
	FallbackDay     int
	SummaryMaxRunes int

	// TrustSourceDate keeps a fully parseable date even when its year
	// differs from the target month's. Structured sources (the open-data
	// CSV, the sightings API) legitimately report prior-year events;
	// extracted news dates are guesses and stay pinned to the run's
	// target year.
	TrustSourceDate bool
}

// Normalize validates and shapes a raw candidate into a canonical
// record skeleton (no identity assigned yet; coordinates carried over
// only when the source supplied them). The boolean is false when the
// candidate fails relevance screening or field validation; that is a
// rejection, not an error.
func Normalize(c Candidate, opts NormalizeOptions) (Record, bool) {
	if !c.Relevant {
		return Record{}, false
	}
	if !ValidPrefecture(c.Prefecture) {
		return Record{}, false
	}

	fallbackDay := opts.FallbackDay
	if fallbackDay <= 0 {
		fallbackDay = DefaultFallbackDay
	}
	maxRunes := opts.SummaryMaxRunes
	if maxRunes <= 0 {
		maxRunes = DefaultSummaryMaxRunes
	}

	rec := Record{
		Date:       normalizeDate(c.Date, opts.Month, fallbackDay, opts.TrustSourceDate),
		Prefecture: strings.TrimSpace(c.Prefecture),
		City:       strings.TrimSpace(c.City),
		Locality:   strings.TrimSpace(c.Locality),
		Source:     strings.TrimSpace(c.Source),
		Summary:    truncateRunes(strings.TrimSpace(c.Summary), maxRunes),
	}
	if c.HasCoords {
		rec = rec.WithCoords(c.Lat, c.Lng)
	}
	return rec, true
}

// ValidPrefecture reports whether a prefecture string names exactly one
// administrative unit.
func ValidPrefecture(prefecture string) bool {
	p := strings.TrimSpace(prefecture)
	if p == "" {
		return false
	}
	for _, sep := range multiValueSeparators {
		if strings.Contains(p, sep) {
			return false
		}
	}
	if len([]rune(p)) > prefectureMaxRunes {
		return false
	}
	for _, suffix := range prefectureSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// normalizeDate applies the fallback-day policy: a missing, truncated,
// unparseable, or wrong-year date becomes day <fallbackDay> of the
// run's target month.
func normalizeDate(raw string, month TargetMonth, fallbackDay int, trustSourceDate bool) string {
	fallback := month.Day(fallbackDay)

	date := strings.TrimSpace(raw)
	if len(date) < len("2006-01-02") {
		return fallback
	}
	parsed, err := time.Parse("2006-01-02", date[:len("2006-01-02")])
	if err != nil {
		return fallback
	}
	if !trustSourceDate && parsed.Year() != month.Year {
		return fallback
	}
	return parsed.Format("2006-01-02")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
