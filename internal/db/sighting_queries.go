package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm/clause"
)

// ListKnownIdentities returns every sighting id currently in the store.
// The collector fetches this once at the start of an execution to seed
// the dedup gate.
func (p *Pool) ListKnownIdentities(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM bear_sightings`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query known identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return ids, nil
}

// InsertSightings writes one batch of rows and returns how many the
// store confirms. Ids already present are left untouched — inserts are
// keyed by fingerprint and never become updates.
func (p *Pool) InsertSightings(ctx context.Context, rows []Sighting) (int, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	res := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("insert sightings: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// SightingListOptions controls ListSightings.
type SightingListOptions struct {
	Prefecture string
	From       string // YYYY-MM-DD, inclusive; empty means unbounded
	To         string // YYYY-MM-DD, inclusive; empty means unbounded
	Limit      int
	Offset     int
}

// SightingListItem is the API-facing row shape.
type SightingListItem struct {
	ID         string    `json:"id"`
	Date       string    `json:"date"`
	Prefecture string    `json:"prefecture"`
	City       string    `json:"city,omitempty"`
	Location   string    `json:"location,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Source     string    `json:"source"`
	Summary    string    `json:"summary,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListSightings lists sightings newest-first within an optional date
// window and prefecture filter.
func (p *Pool) ListSightings(ctx context.Context, opts SightingListOptions) ([]SightingListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	s.id,
	to_char(s.date, 'YYYY-MM-DD'),
	s.prefecture,
	s.city,
	s.location,
	s.lat,
	s.lng,
	s.source,
	s.summary,
	s.created_at
FROM bear_sightings s
WHERE ($1 = '' OR s.prefecture = $1)
  AND ($2 = '' OR s.date >= $2::date)
  AND ($3 = '' OR s.date <= $3::date)
ORDER BY s.date DESC, s.id DESC
LIMIT $4 OFFSET $5
`

	rows, err := p.Query(ctx, q,
		strings.TrimSpace(opts.Prefecture),
		strings.TrimSpace(opts.From),
		strings.TrimSpace(opts.To),
		opts.Limit,
		max(0, opts.Offset),
	)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	items := make([]SightingListItem, 0, opts.Limit)
	for rows.Next() {
		var row SightingListItem
		if err := rows.Scan(
			&row.ID,
			&row.Date,
			&row.Prefecture,
			&row.City,
			&row.Location,
			&row.Lat,
			&row.Lng,
			&row.Source,
			&row.Summary,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sightings: %w", err)
	}
	return items, nil
}

// CountSightings counts rows matching the same filters as ListSightings.
func (p *Pool) CountSightings(ctx context.Context, opts SightingListOptions) (int64, error) {
	const q = `
SELECT count(*)
FROM bear_sightings s
WHERE ($1 = '' OR s.prefecture = $1)
  AND ($2 = '' OR s.date >= $2::date)
  AND ($3 = '' OR s.date <= $3::date)
`

	var count int64
	err := p.QueryRow(ctx, q,
		strings.TrimSpace(opts.Prefecture),
		strings.TrimSpace(opts.From),
		strings.TrimSpace(opts.To),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sightings: %w", err)
	}
	return count, nil
}

// PrefectureCount is one row of the per-prefecture stats endpoint.
type PrefectureCount struct {
	Prefecture string `json:"prefecture"`
	Sightings  int64  `json:"sightings"`
	LatestDate string `json:"latest_date"`
}

// SightingStats aggregates the store per prefecture, busiest first.
func (p *Pool) SightingStats(ctx context.Context) ([]PrefectureCount, error) {
	const q = `
SELECT
	s.prefecture,
	count(*),
	to_char(max(s.date), 'YYYY-MM-DD')
FROM bear_sightings s
GROUP BY s.prefecture
ORDER BY count(*) DESC, s.prefecture ASC
`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats []PrefectureCount
	for rows.Next() {
		var row PrefectureCount
		if err := rows.Scan(&row.Prefecture, &row.Sightings, &row.LatestDate); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats = append(stats, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
