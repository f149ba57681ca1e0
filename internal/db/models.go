package db

import "time"

// Sighting maps the bear_sightings table. The id is the pipeline's
// 12-character fingerprint; rows are insert-only from the collector's
// point of view.
type Sighting struct {
	ID         string    `gorm:"column:id;type:char(12);primaryKey"`
	Date       string    `gorm:"column:date;type:date;not null;index"`
	Prefecture string    `gorm:"column:prefecture;type:text;not null;index"`
	City       string    `gorm:"column:city;type:text;not null;default:''"`
	Location   string    `gorm:"column:location;type:text;not null;default:''"`
	Lat        float64   `gorm:"column:lat;type:double precision;not null"`
	Lng        float64   `gorm:"column:lng;type:double precision;not null"`
	Source     string    `gorm:"column:source;type:text;not null"`
	Summary    string    `gorm:"column:summary;type:text;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Sighting) TableName() string { return "bear_sightings" }
