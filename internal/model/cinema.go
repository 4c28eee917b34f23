package model

import "time"

// Cinema is a venue that owns one or more screening rooms.  Only the
// fields needed to label reservations are kept.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the venue.
//  Address   – free-form street address (may be empty).
//  CreatedAt – creation timestamp.
type Cinema struct {
	ID        uint64    `json:"id"`         // cinemas.id
	Name      string    `json:"name"`       // cinemas.name
	Address   string    `json:"address"`    // cinemas.address
	CreatedAt time.Time `json:"created_at"` // cinemas.created_at
}

// Movie carries the running time that every showtime of the movie
// inherits.  DurationMinutes is always positive.
type Movie struct {
	ID              uint64    `json:"id"`               // movies.id
	Title           string    `json:"title"`            // movies.title
	DurationMinutes int       `json:"duration_minutes"` // movies.duration_minutes
	CreatedAt       time.Time `json:"created_at"`       // movies.created_at
}
