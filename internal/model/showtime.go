package model

import "time"

// Showtime is a scheduled screening of a movie in a room over an
// inclusive calendar range, starting every day at StartAt ("HH:MM").
// The running time is inherited from the movie.
//
// Fields:
//  ID        – primary key identifier.
//  MovieID   – movie being screened.
//  RoomID    – room where the screening happens.
//  StartDate – first calendar day (inclusive).
//  EndDate   – last calendar day (inclusive).
//  StartAt   – daily start time, 24h "HH:MM".
type Showtime struct {
	ID        uint64    `json:"id"`         // showtimes.id
	MovieID   uint64    `json:"movie_id"`   // showtimes.movie_id
	RoomID    uint64    `json:"room_id"`    // showtimes.room_id
	StartDate Date      `json:"start_date"` // showtimes.start_date
	EndDate   Date      `json:"end_date"`   // showtimes.end_date
	StartAt   string    `json:"start_at"`   // showtimes.start_at
	CreatedAt time.Time `json:"created_at"` // showtimes.created_at
}

// Covers reports whether d falls inside the showtime's date range.
func (s Showtime) Covers(d Date) bool {
	return !d.Before(s.StartDate.Time) && !d.After(s.EndDate.Time)
}

// ScheduledShowtime is a showtime joined with its movie's running time
// and cinema, which is what the conflict checker and the booking path
// need.
type ScheduledShowtime struct {
	Showtime
	CinemaID        uint64 `json:"cinema_id"`
	DurationMinutes int    `json:"duration_minutes"`
}
