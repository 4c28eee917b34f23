package model

import (
	"strconv"
	"time"
)

// Seat type values.
const (
	SeatTypeStandard = "standard"
	SeatTypePremium  = "premium"
)

// Seat status values.
const (
	SeatActive   = "active"
	SeatInactive = "inactive"
)

// Seat describes a physical seat in a room.  Seats are uniquely
// identified by their room, row name and seat number.
//
// Fields:
//  ID          – primary key identifier.
//  RoomID      – room to which this seat belongs.
//  RowName     – letter(s) designating the row.
//  SeatNumber  – number of the seat within the row (1-based).
//  SeatType    – standard or premium.
//  ExtraCharge – surcharge added to the room base price.
//  Status      – active or inactive.
type Seat struct {
	ID          uint64    `json:"id"`           // seats.id
	RoomID      uint64    `json:"room_id"`      // seats.room_id
	RowName     string    `json:"row_name"`     // seats.row_name
	SeatNumber  int       `json:"seat_number"`  // seats.seat_number
	SeatType    string    `json:"seat_type"`    // seats.seat_type
	ExtraCharge int64     `json:"extra_charge"` // seats.extra_charge
	Status      string    `json:"status"`       // seats.status
	CreatedAt   time.Time `json:"created_at"`   // seats.created_at
}

// Active reports whether the seat can be sold.
func (s Seat) Active() bool { return s.Status != SeatInactive }

// Key returns the durable (row, number) identity of the seat.
func (s Seat) Key() SeatKey { return SeatKey{Row: s.RowName, Number: s.SeatNumber} }

// SeatKey is the durable seat identity used throughout booking: the
// pair (row name, seat number) scoped to a room.  It stays meaningful
// even after the underlying seat row is edited or removed.
type SeatKey struct {
	Row    string `json:"row"`
	Number int    `json:"number"`
}

// String renders the key the way tickets print it, e.g. "A1".
func (k SeatKey) String() string { return k.Row + strconv.Itoa(k.Number) }

// Less orders keys by row label, then seat number.
func (k SeatKey) Less(o SeatKey) bool {
	if k.Row != o.Row {
		return RowLess(k.Row, o.Row)
	}
	return k.Number < o.Number
}

// RowLess orders row labels A < B < ... < Z < AA < AB.  For single
// letter labels this is plain lexicographic order.
func RowLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
