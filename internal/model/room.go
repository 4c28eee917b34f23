package model

import "time"

// Room status values.
const (
	RoomActive   = "active"
	RoomInactive = "inactive"
)

// Room is a physical screening room inside a cinema.  It owns a fixed
// seat plan made of Seat rows and carries the base ticket price that
// reservations start from.
//
// Fields:
//  ID        – primary key identifier.
//  CinemaID  – cinema the room belongs to.
//  Name      – room name, unique per cinema.
//  Capacity  – nominal capacity declared by the admin.
//  RoomType  – free-form type label (2D, 3D, IMAX ...).
//  BasePrice – base ticket price in minor units.
//  Status    – active or inactive.
type Room struct {
	ID        uint64    `json:"id"`         // rooms.id
	CinemaID  uint64    `json:"cinema_id"`  // rooms.cinema_id
	Name      string    `json:"name"`       // rooms.name
	Capacity  int       `json:"capacity"`   // rooms.capacity
	RoomType  string    `json:"room_type"`  // rooms.room_type
	BasePrice int64     `json:"base_price"` // rooms.base_price
	Status    string    `json:"status"`     // rooms.status
	CreatedAt time.Time `json:"created_at"` // rooms.created_at
}
