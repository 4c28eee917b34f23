package model

import "time"

// Account roles carried in the JWT "role" claim.
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// User is an account allowed to book seats.  Username is copied onto
// every reservation the user makes.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  Username     – display name.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN or CUSTOMER.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	Username     string    // users.username
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	CreatedAt    time.Time // users.created_at
}
