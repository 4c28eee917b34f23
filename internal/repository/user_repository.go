package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/utils"
)

// UserRepo stores accounts.  Emails are normalised to lower case.
type UserRepo struct {
	db      *sql.DB
	timeout time.Duration
}

func NewUserRepo(db *sql.DB, timeout time.Duration) *UserRepo {
	return &UserRepo{db: db, timeout: timeout}
}

// Create hashes password with bcrypt at cost and inserts the user.
// A taken email yields ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, email, username, password, role string, cost int) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return nil, err
	}

	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (email, username, password_hash, role) VALUES (?, ?, ?, ?)",
		email, username, hash, role)
	if err != nil {
		err = translate("insert user", err)
		if errors.Is(err, model.ErrIntegrity) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, translate("insert user", err)
	}
	return r.get(ctx, "id = ?", uint64(id))
}

// GetByEmail fetches a user by normalised email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return r.get(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return r.get(ctx, "id = ?", id)
}

func (r *UserRepo) get(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, role, created_at FROM users WHERE "+where+" LIMIT 1", arg).
		Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			id, _ := arg.(uint64)
			return nil, model.NewNotFoundError("user", id)
		}
		return nil, translate("get user", err)
	}
	return &u, nil
}
