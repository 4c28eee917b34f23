package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// CinemaRepo stores cinemas.
type CinemaRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewCinemaRepo constructs a CinemaRepo with the provided DB handle.
func NewCinemaRepo(db *sql.DB, timeout time.Duration) *CinemaRepo {
	return &CinemaRepo{db: db, timeout: timeout}
}

// Create inserts c and re-reads it so defaults such as created_at are
// populated.
func (r *CinemaRepo) Create(ctx context.Context, c *model.Cinema) error {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	const qInsert = "INSERT INTO cinemas (name, address) VALUES (?, ?)"
	res, err := r.db.ExecContext(ctx, qInsert, c.Name, c.Address)
	if err != nil {
		return translate("insert cinema", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return translate("insert cinema", err)
	}
	c.ID = uint64(id)

	const qSelect = "SELECT created_at FROM cinemas WHERE id = ?"
	if err := r.db.QueryRowContext(ctx, qSelect, c.ID).Scan(&c.CreatedAt); err != nil {
		return translate("reload cinema", err)
	}
	return nil
}

// GetByID fetches a cinema by its ID.
func (r *CinemaRepo) GetByID(ctx context.Context, id uint64) (*model.Cinema, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	const q = "SELECT id, name, address, created_at FROM cinemas WHERE id = ?"
	var c model.Cinema
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Name, &c.Address, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFoundError("cinema", id)
		}
		return nil, translate("get cinema", err)
	}
	return &c, nil
}

// List returns every cinema ordered by id.
func (r *CinemaRepo) List(ctx context.Context) ([]model.Cinema, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, "SELECT id, name, address, created_at FROM cinemas ORDER BY id")
	if err != nil {
		return nil, translate("list cinemas", err)
	}
	defer rows.Close()

	var out []model.Cinema
	for rows.Next() {
		var c model.Cinema
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.CreatedAt); err != nil {
			return nil, translate("list cinemas", err)
		}
		out = append(out, c)
	}
	return out, translate("list cinemas", rows.Err())
}
