package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// MovieRepo stores movies.  A movie's running time is the duration of
// every showtime that screens it.
type MovieRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewMovieRepo constructs a MovieRepo.
func NewMovieRepo(db *sql.DB, timeout time.Duration) *MovieRepo {
	return &MovieRepo{db: db, timeout: timeout}
}

// Create inserts m.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	const q = "INSERT INTO movies (title, duration_minutes) VALUES (?, ?)"
	res, err := r.db.ExecContext(ctx, q, m.Title, m.DurationMinutes)
	if err != nil {
		return translate("insert movie", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return translate("insert movie", err)
	}
	m.ID = uint64(id)
	m.CreatedAt = time.Now().UTC()
	return nil
}

// GetByID fetches a movie.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return getMovie(ctx, r.db, id)
}

func getMovie(ctx context.Context, q querier, id uint64) (*model.Movie, error) {
	const sel = "SELECT id, title, duration_minutes, created_at FROM movies WHERE id = ?"
	var m model.Movie
	if err := q.QueryRowContext(ctx, sel, id).Scan(&m.ID, &m.Title, &m.DurationMinutes, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFoundError("movie", id)
		}
		return nil, translate("get movie", err)
	}
	return &m, nil
}
