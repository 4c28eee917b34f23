package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// ShowtimeSearchQuery defines filters & pagination for browsing showtimes.
// A set Date keeps showtimes whose run covers that day; otherwise only
// runs that have not ended relative to Today are listed.
type ShowtimeSearchQuery struct {
	Title    string
	Cinema   string
	Date     model.Date
	Today    model.Date
	Page     int
	PageSize int
}

// ShowtimeRow is one search hit, denormalised for display.
type ShowtimeRow struct {
	ID              uint64     `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	RoomID          uint64     `json:"room_id"`
	RoomName        string     `json:"room_name"`
	CinemaID        uint64     `json:"cinema_id"`
	Cinema          string     `json:"cinema"`
	StartDate       model.Date `json:"start_date"`
	EndDate         model.Date `json:"end_date"`
	StartAt         string     `json:"start_at"`
	BasePrice       int64      `json:"base_price"`
}

// Search lists showtimes matching q, soonest first, and the total hit
// count for paging.
func (r *ShowtimeRepo) Search(ctx context.Context, q ShowtimeSearchQuery) ([]ShowtimeRow, int64, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	where := []string{"r.status = 'active'"}
	args := []any{}

	if !q.Date.IsZero() {
		where = append(where, "st.start_date <= ? AND st.end_date >= ?")
		args = append(args, q.Date, q.Date)
	} else if !q.Today.IsZero() {
		where = append(where, "st.end_date >= ?")
		args = append(args, q.Today)
	}
	if q.Title != "" {
		where = append(where, "LOWER(m.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Title)+"%")
	}
	if q.Cinema != "" {
		where = append(where, "LOWER(c.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Cinema)+"%")
	}
	cond := strings.Join(where, " AND ")

	const from = ` FROM showtimes st
		JOIN rooms r   ON r.id = st.room_id
		JOIN cinemas c ON c.id = r.cinema_id
		JOIN movies m  ON m.id = st.movie_id
		WHERE `

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+cond, args...).Scan(&total); err != nil {
		return nil, 0, translate("count showtimes", err)
	}

	dataSQL := `SELECT st.id, m.title, m.duration_minutes, r.id, r.name, c.id, c.name,
			st.start_date, st.end_date, st.start_at, r.base_price` + from + cond + `
		ORDER BY st.start_date, st.start_at, st.id
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, translate("search showtimes", err)
	}
	defer rows.Close()

	out := make([]ShowtimeRow, 0, q.PageSize)
	for rows.Next() {
		var d ShowtimeRow
		if err := rows.Scan(&d.ID, &d.Title, &d.DurationMinutes, &d.RoomID, &d.RoomName, &d.CinemaID, &d.Cinema,
			&d.StartDate, &d.EndDate, &d.StartAt, &d.BasePrice); err != nil {
			return nil, 0, translate("search showtimes", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translate("search showtimes", err)
	}
	return out, total, nil
}
