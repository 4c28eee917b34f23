// Package repository holds the MySQL data access for the booking engine.
// Every repository bounds its calls with the configured storage timeout
// and reports driver failures through the model error taxonomy: unique
// violations become *model.IntegrityError, lock waits, deadlocks,
// deadlines and dropped connections become *model.TransientStorageError.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// MySQL server error numbers the repositories react to.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
	errCheckConstraint = 3819
)

// ErrEmailExists is returned when registering an address that is taken.
var ErrEmailExists = errors.New("email already exists")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// translate maps a driver error onto the model taxonomy.  op names the
// failed operation for the error message.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry, errRowIsReferenced, errNoReferencedRow, errCheckConstraint:
			return &model.IntegrityError{Constraint: constraintOf(me.Message), Err: err}
		case errLockWaitTimeout, errDeadlock:
			return &model.TransientStorageError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, sql.ErrConnDone):
		return &model.TransientStorageError{Op: op, Err: err}
	}
	// already translated further down
	var (
		te *model.TransientStorageError
		ie *model.IntegrityError
	)
	if errors.As(err, &te) || errors.As(err, &ie) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// constraintOf extracts the index name from a MySQL message such as
// "Duplicate entry '1-A-1-1' for key 'reservation_seats.uq_rs_occupancy'".
func constraintOf(msg string) string {
	i := strings.LastIndex(msg, "'")
	if i <= 0 {
		return ""
	}
	j := strings.LastIndex(msg[:i], "'")
	if j < 0 {
		return ""
	}
	name := msg[j+1 : i]
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	return name
}

// bound applies the storage timeout to ctx.
func bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// withinTx runs fn in a transaction on db, committing when fn returns
// nil and rolling back otherwise.
func withinTx(ctx context.Context, db *sql.DB, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return translate(op+": begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return translate(op, err)
	}
	if err := tx.Commit(); err != nil {
		return translate(op+": commit", err)
	}
	committed = true
	return nil
}

// placeholders returns "(?, ?, ...),(...)" for n rows of width columns.
func placeholders(n, width int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(row)
	}
	return b.String()
}

func nullUint(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
