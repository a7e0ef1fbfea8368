package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/motto-wall/internal/apperror"
	"github.com/sakif/motto-wall/internal/model"
	"github.com/sakif/motto-wall/internal/repository"
)

var _ repository.MottoRepository = (*DB)(nil)

const mottoColumns = `number, id, nickname, motto_text, timezone, created_at`

// withTimeout derives the per-call deadline.
func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.timeout)
}

// Create inserts m and fills in ID, Number and CreatedAt.
//
// The number is read back with RETURNING from the same statement, so two
// concurrent inserts can never observe each other's value.
func (db *DB) Create(ctx context.Context, m *model.Motto) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	id := xid.New().String()
	createdAt := time.Now().UTC()

	var number int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO mottos (id, nickname, motto_text, timezone, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING number`,
		id,
		m.Nickname,
		m.Text,
		m.Timezone,
		createdAt,
	).Scan(&number)
	if err != nil {
		return fmt.Errorf("sqlite: creating motto: %w", err)
	}

	m.ID = id
	m.Number = number
	m.CreatedAt = createdAt
	return nil
}

// GetByNumber returns the motto with the given public number.
func (db *DB) GetByNumber(ctx context.Context, number int64) (*model.Motto, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	m, err := scanMotto(db.conn.QueryRowContext(ctx,
		`SELECT `+mottoColumns+` FROM mottos WHERE number = ?`,
		number,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("motto", strconv.FormatInt(number, 10))
		}
		return nil, fmt.Errorf("sqlite: getting motto %d: %w", number, err)
	}
	return m, nil
}

// List returns a page of mottos in submission order.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Motto, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	opts = opts.Normalize()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+mottoColumns+`
		 FROM mottos
		 ORDER BY number ASC
		 LIMIT ? OFFSET ?`,
		opts.Limit,
		opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing mottos: %w", err)
	}
	defer rows.Close()

	mottos := make([]model.Motto, 0, opts.Limit)
	for rows.Next() {
		m, err := scanMotto(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning motto row: %w", err)
		}
		mottos = append(mottos, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating mottos: %w", err)
	}

	return mottos, nil
}

// Count returns the number of stored mottos.
func (db *DB) Count(ctx context.Context) (int64, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM mottos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting mottos: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMotto(s rowScanner) (*model.Motto, error) {
	var (
		m  model.Motto
		tz sql.NullString
	)
	if err := s.Scan(&m.Number, &m.ID, &m.Nickname, &m.Text, &tz, &m.CreatedAt); err != nil {
		return nil, err
	}
	if tz.Valid {
		m.Timezone = &tz.String
	}
	return &m, nil
}
