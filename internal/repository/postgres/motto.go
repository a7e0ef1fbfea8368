package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sakif/motto-wall/internal/apperror"
	"github.com/sakif/motto-wall/internal/model"
	"github.com/sakif/motto-wall/internal/repository"
)

var _ repository.MottoRepository = (*Repo)(nil)

const mottosTable = "mottos"

var mottoColumns = []string{"number", "id", "nickname", "motto_text", "timezone", "created_at"}

// psql builds $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo stores mottos in PostgreSQL.
type Repo struct {
	q       Querier
	timeout time.Duration
}

// New creates a repository on q. A positive timeout bounds every call.
func New(q Querier, timeout time.Duration) *Repo {
	return &Repo{q: q, timeout: timeout}
}

func (r *Repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Create inserts m and fills in ID, Number and CreatedAt from the row.
func (r *Repo) Create(ctx context.Context, m *model.Motto) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id := uuid.NewString()

	query, args, err := psql.
		Insert(mottosTable).
		Columns("id", "nickname", "motto_text", "timezone").
		Values(id, m.Nickname, m.Text, m.Timezone).
		Suffix("RETURNING number, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build insert: %w", err)
	}

	var (
		number    int64
		createdAt time.Time
	)
	if err := r.q.QueryRow(ctx, query, args...).Scan(&number, &createdAt); err != nil {
		return fmt.Errorf("postgres: creating motto: %w", err)
	}

	m.ID = id
	m.Number = number
	m.CreatedAt = createdAt
	return nil
}

// GetByNumber returns the motto with the given public number.
func (r *Repo) GetByNumber(ctx context.Context, number int64) (*model.Motto, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := psql.
		Select(mottoColumns...).
		From(mottosTable).
		Where(sq.Eq{"number": number}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build select: %w", err)
	}

	var m model.Motto
	if err := pgxscan.Get(ctx, r.q, &m, query, args...); err != nil {
		if pgxscan.NotFound(err) || errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("motto", strconv.FormatInt(number, 10))
		}
		return nil, fmt.Errorf("postgres: getting motto %d: %w", number, err)
	}
	return &m, nil
}

// List returns a page of mottos in submission order.
func (r *Repo) List(ctx context.Context, opts repository.ListOptions) ([]model.Motto, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts = opts.Normalize()

	query, args, err := psql.
		Select(mottoColumns...).
		From(mottosTable).
		OrderBy("number ASC").
		Limit(uint64(opts.Limit)).
		Offset(uint64(opts.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build list: %w", err)
	}

	mottos := make([]model.Motto, 0, opts.Limit)
	if err := pgxscan.Select(ctx, r.q, &mottos, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: listing mottos: %w", err)
	}
	return mottos, nil
}

// Count returns the number of stored mottos.
func (r *Repo) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := psql.Select("COUNT(*)").From(mottosTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("postgres: build count: %w", err)
	}

	var n int64
	if err := r.q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting mottos: %w", err)
	}
	return n, nil
}
