// Package repository declares the storage contract for mottos. Implementations
// live in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/motto-wall/internal/model"
)

// Page size bounds shared by every implementation.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the options to the shared page size bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultPageSize
	}
	if o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// MottoRepository is append-only: there is no update or delete.
//
// Create assigns ID, Number and CreatedAt on the passed motto. Number comes
// from the database sequence, so it is unique and strictly increasing across
// concurrent inserts. GetByNumber returns an apperror.ErrNotFound error when
// no row matches. List orders by Number ascending.
type MottoRepository interface {
	Create(ctx context.Context, m *model.Motto) error
	GetByNumber(ctx context.Context, number int64) (*model.Motto, error)
	List(ctx context.Context, opts ListOptions) ([]model.Motto, error)
	Count(ctx context.Context) (int64, error)
}
