// Package gateway describes the remote data service the task list lives in.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// Op is a filter comparison.
type Op string

const (
	Eq    Op = "eq"
	Neq   Op = "neq"
	ILike Op = "ilike"
)

// Cond restricts a column.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// Filter is a conjunction of conditions.
type Filter []Cond

// Where starts a filter with column = value.
func Where(column string, value any) Filter {
	return Filter{{Column: column, Op: Eq, Value: value}}
}

// And appends column = value.
func (f Filter) And(column string, value any) Filter {
	return append(f, Cond{Column: column, Op: Eq, Value: value})
}

// Order sorts a select.
type Order struct {
	Column     string
	Descending bool
	NullsLast  bool
}

// Gateway is an authenticated CRUD interface over named collections.
// Implementations enforce per-user row isolation; rows are returned as raw
// JSON objects and decoded by the caller.
type Gateway interface {
	// CurrentUser returns nil when there is no session.
	CurrentUser(ctx context.Context) (*model.User, error)
	Select(ctx context.Context, collection string, filter Filter, order ...Order) ([]json.RawMessage, error)
	Insert(ctx context.Context, collection string, row any) (json.RawMessage, error)
	Update(ctx context.Context, collection string, patch map[string]any, filter Filter) error
	Delete(ctx context.Context, collection string, filter Filter) error
}

type idempotentKey struct{}

// WithIdempotent marks calls made with ctx as safe to repeat.
func WithIdempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotentKey{}, true)
}

// Idempotent reports whether ctx was marked with WithIdempotent.
func Idempotent(ctx context.Context) bool {
	v, _ := ctx.Value(idempotentKey{}).(bool)
	return v
}
