package ports

import "context"

// Table names shared by every RowStore implementation.
const (
	TableAgent   = "agent"
	TableConv    = "conv"
	TableMessage = "message"
	TableStep    = "step"
)

// Row is a set of column values. Values are limited to nil, string, bool,
// int64 and float64; timestamps are stored as Unix microseconds.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Op is a filter operator.
type Op int

const (
	OpEq Op = iota
	OpIsNull
	OpNotNull
)

// Cond is one filter condition on a column.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Eq matches rows whose field equals v.
func Eq(field string, v any) Cond { return Cond{Field: field, Op: OpEq, Value: v} }

// IsNull matches rows whose field is absent or nil.
func IsNull(field string) Cond { return Cond{Field: field, Op: OpIsNull} }

// NotNull matches rows whose field holds a value.
func NotNull(field string) Cond { return Cond{Field: field, Op: OpNotNull} }

// Filter is a conjunction of conditions. An empty filter matches every row.
type Filter []Cond

// ListOptions controls ordering and size of a listing.
// OrderBy defaults to "id".
type ListOptions struct {
	OrderBy string
	Desc    bool
	Limit   int
}

// RowStore persists rows in named tables.
// Every row gets an auto-incremented "id" on Create. A "uid" column, when
// present, must be unique within its table.
type RowStore interface {
	// Create inserts the row and returns its new id.
	Create(ctx context.Context, table string, row Row) (int64, error)

	// Get returns the row with the given id, or domain.ErrNotFound.
	Get(ctx context.Context, table string, id int64) (Row, error)

	// GetByUID returns the row with the given uid, or domain.ErrNotFound.
	GetByUID(ctx context.Context, table string, uid string) (Row, error)

	// First returns the first row matching the filter, or domain.ErrNotFound.
	First(ctx context.Context, table string, filter Filter, opts ListOptions) (Row, error)

	// List returns the rows matching the filter.
	List(ctx context.Context, table string, filter Filter, opts ListOptions) ([]Row, error)

	// Update merges the given columns into the row. A nil value clears the column.
	// Returns domain.ErrNotFound if the row does not exist.
	Update(ctx context.Context, table string, id int64, fields Row) error

	// Delete removes the row. Deleting a missing row is not an error.
	Delete(ctx context.Context, table string, id int64) error
}
