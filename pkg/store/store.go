// Package store provides typed repositories for agents, conversations,
// messages and steps on top of a ports.RowStore.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// Store groups the repositories sharing one row store.
type Store struct {
	Agents   *AgentRepo
	Convs    *ConvRepo
	Messages *MessageRepo
	Steps    *StepRepo
}

// Option configures a Store.
type Option func(*base)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		b.now = now
	}
}

// New creates the repositories over rows.
func New(rows ports.RowStore, opts ...Option) *Store {
	b := &base{rows: rows, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return &Store{
		Agents:   &AgentRepo{b},
		Convs:    &ConvRepo{b},
		Messages: &MessageRepo{b},
		Steps:    &StepRepo{b},
	}
}

type base struct {
	rows ports.RowStore
	now  func() time.Time
}

func (b *base) stamp() int64 {
	return b.now().UnixMicro()
}

func newUID() string {
	return uuid.NewString()
}

func (b *base) get(ctx context.Context, table string, id int64, out any) error {
	row, err := b.rows.Get(ctx, table, id)
	if err != nil {
		return wrap(err, "get %s %d", table, id)
	}
	return decodeRow(row, out)
}

func (b *base) create(ctx context.Context, table string, row ports.Row) (int64, error) {
	ts := b.stamp()
	row["ctime"] = ts
	row["mtime"] = ts
	id, err := b.rows.Create(ctx, table, row)
	if err != nil {
		return 0, wrap(err, "create %s", table)
	}
	return id, nil
}

func (b *base) update(ctx context.Context, table string, id int64, fields ports.Row) error {
	fields["mtime"] = b.stamp()
	if err := b.rows.Update(ctx, table, id, fields); err != nil {
		return wrap(err, "update %s %d", table, id)
	}
	return nil
}

// wrap adds context and marks every non-lookup failure as a persistence error.
func wrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrPersistence) {
		return fmt.Errorf("failed to %s: %w", msg, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", msg, domain.ErrPersistence, err)
}

var timeType = reflect.TypeOf(time.Time{})

// unixMicroHook decodes Unix microsecond columns into time.Time fields.
func unixMicroHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case int64:
		return time.UnixMicro(v).UTC(), nil
	case int:
		return time.UnixMicro(int64(v)).UTC(), nil
	case float64:
		return time.UnixMicro(int64(v)).UTC(), nil
	}
	return data, nil
}

func decodeRow(row ports.Row, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       unixMicroHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(row)); err != nil {
		return fmt.Errorf("%w: failed to decode row: %v", domain.ErrPersistence, err)
	}
	return nil
}

func decodeRows[T any](rows []ports.Row) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := decodeRow(row, &v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, nil
}

func nullable[T comparable](v T) any {
	var zero T
	if v == zero {
		return nil
	}
	return v
}
