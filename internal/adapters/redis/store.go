// Package redis provides Redis backed adapters: a row store, a pub/sub hub
// and a conversation locker.
package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the adapters.
const DefaultPrefix = "tendril:"

// Store implements ports.RowStore using Redis.
//
// Each row is a JSON string under <prefix><table>:<id>. Ids come from INCR on
// <prefix><table>:seq, a ZSET <prefix><table>:ids indexes them in order and a
// hash <prefix><table>:uids maps uids to ids.
type Store struct {
	client *backend.Client
	prefix string
}

var _ ports.RowStore = (*Store)(nil)

type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a store connected to address.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying client so a Hub or Locker can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) rowKey(table string, id int64) string {
	return s.prefix + table + ":" + strconv.FormatInt(id, 10)
}

func (s *Store) seqKey(table string) string {
	return s.prefix + table + ":seq"
}

func (s *Store) idsKey(table string) string {
	return s.prefix + table + ":ids"
}

func (s *Store) uidsKey(table string) string {
	return s.prefix + table + ":uids"
}

func (s *Store) Create(ctx context.Context, table string, row ports.Row) (int64, error) {
	id, err := s.client.Incr(ctx, s.seqKey(table)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to allocate id: %v", domain.ErrPersistence, err)
	}

	uid, _ := row["uid"].(string)
	if uid != "" {
		ok, err := s.client.HSetNX(ctx, s.uidsKey(table), uid, id).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: failed to index uid: %v", domain.ErrPersistence, err)
		}
		if !ok {
			return 0, fmt.Errorf("%w: duplicate uid '%s' in %s", domain.ErrPersistence, uid, table)
		}
	}

	stored := row.Clone()
	stored["id"] = id
	data, err := json.Marshal(stored)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to marshal row: %v", domain.ErrPersistence, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.rowKey(table, id), data, 0)
		pipe.ZAdd(ctx, s.idsKey(table), backend.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to save row: %v", domain.ErrPersistence, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, table string, id int64) (ports.Row, error) {
	val, err := s.client.Get(ctx, s.rowKey(table, id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to get from redis: %v", domain.ErrPersistence, err)
	}
	return decodeRow(val)
}

func (s *Store) GetByUID(ctx context.Context, table string, uid string) (ports.Row, error) {
	id, err := s.client.HGet(ctx, s.uidsKey(table), uid).Int64()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to resolve uid: %v", domain.ErrPersistence, err)
	}
	return s.Get(ctx, table, id)
}

func (s *Store) First(ctx context.Context, table string, filter ports.Filter, opts ports.ListOptions) (ports.Row, error) {
	opts.Limit = 1
	rows, err := s.List(ctx, table, filter, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

// List loads every row of the table and filters it client side.
func (s *Store) List(ctx context.Context, table string, filter ports.Filter, opts ports.ListOptions) ([]ports.Row, error) {
	ids, err := s.client.ZRange(ctx, s.idsKey(table), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list ids: %v", domain.ErrPersistence, err)
	}
	if len(ids) == 0 {
		return []ports.Row{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + table + ":" + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load rows: %v", domain.ErrPersistence, err)
	}

	rows := make([]ports.Row, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Deleted between ZRANGE and MGET.
			continue
		}
		row, err := decodeRow(str)
		if err != nil {
			return nil, err
		}
		if filter.Match(row) {
			rows = append(rows, row)
		}
	}
	return ports.SortRows(rows, opts), nil
}

// Update merges fields into the row, retrying when a concurrent writer
// touched it.
func (s *Store) Update(ctx context.Context, table string, id int64, fields ports.Row) error {
	key := s.rowKey(table, id)
	txf := func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return domain.ErrNotFound
			}
			return err
		}
		row, err := decodeRow(val)
		if err != nil {
			return err
		}
		for k, v := range fields {
			if k == "id" {
				continue
			}
			row[k] = v
		}
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < 5; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, backend.TxFailedErr) {
			break
		}
	}
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: failed to update row: %v", domain.ErrPersistence, err)
}

func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	row, err := s.Get(ctx, table, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Del(ctx, s.rowKey(table, id))
		pipe.ZRem(ctx, s.idsKey(table), id)
		if uid, _ := row["uid"].(string); uid != "" {
			pipe.HDel(ctx, s.uidsKey(table), uid)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete row: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// decodeRow parses a stored row. Integral JSON numbers become int64 and the
// rest float64, matching what the other stores return.
func decodeRow(val string) (ports.Row, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(val)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal row: %v", domain.ErrPersistence, err)
	}
	row := make(ports.Row, len(raw))
	for k, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			row[k] = v
			continue
		}
		if i, err := n.Int64(); err == nil {
			row[k] = i
		} else if f, err := n.Float64(); err == nil {
			row[k] = f
		} else {
			row[k] = n.String()
		}
	}
	return row, nil
}
