package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// Store implements ports.RowStore in memory.
// Safe for concurrent use.
type Store struct {
	tables map[string]*table
	mu     sync.RWMutex
}

type table struct {
	nextID int64
	rows   map[int64]ports.Row
	uids   map[string]int64
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		tables: make(map[string]*table),
	}
}

func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[int64]ports.Row), uids: make(map[string]int64)}
		s.tables[name] = t
	}
	return t
}

// Create stores a copy of the row under a new id.
func (s *Store) Create(ctx context.Context, tableName string, row ports.Row) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(tableName)
	uid, _ := row["uid"].(string)
	if uid != "" {
		if _, exists := t.uids[uid]; exists {
			return 0, fmt.Errorf("%w: duplicate uid '%s' in %s", domain.ErrPersistence, uid, tableName)
		}
	}

	t.nextID++
	id := t.nextID
	stored := row.Clone()
	stored["id"] = id
	t.rows[id] = stored
	if uid != "" {
		t.uids[uid] = id
	}
	return id, nil
}

// Get returns a copy of the row so callers cannot mutate the store.
func (s *Store) Get(ctx context.Context, tableName string, id int64) (ports.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[tableName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	row, ok := t.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return row.Clone(), nil
}

func (s *Store) GetByUID(ctx context.Context, tableName string, uid string) (ports.Row, error) {
	s.mu.RLock()
	t, ok := s.tables[tableName]
	var id int64
	if ok {
		id, ok = t.uids[uid]
	}
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Get(ctx, tableName, id)
}

func (s *Store) First(ctx context.Context, tableName string, filter ports.Filter, opts ports.ListOptions) (ports.Row, error) {
	opts.Limit = 1
	rows, err := s.List(ctx, tableName, filter, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) List(ctx context.Context, tableName string, filter ports.Filter, opts ports.ListOptions) ([]ports.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[tableName]
	if !ok {
		return []ports.Row{}, nil
	}
	rows := make([]ports.Row, 0, len(t.rows))
	for _, row := range t.rows {
		if filter.Match(row) {
			rows = append(rows, row.Clone())
		}
	}
	return ports.SortRows(rows, opts), nil
}

func (s *Store) Update(ctx context.Context, tableName string, id int64, fields ports.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return domain.ErrNotFound
	}
	row, ok := t.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		row[k] = v
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, tableName string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	if row, ok := t.rows[id]; ok {
		if uid, _ := row["uid"].(string); uid != "" {
			delete(t.uids, uid)
		}
		delete(t.rows, id)
	}
	return nil
}
