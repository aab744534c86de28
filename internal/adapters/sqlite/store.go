// Package sqlite implements ports.RowStore on an SQLite file through the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	_ "modernc.org/sqlite"
)

const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// Store implements ports.RowStore using SQLite.
type Store struct {
	db         *sql.DB
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

var _ ports.RowStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetry sets how many times busy writes are attempted and the base
// delay between attempts.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.maxRetries = attempts
		}
		if baseDelay > 0 {
			s.retryDelay = baseDelay
		}
	}
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		db:         db,
		logger:     logging.NewNop(),
		maxRetries: 3,
		retryDelay: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func checkTable(table string) error {
	if _, ok := columns[table]; !ok {
		return fmt.Errorf("%w: unknown table '%s'", domain.ErrPersistence, table)
	}
	return nil
}

func checkColumns(table string, row ports.Row) ([]string, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(row))
	for k := range row {
		if !knownColumn(table, k) {
			return nil, fmt.Errorf("%w: unknown column '%s.%s'", domain.ErrPersistence, table, k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

func dbErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	msg := fmt.Sprintf(format, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s: duplicate key: %v", domain.ErrPersistence, msg, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, msg, err)
}

func (s *Store) Create(ctx context.Context, table string, row ports.Row) (int64, error) {
	fields := row.Clone()
	delete(fields, "id")
	cols, err := checkColumns(table, fields)
	if err != nil {
		return 0, err
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		marks[i] = "?"
		args[i] = fields[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	var id int64
	err = s.withRetry(ctx, "create", func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, dbErr(err, "failed to insert into %s", table)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, table string, id int64) (ports.Row, error) {
	return s.First(ctx, table, ports.Filter{ports.Eq("id", id)}, ports.ListOptions{})
}

func (s *Store) GetByUID(ctx context.Context, table string, uid string) (ports.Row, error) {
	return s.First(ctx, table, ports.Filter{ports.Eq("uid", uid)}, ports.ListOptions{})
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

func (s *Store) List(ctx context.Context, table string, filter ports.Filter, opts ports.ListOptions) ([]ports.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	where, args, err := whereClause(table, filter)
	if err != nil {
		return nil, err
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	if !knownColumn(table, orderBy) {
		return nil, fmt.Errorf("%w: unknown order column '%s'", domain.ErrPersistence, orderBy)
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}

	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s %s, \"id\" %s", quote(table), where, quote(orderBy), dir, dir)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr(err, "failed to query %s", table)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, dbErr(err, "failed to scan %s", table)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table string, id int64, fields ports.Row) error {
	fields = fields.Clone()
	delete(fields, "id")
	cols, err := checkColumns(table, fields)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		_, err := s.Get(ctx, table, id)
		return err
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
		args = append(args, fields[c])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE \"id\" = ?", quote(table), strings.Join(sets, ", "))

	var affected int64
	err = s.withRetry(ctx, "update", func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return dbErr(err, "failed to update %s %d", table, id)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	if err := checkTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE \"id\" = ?", quote(table))
	err := s.withRetry(ctx, "delete", func() error {
		_, err := s.db.ExecContext(ctx, query, id)
		return err
	})
	return dbErr(err, "failed to delete %s %d", table, id)
}

func whereClause(table string, filter ports.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter))
	for _, c := range filter {
		if !knownColumn(table, c.Field) {
			return "", nil, fmt.Errorf("%w: unknown filter column '%s.%s'", domain.ErrPersistence, table, c.Field)
		}
		col := quote(c.Field)
		switch c.Op {
		case ports.OpIsNull:
			parts = append(parts, col+" IS NULL")
		case ports.OpNotNull:
			parts = append(parts, col+" IS NOT NULL")
		default:
			parts = append(parts, col+" = ?")
			args = append(args, c.Value)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func scanRows(rows *sql.Rows) ([]ports.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []ports.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(ports.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
