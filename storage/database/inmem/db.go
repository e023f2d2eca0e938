package inmemdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core/migrate"
)

// ErrDuplicate is returned when an insert violates a unique column.
var ErrDuplicate = errors.New("duplicate key value violates unique constraint")

type (
	// DB keeps tables of rows in memory.
	// Tables keep insertion order; reads return copies so callers can never mutate stored rows.
	DB struct {
		mu     sync.RWMutex
		tables map[string][]migrate.Record
		unique map[string]string // table -> unique column
	}

	// TableStore exposes a DB as both a migrate.Reader and a migrate.Writer.
	TableStore struct {
		db *DB
	}
)

var (
	_ migrate.Reader = (*TableStore)(nil)
	_ migrate.Writer = (*TableStore)(nil)
)

func Open() *DB {
	return &DB{
		tables: make(map[string][]migrate.Record),
		unique: make(map[string]string),
	}
}

// Unique makes inserts into table fail when column repeats an existing value.
func (db *DB) Unique(table, column string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.unique[table] = column
}

// Seed creates table if needed and appends rows to it without any constraint check.
func (db *DB) Seed(table string, rows ...migrate.Record) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tables[table]; !ok {
		db.tables[table] = []migrate.Record{}
	}
	for _, r := range rows {
		db.tables[table] = append(db.tables[table], r.Copy())
	}
}

// Rows returns a copy of every row of table in insertion order.
func (db *DB) Rows(table string) []migrate.Record {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows := make([]migrate.Record, 0, len(db.tables[table]))
	for _, r := range db.tables[table] {
		rows = append(rows, r.Copy())
	}
	return rows
}

func NewTableStore(db *DB) *TableStore {
	return &TableStore{db: db}
}

func (s *TableStore) ReadPage(ctx context.Context, table, orderColumn string, offset, limit int) ([]migrate.Record, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	rows, ok := s.db.tables[table]
	if !ok {
		return nil, errors.Errorf("relation %q does not exist", table)
	}
	sorted := make([]migrate.Record, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i][orderColumn], sorted[j][orderColumn])
	})

	if offset >= len(sorted) {
		return []migrate.Record{}, nil
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	page := make([]migrate.Record, 0, end-offset)
	for _, r := range sorted[offset:end] {
		page = append(page, r.Copy())
	}
	return page, nil
}

func (s *TableStore) InsertRecords(ctx context.Context, table string, records []migrate.Record) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if col, ok := s.db.unique[table]; ok {
		seen := make(map[interface{}]bool, len(s.db.tables[table])+len(records))
		for _, r := range s.db.tables[table] {
			seen[r[col]] = true
		}
		for _, r := range records {
			if seen[r[col]] {
				return errors.Wrapf(ErrDuplicate, "%s.%s = %v", table, col, r[col])
			}
			seen[r[col]] = true
		}
	}
	for _, r := range records {
		s.db.tables[table] = append(s.db.tables[table], r.Copy())
	}
	return nil
}

// less orders nil first, then numbers, times and strings by value; mixed types compare as text.
func less(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b != nil
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af < bf
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
