package sqlxrepos

import (
	"context"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core/migrate"
)

// TableStore reads and writes whole rows of arbitrary tables.
// Wrap the legacy connection to get a migrate.Reader and the current one to get a migrate.Writer.
type TableStore struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
}

var (
	_ migrate.Reader = (*TableStore)(nil)
	_ migrate.Writer = (*TableStore)(nil)
)

func NewTableStore(db *sqlx.DB) *TableStore {
	return &TableStore{db: db, builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// quoteIdent quotes a possibly schema-qualified identifier.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (s *TableStore) selectPage(table, orderColumn string, offset, limit int) (string, []interface{}, error) {
	q := s.builder.
		Select("*").
		From(quoteIdent(table)).
		OrderBy(quoteIdent(orderColumn)).
		Limit(uint64(limit))
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q.ToSql()
}

func (s *TableStore) ReadPage(ctx context.Context, table, orderColumn string, offset, limit int) ([]migrate.Record, error) {
	query, args, err := s.selectPage(table, orderColumn, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "selecting from %s", table)
	}
	defer func() { _ = rows.Close() }()

	page := make([]migrate.Record, 0, limit)
	for rows.Next() {
		r := make(map[string]interface{})
		if err = rows.MapScan(r); err != nil {
			return nil, errors.Wrapf(err, "scanning %s", table)
		}
		page = append(page, normalize(r))
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating %s", table)
	}
	return page, nil
}

// normalize turns the []byte values lib/pq returns for text-like columns into strings.
func normalize(r map[string]interface{}) migrate.Record {
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			r[k] = string(b)
		}
	}
	return r
}

// columns returns the sorted union of the keys of records.
func columns(records []migrate.Record) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// maxBindParams is the number of placeholders Postgres accepts in one statement.
const maxBindParams = 65535

// splitByParams cuts records into runs whose insert stays under maxBindParams placeholders.
func splitByParams(records []migrate.Record, ncols int) [][]migrate.Record {
	size := len(records)
	if ncols > 0 && size*ncols > maxBindParams {
		size = maxBindParams / ncols
	}
	if size < 1 {
		size = 1
	}
	chunks := make([][]migrate.Record, 0, (len(records)+size-1)/size)
	for len(records) > size {
		chunks = append(chunks, records[:size])
		records = records[size:]
	}
	return append(chunks, records)
}

func (s *TableStore) insertRows(table string, cols []string, records []migrate.Record) (string, []interface{}, error) {
	quoted := make([]string, 0, len(cols))
	for _, c := range cols {
		quoted = append(quoted, quoteIdent(c))
	}

	q := s.builder.Insert(quoteIdent(table)).Columns(quoted...)
	for _, r := range records {
		vals := make([]interface{}, 0, len(cols))
		for _, c := range cols {
			vals = append(vals, r[c]) // missing -> NULL
		}
		q = q.Values(vals...)
	}
	return q.ToSql()
}

// InsertRecords writes a page entirely or not at all.
// Pages too wide for a single statement are split into several inserts within one transaction.
func (s *TableStore) InsertRecords(ctx context.Context, table string, records []migrate.Record) error {
	if len(records) == 0 {
		return nil
	}
	cols := columns(records)
	chunks := splitByParams(records, len(cols))
	if len(chunks) == 1 {
		return s.insert(ctx, s.db, table, cols, records)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	for _, chunk := range chunks {
		if err = s.insert(ctx, tx, table, cols, chunk); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (s *TableStore) insert(ctx context.Context, exec sqlx.ExecerContext, table string, cols []string, records []migrate.Record) error {
	query, args, err := s.insertRows(table, cols, records)
	if err != nil {
		return errors.Wrap(err, "building insert")
	}
	if _, err = exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "inserting into %s", table)
	}
	return nil
}
