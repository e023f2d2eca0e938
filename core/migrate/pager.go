package migrate

import (
	"context"

	"github.com/pkg/errors"
)

// Reader gives ordered, paginated read access to tables of the legacy database.
type Reader interface {
	// ReadPage returns at most limit rows of table ordered by orderColumn, skipping the first offset rows.
	ReadPage(ctx context.Context, table, orderColumn string, offset, limit int) ([]Record, error)
}

// Writer inserts rows into tables of the current database.
type Writer interface {
	// InsertRecords inserts records into table in one statement.
	InsertRecords(ctx context.Context, table string, records []Record) error
}

// Pager walks a table page by page.
// It can be restarted from any offset with NewPager but is consumed once; it is not safe for concurrent use.
type Pager struct {
	src         Reader
	table       string
	orderColumn string
	size        int
	offset      int
	done        bool
}

func NewPager(src Reader, table, orderColumn string, size, offset int) *Pager {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Pager{src: src, table: table, orderColumn: orderColumn, size: size, offset: offset}
}

// Next returns the next page. ok is false once the table is exhausted.
// A page shorter than the page size is the last one.
func (p *Pager) Next(ctx context.Context) (page []Record, ok bool, err error) {
	if p.done {
		return nil, false, nil
	}
	page, err = p.src.ReadPage(ctx, p.table, p.orderColumn, p.offset, p.size)
	if err != nil {
		p.done = true
		return nil, false, errors.Wrapf(err, "reading %s at offset %d", p.table, p.offset)
	}
	if len(page) < p.size {
		p.done = true
	}
	if len(page) == 0 {
		return nil, false, nil
	}
	p.offset += len(page)
	return page, true, nil
}

// Offset is the number of rows read so far, usable to restart a Pager.
func (p *Pager) Offset() int { return p.offset }
