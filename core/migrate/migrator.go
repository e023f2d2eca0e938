// Package migrate copies rows from the legacy database into the current one, page by page.
package migrate

import (
	"context"
	"fmt"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core"
)

const (
	DefaultPageSize    = 500
	DefaultOrderColumn = "id"
)

// TableMigration describes the copy of one legacy table into one table of the current database.
type TableMigration struct {
	Source      string   `json:"source" validate:"required,sqlident"`
	Destination string   `json:"destination" validate:"required,sqlident"`
	FieldMap    FieldMap `json:"field_map" validate:"omitempty,dive,keys,sqlident,endkeys,sqlident"`
	// Transform runs after FieldMap; nil keeps every row as is.
	Transform Transform `json:"-"`
	// OrderColumn must be unique and stable for every row to be visited exactly once.
	OrderColumn string `json:"order_column" validate:"omitempty,sqlident"`
}

func (tm TableMigration) orderColumn() string {
	if tm.OrderColumn == "" {
		return DefaultOrderColumn
	}
	return tm.OrderColumn
}

// apply remaps then transforms one row.
func (tm TableMigration) apply(r Record) (Record, bool) {
	r = tm.FieldMap.Apply(r)
	if tm.Transform == nil {
		return r, true
	}
	return tm.Transform(r).Record()
}

type Option func(*Migrator)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(m *Migrator) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// WithOutput reports progress lines to out.
func WithOutput(out core.Output) Option {
	return func(m *Migrator) {
		if out != nil {
			m.out = out
		}
	}
}

// Migrator reads from a legacy Reader and writes to a current Writer.
// It never writes to the legacy side.
type Migrator struct {
	legacy     Reader
	current    Writer
	pageSize   int
	out        core.Output
	validate   *validator.Validate
	translator ut.Translator
}

func NewMigrator(legacy Reader, current Writer, opts ...Option) *Migrator {
	validate, translator := core.NewValidator()
	m := &Migrator{
		legacy:     legacy,
		current:    current,
		pageSize:   DefaultPageSize,
		out:        core.DiscardOutput,
		validate:   validate,
		translator: translator,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validate checks the table and column names of tm, and that no two columns are renamed to the same name.
func (m *Migrator) Validate(tm TableMigration) error {
	if err := m.validate.Struct(tm); err != nil {
		return core.TranslateValidationErrors(err, m.translator)
	}
	if dup := tm.FieldMap.Collisions(); len(dup) > 0 {
		return core.NewValidationError(nil, core.FieldError{
			Field: "field_map",
			Error: fmt.Sprintf("several columns renamed to %s", strings.Join(dup, ", ")),
		})
	}
	return nil
}

// MigrateSimpleTable copies tm.Source into tm.Destination and returns the number of inserted rows.
// Each page is read, remapped, transformed and inserted before the next page is read.
// An insert error aborts the migration; pages inserted before it stay in place.
// Running it twice inserts every kept row twice unless the destination rejects duplicates.
func (m *Migrator) MigrateSimpleTable(ctx context.Context, tm TableMigration) (int, error) {
	if err := m.Validate(tm); err != nil {
		return 0, err
	}
	m.out.Info(fmt.Sprintf("Migrating %s → %s...", tm.Source, tm.Destination))

	var total int
	pager := NewPager(m.legacy, tm.Source, tm.orderColumn(), m.pageSize, 0)
	for {
		page, ok, err := pager.Next(ctx)
		if err != nil {
			return total, err
		}
		if !ok {
			break
		}

		batch := make([]Record, 0, len(page))
		for _, row := range page {
			if rec, keep := tm.apply(row); keep {
				batch = append(batch, rec)
			}
		}
		if len(batch) == 0 {
			continue
		}
		if err = m.current.InsertRecords(ctx, tm.Destination, batch); err != nil {
			return total, errors.Wrapf(err, "inserting %d rows into %s", len(batch), tm.Destination)
		}
		total += len(batch)
	}

	m.out.Line(fmt.Sprintf("Migrated %d %s into %s.", total, core.Plural(total, "row"), tm.Destination))
	return total, nil
}

// MigrateTables runs each migration in order and returns the total number of inserted rows.
// It stops at the first failing migration.
func (m *Migrator) MigrateTables(ctx context.Context, plan ...TableMigration) (int, error) {
	var total int
	for _, tm := range plan {
		n, err := m.MigrateSimpleTable(ctx, tm)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "migrating %s", tm.Source)
		}
	}
	return total, nil
}
