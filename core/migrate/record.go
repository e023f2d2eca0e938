package migrate

import "sort"

// Record is one row of a table: column name -> scalar value.
type Record map[string]interface{}

// Copy returns a shallow copy of r.
func (r Record) Copy() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// FieldMap maps old column names to new column names.
// No two old names may share a new name; see FieldMap.Collisions.
type FieldMap map[string]string

// Collisions returns, sorted, the new names targeted by more than one old name.
func (fm FieldMap) Collisions() []string {
	seen := make(map[string]int, len(fm))
	for _, to := range fm {
		seen[to]++
	}
	var dup []string
	for to, n := range seen {
		if n > 1 {
			dup = append(dup, to)
		}
	}
	sort.Strings(dup)
	return dup
}

// Apply renames the columns of r that appear in fm.
// All renames happen at once: values are read before any old column is removed,
// so swapped or chained names do not depend on map order and an identity pair keeps its column.
func (fm FieldMap) Apply(r Record) Record {
	if len(fm) == 0 {
		return r
	}
	moved := make(Record, len(fm))
	for from, to := range fm {
		if v, ok := r[from]; ok {
			moved[to] = v
			delete(r, from)
		}
	}
	for k, v := range moved {
		r[k] = v
	}
	return r
}

// Result is the outcome of a Transform: either a Record to keep or an omission.
type Result struct {
	record Record
	keep   bool
}

// Keep returns a Result that inserts r. A nil r omits the row.
func Keep(r Record) Result { return Result{record: r, keep: r != nil} }

// Omit returns a Result that drops the row.
func Omit() Result { return Result{} }

// Record returns the kept Record; ok is false for omitted rows.
func (res Result) Record() (r Record, ok bool) {
	if !res.keep || res.record == nil {
		return nil, false
	}
	return res.record, true
}

// Transform reshapes a (remapped) legacy row.
type Transform func(Record) Result

// Chain runs transforms in order, stopping at the first omission.
func Chain(transforms ...Transform) Transform {
	return func(r Record) Result {
		res := Keep(r)
		for _, t := range transforms {
			rec, ok := res.Record()
			if !ok {
				break
			}
			res = t(rec)
		}
		return res
	}
}
