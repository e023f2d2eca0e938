package migrate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/warsha/core/migrate"
)

func TestFieldMap_Apply(t *testing.T) {
	tests := []struct {
		name string
		fm   migrate.FieldMap
		in   migrate.Record
		want migrate.Record
	}{
		{name: "nil map", in: migrate.Record{"a": 1}, want: migrate.Record{"a": 1}},
		{name: "rename", fm: migrate.FieldMap{"a": "b"}, in: migrate.Record{"a": 1, "c": 3}, want: migrate.Record{"b": 1, "c": 3}},
		{name: "missing column", fm: migrate.FieldMap{"x": "y"}, in: migrate.Record{"a": 1}, want: migrate.Record{"a": 1}},
		{name: "swap", fm: migrate.FieldMap{"a": "b", "b": "a"}, in: migrate.Record{"a": 1, "b": 2}, want: migrate.Record{"a": 2, "b": 1}},
		{name: "chain", fm: migrate.FieldMap{"a": "b", "b": "c"}, in: migrate.Record{"a": 1, "b": 2}, want: migrate.Record{"b": 1, "c": 2}},
		{name: "identity", fm: migrate.FieldMap{"a": "a", "b": "c"}, in: migrate.Record{"a": 1, "b": 2}, want: migrate.Record{"a": 1, "c": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// map iteration order varies between runs
			for i := 0; i < 20; i++ {
				if got := tt.fm.Apply(tt.in.Copy()); !assert.Equal(t, tt.want, got) {
					return
				}
			}
		})
	}
}

func TestFieldMap_Collisions(t *testing.T) {
	assert.Empty(t, migrate.FieldMap{"a": "b", "b": "a"}.Collisions())
	assert.Empty(t, migrate.FieldMap(nil).Collisions())
	assert.Equal(t, []string{"y", "z"}, migrate.FieldMap{"a": "z", "b": "z", "c": "y", "d": "y", "e": "x"}.Collisions())
}

func TestResult(t *testing.T) {
	r, ok := migrate.Keep(migrate.Record{"a": 1}).Record()
	assert.True(t, ok)
	assert.Equal(t, migrate.Record{"a": 1}, r)

	_, ok = migrate.Keep(nil).Record()
	assert.False(t, ok, "a nil record is never inserted")

	_, ok = migrate.Omit().Record()
	assert.False(t, ok)

	_, ok = migrate.Result{}.Record()
	assert.False(t, ok)
}

func TestChain(t *testing.T) {
	var calls int
	count := func(r migrate.Record) migrate.Result { calls++; return migrate.Keep(r) }
	drop := func(migrate.Record) migrate.Result { return migrate.Keep(nil) }

	_, ok := migrate.Chain(count, drop, count)(migrate.Record{"a": 1}).Record()
	assert.False(t, ok)
	assert.Equal(t, 1, calls, "transforms after an omission do not run")

	r, ok := migrate.Chain(count, count)(migrate.Record{"a": 1}).Record()
	assert.True(t, ok)
	assert.Equal(t, migrate.Record{"a": 1}, r)
	assert.Equal(t, 3, calls)
}
