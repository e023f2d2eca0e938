package dispatch

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/warsha/core/user"
	"github.com/trezcool/warsha/tests"
)

type item struct {
	id    string
	owner string
	usr   *user.User
}

func (it item) Key() string     { return it.id }
func (it item) OwnerID() string { return it.owner }
func (it item) Owner() (user.User, bool) {
	if it.usr == nil {
		return user.User{}, false
	}
	return *it.usr, true
}

// recordKind records every Job it builds and every Job that ran.
type recordKind struct {
	built [][]string
	ran   map[string][]string // user ID -> keys
	fail  map[string]error    // user ID -> error
}

func newRecordKind() *recordKind {
	return &recordKind{ran: make(map[string][]string), fail: make(map[string]error)}
}

func (k *recordKind) Name() string { return "test.record" }

func (k *recordKind) New(usr user.User, keys []string) Job {
	k.built = append(k.built, keys)
	return recordJob{kind: k, usr: usr, keys: keys}
}

type recordJob struct {
	kind *recordKind
	usr  user.User
	keys []string
}

func (j recordJob) Handle(ctx context.Context) error {
	if err := j.kind.fail[j.usr.ID]; err != nil {
		return err
	}
	j.kind.ran[j.usr.ID] = j.keys
	return nil
}

// deferred queues Jobs without running them, like a real queue would.
type deferred struct {
	queued []Job
}

func (d *deferred) Execute(ctx context.Context, kind JobKind, usr user.User, keys []string) error {
	d.queued = append(d.queued, kind.New(usr, keys))
	return nil
}

func newItems() []Owned {
	a := &user.User{ID: "a", Email: "a@test.cd"}
	return []Owned{
		item{id: "r1", owner: "a", usr: a},
		item{id: "r2", owner: "b"},
		item{id: "r3", owner: "a", usr: a},
		item{id: "r4", owner: "b"},
		item{id: "r5", owner: "a", usr: a},
	}
}

func TestGroupByOwner(t *testing.T) {
	groups := GroupByOwner(newItems())

	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].OwnerID)
	assert.Equal(t, []string{"r1", "r3", "r5"}, groups[0].Keys())
	assert.Equal(t, "b", groups[1].OwnerID)
	assert.Equal(t, []string{"r2", "r4"}, groups[1].Keys())

	_, ok := groups[1].Owner()
	assert.False(t, ok)
	_, ok = Group{}.Owner()
	assert.False(t, ok)
}

func TestDispatcher_DispatchGroupedByUser(t *testing.T) {
	errBoom := errors.New("boom")
	c := &user.User{ID: "c", Email: "c@test.cd"}

	tests := []struct {
		name      string
		items     []Owned
		label     string
		fail      map[string]error
		want      int
		wantErr   error
		wantLines []string
		wantRan   map[string][]string
	}{
		{
			name:      "skips unresolvable owner",
			items:     newItems(),
			want:      1,
			wantLines: []string{"Found 2 users.", "- a@test.cd: 3 registrations"},
			wantRan:   map[string][]string{"a": {"r1", "r3", "r5"}},
		},
		{
			name:      "label",
			items:     append(newItems(), item{id: "r6", owner: "c", usr: c}),
			label:     "with pending certificates",
			want:      2,
			wantLines: []string{"Found 3 users with pending certificates.", "- a@test.cd: 3 registrations", "- c@test.cd: 1 registration"},
			wantRan:   map[string][]string{"a": {"r1", "r3", "r5"}, "c": {"r6"}},
		},
		{
			name:      "no items",
			want:      0,
			wantLines: []string{"Found 0 users."},
			wantRan:   map[string][]string{},
		},
		{
			name:      "job failure stops dispatch",
			items:     append(newItems(), item{id: "r6", owner: "c", usr: c}),
			fail:      map[string]error{"c": errBoom},
			want:      1,
			wantErr:   errBoom,
			wantLines: []string{"Found 3 users.", "- a@test.cd: 3 registrations"},
			wantRan:   map[string][]string{"a": {"r1", "r3", "r5"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := newRecordKind()
			if tt.fail != nil {
				kind.fail = tt.fail
			}
			out := &testutil.Output{}

			got, err := NewDispatcher(Inline, out).DispatchGroupedByUser(context.Background(), tt.items, kind, tt.label)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, pkgerrors.Cause(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLines, out.Lines())
			assert.Equal(t, tt.wantRan, kind.ran)
		})
	}
}

func TestDispatcher_async(t *testing.T) {
	kind := newRecordKind()
	queue := &deferred{}

	got, err := NewDispatcher(SelectExecutor(false, queue), nil).
		DispatchGroupedByUser(context.Background(), newItems(), kind, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	// nothing ran yet
	assert.Empty(t, kind.ran)
	require.Len(t, queue.queued, 1)

	require.NoError(t, queue.queued[0].Handle(context.Background()))
	assert.Equal(t, []string{"r1", "r3", "r5"}, kind.ran["a"])
}

func TestSelectExecutor(t *testing.T) {
	queue := &deferred{}
	assert.Equal(t, Inline, SelectExecutor(true, queue))
	assert.Equal(t, Executor(queue), SelectExecutor(false, queue))
	assert.Equal(t, Inline, SelectExecutor(false, nil))
}

func TestRegistry(t *testing.T) {
	kind := newRecordKind()
	reg := NewRegistry(kind)

	got, err := reg.Lookup(kind.Name())
	require.NoError(t, err)
	assert.Equal(t, JobKind(kind), got)

	_, err = reg.Lookup("lol")
	assert.Equal(t, ErrUnknownKind, pkgerrors.Cause(err))
	assert.Equal(t, []string{"test.record"}, reg.Names())
}
