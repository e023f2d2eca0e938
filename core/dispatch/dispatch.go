// Package dispatch groups user owned items and hands one unit of work per user to an Executor.
package dispatch

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/user"
)

type (
	// Owned is an item that belongs to a user, e.g. a seminar registration.
	Owned interface {
		// Key identifies the item itself.
		Key() string
		// OwnerID identifies the owning user; items are grouped on it.
		OwnerID() string
		// Owner returns the preloaded owner, if it resolves.
		Owner() (user.User, bool)
	}

	// Job is one unit of work for a single user.
	Job interface {
		Handle(ctx context.Context) error
	}

	// JobKind builds Jobs from a user and the ordered keys of that user's items.
	JobKind interface {
		Name() string
		New(usr user.User, keys []string) Job
	}

	// Executor runs (or schedules) the Job built by kind.
	Executor interface {
		Execute(ctx context.Context, kind JobKind, usr user.User, keys []string) error
	}
)

// Group holds the items of one owner, in their original relative order.
type Group struct {
	OwnerID string
	Items   []Owned
}

// Keys returns the item keys of the group in order.
func (g Group) Keys() []string {
	keys := make([]string, 0, len(g.Items))
	for _, it := range g.Items {
		keys = append(keys, it.Key())
	}
	return keys
}

// Owner resolves the group's owner from its first item.
func (g Group) Owner() (user.User, bool) {
	if len(g.Items) == 0 {
		return user.User{}, false
	}
	return g.Items[0].Owner()
}

// GroupByOwner partitions items by OwnerID.
// Groups are returned in order of first appearance of their owner.
func GroupByOwner(items []Owned) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, it := range items {
		id := it.OwnerID()
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group{OwnerID: id})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// Dispatcher hands one Job per owner to its Executor and reports progress to an Output.
type Dispatcher struct {
	exec Executor
	out  core.Output
}

func NewDispatcher(exec Executor, out core.Output) *Dispatcher {
	if out == nil {
		out = core.DiscardOutput
	}
	return &Dispatcher{exec: exec, out: out}
}

// DispatchGroupedByUser groups items by owner and executes one Job of kind per owner that resolves.
// Owners that do not resolve are skipped silently.
// It returns the number of dispatched Jobs. On an Executor error, the count dispatched so far is
// returned along with the error and the remaining groups are left untouched.
func (d *Dispatcher) DispatchGroupedByUser(ctx context.Context, items []Owned, kind JobKind, label string) (int, error) {
	groups := GroupByOwner(items)
	d.out.Info(foundMessage(len(groups), label))

	var dispatched int
	for _, g := range groups {
		usr, ok := g.Owner()
		if !ok {
			continue
		}
		keys := g.Keys()
		if err := d.exec.Execute(ctx, kind, usr, keys); err != nil {
			return dispatched, errors.Wrapf(err, "dispatching %s for user %s", kind.Name(), usr.ID)
		}
		dispatched++
		d.out.Line(fmt.Sprintf("- %s: %d %s", usr.Email, len(keys), core.Plural(len(keys), "registration")))
	}
	return dispatched, nil
}

func foundMessage(n int, label string) string {
	if label == "" {
		return fmt.Sprintf("Found %d %s.", n, core.Plural(n, "user"))
	}
	return fmt.Sprintf("Found %d %s %s.", n, core.Plural(n, "user"), label)
}
