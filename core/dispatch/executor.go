package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core/user"
)

// ErrUnknownKind is returned by Registry.Lookup for unregistered job kinds.
var ErrUnknownKind = errors.New("unknown job kind")

type inline struct{}

// Inline runs Jobs in the caller's goroutine and blocks until they complete.
var Inline Executor = inline{}

func (inline) Execute(ctx context.Context, kind JobKind, usr user.User, keys []string) error {
	return kind.New(usr, keys).Handle(ctx)
}

// SelectExecutor returns Inline when sync is set, async otherwise.
func SelectExecutor(sync bool, async Executor) Executor {
	if sync || async == nil {
		return Inline
	}
	return async
}

// Registry maps job kind names to JobKinds.
// Workers use it to rebuild Jobs from queued messages.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]JobKind
}

func NewRegistry(kinds ...JobKind) *Registry {
	r := &Registry{kinds: make(map[string]JobKind, len(kinds))}
	for _, k := range kinds {
		r.Register(k)
	}
	return r
}

// Register adds kind, replacing any kind registered under the same name.
func (r *Registry) Register(kind JobKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind.Name()] = kind
}

func (r *Registry) Lookup(name string) (JobKind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.kinds[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownKind, name)
	}
	return kind, nil
}

// Names returns the registered kind names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
