package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/rpc"
)

// Func is the body of a bucket-scoped procedure. It runs only after the
// bucket has been admitted for the procedure's mode.
type Func func(ctx context.Context, bucketID uint64, args rpc.Args) (any, error)

// Procedure is a named callable together with the weakest access mode
// it needs. A write procedure is admitted as a write even when the
// caller asks for read.
type Procedure struct {
	Name string
	Mode buckets.Mode
	Fn   Func
}

// Registry maps procedure names to procedures. It is filled at startup.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]*Procedure
}

func NewRegistry() *Registry {
	return &Registry{
		procs: map[string]*Procedure{},
	}
}

// Register adds or replaces a procedure.
func (r *Registry) Register(name string, mode buckets.Mode, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[name] = &Procedure{
		Name: name,
		Mode: mode,
		Fn:   fn,
	}
}

func (r *Registry) Lookup(name string) (*Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[name]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make([]string, 0, len(r.procs))
	for name := range r.procs {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}
