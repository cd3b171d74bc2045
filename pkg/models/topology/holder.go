package topology

import (
	"go.uber.org/atomic"
)

// Holder publishes the current cluster snapshot to concurrent readers.
type Holder struct {
	p *atomic.Pointer[ClusterState]
}

func NewHolder() *Holder {
	return &Holder{p: atomic.NewPointer[ClusterState](nil)}
}

// Load returns the current snapshot or nil before the first configuration.
func (h *Holder) Load() *ClusterState {
	return h.p.Load()
}

// Swap publishes cs and returns the previous snapshot.
func (h *Holder) Swap(cs *ClusterState) *ClusterState {
	return h.p.Swap(cs)
}
