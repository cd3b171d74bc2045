package replication

import (
	"context"
	"sort"
	"sync"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/smlog"
)

// Source exposes the local replication position and the position each
// downstream replica has acknowledged.
type Source interface {
	LocalVClock() VClock
	Downstreams() map[string]VClock
}

// Tracker counts local writes and collects downstream acknowledgements.
// The log shipping itself is done by the storage engine; replicas report
// what they applied through Ack.
type Tracker struct {
	mu sync.RWMutex

	self  string
	local VClock
	acks  map[string]VClock
}

var _ Source = &Tracker{}

func NewTracker(self string) *Tracker {
	return &Tracker{
		self:  self,
		local: VClock{},
		acks:  map[string]VClock{},
	}
}

// Advance registers one local write.
func (t *Tracker) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.local[t.self]++
}

// Ack records the position applied by replica. Positions never move back.
func (t *Tracker) Ack(replica string, vc VClock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	acked, ok := t.acks[replica]
	if !ok {
		smlog.Zero.Debug().Str("replica", replica).Msg("replication: ack from unknown downstream")
		return
	}
	acked.Merge(vc)
}

// SetDownstreams replaces the set of known replicas, keeping the positions
// of the ones that stay.
func (t *Tracker) SetDownstreams(replicas []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	acks := make(map[string]VClock, len(replicas))
	for _, r := range replicas {
		if r == t.self {
			continue
		}
		if vc, ok := t.acks[r]; ok {
			acks[r] = vc
		} else {
			acks[r] = VClock{}
		}
	}
	t.acks = acks
}

func (t *Tracker) LocalVClock() VClock {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.local.Clone()
}

func (t *Tracker) Downstreams() map[string]VClock {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ret := make(map[string]VClock, len(t.acks))
	for r, vc := range t.acks {
		ret[r] = vc.Clone()
	}
	return ret
}

// Lagging returns the downstreams that have not yet applied target.
func Lagging(src Source, target VClock) []string {
	var ret []string
	for r, vc := range src.Downstreams() {
		if !target.LessOrEqual(vc) {
			ret = append(ret, r)
		}
	}
	sort.Strings(ret)
	return ret
}

// trackedKVDB advances the tracker on every successful write.
type trackedKVDB struct {
	kvdb.KVDB
	t *Tracker
}

// Track wraps db so that every committed write advances the local clock.
func (t *Tracker) Track(db kvdb.KVDB) kvdb.KVDB {
	return &trackedKVDB{KVDB: db, t: t}
}

func (d *trackedKVDB) advance(err error) error {
	if err == nil {
		d.t.Advance()
	}
	return err
}

func (d *trackedKVDB) PutBucket(ctx context.Context, bucket *kvdb.Bucket) error {
	return d.advance(d.KVDB.PutBucket(ctx, bucket))
}

func (d *trackedKVDB) DeleteBucket(ctx context.Context, id uint64) error {
	return d.advance(d.KVDB.DeleteBucket(ctx, id))
}

func (d *trackedKVDB) PutTuple(ctx context.Context, tuple *kvdb.Tuple) error {
	return d.advance(d.KVDB.PutTuple(ctx, tuple))
}

func (d *trackedKVDB) DeleteTuple(ctx context.Context, space string, key string) error {
	return d.advance(d.KVDB.DeleteTuple(ctx, space, key))
}

func (d *trackedKVDB) Commit(ctx context.Context, tx *kvdb.Transaction) error {
	return d.advance(d.KVDB.Commit(ctx, tx))
}
