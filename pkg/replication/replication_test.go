package replication_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/replication"
)

func TestVClockLessOrEqual(t *testing.T) {
	for _, tt := range []struct {
		name  string
		a, b  replication.VClock
		equal bool
	}{
		{"empty", replication.VClock{}, replication.VClock{}, true},
		{"behind", replication.VClock{"a": 1}, replication.VClock{"a": 2}, true},
		{"ahead", replication.VClock{"a": 3}, replication.VClock{"a": 2}, false},
		{"missing component is zero", replication.VClock{"a": 1}, replication.VClock{"b": 5}, false},
		{"extra component", replication.VClock{"a": 1}, replication.VClock{"a": 1, "b": 5}, true},
		{"mixed", replication.VClock{"a": 1, "b": 6}, replication.VClock{"a": 2, "b": 5}, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.LessOrEqual(tt.b))
		})
	}
}

func TestVClockMergeAndString(t *testing.T) {
	assert := assert.New(t)

	vc := replication.VClock{"a": 3, "b": 1}
	vc.Merge(replication.VClock{"a": 2, "b": 4, "c": 1})
	assert.Equal(replication.VClock{"a": 3, "b": 4, "c": 1}, vc)
	assert.Equal("{a: 3, b: 4, c: 1}", vc.String())

	cp := vc.Clone()
	cp["a"] = 10
	assert.Equal(uint64(3), vc["a"])
}

func TestTrackerAcks(t *testing.T) {
	assert := assert.New(t)

	tr := replication.NewTracker("m")
	tr.SetDownstreams([]string{"m", "r1", "r2"})

	tr.Advance()
	tr.Advance()
	target := tr.LocalVClock()
	assert.Equal(replication.VClock{"m": 2}, target)

	assert.ElementsMatch([]string{"r1", "r2"}, replication.Lagging(tr, target))

	tr.Ack("r1", replication.VClock{"m": 2})
	tr.Ack("r2", replication.VClock{"m": 1})
	tr.Ack("stranger", replication.VClock{"m": 9})
	assert.Equal([]string{"r2"}, replication.Lagging(tr, target))

	// acks never move back
	tr.Ack("r1", replication.VClock{"m": 0})
	assert.Equal(uint64(2), tr.Downstreams()["r1"]["m"])

	tr.SetDownstreams([]string{"r1"})
	assert.Empty(replication.Lagging(tr, target))
	assert.Len(tr.Downstreams(), 1)
}

func TestTrackedKVDBAdvancesOnSuccess(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	tr := replication.NewTracker("m")
	db := tr.Track(kvdb.NewMemKVDB(""))

	assert.NoError(db.PutBucket(ctx, kvdb.NewBucket(1, "active", "")))
	assert.NoError(db.PutTuple(ctx, kvdb.NewTuple("s", "k", 1, nil)))
	assert.Equal(uint64(2), tr.LocalVClock()["m"])

	err := db.Commit(ctx, kvdb.NewTransaction().BucketAbsent(1).PutBucket(kvdb.NewBucket(1, "receiving", "rs2")))
	assert.ErrorIs(err, kvdb.ErrGuardFailed)
	assert.Equal(uint64(2), tr.LocalVClock()["m"])

	// reads pass through
	b, err := db.GetBucket(ctx, 1)
	assert.NoError(err)
	assert.Equal("active", b.Status)
}
