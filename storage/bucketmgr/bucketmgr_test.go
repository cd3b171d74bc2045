package bucketmgr_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/config"
	mockkvdb "github.com/pg-sharding/shardman/pkg/mock/kvdb"
	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/storage/bucketmgr"
)

func clusterState(t *testing.T, local string) *topology.ClusterState {
	cs, err := topology.Build(config.ShardingMap{
		"rs1": {Servers: map[string]*config.ServerCfg{
			"m1": {URI: "h1:3301", Name: "m1", Master: true},
			"r1": {URI: "h2:3301", Name: "r1"},
		}},
		"rs2": {Servers: map[string]*config.ServerCfg{
			"m2": {URI: "h3:3301", Name: "m2", Master: true},
		}},
	}, nil, local)
	if err != nil {
		t.Fatal(err)
	}
	return cs
}

func hintOf(err error) *smerror.BucketHint {
	var se *smerror.SmError
	if errors.As(err, &se) {
		return se.Hint
	}
	return nil
}

func TestCheckStateNonMaster(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mgr := bucketmgr.NewManager(kvdb.NewMemKVDB(""))
	assert.NoError(mgr.ForceCreate(ctx, 1))

	err := mgr.CheckState(ctx, clusterState(t, "r1"), 1, buckets.Read)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_NON_MASTER))
	assert.Nil(hintOf(err))

	err = mgr.CheckState(ctx, nil, 1, buckets.Read)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_NON_MASTER))
}

func TestCheckStateMissingBucket(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mgr := bucketmgr.NewManager(kvdb.NewMemKVDB(""))
	cs := clusterState(t, "m1")

	for _, mode := range []buckets.Mode{buckets.Read, buckets.Write} {
		err := mgr.CheckState(ctx, cs, 42, mode)
		assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET), mode)
		assert.Nil(hintOf(err), mode)
	}
}

func TestCheckStateByStatus(t *testing.T) {
	ctx := context.Background()
	cs := clusterState(t, "m1")

	for _, tt := range []struct {
		status      buckets.Status
		destination string
		readOk      bool
		writeOk     bool
	}{
		{buckets.Active, "", true, true},
		{buckets.Sending, "rs2", true, false},
		{buckets.Sent, "rs2", false, false},
		{buckets.Receiving, "rs2", false, false},
	} {
		t.Run(string(tt.status), func(t *testing.T) {
			assert := assert.New(t)

			db := kvdb.NewMemKVDB("")
			assert.NoError(db.PutBucket(ctx, kvdb.NewBucket(5, string(tt.status), tt.destination)))
			mgr := bucketmgr.NewManager(db)

			check := func(mode buckets.Mode, ok bool) {
				err := mgr.CheckState(ctx, cs, 5, mode)
				if ok {
					assert.NoError(err)
					return
				}
				assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))
				assert.Equal(&smerror.BucketHint{BucketID: 5, Destination: tt.destination}, hintOf(err))
			}
			check(buckets.Read, tt.readOk)
			check(buckets.Write, tt.writeOk)
		})
	}
}

func TestSendingLifecycle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mgr := bucketmgr.NewManager(kvdb.NewMemKVDB(""))
	assert.NoError(mgr.ForceCreate(ctx, 3))

	sending, err := mgr.StartSending(ctx, 3, "rs2")
	assert.NoError(err)
	assert.Equal(&buckets.Bucket{ID: 3, Status: buckets.Sending, Destination: "rs2"}, sending)

	// a second send must not enter SENDING again
	_, err = mgr.StartSending(ctx, 3, "rs3")
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))

	assert.NoError(mgr.RollbackSending(ctx, sending))
	b, err := mgr.Stat(ctx, 3)
	assert.NoError(err)
	assert.Equal(&buckets.Bucket{ID: 3, Status: buckets.Active}, b)

	// stale record no longer matches
	assert.Error(mgr.MarkSent(ctx, sending))

	sending, err = mgr.StartSending(ctx, 3, "rs2")
	assert.NoError(err)
	assert.NoError(mgr.MarkSent(ctx, sending))
	b, err = mgr.Stat(ctx, 3)
	assert.NoError(err)
	assert.Equal(&buckets.Bucket{ID: 3, Status: buckets.Sent, Destination: "rs2"}, b)

	_, err = mgr.StartSending(ctx, 3, "rs2")
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))
	assert.Equal(&smerror.BucketHint{BucketID: 3, Destination: "rs2"}, hintOf(err))
}

func TestConcurrentStartSending(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mgr := bucketmgr.NewManager(kvdb.NewMemKVDB(""))
	assert.NoError(mgr.ForceCreate(ctx, 8))

	const senders = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.StartSending(ctx, 8, "rs2"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(1, succeeded)
}

func TestReceiveIsIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db := kvdb.NewMemKVDB("")
	mgr := bucketmgr.NewManager(db)

	rows := []*kvdb.Tuple{
		kvdb.NewTuple("users", "a", 11, json.RawMessage(`{"name":"a"}`)),
		kvdb.NewTuple("users", "b", 11, json.RawMessage(`{"name":"b"}`)),
	}
	assert.NoError(mgr.Receive(ctx, 11, "rs2", rows))

	b, err := mgr.Stat(ctx, 11)
	assert.NoError(err)
	assert.Equal(&buckets.Bucket{ID: 11, Status: buckets.Active}, b)

	stored, err := db.ScanBucket(ctx, "users", 11)
	assert.NoError(err)

	redelivered := []*kvdb.Tuple{
		kvdb.NewTuple("users", "a", 11, json.RawMessage(`{"name":"changed"}`)),
		kvdb.NewTuple("users", "c", 11, json.RawMessage(`{"name":"c"}`)),
	}
	err = mgr.Receive(ctx, 11, "rs2", redelivered)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_BUCKET_ALREADY_EXISTS))

	after, err := db.ScanBucket(ctx, "users", 11)
	assert.NoError(err)
	assert.Equal(stored, after)
}

func TestReceiveRejectsForeignRows(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db := kvdb.NewMemKVDB("")
	mgr := bucketmgr.NewManager(db)

	err := mgr.Receive(ctx, 1, "rs2", []*kvdb.Tuple{kvdb.NewTuple("users", "a", 2, nil)})
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_INVALID_REQUEST))

	b, err := mgr.GetBucket(ctx, 1)
	assert.NoError(err)
	assert.Nil(b)
}

func TestReceiveStorageFailureLeavesNothing(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	db := mockkvdb.NewMockKVDB(ctrl)
	db.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	mgr := bucketmgr.NewManager(db)
	err := mgr.Receive(ctx, 1, "rs2", []*kvdb.Tuple{kvdb.NewTuple("users", "a", 1, nil)})
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_STORAGE_ERROR))
	assert.ErrorContains(err, "disk full")
}

func TestForceOperationsAndInfo(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mgr := bucketmgr.NewManager(kvdb.NewMemKVDB(""))

	assert.NoError(mgr.ForceCreateRange(ctx, 1, 250))
	assert.NoError(mgr.ForceCreateRange(ctx, 1000, 0))

	list, err := mgr.ListBuckets(ctx)
	assert.NoError(err)
	assert.Len(list, 250)
	assert.Equal(uint64(1), list[0].ID)
	assert.Equal(uint64(250), list[249].ID)

	_, err = mgr.StartSending(ctx, 7, "rs2")
	assert.NoError(err)

	info, err := mgr.Info(ctx)
	assert.NoError(err)
	assert.Equal(&buckets.Info{Active: 249, Sending: 1, Total: 250}, info)

	// force drop bypasses the state machine
	assert.NoError(mgr.ForceDrop(ctx, 7))
	_, err = mgr.Stat(ctx, 7)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))

	// force create overwrites
	assert.NoError(mgr.ForceCreate(ctx, 8))
	b, err := mgr.Stat(ctx, 8)
	assert.NoError(err)
	assert.Equal(buckets.Active, b.Status)

	err = mgr.ForceCreateRange(ctx, ^uint64(0), 2)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_INVALID_REQUEST))
}

func TestStorageErrorsAreTyped(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	db := mockkvdb.NewMockKVDB(ctrl)
	db.EXPECT().GetBucket(gomock.Any(), uint64(1)).Return(nil, errors.New("io error"))

	mgr := bucketmgr.NewManager(db)
	err := mgr.CheckState(ctx, clusterState(t, "m1"), 1, buckets.Write)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_STORAGE_ERROR))
}

func TestCommitWriteRequiresActive(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db := kvdb.NewMemKVDB("")
	mgr := bucketmgr.NewManager(db)

	put := func(id uint64, key string) *kvdb.Transaction {
		return kvdb.NewTransaction().PutTuple(kvdb.NewTuple("users", key, id, json.RawMessage(`{}`)))
	}

	assert.NoError(mgr.ForceCreate(ctx, 1))
	assert.NoError(mgr.CommitWrite(ctx, 1, put(1, "a")))

	_, err := mgr.StartSending(ctx, 1, "rs2")
	assert.NoError(err)
	err = mgr.CommitWrite(ctx, 1, put(1, "b"))
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))
	assert.Equal(&smerror.BucketHint{BucketID: 1, Destination: "rs2"}, hintOf(err))

	err = mgr.CommitWrite(ctx, 2, put(2, "c"))
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))

	rows, err := db.ScanBucket(ctx, "users", 1)
	assert.NoError(err)
	assert.Len(rows, 1)
	rows, err = db.ScanBucket(ctx, "users", 2)
	assert.NoError(err)
	assert.Empty(rows)
}
