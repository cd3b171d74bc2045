package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/models/hashfunction"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/pkg/smlog"
	"github.com/pg-sharding/shardman/storage/bucketmgr"
	"github.com/pg-sharding/shardman/storage/dispatch"
)

func clusterState(t *testing.T, local string) *topology.ClusterState {
	sm := config.ShardingMap{
		"rs1": {Servers: map[string]*config.ServerCfg{
			"m1": {URI: "u1", Name: "m1", Master: true},
			"r1": {URI: "u2", Name: "r1"},
		}},
	}
	cs, err := topology.Build(sm, nil, local)
	if err != nil {
		t.Fatal(err)
	}
	return cs
}

func args(values ...any) rpc.Args {
	ret := make(rpc.Args, 0, len(values))
	for _, v := range values {
		raw, _ := json.Marshal(v)
		ret = append(ret, raw)
	}
	return ret
}

type fixture struct {
	db   *kvdb.MemKVDB
	mgr  *bucketmgr.Manager
	disp *dispatch.Dispatcher
	cs   *topology.ClusterState

	calls []uint64
}

func newFixture(t *testing.T) *fixture {
	db := kvdb.NewMemKVDB("")
	mgr := bucketmgr.NewManager(db)
	f := &fixture{
		db:  db,
		mgr: mgr,
		cs:  clusterState(t, "m1"),
	}

	r := dispatch.NewRegistry()
	r.Register("echo", buckets.Read, func(_ context.Context, id uint64, a rpc.Args) (any, error) {
		f.calls = append(f.calls, id)
		var s string
		if err := a.Decode(0, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	r.Register("touch", buckets.Write, func(_ context.Context, id uint64, _ rpc.Args) (any, error) {
		f.calls = append(f.calls, id)
		return nil, nil
	})
	r.Register("fail", buckets.Read, func(context.Context, uint64, rpc.Args) (any, error) {
		return nil, errors.New("boom")
	})
	dispatch.NewTupleProcedures(db, mgr, hashfunction.HashFunctionIdent, 10).Register(r)

	f.disp = dispatch.NewDispatcher(mgr, r, smlog.NewCallLogger(-1))
	return f
}

func TestCallAdmission(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	assert.NoError(f.mgr.ForceCreate(ctx, 1))
	assert.NoError(f.db.PutBucket(ctx, kvdb.NewBucket(2, "sending", "rs2")))
	assert.NoError(f.db.PutBucket(ctx, kvdb.NewBucket(3, "sent", "rs2")))

	resp, err := f.disp.Call(ctx, f.cs, 1, buckets.Write, "echo", args("hi"))
	assert.NoError(err)
	assert.Equal(&dispatch.Response{Ok: true, Result: "hi"}, resp)

	resp, err = f.disp.Call(ctx, f.cs, 2, buckets.Read, "echo", args("hi"))
	assert.NoError(err)
	assert.True(resp.Ok)

	// a write procedure is admitted as a write regardless of the requested mode
	for _, mode := range []buckets.Mode{buckets.Read, buckets.Write} {
		_, err = f.disp.Call(ctx, f.cs, 2, mode, "touch", nil)
		assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))
		var se *smerror.SmError
		assert.True(errors.As(err, &se))
		assert.Equal(&smerror.BucketHint{BucketID: 2, Destination: "rs2"}, se.Hint)
	}

	_, err = f.disp.Call(ctx, f.cs, 3, buckets.Read, "echo", args("hi"))
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))

	_, err = f.disp.Call(ctx, f.cs, 4, buckets.Read, "echo", args("hi"))
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))

	_, err = f.disp.Call(ctx, clusterState(t, "r1"), 1, buckets.Read, "echo", args("hi"))
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_NON_MASTER))

	assert.Equal([]uint64{1, 2}, f.calls)
}

func TestCallUnknownProcedure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// admission comes first
	_, err := f.disp.Call(ctx, f.cs, 1, buckets.Read, "nope", nil)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))

	assert.NoError(f.mgr.ForceCreate(ctx, 1))
	_, err = f.disp.Call(ctx, f.cs, 1, buckets.Read, "nope", nil)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_NO_SUCH_PROCEDURE))
}

func TestCallProcedureError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	assert.NoError(f.mgr.ForceCreate(ctx, 1))
	resp, err := f.disp.Call(ctx, f.cs, 1, buckets.Read, "fail", nil)
	assert.Nil(resp)
	assert.EqualError(err, "boom")

	_, err = f.disp.Call(ctx, f.cs, 1, buckets.Read, "echo", nil)
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_INVALID_REQUEST))
}

func TestTupleProcedures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	assert.NoError(f.mgr.ForceCreate(ctx, 3))

	resp, err := f.disp.Call(ctx, f.cs, 3, buckets.Write, dispatch.ProcTupleReplace, args("users", "3", map[string]string{"name": "bob"}))
	assert.NoError(err)
	assert.True(resp.Ok)

	resp, err = f.disp.Call(ctx, f.cs, 3, buckets.Read, dispatch.ProcTupleSelect, args("users", "3"))
	assert.NoError(err)
	tuple := resp.Result.(*kvdb.Tuple)
	assert.Equal(uint64(3), tuple.BucketID)
	assert.JSONEq(`{"name":"bob"}`, string(tuple.Data))

	resp, err = f.disp.Call(ctx, f.cs, 3, buckets.Read, dispatch.ProcTupleScan, args("users"))
	assert.NoError(err)
	assert.Len(resp.Result, 1)

	// the key hashes into another bucket
	_, err = f.disp.Call(ctx, f.cs, 3, buckets.Write, dispatch.ProcTupleReplace, args("users", "4", nil))
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_INVALID_REQUEST))

	resp, err = f.disp.Call(ctx, f.cs, 3, buckets.Write, dispatch.ProcTupleDelete, args("users", "3"))
	assert.NoError(err)
	assert.Equal(&dispatch.Response{Ok: true}, resp)

	resp, err = f.disp.Call(ctx, f.cs, 3, buckets.Read, dispatch.ProcTupleSelect, args("users", "3"))
	assert.NoError(err)
	assert.Nil(resp.Result)

	rows, err := f.db.ScanBucket(ctx, "users", 3)
	assert.NoError(err)
	assert.Empty(rows)
}

func TestRegistry(t *testing.T) {
	assert := assert.New(t)

	r := dispatch.NewRegistry()
	r.Register("b", buckets.Read, nil)
	r.Register("a", buckets.Write, nil)

	assert.Equal([]string{"a", "b"}, r.Names())

	p, ok := r.Lookup("a")
	assert.True(ok)
	assert.Equal(buckets.Write, p.Mode)

	_, ok = r.Lookup("c")
	assert.False(ok)
}

// parkingKVDB holds the first tuple commit until release is closed.
type parkingKVDB struct {
	*kvdb.MemKVDB
	parked  chan struct{}
	release chan struct{}
}

func (p *parkingKVDB) Commit(ctx context.Context, tx *kvdb.Transaction) error {
	for _, s := range tx.Statements() {
		if s.CmdType == kvdb.CMD_PUT_TUPLE || s.CmdType == kvdb.CMD_DELETE_TUPLE {
			close(p.parked)
			<-p.release
			break
		}
	}
	return p.MemKVDB.Commit(ctx, tx)
}

func TestAdmittedWriteLosesToStartSending(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db := &parkingKVDB{
		MemKVDB: kvdb.NewMemKVDB(""),
		parked:  make(chan struct{}),
		release: make(chan struct{}),
	}
	mgr := bucketmgr.NewManager(db)
	r := dispatch.NewRegistry()
	dispatch.NewTupleProcedures(db, mgr, hashfunction.HashFunctionIdent, 10).Register(r)
	disp := dispatch.NewDispatcher(mgr, r, smlog.NewCallLogger(-1))
	cs := clusterState(t, "m1")

	assert.NoError(mgr.ForceCreate(ctx, 1))

	done := make(chan error, 1)
	go func() {
		_, err := disp.Call(ctx, cs, 1, buckets.Write, dispatch.ProcTupleReplace, args("users", "1", map[string]int{"v": 1}))
		done <- err
	}()

	// the write has passed admission and waits at commit
	<-db.parked
	_, err := mgr.StartSending(ctx, 1, "rs2")
	assert.NoError(err)
	close(db.release)

	err = <-done
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET), err)
	var se *smerror.SmError
	assert.True(errors.As(err, &se))
	assert.Equal(&smerror.BucketHint{BucketID: 1, Destination: "rs2"}, se.Hint)

	tuple, err := db.GetTuple(ctx, "users", "1")
	assert.NoError(err)
	assert.Nil(tuple)

	b, err := mgr.GetBucket(ctx, 1)
	assert.NoError(err)
	assert.Equal(&buckets.Bucket{ID: 1, Status: buckets.Sending, Destination: "rs2"}, b)
}
