package kvdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/clientv3util"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/smlog"
	"github.com/pg-sharding/shardman/storage/statistics"
)

const etcdDialTimeout = 5 * time.Second

// EtcdKVDB keeps the node's data in etcd under a per-replicaset prefix.
// Commit maps a transaction onto a single etcd Txn, so a transaction must
// fit into the server's max-txn-ops limit.
type EtcdKVDB struct {
	cli    *clientv3.Client
	prefix string
}

var _ KVDB = &EtcdKVDB{}

func NewEtcdKVDB(addr string, prefix string) (*EtcdKVDB, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{addr},
		DialTimeout: etcdDialTimeout,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	})
	if err != nil {
		return nil, err
	}

	smlog.Zero.Debug().
		Str("address", addr).
		Str("prefix", prefix).
		Uint("client", smlog.GetPointer(cli)).
		Msg("etcdkvdb: NewEtcdKVDB")

	return &EtcdKVDB{
		cli:    cli,
		prefix: strings.TrimSuffix(prefix, "/"),
	}, nil
}

func (q *EtcdKVDB) key(nodePath string) string {
	return q.prefix + nodePath
}

func (q *EtcdKVDB) Client() *clientv3.Client {
	return q.cli
}

// ==============================================================================
//                                   BUCKETS
// ==============================================================================

func (q *EtcdKVDB) GetBucket(ctx context.Context, id uint64) (*Bucket, error) {
	t := time.Now()
	defer func() { statistics.RecordStorageOperation("GetBucket", time.Since(t)) }()

	resp, err := q.cli.Get(ctx, q.key(bucketNodePath(id)))
	if err != nil {
		return nil, err
	}

	switch len(resp.Kvs) {
	case 0:
		return nil, nil
	case 1:
		ret := &Bucket{}
		if err := json.Unmarshal(resp.Kvs[0].Value, ret); err != nil {
			return nil, err
		}
		return ret, nil
	default:
		return nil, smerror.Newf(smerror.SHARDMAN_STORAGE_ERROR, "possible data corruption: multiple key-value pairs found for bucket %d", id)
	}
}

func (q *EtcdKVDB) ListBuckets(ctx context.Context) ([]*Bucket, error) {
	t := time.Now()
	defer func() { statistics.RecordStorageOperation("ListBuckets", time.Since(t)) }()

	resp, err := q.cli.Get(ctx, q.key(bucketsNamespace), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	ret := make([]*Bucket, 0, len(resp.Kvs))
	for _, e := range resp.Kvs {
		b := &Bucket{}
		if err := json.Unmarshal(e.Value, b); err != nil {
			return nil, err
		}
		ret = append(ret, b)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].ID < ret[j].ID
	})
	return ret, nil
}

func (q *EtcdKVDB) PutBucket(ctx context.Context, bucket *Bucket) error {
	return q.Commit(ctx, NewTransaction().PutBucket(bucket))
}

func (q *EtcdKVDB) DeleteBucket(ctx context.Context, id uint64) error {
	return q.Commit(ctx, NewTransaction().DeleteBucket(id))
}

// ==============================================================================
//                                   TUPLES
// ==============================================================================

func (q *EtcdKVDB) ListSpaces(ctx context.Context) ([]string, error) {
	resp, err := q.cli.Get(ctx, q.key(spacesNamespace), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, err
	}

	ret := make([]string, 0, len(resp.Kvs))
	for _, e := range resp.Kvs {
		name, err := spaceFromNodePath(strings.TrimPrefix(string(e.Key), q.prefix))
		if err != nil {
			return nil, err
		}
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret, nil
}

// ScanBucket reads the bucket index and the tuples at one revision.
func (q *EtcdKVDB) ScanBucket(ctx context.Context, space string, id uint64) ([]*Tuple, error) {
	t := time.Now()
	defer func() { statistics.RecordStorageOperation("ScanBucket", time.Since(t)) }()

	prefix := bucketIndexPrefix(space, id)
	idx, err := q.cli.Get(ctx, q.key(prefix), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, err
	}

	ret := make([]*Tuple, 0, len(idx.Kvs))
	for _, e := range idx.Kvs {
		key, err := keyFromIndexPath(prefix, strings.TrimPrefix(string(e.Key), q.prefix))
		if err != nil {
			return nil, err
		}
		resp, err := q.cli.Get(ctx, q.key(tupleNodePath(space, key)), clientv3.WithRev(idx.Header.Revision))
		if err != nil {
			return nil, err
		}
		if len(resp.Kvs) == 0 {
			continue
		}
		tup := &Tuple{}
		if err := json.Unmarshal(resp.Kvs[0].Value, tup); err != nil {
			return nil, err
		}
		ret = append(ret, tup)
	}
	return ret, nil
}

func (q *EtcdKVDB) GetTuple(ctx context.Context, space string, key string) (*Tuple, error) {
	resp, err := q.cli.Get(ctx, q.key(tupleNodePath(space, key)))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	tup := &Tuple{}
	if err := json.Unmarshal(resp.Kvs[0].Value, tup); err != nil {
		return nil, err
	}
	return tup, nil
}

func (q *EtcdKVDB) PutTuple(ctx context.Context, tuple *Tuple) error {
	return q.Commit(ctx, NewTransaction().PutTuple(tuple))
}

func (q *EtcdKVDB) DeleteTuple(ctx context.Context, space string, key string) error {
	return q.Commit(ctx, NewTransaction().DeleteTuple(space, key))
}

// ==============================================================================
//                                TRANSACTIONS
// ==============================================================================

// etcdWrite is the final effect of a transaction on one key. etcd rejects
// a Txn that writes the same key twice, so statements are folded first.
type etcdWrite struct {
	Key    string
	Value  string
	Delete bool
}

type tupleState struct {
	tuple    *Tuple
	revision int64
}

// planEtcd folds tx into one write per key. prev holds the stored tuples
// the transaction touches, keyed by tuple node path.
func planEtcd(tx *Transaction, prev map[string]*Tuple) ([]etcdWrite, error) {
	var order []string
	writes := map[string]etcdWrite{}
	set := func(w etcdWrite) {
		if _, ok := writes[w.Key]; !ok {
			order = append(order, w.Key)
		}
		writes[w.Key] = w
	}

	current := make(map[string]*Tuple, len(prev))
	for k, v := range prev {
		current[k] = v
	}

	for _, s := range tx.statements {
		switch s.CmdType {
		case CMD_PUT_BUCKET:
			raw, err := json.Marshal(s.Bucket)
			if err != nil {
				return nil, err
			}
			set(etcdWrite{Key: bucketNodePath(s.BucketID), Value: string(raw)})
		case CMD_DELETE_BUCKET:
			set(etcdWrite{Key: bucketNodePath(s.BucketID), Delete: true})
		case CMD_PUT_TUPLE:
			tp := tupleNodePath(s.Tuple.Space, s.Tuple.Key)
			if old := current[tp]; old != nil && old.BucketID != s.Tuple.BucketID {
				set(etcdWrite{Key: bucketIndexNodePath(old.Space, old.BucketID, old.Key), Delete: true})
			}
			raw, err := json.Marshal(s.Tuple)
			if err != nil {
				return nil, err
			}
			set(etcdWrite{Key: tp, Value: string(raw)})
			set(etcdWrite{Key: bucketIndexNodePath(s.Tuple.Space, s.Tuple.BucketID, s.Tuple.Key)})
			set(etcdWrite{Key: spaceNodePath(s.Tuple.Space)})
			current[tp] = s.Tuple
		case CMD_DELETE_TUPLE:
			tp := tupleNodePath(s.Space, s.Key)
			old := current[tp]
			if old == nil {
				continue
			}
			set(etcdWrite{Key: bucketIndexNodePath(old.Space, old.BucketID, old.Key), Delete: true})
			set(etcdWrite{Key: tp, Delete: true})
			current[tp] = nil
		}
	}

	ret := make([]etcdWrite, 0, len(order))
	for _, k := range order {
		ret = append(ret, writes[k])
	}
	return ret, nil
}

func (q *EtcdKVDB) guardCompare(g *Guard) (clientv3.Cmp, error) {
	key := q.key(bucketNodePath(g.BucketID))
	switch g.Type {
	case GuardBucketAbsent:
		return clientv3util.KeyMissing(key), nil
	case GuardBucketIs:
		raw, err := json.Marshal(g.Expect)
		if err != nil {
			return clientv3.Cmp{}, err
		}
		return clientv3.Compare(clientv3.Value(key), "=", string(raw)), nil
	default:
		return clientv3.Cmp{}, fmt.Errorf("unknown guard type %d", g.Type)
	}
}

// loadTuples reads the tuples the transaction touches together with their
// mod revisions, used to detect concurrent changes at commit time.
func (q *EtcdKVDB) loadTuples(ctx context.Context, tx *Transaction) (map[string]tupleState, error) {
	ret := map[string]tupleState{}
	for _, s := range tx.statements {
		var tp string
		switch s.CmdType {
		case CMD_PUT_TUPLE:
			tp = tupleNodePath(s.Tuple.Space, s.Tuple.Key)
		case CMD_DELETE_TUPLE:
			tp = tupleNodePath(s.Space, s.Key)
		default:
			continue
		}
		if _, ok := ret[tp]; ok {
			continue
		}
		resp, err := q.cli.Get(ctx, q.key(tp))
		if err != nil {
			return nil, err
		}
		st := tupleState{}
		if len(resp.Kvs) == 1 {
			st.tuple = &Tuple{}
			if err := json.Unmarshal(resp.Kvs[0].Value, st.tuple); err != nil {
				return nil, err
			}
			st.revision = resp.Kvs[0].ModRevision
		}
		ret[tp] = st
	}
	return ret, nil
}

func (q *EtcdKVDB) Commit(ctx context.Context, tx *Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	t := time.Now()
	defer func() { statistics.RecordStorageOperation("Commit", time.Since(t)) }()

	return retry.Do(ctx, retry.WithMaxRetries(7, retry.NewFibonacci(50*time.Millisecond)), func(ctx context.Context) error {
		tuples, err := q.loadTuples(ctx, tx)
		if err != nil {
			return err
		}

		cmps := make([]clientv3.Cmp, 0, len(tx.guards)+len(tuples))
		for i := range tx.guards {
			cmp, err := q.guardCompare(&tx.guards[i])
			if err != nil {
				return err
			}
			cmps = append(cmps, cmp)
		}
		prev := make(map[string]*Tuple, len(tuples))
		for tp, st := range tuples {
			cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(q.key(tp)), "=", st.revision))
			prev[tp] = st.tuple
		}

		writes, err := planEtcd(tx, prev)
		if err != nil {
			return err
		}
		ops := make([]clientv3.Op, 0, len(writes))
		for _, w := range writes {
			if w.Delete {
				ops = append(ops, clientv3.OpDelete(q.key(w.Key)))
			} else {
				ops = append(ops, clientv3.OpPut(q.key(w.Key), w.Value))
			}
		}

		resp, err := q.cli.Txn(ctx).If(cmps...).Then(ops...).Commit()
		if err != nil {
			return err
		}
		if resp.Succeeded {
			smlog.Zero.Debug().
				Str("transaction", tx.Id().String()).
				Int("ops", len(ops)).
				Int64("revision", resp.Header.Revision).
				Msg("etcdkvdb: committed transaction")
			return nil
		}

		for i := range tx.guards {
			g := &tx.guards[i]
			current, err := q.GetBucket(ctx, g.BucketID)
			if err != nil {
				return err
			}
			if !g.holds(current) {
				return guardError(g)
			}
		}
		// tuples changed under us
		return retry.RetryableError(fmt.Errorf("transaction %s: concurrent tuple update", tx.Id()))
	})
}

func (q *EtcdKVDB) Checkpoint(_ context.Context) error {
	// etcd persists every committed revision through its raft log.
	return nil
}

func (q *EtcdKVDB) Close() error {
	return q.cli.Close()
}
