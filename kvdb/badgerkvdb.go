package kvdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	retry "github.com/sethvargo/go-retry"

	"github.com/pg-sharding/shardman/pkg/smlog"
	"github.com/pg-sharding/shardman/storage/statistics"
)

// BadgerKVDB keeps the node's data in a local badger database.
type BadgerKVDB struct {
	db       *badger.DB
	inMemory bool
}

var _ KVDB = &BadgerKVDB{}

// badgerLogger routes badger's own logging into the process logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, args ...any) {
	smlog.Zero.Error().Msgf("badger: "+f, args...)
}

func (badgerLogger) Warningf(f string, args ...any) {
	smlog.Zero.Warn().Msgf("badger: "+f, args...)
}

func (badgerLogger) Infof(f string, args ...any) {
	smlog.Zero.Debug().Msgf("badger: "+f, args...)
}

func (badgerLogger) Debugf(f string, args ...any) {
	smlog.Zero.Debug().Msgf("badger: "+f, args...)
}

// NewBadgerKVDB opens the database in dataDir. An empty dataDir opens an
// in-memory database.
func NewBadgerKVDB(dataDir string) (*BadgerKVDB, error) {
	opts := badger.DefaultOptions(dataDir).WithLogger(badgerLogger{})
	if dataDir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	smlog.Zero.Debug().
		Str("dir", dataDir).
		Uint("db", smlog.GetPointer(db)).
		Msg("badgerkvdb: opened")

	return &BadgerKVDB{db: db, inMemory: dataDir == ""}, nil
}

func getJSON(txn *badger.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), raw)
}

func (q *BadgerKVDB) GetBucket(_ context.Context, id uint64) (*Bucket, error) {
	t := time.Now()
	defer func() { statistics.RecordStorageOperation("GetBucket", time.Since(t)) }()

	var ret *Bucket
	err := q.db.View(func(txn *badger.Txn) error {
		b := &Bucket{}
		ok, err := getJSON(txn, bucketNodePath(id), b)
		if ok {
			ret = b
		}
		return err
	})
	return ret, err
}

func (q *BadgerKVDB) ListBuckets(_ context.Context) ([]*Bucket, error) {
	t := time.Now()
	defer func() { statistics.RecordStorageOperation("ListBuckets", time.Since(t)) }()

	var ret []*Bucket
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(bucketsNamespace)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			b := &Bucket{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, b)
			}); err != nil {
				return err
			}
			ret = append(ret, b)
		}
		return nil
	})
	return ret, err
}

func (q *BadgerKVDB) PutBucket(ctx context.Context, bucket *Bucket) error {
	return q.Commit(ctx, NewTransaction().PutBucket(bucket))
}

func (q *BadgerKVDB) DeleteBucket(ctx context.Context, id uint64) error {
	return q.Commit(ctx, NewTransaction().DeleteBucket(id))
}

func (q *BadgerKVDB) ListSpaces(_ context.Context) ([]string, error) {
	var ret []string
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(spacesNamespace)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			name, err := spaceFromNodePath(string(it.Item().Key()))
			if err != nil {
				return err
			}
			ret = append(ret, name)
		}
		return nil
	})
	return ret, err
}

func (q *BadgerKVDB) ScanBucket(_ context.Context, space string, id uint64) ([]*Tuple, error) {
	t := time.Now()
	defer func() { statistics.RecordStorageOperation("ScanBucket", time.Since(t)) }()

	var ret []*Tuple
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := bucketIndexPrefix(space, id)
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			key, err := keyFromIndexPath(prefix, string(it.Item().Key()))
			if err != nil {
				return err
			}
			tup := &Tuple{}
			ok, err := getJSON(txn, tupleNodePath(space, key), tup)
			if err != nil {
				return err
			}
			if ok {
				ret = append(ret, tup)
			}
		}
		return nil
	})
	return ret, err
}

func (q *BadgerKVDB) GetTuple(_ context.Context, space string, key string) (*Tuple, error) {
	var ret *Tuple
	err := q.db.View(func(txn *badger.Txn) error {
		tup := &Tuple{}
		ok, err := getJSON(txn, tupleNodePath(space, key), tup)
		if ok {
			ret = tup
		}
		return err
	})
	return ret, err
}

func (q *BadgerKVDB) PutTuple(ctx context.Context, tuple *Tuple) error {
	return q.Commit(ctx, NewTransaction().PutTuple(tuple))
}

func (q *BadgerKVDB) DeleteTuple(ctx context.Context, space string, key string) error {
	return q.Commit(ctx, NewTransaction().DeleteTuple(space, key))
}

// Commit runs tx inside one badger update transaction. Badger conflicts
// with concurrent writers are retried; guard failures are not.
func (q *BadgerKVDB) Commit(ctx context.Context, tx *Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	t := time.Now()
	defer func() { statistics.RecordStorageOperation("Commit", time.Since(t)) }()

	return retry.Do(ctx, retry.WithMaxRetries(3, retry.NewFibonacci(10*time.Millisecond)), func(ctx context.Context) error {
		err := q.db.Update(func(txn *badger.Txn) error {
			return applyBadger(txn, tx)
		})
		if errors.Is(err, badger.ErrConflict) {
			smlog.Zero.Debug().Str("transaction", tx.Id().String()).Msg("badgerkvdb: conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

func applyBadger(txn *badger.Txn, tx *Transaction) error {
	for i := range tx.guards {
		g := &tx.guards[i]
		var current *Bucket
		b := &Bucket{}
		ok, err := getJSON(txn, bucketNodePath(g.BucketID), b)
		if err != nil {
			return err
		}
		if ok {
			current = b
		}
		if !g.holds(current) {
			return guardError(g)
		}
	}

	for _, s := range tx.statements {
		var err error
		switch s.CmdType {
		case CMD_PUT_BUCKET:
			err = setJSON(txn, bucketNodePath(s.BucketID), s.Bucket)
		case CMD_DELETE_BUCKET:
			err = txn.Delete([]byte(bucketNodePath(s.BucketID)))
		case CMD_PUT_TUPLE:
			err = putTupleBadger(txn, s.Tuple)
		case CMD_DELETE_TUPLE:
			err = deleteTupleBadger(txn, s.Space, s.Key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func putTupleBadger(txn *badger.Txn, tup *Tuple) error {
	prev := &Tuple{}
	ok, err := getJSON(txn, tupleNodePath(tup.Space, tup.Key), prev)
	if err != nil {
		return err
	}
	if ok && prev.BucketID != tup.BucketID {
		if err := txn.Delete([]byte(bucketIndexNodePath(tup.Space, prev.BucketID, tup.Key))); err != nil {
			return err
		}
	}
	if err := setJSON(txn, tupleNodePath(tup.Space, tup.Key), tup); err != nil {
		return err
	}
	if err := txn.Set([]byte(bucketIndexNodePath(tup.Space, tup.BucketID, tup.Key)), nil); err != nil {
		return err
	}
	return txn.Set([]byte(spaceNodePath(tup.Space)), nil)
}

func deleteTupleBadger(txn *badger.Txn, space, key string) error {
	prev := &Tuple{}
	ok, err := getJSON(txn, tupleNodePath(space, key), prev)
	if err != nil || !ok {
		return err
	}
	if err := txn.Delete([]byte(bucketIndexNodePath(space, prev.BucketID, key))); err != nil {
		return err
	}
	return txn.Delete([]byte(tupleNodePath(space, key)))
}

func (q *BadgerKVDB) Checkpoint(_ context.Context) error {
	if q.inMemory {
		return nil
	}
	return q.db.Sync()
}

func (q *BadgerKVDB) Close() error {
	return q.db.Close()
}
