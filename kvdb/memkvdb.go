package kvdb

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/pg-sharding/shardman/pkg/smlog"
)

type MemKVDB struct {
	mu sync.RWMutex

	Buckets map[uint64]*Bucket           `json:"buckets"`
	Spaces  map[string]map[string]*Tuple `json:"spaces"`

	backupPath string
}

var _ KVDB = &MemKVDB{}

func NewMemKVDB(backupPath string) *MemKVDB {
	return &MemKVDB{
		Buckets: map[uint64]*Bucket{},
		Spaces:  map[string]map[string]*Tuple{},

		backupPath: backupPath,
	}
}

// RestoreKVDB loads the state checkpointed at backupPath, if any.
func RestoreKVDB(backupPath string) (*MemKVDB, error) {
	db := NewMemKVDB(backupPath)
	if backupPath == "" {
		return db, nil
	}
	if _, err := os.Stat(backupPath); err != nil {
		smlog.Zero.Info().Err(err).Msg("memkvdb backup file not exists. Creating new one.")
		f, err := os.Create(backupPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return db, nil
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return db, nil
	}
	if err := json.Unmarshal(data, db); err != nil {
		return nil, err
	}
	if db.Buckets == nil {
		db.Buckets = map[uint64]*Bucket{}
	}
	if db.Spaces == nil {
		db.Spaces = map[string]map[string]*Tuple{}
	}
	smlog.Zero.Info().
		Int("buckets", len(db.Buckets)).
		Int("spaces", len(db.Spaces)).
		Str("path", backupPath).
		Msg("memkvdb: restored state")
	return db, nil
}

// DumpState writes the whole state to the backup file. Caller holds mu
// for writing.
func (q *MemKVDB) DumpState() error {
	if q.backupPath == "" {
		return nil
	}
	tmpPath := q.backupPath + ".tmp"

	state, err := json.MarshalIndent(q, "", "	")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmpPath, state, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, q.backupPath)
}

// ==============================================================================
//                                   BUCKETS
// ==============================================================================

func (q *MemKVDB) GetBucket(_ context.Context, id uint64) (*Bucket, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	b, ok := q.Buckets[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (q *MemKVDB) ListBuckets(_ context.Context) ([]*Bucket, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]*Bucket, 0, len(q.Buckets))
	for _, b := range q.Buckets {
		cp := *b
		ret = append(ret, &cp)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].ID < ret[j].ID
	})
	return ret, nil
}

func (q *MemKVDB) PutBucket(ctx context.Context, bucket *Bucket) error {
	smlog.Zero.Debug().Uint64("bucket", bucket.ID).Str("status", bucket.Status).Msg("memkvdb: put bucket")
	return q.Commit(ctx, NewTransaction().PutBucket(bucket))
}

func (q *MemKVDB) DeleteBucket(ctx context.Context, id uint64) error {
	smlog.Zero.Debug().Uint64("bucket", id).Msg("memkvdb: delete bucket")
	return q.Commit(ctx, NewTransaction().DeleteBucket(id))
}

// ==============================================================================
//                                   TUPLES
// ==============================================================================

func (q *MemKVDB) ListSpaces(_ context.Context) ([]string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]string, 0, len(q.Spaces))
	for name := range q.Spaces {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret, nil
}

func (q *MemKVDB) ScanBucket(_ context.Context, space string, id uint64) ([]*Tuple, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var ret []*Tuple
	for _, t := range q.Spaces[space] {
		if t.BucketID == id {
			cp := *t
			ret = append(ret, &cp)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Key < ret[j].Key
	})
	return ret, nil
}

func (q *MemKVDB) GetTuple(_ context.Context, space string, key string) (*Tuple, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	t, ok := q.Spaces[space][key]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (q *MemKVDB) PutTuple(ctx context.Context, tuple *Tuple) error {
	return q.Commit(ctx, NewTransaction().PutTuple(tuple))
}

func (q *MemKVDB) DeleteTuple(ctx context.Context, space string, key string) error {
	return q.Commit(ctx, NewTransaction().DeleteTuple(space, key))
}

// ==============================================================================
//                                TRANSACTIONS
// ==============================================================================

func (q *MemKVDB) Commit(_ context.Context, tx *Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range tx.guards {
		g := &tx.guards[i]
		if !g.holds(q.Buckets[g.BucketID]) {
			return guardError(g)
		}
	}

	commands := make([]Command, 0, len(tx.statements))
	for _, s := range tx.statements {
		switch s.CmdType {
		case CMD_PUT_BUCKET:
			commands = append(commands, NewUpdateCommand(q.Buckets, s.BucketID, s.Bucket))
		case CMD_DELETE_BUCKET:
			commands = append(commands, NewDeleteCommand(q.Buckets, s.BucketID))
		case CMD_PUT_TUPLE:
			commands = append(commands, q.putTupleCommand(s.Tuple))
		case CMD_DELETE_TUPLE:
			commands = append(commands, q.deleteTupleCommand(s.Space, s.Key))
		}
	}

	smlog.Zero.Debug().
		Str("transaction", tx.Id().String()).
		Int("statements", len(commands)).
		Msg("memkvdb: commit transaction")

	return ExecuteCommands(q.DumpState, commands...)
}

// putTupleCommand resolves the space at Do time, since an earlier statement
// of the same transaction may have created it.
func (q *MemKVDB) putTupleCommand(t *Tuple) Command {
	var inner Command
	created := false
	return NewCustomCommand(func() error {
		space, ok := q.Spaces[t.Space]
		if !ok {
			space = map[string]*Tuple{}
			q.Spaces[t.Space] = space
			created = true
		}
		inner = NewUpdateCommand(space, t.Key, t)
		return inner.Do()
	}, func() error {
		if err := inner.Undo(); err != nil {
			return err
		}
		if created {
			delete(q.Spaces, t.Space)
		}
		return nil
	})
}

func (q *MemKVDB) deleteTupleCommand(spaceName, key string) Command {
	var inner Command
	return NewCustomCommand(func() error {
		space, ok := q.Spaces[spaceName]
		if !ok {
			return nil
		}
		inner = NewDeleteCommand(space, key)
		return inner.Do()
	}, func() error {
		if inner == nil {
			return nil
		}
		return inner.Undo()
	})
}

// Checkpoint dumps the state to the backup file. The dump reuses one
// temporary file, so checkpoints are exclusive with each other and with
// commits.
func (q *MemKVDB) Checkpoint(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.DumpState()
}

func (q *MemKVDB) Close() error {
	return q.Checkpoint(context.Background())
}
