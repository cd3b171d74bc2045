package kvdb

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	CMD_PUT_BUCKET = iota
	CMD_DELETE_BUCKET
	CMD_PUT_TUPLE
	CMD_DELETE_TUPLE
)

// ErrGuardFailed is returned by Commit when a transaction guard does not hold.
// Nothing is written in that case.
var ErrGuardFailed = errors.New("transaction guard failed")

type Statement struct {
	CmdType  int32
	BucketID uint64
	Bucket   *Bucket
	Tuple    *Tuple
	Space    string
	Key      string
}

type GuardType int

const (
	GuardBucketAbsent = GuardType(iota)
	GuardBucketIs
)

// Guard is a precondition on the bucket table checked atomically with the
// transaction statements.
type Guard struct {
	Type     GuardType
	BucketID uint64
	Expect   *Bucket
}

func (g *Guard) holds(current *Bucket) bool {
	switch g.Type {
	case GuardBucketAbsent:
		return current == nil
	case GuardBucketIs:
		return current.Equal(g.Expect)
	default:
		return false
	}
}

func (g *Guard) String() string {
	switch g.Type {
	case GuardBucketAbsent:
		return fmt.Sprintf("bucket %d absent", g.BucketID)
	case GuardBucketIs:
		return fmt.Sprintf("bucket %d is %s", g.BucketID, g.Expect.Status)
	default:
		return "unknown guard"
	}
}

func guardError(g *Guard) error {
	return fmt.Errorf("%w: %s", ErrGuardFailed, g.String())
}

// Transaction is a batch of statements applied atomically by Commit.
// Aborting a transaction means dropping it without committing.
type Transaction struct {
	transactionId uuid.UUID
	guards        []Guard
	statements    []Statement
}

func NewTransaction() *Transaction {
	return &Transaction{transactionId: uuid.New()}
}

func (t *Transaction) Id() uuid.UUID {
	return t.transactionId
}

func (t *Transaction) Guards() []Guard {
	return t.guards
}

func (t *Transaction) Statements() []Statement {
	return t.statements
}

// BucketAbsent requires that no bucket with the given id exists.
func (t *Transaction) BucketAbsent(id uint64) *Transaction {
	t.guards = append(t.guards, Guard{Type: GuardBucketAbsent, BucketID: id})
	return t
}

// BucketIs requires the stored bucket record to equal expect.
func (t *Transaction) BucketIs(expect *Bucket) *Transaction {
	cp := *expect
	t.guards = append(t.guards, Guard{Type: GuardBucketIs, BucketID: expect.ID, Expect: &cp})
	return t
}

func (t *Transaction) PutBucket(b *Bucket) *Transaction {
	cp := *b
	t.statements = append(t.statements, Statement{CmdType: CMD_PUT_BUCKET, BucketID: b.ID, Bucket: &cp})
	return t
}

func (t *Transaction) DeleteBucket(id uint64) *Transaction {
	t.statements = append(t.statements, Statement{CmdType: CMD_DELETE_BUCKET, BucketID: id})
	return t
}

func (t *Transaction) PutTuple(tup *Tuple) *Transaction {
	cp := *tup
	t.statements = append(t.statements, Statement{CmdType: CMD_PUT_TUPLE, BucketID: tup.BucketID, Tuple: &cp, Space: tup.Space, Key: tup.Key})
	return t
}

func (t *Transaction) DeleteTuple(space, key string) *Transaction {
	t.statements = append(t.statements, Statement{CmdType: CMD_DELETE_TUPLE, Space: space, Key: key})
	return t
}

func (t *Transaction) Validate() error {
	if len(t.statements) == 0 {
		return fmt.Errorf("transaction %s has no statements", t.transactionId)
	}
	for _, s := range t.statements {
		switch s.CmdType {
		case CMD_PUT_BUCKET:
			if s.Bucket == nil {
				return fmt.Errorf("transaction %s: put bucket without record", t.transactionId)
			}
		case CMD_PUT_TUPLE:
			if s.Tuple == nil || s.Tuple.Space == "" || s.Tuple.Key == "" {
				return fmt.Errorf("transaction %s: put tuple without space or key", t.transactionId)
			}
		case CMD_DELETE_BUCKET:
		case CMD_DELETE_TUPLE:
			if s.Space == "" || s.Key == "" {
				return fmt.Errorf("transaction %s: delete tuple without space or key", t.transactionId)
			}
		default:
			return fmt.Errorf("unknown type of statement: %d", s.CmdType)
		}
	}
	return nil
}
