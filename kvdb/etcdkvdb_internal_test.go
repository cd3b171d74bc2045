package kvdb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanEtcdFoldsWritesPerKey(t *testing.T) {
	assert := assert.New(t)

	tx := NewTransaction().
		BucketAbsent(5).
		PutBucket(NewBucket(5, "receiving", "rs1")).
		PutTuple(NewTuple("users", "a", 5, json.RawMessage(`1`))).
		PutBucket(NewBucket(5, "active", ""))

	writes, err := planEtcd(tx, map[string]*Tuple{})
	assert.NoError(err)

	assert.Equal([]etcdWrite{
		{Key: bucketNodePath(5), Value: `{"id":5,"status":"active"}`},
		{Key: tupleNodePath("users", "a"), Value: `{"space":"users","key":"a","bucket_id":5,"data":1}`},
		{Key: bucketIndexNodePath("users", 5, "a")},
		{Key: spaceNodePath("users")},
	}, writes)
}

func TestPlanEtcdMovesIndexEntry(t *testing.T) {
	assert := assert.New(t)

	prev := map[string]*Tuple{
		tupleNodePath("users", "a"): NewTuple("users", "a", 1, nil),
	}
	tx := NewTransaction().PutTuple(NewTuple("users", "a", 2, nil))

	writes, err := planEtcd(tx, prev)
	assert.NoError(err)
	assert.Contains(writes, etcdWrite{Key: bucketIndexNodePath("users", 1, "a"), Delete: true})
	assert.Contains(writes, etcdWrite{Key: bucketIndexNodePath("users", 2, "a")})
}

func TestPlanEtcdDelete(t *testing.T) {
	assert := assert.New(t)

	prev := map[string]*Tuple{
		tupleNodePath("users", "a"): NewTuple("users", "a", 1, nil),
		tupleNodePath("users", "b"): nil,
	}
	tx := NewTransaction().
		DeleteTuple("users", "a").
		DeleteTuple("users", "b").
		DeleteBucket(1)

	writes, err := planEtcd(tx, prev)
	assert.NoError(err)
	assert.Equal([]etcdWrite{
		{Key: bucketIndexNodePath("users", 1, "a"), Delete: true},
		{Key: tupleNodePath("users", "a"), Delete: true},
		{Key: bucketNodePath(1), Delete: true},
	}, writes)
}

func TestKeyLayout(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("/buckets/00000000000000000042", bucketNodePath(42))
	assert.Equal("/tuples/users/c%2Fd", tupleNodePath("users", "c/d"))
	assert.Equal("/bucket_index/users/00000000000000000007/", bucketIndexPrefix("users", 7))

	key, err := keyFromIndexPath(bucketIndexPrefix("users", 7), bucketIndexNodePath("users", 7, "c/d"))
	assert.NoError(err)
	assert.Equal("c/d", key)

	space, err := spaceFromNodePath(spaceNodePath("a b"))
	assert.NoError(err)
	assert.Equal("a b", space)
}
