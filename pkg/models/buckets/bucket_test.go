package buckets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/models/buckets"
)

func TestWritable(t *testing.T) {
	for _, tt := range []struct {
		status buckets.Status
		read   bool
		write  bool
	}{
		{buckets.Active, true, true},
		{buckets.Sending, true, false},
		{buckets.Sent, false, false},
		{buckets.Receiving, false, false},
	} {
		t.Run(string(tt.status), func(t *testing.T) {
			b := &buckets.Bucket{ID: 1, Status: tt.status}
			assert.Equal(t, tt.read, b.Writable(buckets.Read))
			assert.Equal(t, tt.write, b.Writable(buckets.Write))
		})
	}
}

func TestDBConversion(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(buckets.BucketFromDB(nil))

	b := &buckets.Bucket{ID: 9, Status: buckets.Sending, Destination: "rs2"}
	assert.Equal(kvdb.NewBucket(9, "sending", "rs2"), buckets.BucketToDB(b))
	assert.Equal(b, buckets.BucketFromDB(buckets.BucketToDB(b)))
}

func TestParseMode(t *testing.T) {
	assert := assert.New(t)

	m, err := buckets.ParseMode("write")
	assert.NoError(err)
	assert.Equal(buckets.Write, m)

	_, err = buckets.ParseMode("append")
	assert.Error(err)

	assert.True(buckets.Receiving.Valid())
	assert.False(buckets.Status("garbage").Valid())
}

func TestInfo(t *testing.T) {
	assert := assert.New(t)

	info := &buckets.Info{}
	for _, s := range []buckets.Status{buckets.Active, buckets.Active, buckets.Sent, buckets.Receiving} {
		info.Add(&buckets.Bucket{Status: s})
	}
	assert.Equal(&buckets.Info{Active: 2, Sent: 1, Receiving: 1, Total: 4}, info)
}
