package kvdb

import (
	"encoding/json"
)

// Bucket is the persisted bucket record.
type Bucket struct {
	ID          uint64 `json:"id"`
	Status      string `json:"status"`
	Destination string `json:"destination,omitempty"`
}

func NewBucket(id uint64, status string, destination string) *Bucket {
	return &Bucket{
		ID:          id,
		Status:      status,
		Destination: destination,
	}
}

func (b *Bucket) Equal(other *Bucket) bool {
	if b == nil || other == nil {
		return b == other
	}
	return *b == *other
}

// Tuple is a row of a data space. Every tuple belongs to exactly one bucket.
type Tuple struct {
	Space    string          `json:"space"`
	Key      string          `json:"key"`
	BucketID uint64          `json:"bucket_id"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func NewTuple(space, key string, bucketID uint64, data json.RawMessage) *Tuple {
	return &Tuple{
		Space:    space,
		Key:      key,
		BucketID: bucketID,
		Data:     data,
	}
}
