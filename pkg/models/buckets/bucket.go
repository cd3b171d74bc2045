package buckets

import (
	"fmt"

	"github.com/pg-sharding/shardman/kvdb"
)

type Status string

const (
	Active    = Status("active")
	Sending   = Status("sending")
	Sent      = Status("sent")
	Receiving = Status("receiving")
)

func (s Status) Valid() bool {
	switch s {
	case Active, Sending, Sent, Receiving:
		return true
	}
	return false
}

type Mode string

const (
	Read  = Mode("read")
	Write = Mode("write")
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Read, Write:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown access mode %q", s)
	}
}

// Bucket is the unit of data ownership. Destination is the replicaset a
// bucket is being sent to, or the source replicaset while it is received.
type Bucket struct {
	ID          uint64 `json:"id"`
	Status      Status `json:"status"`
	Destination string `json:"destination,omitempty"`
}

func BucketFromDB(b *kvdb.Bucket) *Bucket {
	if b == nil {
		return nil
	}
	return &Bucket{
		ID:          b.ID,
		Status:      Status(b.Status),
		Destination: b.Destination,
	}
}

func BucketToDB(b *Bucket) *kvdb.Bucket {
	return kvdb.NewBucket(b.ID, string(b.Status), b.Destination)
}

// Writable reports whether a bucket accepts requests in the given mode.
func (b *Bucket) Writable(mode Mode) bool {
	switch b.Status {
	case Active:
		return true
	case Sending:
		return mode == Read
	default:
		return false
	}
}

// Info counts local buckets per status.
type Info struct {
	Active    uint64 `json:"active"`
	Sending   uint64 `json:"sending"`
	Sent      uint64 `json:"sent"`
	Receiving uint64 `json:"receiving"`
	Total     uint64 `json:"total"`
}

func (i *Info) Add(b *Bucket) {
	switch b.Status {
	case Active:
		i.Active++
	case Sending:
		i.Sending++
	case Sent:
		i.Sent++
	case Receiving:
		i.Receiving++
	}
	i.Total++
}
