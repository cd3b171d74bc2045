package migration

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/metrics"
	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/pkg/smlog"
	"github.com/pg-sharding/shardman/storage/statistics"
)

const ProcBucketRecv = "bucket_recv"

// Coordinator moves buckets between replicasets.
type Coordinator struct {
	mgr    buckets.BucketMgr
	db     kvdb.KVDB
	dialer rpc.Dialer
}

func NewCoordinator(mgr buckets.BucketMgr, db kvdb.KVDB, dialer rpc.Dialer) *Coordinator {
	return &Coordinator{
		mgr:    mgr,
		db:     db,
		dialer: dialer,
	}
}

// Collect reads every row of bucket id across all spaces.
func (c *Coordinator) Collect(ctx context.Context, id uint64) ([]*kvdb.Tuple, error) {
	spaces, err := c.db.ListSpaces(ctx)
	if err != nil {
		return nil, smerror.Newf(smerror.SHARDMAN_STORAGE_ERROR, "failed to list spaces: %w", err)
	}

	var rows []*kvdb.Tuple
	for _, space := range spaces {
		part, err := c.db.ScanBucket(ctx, space, id)
		if err != nil {
			return nil, smerror.Newf(smerror.SHARDMAN_STORAGE_ERROR, "failed to scan bucket %d in space %s: %w", id, space, err)
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

// BucketSend transfers bucket id to the master of the destination
// replicaset. On return the bucket is SENT on success and ACTIVE on any
// reported failure. It stays SENDING only if the outcome of the remote
// call is unknown, which is reported as SHARDMAN_TRANSFER_UNCERTAIN.
//
// Rows are collected before the bucket enters SENDING; writes that land
// in between are not transferred.
func (c *Coordinator) BucketSend(ctx context.Context, cs *topology.ClusterState, id uint64, destination string) (err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "bucket_send")
	defer span.Finish()
	span.SetTag("bucket", id)
	span.SetTag("destination", destination)

	t := time.Now()
	result := metrics.ResultError
	defer func() {
		metrics.RecordMigration(metrics.DirectionSend, result, time.Since(t))
		statistics.RecordOperation(statistics.Send, time.Since(t))
		if err != nil {
			span.SetTag("error", true)
		}
	}()

	b, err := c.mgr.GetBucket(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return smerror.NewWrongBucket(id, "", "bucket %d is not found", id)
	}
	if b.Status != buckets.Active {
		return smerror.NewRedirect(id, b.Destination, "bucket %d is %s, not active", id, b.Status)
	}

	rs, ok := cs.Replicaset(destination)
	if !ok {
		return smerror.Newf(smerror.SHARDMAN_NO_SUCH_REPLICASET, "replicaset %s is unknown", destination)
	}
	if cs.LocalReplicaset != nil && destination == cs.LocalReplicaset.UUID {
		return smerror.Newf(smerror.SHARDMAN_MOVE_TO_SELF, "bucket %d already belongs to replicaset %s", id, destination)
	}

	rows, err := c.Collect(ctx, id)
	if err != nil {
		return err
	}

	sending, err := c.mgr.StartSending(ctx, id, destination)
	if err != nil {
		return err
	}

	smlog.Zero.Info().
		Uint64("bucket", id).
		Str("destination", destination).
		Int("rows", len(rows)).
		Msg("sending bucket")

	conn, err := rs.MasterConn(ctx, c.dialer)
	if err != nil {
		return c.rollback(ctx, sending, smerror.Newf(smerror.SHARDMAN_TRANSFER_ERROR, "failed to connect to replicaset %s: %w", destination, err))
	}

	from := ""
	if cs.LocalReplicaset != nil {
		from = cs.LocalReplicaset.UUID
	}
	_, err = conn.Call(ctx, ProcBucketRecv, id, from, rows)
	switch {
	case err == nil:
		result = metrics.ResultOk
	case rpc.IsDeliveryUncertain(err):
		result = metrics.ResultUncertain
		smlog.Zero.Error().
			Err(err).
			Uint64("bucket", id).
			Str("destination", destination).
			Msg("bucket transfer outcome is unknown, bucket is left sending")
		uncertain := smerror.Newf(smerror.SHARDMAN_TRANSFER_UNCERTAIN, "bucket %d transfer to %s did not complete: %w", id, destination, err)
		uncertain.Hint = &smerror.BucketHint{BucketID: id, Destination: destination}
		return uncertain
	default:
		// includes BucketAlreadyExists: the destination may hold a record
		// of an earlier move that has not been reaped
		return c.rollback(ctx, sending, smerror.Newf(smerror.SHARDMAN_TRANSFER_ERROR, "failed to send bucket %d to %s: %w", id, destination, err))
	}

	if err := c.mgr.MarkSent(ctx, sending); err != nil {
		smlog.Zero.Error().Err(err).Uint64("bucket", id).Msg("bucket delivered but not marked as sent")
		return err
	}
	smlog.Zero.Info().
		Uint64("bucket", id).
		Str("destination", destination).
		Dur("elapsed", time.Since(t)).
		Msg("bucket sent")
	return nil
}

func (c *Coordinator) rollback(ctx context.Context, sending *buckets.Bucket, cause error) error {
	smlog.Zero.Warn().
		Err(cause).
		Uint64("bucket", sending.ID).
		Msg("rolling back bucket to active")

	if err := c.mgr.RollbackSending(context.WithoutCancel(ctx), sending); err != nil {
		smlog.Zero.Error().Err(err).Uint64("bucket", sending.ID).Msg("failed to roll back bucket")
		return smerror.Newf(smerror.SHARDMAN_STORAGE_ERROR, "rollback of bucket %d failed: %v, after: %w", sending.ID, err, cause)
	}
	return cause
}

// BucketRecv stores a transferred bucket. A bucket that already exists is
// rejected without changes, which makes redelivery safe.
func (c *Coordinator) BucketRecv(ctx context.Context, id uint64, from string, rows []*kvdb.Tuple) (err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "bucket_recv")
	defer span.Finish()
	span.SetTag("bucket", id)
	span.SetTag("from", from)

	t := time.Now()
	defer func() {
		result := metrics.ResultOk
		switch {
		case err == nil:
		case smerror.IsCode(err, smerror.SHARDMAN_BUCKET_ALREADY_EXISTS):
			result = metrics.ResultAlreadyExists
		default:
			result = metrics.ResultError
			span.SetTag("error", true)
		}
		metrics.RecordMigration(metrics.DirectionRecv, result, time.Since(t))
		statistics.RecordOperation(statistics.Recv, time.Since(t))
	}()

	return c.mgr.Receive(ctx, id, from, rows)
}
