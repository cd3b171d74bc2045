package dispatch

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/pg-sharding/shardman/pkg/metrics"
	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/pkg/smlog"
	"github.com/pg-sharding/shardman/storage/statistics"
)

// Response is the envelope of a successful call.
type Response struct {
	Ok     bool `json:"ok"`
	Result any  `json:"result,omitempty"`
}

// Dispatcher is the gate of every bucket-scoped procedure call.
type Dispatcher struct {
	mgr      buckets.BucketMgr
	registry *Registry
	calls    *smlog.CallLogger
}

func NewDispatcher(mgr buckets.BucketMgr, registry *Registry, calls *smlog.CallLogger) *Dispatcher {
	return &Dispatcher{
		mgr:      mgr,
		registry: registry,
		calls:    calls,
	}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Call admits bucket id for mode and runs the named procedure. A refused
// admission is returned as is and nothing is executed.
func (d *Dispatcher) Call(ctx context.Context, cs *topology.ClusterState, id uint64, mode buckets.Mode, name string, args rpc.Args) (resp *Response, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "call")
	defer span.Finish()
	span.SetTag("procedure", name)
	span.SetTag("bucket", id)
	span.SetTag("mode", string(mode))

	proc, found := d.registry.Lookup(name)
	if found && proc.Mode == buckets.Write {
		mode = buckets.Write
	}

	if err := d.mgr.CheckState(ctx, cs, id, mode); err != nil {
		smlog.Zero.Debug().
			Err(err).
			Str("procedure", name).
			Uint64("bucket", id).
			Str("mode", string(mode)).
			Msg("call refused")
		return nil, err
	}
	if !found {
		return nil, smerror.Newf(smerror.SHARDMAN_NO_SUCH_PROCEDURE, "procedure %s is not registered", name)
	}

	t := time.Now()
	defer func() {
		elapsed := time.Since(t)
		metrics.RecordCall(name, elapsed, err == nil)
		statistics.RecordOperation(statistics.Call, elapsed)
		d.calls.ReportCall(name, id, elapsed)
		if err != nil {
			span.SetTag("error", true)
		}
	}()

	result, err := proc.Fn(ctx, id, args)
	if err != nil {
		return nil, err
	}
	return &Response{Ok: true, Result: result}, nil
}
