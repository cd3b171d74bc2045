package master

import (
	"context"
	"fmt"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/metrics"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/pkg/replication"
	"github.com/pg-sharding/shardman/pkg/smlog"
)

// Manager reacts to changes of the local node's mastership.
type Manager struct {
	src replication.Source

	demotionTimeout time.Duration
	pollInterval    time.Duration
}

func NewManager(src replication.Source, demotionTimeout, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = config.DefaultSyncPollInterval
	}
	return &Manager{
		src:             src,
		demotionTimeout: demotionTimeout,
		pollInterval:    pollInterval,
	}
}

// OnRoleChange compares the local role in prev and next. When the node
// stops being a master it waits, for at most the demotion timeout, until
// every downstream has applied what this node had written. A timed out
// barrier is logged and the demotion proceeds. The only error returned
// is the cancellation of ctx.
//
// Promotion does not wait for anything, so a freshly promoted master may
// serve data older than what the previous master committed.
func (m *Manager) OnRoleChange(ctx context.Context, prev, next *topology.ClusterState) error {
	wasMaster := prev != nil && prev.IsMaster()
	isMaster := next.IsMaster()

	switch {
	case wasMaster == isMaster:
		return nil
	case isMaster:
		if prev == nil {
			smlog.Zero.Info().Uint64("version", next.Version).Msg("starting as master")
			return nil
		}
		// TODO: decide whether promotion needs a catch-up barrier symmetric to demotion.
		smlog.Zero.Warn().
			Uint64("version", next.Version).
			Msg("promoted to master without waiting for replication")
		return nil
	}

	target := m.src.LocalVClock()
	smlog.Zero.Info().
		Uint64("version", next.Version).
		Str("vclock", target.String()).
		Dur("timeout", m.demotionTimeout).
		Msg("demoting, waiting for downstreams")

	t := time.Now()
	lagging, err := m.wait(ctx, target, m.demotionTimeout)
	elapsed := time.Since(t)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	metrics.RecordDemotionBarrier(elapsed, err != nil)

	if err != nil {
		smlog.Zero.Warn().
			Strs("lagging", lagging).
			Dur("elapsed", elapsed).
			Msg("demotion barrier timed out, proceeding")
		return nil
	}
	smlog.Zero.Info().Dur("elapsed", elapsed).Msg("downstreams caught up, demoted")
	return nil
}

// Sync waits until every downstream has applied the current local
// position.
func (m *Manager) Sync(ctx context.Context, timeout time.Duration) error {
	target := m.src.LocalVClock()
	lagging, err := m.wait(ctx, target, timeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return smerror.Newf(smerror.SHARDMAN_SYNC_TIMEOUT,
		"replicas %s did not reach %s in %s", strings.Join(lagging, ", "), target, timeout)
}

// wait polls the downstream positions until none lags behind target. On
// failure it returns the replicas that were still behind.
func (m *Manager) wait(ctx context.Context, target replication.VClock, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lagging []string
	err := retry.Do(ctx, retry.NewConstant(m.pollInterval), func(ctx context.Context) error {
		lagging = replication.Lagging(m.src, target)
		if len(lagging) == 0 {
			return nil
		}
		return retry.RetryableError(fmt.Errorf("%d downstreams are behind", len(lagging)))
	})
	return lagging, err
}
