package topology

import (
	"context"
	"sync"

	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/pkg/smlog"
)

type Role int

const (
	RoleReplica = Role(iota)
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "replica"
}

// Server is a single storage node of a replicaset.
type Server struct {
	UUID     string
	URI      string
	Name     string
	IsMaster bool
}

// Replicaset groups the servers that store the same set of buckets.
// Requests to a replicaset go to its master over a lazily established
// connection.
type Replicaset struct {
	UUID    string
	Servers map[string]*Server
	Master  *Server

	mu      sync.Mutex
	conn    rpc.Caller
	retired bool
	next    *Replicaset
}

// MasterConn returns the connection to the replicaset master, dialing it
// on first use. On a replicaset of a replaced snapshot the call is served
// by its successor, so connections are only ever held by the newest one.
func (rs *Replicaset) MasterConn(ctx context.Context, dialer rpc.Dialer) (rpc.Caller, error) {
	if rs.Master == nil {
		return nil, smerror.Newf(smerror.SHARDMAN_NO_SUCH_REPLICASET, "replicaset %s has no master", rs.UUID)
	}

	rs.mu.Lock()
	if rs.retired {
		next := rs.next
		rs.mu.Unlock()
		if next == nil {
			return nil, smerror.Newf(smerror.SHARDMAN_NO_SUCH_REPLICASET, "master of replicaset %s has changed", rs.UUID)
		}
		return next.MasterConn(ctx, dialer)
	}
	defer rs.mu.Unlock()

	if rs.conn != nil {
		return rs.conn, nil
	}

	conn, err := dialer.Dial(ctx, rs.Master.URI)
	if err != nil {
		return nil, err
	}
	smlog.Zero.Debug().
		Str("replicaset", rs.UUID).
		Str("uri", rs.Master.URI).
		Msg("connected to replicaset master")
	rs.conn = conn
	return conn, nil
}

func (rs *Replicaset) currentConn() rpc.Caller {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.conn
}

func (rs *Replicaset) adoptConn(c rpc.Caller) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.conn = c
}

// retire hands the connection of rs over to next and redirects later
// MasterConn calls there. Without a successor the connection is returned
// to be closed.
func (rs *Replicaset) retire(next *Replicaset) rpc.Caller {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	c := rs.conn
	rs.conn = nil
	rs.retired = true
	rs.next = next
	if next != nil {
		if c != nil {
			next.adoptConn(c)
		}
		return nil
	}
	return c
}

// ClusterState is an immutable snapshot of the cluster as seen by the
// local node. A new snapshot is built on every sharding map change.
type ClusterState struct {
	Version         uint64
	Replicasets     map[string]*Replicaset
	LocalReplicaset *Replicaset
	LocalServer     *Server

	stale []rpc.Caller
}

func (cs *ClusterState) Role() Role {
	if cs.LocalServer != nil && cs.LocalServer.IsMaster {
		return RoleMaster
	}
	return RoleReplica
}

func (cs *ClusterState) IsMaster() bool {
	return cs.Role() == RoleMaster
}

func (cs *ClusterState) Replicaset(uuid string) (*Replicaset, bool) {
	rs, ok := cs.Replicasets[uuid]
	return rs, ok
}

// Build creates the cluster snapshot for the node identified by localUUID.
// Master connections of prev are carried over when the replicaset master
// keeps both its uuid and uri; all others are collected for ReleaseStale.
// prev is retired: it must not be used to build another snapshot.
func Build(sm config.ShardingMap, prev *ClusterState, localUUID string) (*ClusterState, error) {
	cs := &ClusterState{
		Replicasets: make(map[string]*Replicaset, len(sm)),
	}
	if prev != nil {
		cs.Version = prev.Version + 1
	}

	for rsUUID, rsCfg := range sm {
		rs := &Replicaset{
			UUID:    rsUUID,
			Servers: map[string]*Server{},
		}
		if rsCfg != nil {
			for srvUUID, srvCfg := range rsCfg.Servers {
				if srvCfg == nil {
					continue
				}
				srv := &Server{
					UUID:     srvUUID,
					URI:      srvCfg.URI,
					Name:     srvCfg.Name,
					IsMaster: srvCfg.Master,
				}
				rs.Servers[srvUUID] = srv
				if srv.IsMaster {
					rs.Master = srv
				}
				if srvUUID == localUUID {
					cs.LocalReplicaset = rs
					cs.LocalServer = srv
				}
			}
		}
		cs.Replicasets[rsUUID] = rs
	}

	if cs.LocalServer == nil {
		return nil, smerror.Newf(smerror.SHARDMAN_LOCAL_NODE_NOT_FOUND, "instance %s is not present in the sharding map", localUUID)
	}

	if prev != nil {
		for uuid, old := range prev.Replicasets {
			rs, ok := cs.Replicasets[uuid]
			if !ok || !sameMaster(old.Master, rs.Master) {
				rs = nil
			}
			if c := old.retire(rs); c != nil {
				cs.stale = append(cs.stale, c)
			}
		}
	}

	return cs, nil
}

func sameMaster(a, b *Server) bool {
	if a == nil || b == nil {
		return false
	}
	return a.UUID == b.UUID && a.URI == b.URI
}

// ReleaseStale closes the connections of the previous snapshot that were
// not carried over. It must be called once the new snapshot is published.
func (cs *ClusterState) ReleaseStale() {
	for _, c := range cs.stale {
		if err := c.Close(); err != nil {
			smlog.Zero.Debug().Err(err).Str("uri", c.URI()).Msg("failed to close stale connection")
		}
	}
	cs.stale = nil
}

// Close closes every master connection held by the snapshot.
func (cs *ClusterState) Close() {
	cs.ReleaseStale()
	for _, rs := range cs.Replicasets {
		if c := rs.currentConn(); c != nil {
			_ = c.Close()
			rs.adoptConn(nil)
		}
	}
}
