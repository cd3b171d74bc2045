package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	retry "github.com/sethvargo/go-retry"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"

	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/smlog"
)

// Config is the per-connection call and reconnect policy.
type Config struct {
	CallTimeout      time.Duration
	DialTimeout      time.Duration
	ReconnectRetries uint64
	ReconnectBackoff time.Duration

	DialOptions []grpc.DialOption
}

// ConfigFromNode builds the connection policy out of the node configuration.
func ConfigFromNode(cfg *config.RPCCfg) Config {
	return Config{
		CallTimeout:      cfg.CallTimeout,
		DialTimeout:      cfg.DialTimeout,
		ReconnectRetries: cfg.ReconnectRetries,
		ReconnectBackoff: cfg.ReconnectBackoff,
	}
}

// Conn is a reusable connection to a single storage node.
type Conn struct {
	uri string
	cfg Config
	cc  *grpc.ClientConn
}

//go:generate -command mockgen -source=pkg/rpc/client.go -destination=pkg/mock/rpc/client_mock.go -package=mock_rpc

// Dialer opens connections to storage nodes. It is an interface so
// that topology code can be tested without a network.
type Dialer interface {
	Dial(ctx context.Context, uri string) (Caller, error)
}

// Caller is the client side of a storage node connection.
type Caller interface {
	Call(ctx context.Context, name string, args ...any) (json.RawMessage, error)
	URI() string
	Close() error
}

var _ Caller = &Conn{}

type grpcDialer struct {
	cfg Config
}

func NewDialer(cfg Config) Dialer {
	return &grpcDialer{cfg: cfg}
}

func (d *grpcDialer) Dial(ctx context.Context, uri string) (Caller, error) {
	return Dial(ctx, uri, d.cfg)
}

// Dial creates a client connection. The transport connects lazily and
// reconnects on its own; Call retries while it is unavailable.
func Dial(ctx context.Context, uri string, cfg Config) (*Conn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithStatsHandler(sentTracker{}),
	}
	if cfg.DialTimeout > 0 {
		opts = append(opts, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: cfg.DialTimeout,
		}))
	}
	opts = append(opts, cfg.DialOptions...)

	cc, err := grpc.NewClient(uri, opts...)
	if err != nil {
		return nil, smerror.Newf(smerror.SHARDMAN_TRANSFER_ERROR, "dial %s: %s", uri, err)
	}

	smlog.Zero.Debug().
		Str("uri", uri).
		Uint("conn", smlog.GetPointer(cc)).
		Msg("rpc: dial")

	return &Conn{
		uri: uri,
		cfg: cfg,
		cc:  cc,
	}, nil
}

func (c *Conn) URI() string {
	return c.uri
}

func (c *Conn) Close() error {
	smlog.Zero.Debug().
		Str("uri", c.uri).
		Msg("rpc: close connection")
	return c.cc.Close()
}

type sentKey struct{}

// sentTracker marks the request of a call as sent once its payload has been
// handed to the transport.
type sentTracker struct{}

func (sentTracker) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context {
	return ctx
}

func (sentTracker) HandleRPC(ctx context.Context, s stats.RPCStats) {
	if p, ok := s.(*stats.OutPayload); ok && p.IsClient() {
		if sent, ok := ctx.Value(sentKey{}).(*atomic.Bool); ok {
			sent.Store(true)
		}
	}
}

func (sentTracker) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

func (sentTracker) HandleConn(context.Context, stats.ConnStats) {}

func (c *Conn) backoff() retry.Backoff {
	base := c.cfg.ReconnectBackoff
	if base <= 0 {
		base = config.DefaultReconnectBackoff
	}
	b := retry.NewFibonacci(base)
	return retry.WithMaxRetries(c.cfg.ReconnectRetries, b)
}

// Call invokes a remote procedure with positional arguments. Remote
// protocol errors come back as *smerror.SmError.
//
// A call is retried while the node is unavailable, but only as long as the
// request has not been sent. A connection lost after sending fails with
// ErrDeliveryUncertain.
func (c *Conn) Call(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	req := &Request{
		Name: name,
		Args: make([]json.RawMessage, 0, len(args)),
	}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "encode argument of %s: %s", name, err)
		}
		req.Args = append(req.Args, raw)
	}

	resp := &Response{}
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		callCtx := ctx
		if c.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
		}

		sent := atomic.NewBool(false)
		err := c.cc.Invoke(context.WithValue(callCtx, sentKey{}, sent), callMethod, req, resp)
		if status.Code(err) == codes.Unavailable {
			if sent.Load() {
				smlog.Zero.Warn().
					Str("uri", c.uri).
					Str("procedure", name).
					Err(err).
					Msg("rpc: connection lost after the request was sent")
				return &uncertainError{err: err}
			}
			smlog.Zero.Debug().
				Str("uri", c.uri).
				Str("procedure", name).
				Err(err).
				Msg("rpc: node unavailable, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	var ue *uncertainError
	if errors.As(err, &ue) {
		return nil, ue
	}
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.Result, nil
}

// CallInto is Call followed by decoding the result into out.
func CallInto(ctx context.Context, c Caller, out any, name string, args ...any) error {
	raw, err := c.Call(ctx, name, args...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
