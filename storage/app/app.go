package app

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/metrics"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/pkg/smlog"
	"github.com/pg-sharding/shardman/storage/instance"
)

type App struct {
	cfg  *config.Node
	inst *instance.Instance
}

func NewApp(cfg *config.Node, inst *instance.Instance) *App {
	return &App{
		cfg:  cfg,
		inst: inst,
	}
}

// Run serves the storage procedures, the metrics endpoint and the
// periodic checkpoint until ctx is done or one of them fails.
func (app *App) Run(ctx context.Context) error {
	smlog.Zero.Info().Str("instance", app.cfg.InstanceUUID).Msg("running storage app")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.ServeRPC(ctx)
	})
	if app.cfg.HttpAddr != "" {
		exporter := metrics.NewExporter(app.cfg.HttpAddr, app.inst.Mgr)
		g.Go(func() error {
			return exporter.Run(ctx)
		})
	}
	g.Go(func() error {
		app.runCheckpoints(ctx)
		return nil
	})

	err := g.Wait()
	smlog.Zero.Debug().Err(err).Msg("exit storage app")
	return err
}

func (app *App) ServeRPC(ctx context.Context) error {
	srv := rpc.NewServer()
	app.inst.Register(srv)

	listener, err := net.Listen("tcp", app.cfg.ListenAddr)
	if err != nil {
		smlog.Zero.Error().
			Err(err).
			Str("address", app.cfg.ListenAddr).
			Msg("error serve storage rpc")
		return err
	}

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	smlog.Zero.Info().
		Strs("procedures", srv.Procedures()).
		Msg("storage procedures registered")
	return srv.Serve(listener)
}

func (app *App) runCheckpoints(ctx context.Context) {
	ticker := time.NewTicker(app.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.inst.Checkpoint(ctx); err != nil {
				smlog.Zero.Error().Err(err).Msg("checkpoint failed")
			}
		}
	}
}
