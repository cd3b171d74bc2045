package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/storage/app"
	"github.com/pg-sharding/shardman/storage/instance"
)

func TestRunStopsWithContext(t *testing.T) {
	assert := assert.New(t)

	cfg := &config.Node{
		InstanceUUID: "m1",
		ListenAddr:   "127.0.0.1:0",
	}
	cfg.ApplyDefaults()
	cfg.CheckpointInterval = 10 * time.Millisecond

	inst, err := instance.NewInstance(cfg, kvdb.NewMemKVDB(""), rpc.NewDialer(rpc.Config{}))
	assert.NoError(err)
	defer inst.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(app.NewApp(cfg, inst).Run(ctx))
}

func TestRunFailsOnBadAddress(t *testing.T) {
	cfg := &config.Node{
		InstanceUUID: "m1",
		ListenAddr:   "not an address",
	}
	cfg.ApplyDefaults()

	inst, err := instance.NewInstance(cfg, kvdb.NewMemKVDB(""), rpc.NewDialer(rpc.Config{}))
	assert.NoError(t, err)
	defer inst.Close()

	assert.Error(t, app.NewApp(cfg, inst).Run(context.Background()))
}

func TestInitTracerWithoutJaeger(t *testing.T) {
	closer, err := app.InitTracer(&config.JaegerCfg{}, "m1")
	assert.NoError(t, err)
	assert.NoError(t, closer.Close())
}
