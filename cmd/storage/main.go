package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/pkg/smlog"
	"github.com/pg-sharding/shardman/storage/app"
	"github.com/pg-sharding/shardman/storage/instance"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "shardman-storage run --config `path-to-config`",
	Short: "shardman-storage",
	Long:  "shardman bucket storage node",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		smlog.Zero.Fatal().Err(err).Msg("")
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/etc/shardman/storage.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "overrides log_level of the config file")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run storage node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgStr, err := config.LoadNodeCfg(cfgPath)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		cfg := config.NodeConfig()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		smlog.ReloadLogger(cfg.LogFile, cfg.LogLevel, cfg.PrettyLogging)
		if err := smlog.UpdateZeroLogLevel(cfg.LogLevel); err != nil {
			return err
		}
		smlog.Zero.Info().Msg("Running config: " + cfgStr)

		tracer, err := app.InitTracer(&cfg.JaegerConfig, cfg.InstanceUUID)
		if err != nil {
			return errors.Wrap(err, "failed to init tracer")
		}
		defer func() {
			_ = tracer.Close()
		}()

		db, err := kvdb.NewKVDB(&cfg.Storage)
		if err != nil {
			return errors.Wrap(err, "failed to open storage")
		}

		inst, err := instance.NewInstance(cfg, db, rpc.NewDialer(rpc.ConfigFromNode(&cfg.RPC)))
		if err != nil {
			_ = db.Close()
			return errors.Wrap(err, "storage node failed to start")
		}
		defer func() {
			if err := inst.Close(); err != nil {
				smlog.Zero.Error().Err(err).Msg("failed to close storage")
			}
		}()

		ctx, cancelCtx := context.WithCancel(context.Background())
		defer cancelCtx()

		if err := inst.ReloadShardingMap(ctx); err != nil {
			return errors.Wrap(err, "failed to apply sharding map")
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case s := <-sigs:
					smlog.Zero.Info().Str("signal", s.String()).Msg("received signal")

					switch s {
					case syscall.SIGHUP:
						smlog.ReloadLogger(cfg.LogFile, cfg.LogLevel, cfg.PrettyLogging)
						// a rejected map keeps the current one
						if err := inst.ReloadShardingMap(ctx); err != nil {
							smlog.Zero.Error().Err(err).Msg("sharding map reload failed")
						}
					case syscall.SIGINT, syscall.SIGTERM:
						cancelCtx()
						return
					}
				}
			}
		}()

		return app.NewApp(cfg, inst).Run(ctx)
	},
}

func main() {
	Execute()
}
