package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pg-sharding/shardman/pkg/config"
	meta_validators "github.com/pg-sharding/shardman/pkg/meta/validators"
	"github.com/pg-sharding/shardman/pkg/models/hashfunction"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/storage/instance"
	"github.com/pg-sharding/shardman/storage/migration"
)

var (
	endpoint string
	timeout  time.Duration

	hashFunction string
	bucketCount  uint64
)

var rootCmd = &cobra.Command{
	Use: "shardctl -e localhost:3301",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

func dial(ctx context.Context) (*rpc.Conn, error) {
	return rpc.Dial(ctx, endpoint, rpc.Config{
		CallTimeout:      timeout,
		ReconnectRetries: 3,
		ReconnectBackoff: 100 * time.Millisecond,
	})
}

// callAndPrint invokes name on the endpoint and prints its JSON result.
func callAndPrint(cmd *cobra.Command, name string, args ...any) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	res, err := conn.Call(ctx, name, args...)
	if err != nil {
		return err
	}
	if len(res) == 0 {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(res))
	return err
}

func parseBucketID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bucket id %q: %w", s, err)
	}
	return id, nil
}

var validateCmd = &cobra.Command{
	Use:   "validate <sharding-map>",
	Short: "validate a sharding map file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := config.LoadShardingMap(args[0])
		if err != nil {
			return err
		}
		sm, err := meta_validators.ParseShardingMap(raw)
		if err != nil {
			return err
		}
		servers := 0
		for _, rs := range sm {
			servers += len(rs.Servers)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d replicasets, %d servers\n", len(sm), servers)
		return err
	},
}

var bucketIDCmd = &cobra.Command{
	Use:   "bucket-id <key>",
	Short: "print the bucket a key belongs to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hf, err := hashfunction.HashFunctionByName(hashFunction)
		if err != nil {
			return err
		}
		id, err := hashfunction.BucketID(args[0], hf, bucketCount)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <bucket-id> <replicaset>",
	Short: "move a bucket to another replicaset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseBucketID(args[0])
		if err != nil {
			return err
		}
		return callAndPrint(cmd, migration.ProcBucketSend, id, args[1])
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <bucket-id>",
	Short: "show bucket status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseBucketID(args[0])
		if err != nil {
			return err
		}
		return callAndPrint(cmd, instance.ProcBucketStat, id)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "count buckets per status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd, instance.ProcBucketsInfo)
	},
}

var forceCreateCmd = &cobra.Command{
	Use:   "force-create <first-bucket-id> [count]",
	Short: "create active buckets bypassing migration",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		first, err := parseBucketID(args[0])
		if err != nil {
			return err
		}
		count := uint64(1)
		if len(args) == 2 {
			if count, err = strconv.ParseUint(args[1], 10, 64); err != nil {
				return fmt.Errorf("invalid count %q: %w", args[1], err)
			}
		}
		return callAndPrint(cmd, instance.ProcBucketForceCreate, first, count)
	},
}

var forceDropCmd = &cobra.Command{
	Use:   "force-drop <bucket-id>",
	Short: "drop a bucket bypassing migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseBucketID(args[0])
		if err != nil {
			return err
		}
		return callAndPrint(cmd, instance.ProcBucketForceDrop, id)
	},
}

var callCmd = &cobra.Command{
	Use:   "call <bucket-id> <read|write> <procedure> [json-arg...]",
	Short: "call a bucket-scoped procedure",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseBucketID(args[0])
		if err != nil {
			return err
		}
		procArgs := make([]json.RawMessage, 0, len(args)-3)
		for _, a := range args[3:] {
			if !json.Valid([]byte(a)) {
				return fmt.Errorf("argument %q is not valid json", a)
			}
			procArgs = append(procArgs, json.RawMessage(a))
		}
		return callAndPrint(cmd, instance.ProcCall, id, args[1], args[2], procArgs)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [timeout]",
	Short: "wait until replicas apply every write of the node",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		callArgs := make([]any, 0, 1)
		for _, a := range args {
			callArgs = append(callArgs, a)
		}
		return callAndPrint(cmd, instance.ProcSync, callArgs...)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "localhost:3301", "storage node address")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "call timeout")

	bucketIDCmd.Flags().StringVar(&hashFunction, "hash-function", "murmur", "hash function: murmur, city or identity")
	bucketIDCmd.Flags().Uint64Var(&bucketCount, "bucket-count", config.DefaultBucketCount, "total number of buckets")

	rootCmd.AddCommand(
		validateCmd,
		bucketIDCmd,
		sendCmd,
		statCmd,
		infoCmd,
		forceCreateCmd,
		forceDropCmd,
		callCmd,
		syncCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
