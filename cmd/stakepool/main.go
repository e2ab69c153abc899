package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stakeScope/internal/clock"
	"stakeScope/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "stakepool",
		Short:        "Staking pool reward accountant",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("store", config.StoreFile, "state backend (file, postgres)")
	flags.String("state-file", "./data/state.json", "state file for the file store")
	flags.String("pg-dsn", "", "Postgres DSN for the postgres store")
	flags.String("journal", "./data/events.jsonl", "event journal JSONL path, empty to disable")
	flags.String("redis-addr", "", "Redis address for event notifications, empty to disable")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.String("redis-channel", "stakepool:events", "Redis Pub/Sub channel")
	flags.String("redis-stream", "", "optional Redis stream that also receives events")
	flags.Duration("epoch-length", clock.DefaultEpochLength, "epoch length for pool timestamps")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCreateCmd(),
		newCreditCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newClaimCmd(),
		newSyncCmd(),
		newShowCmd(),
		newWatchCmd(),
	)
	return root
}

// withRuntime loads configuration, opens the configured store and sinks and
// runs fn with a context cancelled on SIGINT/SIGTERM.
func withRuntime(cmd *cobra.Command, fn func(context.Context, *runtime) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Failed operations are logged by the service; cobra prints the error.
	return fn(ctx, rt)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// buildLogger is replaced in tests to capture log output.
var buildLogger = newLogger

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
