package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakeScope/internal/chain"
	"stakeScope/internal/config"
	"stakeScope/internal/metrics"
	"stakeScope/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror reward vault balances and sync pools on a schedule",
		RunE:  runWatch,
	}

	cmd.Flags().String("rpc", "", "Ethereum RPC URL, required with --reward-token")
	cmd.Flags().StringSlice("pools", nil, "pool ids to sync (comma-separated)")
	cmd.Flags().String("reward-token", "", "ERC-20 whose balance at each reward vault is mirrored")
	cmd.Flags().String("schedule", watch.DefaultSchedule, "cron schedule with seconds field")
	cmd.Flags().String("metrics-addr", ":9102", "listen address for /metrics and /healthz")
	cmd.Flags().Int("max-retries", 5, "max retries for RPC calls")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "base backoff between RPC retries")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt, err := openRuntime(ctx, cfg.Config, reg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	var source watch.BalanceSource
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()

		chainID, err := client.ChainID(ctx)
		if err != nil {
			return err
		}
		logger.Info("connected to chain", zap.String("chain_id", chainID.String()))
		source = client
	}

	w := watch.New(watch.Config{
		Pools:        cfg.Pools,
		RewardToken:  cfg.RewardToken,
		Schedule:     cfg.Schedule,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, rt.svc, source, logger)

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           newRouter(reg, w),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
			stop()
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("watch starting",
		zap.String("store", cfg.Store),
		zap.Int("pools", len(cfg.Pools)),
		zap.String("reward_token", cfg.RewardToken.Hex()),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)
	return w.Run(ctx)
}

type tickReporter interface {
	LastTick() time.Time
}

func newRouter(g prometheus.Gatherer, ticks tickReporter) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler(g)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ticks.LastTick().IsZero() {
			http.Error(w, "no tick yet", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}
