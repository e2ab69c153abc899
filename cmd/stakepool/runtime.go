package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stakeScope/internal/clock"
	"stakeScope/internal/config"
	"stakeScope/internal/metrics"
	"stakeScope/internal/notify"
	"stakeScope/internal/staking"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/file"
	"stakeScope/internal/storage/postgres"
)

// runtime owns the store and sinks behind a staking.Service.
type runtime struct {
	svc     *staking.Service
	logger  *zap.Logger
	closers []func() error
}

func openRuntime(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{logger: logger}

	var (
		store storage.Store
		sinks storage.MultiSink
	)
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		store = pg
		sinks = append(sinks, pg)
	default:
		fs, err := file.Open(cfg.StateFile)
		if err != nil {
			return nil, fmt.Errorf("open state file: %w", err)
		}
		rt.closers = append(rt.closers, fs.Close)
		store = fs
	}

	if cfg.Journal != "" {
		journal := storage.NewJsonlSink(cfg.Journal)
		rt.closers = append(rt.closers, journal.Close)
		sinks = append(sinks, journal)
	}
	if cfg.RedisAddr != "" {
		pub, err := notify.NewPublisher(ctx, notify.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
			Stream:   cfg.RedisStream,
		}, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pub.Close)
		sinks = append(sinks, pub)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	opts := staking.Options{
		Clock:   clock.New(cfg.EpochLength),
		Metrics: m,
	}
	if len(sinks) > 0 {
		opts.Sink = sinks
	}
	rt.svc = staking.NewService(store, opts, logger)

	logger.Debug("runtime ready",
		zap.String("store", cfg.Store),
		zap.String("journal", cfg.Journal),
		zap.Bool("redis", cfg.RedisAddr != ""),
	)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
