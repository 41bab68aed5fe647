package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	backend "github.com/redis/go-redis/v9"

	"github.com/rendis/statetree/internal/checkpoint"
	"github.com/rendis/statetree/internal/engine"
	"github.com/rendis/statetree/internal/loader"
	"github.com/rendis/statetree/internal/scheduler"
	"github.com/rendis/statetree/internal/store"
	"github.com/rendis/statetree/internal/streaming"
	"github.com/rendis/statetree/pkg/statetree"
)

// host bundles everything a long-running statetree process needs.
type host struct {
	store     *store.LibSQLStore
	hub       streaming.EventHub
	fleet     *engine.Fleet
	scheduler *scheduler.Scheduler
	loop      *engine.Loop
	redis     *backend.Client
}

// hostOptions toggles the parts a command does not need.
type hostOptions struct {
	persist bool // open the database, restore agents and run the scheduler
}

func newHost(ctx context.Context, cfg Config, logger *slog.Logger, opts hostOptions) (*host, error) {
	policy, err := statetree.ParseTickPolicy(cfg.TickPolicy)
	if err != nil {
		return nil, err
	}
	compiler, err := loader.NewDefaultCompiler(logger)
	if err != nil {
		return nil, fmt.Errorf("create compiler: %w", err)
	}

	h := &host{}
	var ckpt checkpoint.Checkpointer = checkpoint.NewMemoryCheckpointer()
	h.hub = streaming.NewMemoryHub()
	if cfg.RedisAddr != "" {
		h.redis = backend.NewClient(&backend.Options{Addr: cfg.RedisAddr})
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.redis.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		h.hub = streaming.NewRedisHub(h.redis, streaming.WithHubLogger(logger))
		ckpt = checkpoint.NewRedisCheckpointerFromClient(h.redis)
	}

	fleetOpts := engine.Options{
		PoolSize:    cfg.PoolSize,
		TickPolicy:  policy,
		Hub:         h.hub,
		Checkpoints: ckpt,
		Metrics:     engine.NewMetrics(),
		Logger:      logger,
	}
	if opts.persist {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			h.close()
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		h.store, err = store.NewLibSQLStore("file:" + cfg.DBPath)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := h.store.Migrate(ctx); err != nil {
			h.close()
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		fleetOpts.Store = h.store
		fleetOpts.Events = store.NewEventLog(h.store)
	}

	h.fleet, err = engine.NewFleet(compiler, fleetOpts)
	if err != nil {
		h.close()
		return nil, err
	}
	h.loop = engine.NewLoop(h.fleet, cfg.interval(), logger)

	if opts.persist {
		n, err := h.fleet.LoadTrees(ctx)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("load trees: %w", err)
		}
		logger.Info("trees loaded", slog.Int("count", n))
		h.scheduler = scheduler.NewScheduler(h.store, h.fleet, logger)
	}

	if cfg.TreesDir != "" {
		if err := registerDir(ctx, h.fleet, cfg.TreesDir, logger); err != nil {
			h.close()
			return nil, err
		}
	}

	if opts.persist {
		n, err := h.fleet.RestoreAll(ctx)
		if err != nil {
			logger.Warn("restore agents", slog.Any("error", err))
		}
		logger.Info("agents restored", slog.Int("count", n))
	}
	return h, nil
}

// start launches the scheduler. The frame loop is run by the caller.
func (h *host) start(ctx context.Context) error {
	if h.scheduler == nil {
		return nil
	}
	if err := h.scheduler.RecoverMissed(ctx); err != nil {
		return fmt.Errorf("recover missed schedules: %w", err)
	}
	return h.scheduler.Start(ctx)
}

// shutdown checkpoints and stops agents, then releases every resource.
func (h *host) shutdown(ctx context.Context) error {
	var errs []error
	if h.scheduler != nil {
		errs = append(errs, h.scheduler.Stop())
	}
	if h.fleet != nil {
		errs = append(errs, h.fleet.Shutdown(ctx))
	}
	errs = append(errs, h.close())
	return errors.Join(errs...)
}

func (h *host) close() error {
	var errs []error
	if h.store != nil {
		errs = append(errs, h.store.Close())
	}
	if h.redis != nil {
		errs = append(errs, h.redis.Close())
	}
	return errors.Join(errs...)
}

// registerDir registers every .yaml, .yml and .json definition in dir.
func registerDir(ctx context.Context, fleet *engine.Fleet, dir string, logger *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read trees dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := loader.LoadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, err := fleet.RegisterTree(ctx, def, ""); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Info("tree registered", slog.String("tree", def.Name), slog.String("path", path))
	}
	return nil
}
