package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/cache"
	"github.com/yungbote/rollup-backend/internal/db"
	"github.com/yungbote/rollup-backend/internal/denorm"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/envutil"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services

	stats        cache.StatsCache
	recomputer   *denorm.Recomputer
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg := LoadConfig(log)

	dbSvc, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbSvc.Migrate(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	theDB := dbSvc.DB()

	metrics := observability.NewMetrics()
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	// The tracker registry and its plugin are the heart of the service:
	// every tracked mutation from here on keeps parent aggregates current.
	registry := types.RollupRegistry()
	plugin := denorm.New(registry,
		denorm.WithLogger(log),
		denorm.WithObserver(metrics.AdjustmentObserver()),
	)
	if err := theDB.Use(plugin); err != nil {
		log.Sync()
		return nil, fmt.Errorf("install rollup plugin: %w", err)
	}
	recomputer := denorm.NewRecomputer(registry, log)

	var stats cache.StatsCache
	if envutil.String("REDIS_ADDR", "") != "" {
		stats, err = cache.NewStatsCache(log)
		if err != nil {
			log.Warn("stats cache unavailable, serving from storage", "error", err)
			stats = nil
		}
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, recomputer, stats, metrics)
	handlerset := wireHandlers(log, serviceset)
	middlewareset := wireMiddleware(log, serviceset)
	router := wireRouter(cfg, handlerset, middlewareset, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		stats:        stats,
		recomputer:   recomputer,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}

	if a.Cfg.RecomputeOnBoot {
		go func() {
			start := time.Now()
			if err := a.recomputer.RecomputeAll(ctx, a.DB, &types.Group{}, 200); err != nil {
				a.Log.Error("boot recompute of groups failed", "error", err)
			}
			if err := a.recomputer.RecomputeAll(ctx, a.DB, &types.Member{}, 200); err != nil {
				a.Log.Error("boot recompute of members failed", "error", err)
			}
			a.Log.Info("boot recompute finished", "elapsed", time.Since(start))
		}()
	}
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Router.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.stats != nil {
		if err := a.stats.Close(); err != nil {
			a.Log.Warn("stats cache close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
