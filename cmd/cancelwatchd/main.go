// Command cancelwatchd boots the cancellation enrichment service: it
// loads configuration, opens the Schedule Store, starts the STOMP
// ingestion pipeline, and serves the Query API. Structured the way the
// teacher's cmd/web/main.go sequences startup (load env → open store →
// assemble dependents → serve), generalized from the teacher's
// multi-tenant dispatch to this service's single composition root, per
// §9's "dependency-injection container collapses to explicit constructor
// arguments assembled once in a composition root."
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nrod/cancelwatch/internal/api"
	"github.com/nrod/cancelwatch/internal/cache"
	"github.com/nrod/cancelwatch/internal/config"
	"github.com/nrod/cancelwatch/internal/darwin"
	"github.com/nrod/cancelwatch/internal/enrichment"
	"github.com/nrod/cancelwatch/internal/logger"
	"github.com/nrod/cancelwatch/internal/metrics"
	"github.com/nrod/cancelwatch/internal/ratelimit"
	"github.com/nrod/cancelwatch/internal/resolver"
	"github.com/nrod/cancelwatch/internal/server"
	"github.com/nrod/cancelwatch/internal/stomp"
	"github.com/nrod/cancelwatch/internal/store"
	"github.com/nrod/cancelwatch/internal/version"
)

// Exit codes per §6.
const (
	exitOK                 = 0
	exitConfigError        = 2
	exitStoreInitFailure   = 3
	exitUnrecoverableStart = 4
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println(version.String())
		return
	}
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		zap.S().Errorw("startup: configuration error", "err", err)
		return exitConfigError
	}

	log, flush, err := logger.New(logger.Options{
		RootDir:   cfg.Paths.Root,
		Component: "cancelwatchd",
	})
	if err != nil {
		return exitUnrecoverableStart
	}
	defer flush()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Error("startup: schedule store init failed", zap.Error(err))
		return exitStoreInitFailure
	}
	defer st.Close()

	res := resolver.New(st)
	engine := enrichment.New(st, res)

	cancellationCache := cache.New(cache.Options{
		Capacity: cfg.Cache.MaxEntries,
		MaxAge:   cfg.Cache.MaxAge,
		OnEvict: func(reason string) {
			metrics.CacheEvictedTotal.WithLabelValues(reason).Inc()
		},
	})

	stompClient := stomp.New(stomp.Config{
		Host:         cfg.Broker.Host,
		Port:         cfg.Broker.Port,
		User:         cfg.Broker.User,
		Password:     cfg.Broker.Password,
		Topic:        cfg.Broker.Topic,
		HeartbeatMs:  cfg.Broker.HeartbeatMs,
		BackoffMaxMs: cfg.Broker.BackoffMaxMs,
	}, logger.Named("stomp"))

	health := api.NewHealthChecker(stompClient, st,
		time.Duration(cfg.Health.CheckTimeoutMs)*time.Millisecond,
		time.Duration(cfg.Health.CacheTTLMs)*time.Millisecond,
	)

	defaultLimiter := ratelimit.New(ratelimit.BucketDefault, cfg.RateLimit.Default)
	healthLimiter := ratelimit.New(ratelimit.BucketHealth, cfg.RateLimit.Health)

	router := api.NewRouter(api.Deps{
		Cache:          cancellationCache,
		Store:          st,
		Engine:         engine,
		Health:         health,
		CORSOrigins:    cfg.CORS.Origins,
		DefaultLimiter: defaultLimiter,
		HealthLimiter:  healthLimiter,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutMs) * time.Millisecond,
		Log:            log,
	})

	httpServer := server.New(cfg.Server.Listen, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go stompClient.Run(ctx)
	go runIngestionPipeline(ctx, stompClient, engine, cancellationCache, log)
	go runHousekeeping(ctx, st, cfg.Store.RetentionDays, cancellationCache, cfg.Cache.MaxAge, defaultLimiter, healthLimiter)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Listen))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
			return exitUnrecoverableStart
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}

	return exitOK
}

// runIngestionPipeline is the second ingestion task of §5's concurrency
// model: it consumes decoded frames from the STOMP client, runs
// enrichment, and inserts the result into the cache. The decoder-to-
// enrichment hop is implicit here (stomp.Frame -> darwin.Decode inline)
// since darwin.Decode is pure and cheap; the bounded queue called for by
// §5's back-pressure policy is the stomp.Client.frames channel itself
// (see internal/stomp's buffered channel and drop-on-full behavior).
func runIngestionPipeline(ctx context.Context, client *stomp.Client, engine *enrichment.Engine, c *cache.Cache, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-client.Frames():
			if !ok {
				return
			}
			for _, ev := range darwin.Decode(frame) {
				if darwin.IsReinstatement(ev) {
					if c.Remove(ev.RID) {
						log.Info("cancellation reinstated", zap.String("rid", ev.RID))
					}
					metrics.CacheSize.Set(float64(c.Len()))
					continue
				}
				cancellation := engine.Enrich(ev)
				c.Insert(cancellation)
				metrics.CacheSize.Set(float64(c.Len()))
			}
		}
	}
}

// runHousekeeping periodically prunes expired schedules, aged-out cache
// entries, and idle rate-limit visitor entries; the base spec names the
// retention knobs but leaves the sweep cadence to the implementation.
func runHousekeeping(ctx context.Context, st *store.Store, retentionDays int, c *cache.Cache, maxAge time.Duration, limiters ...*ratelimit.Limiter) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PurgeOlderThan(maxAge)
			if _, err := st.PruneExpiredSchedules(retentionDays); err != nil {
				zap.L().Warn("housekeeping: prune expired schedules failed", zap.Error(err))
			}
			for _, l := range limiters {
				l.Sweep(time.Hour)
			}
		}
	}
}
