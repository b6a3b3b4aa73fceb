package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shopifyapp/internal/httpapi"
	"shopifyapp/internal/logging"
	"shopifyapp/internal/metrics"
	"shopifyapp/internal/plan"
	"shopifyapp/internal/queue"
	"shopifyapp/internal/session"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/db"
	"shopifyapp/pkg/shopify"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Log, cfg.AppEnv != "prod")
	zerolog.DefaultContextLogger = &log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()

	conn, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("db open")
	}
	defer conn.Close()

	if cfg.MigrationsPath != "" {
		if err := db.MigrateConfig(cfg.MigrationsPath, cfg); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	var plans plan.Store = plan.NewRepository(conn)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis url")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, plan cache disabled")
		} else {
			plans = plan.NewCachedStore(plans, plan.RedisCache{Client: rdb}, time.Hour, log)
		}
	}

	if cfg.Billing.Enabled {
		p, err := plan.EnsureOnInstall(ctx, plans, cfg.Billing.DefaultPlan)
		if err != nil {
			log.Fatal().Err(err).Msg("ensure on-install plan")
		}
		log.Info().Int64("plan_id", p.ID).Str("plan", p.Name).Msg("on-install plan ready")
	}

	jobs := queue.NewManager(cfg.Jobs, log)
	jobs.Start(ctx)
	defer jobs.Stop()

	router := httpapi.NewRouter(httpapi.Dependencies{
		Cfg:       cfg,
		DB:        conn,
		Log:       log,
		Plans:     plans,
		Queue:     jobs,
		Sessions:  session.NewCookieStore(cfg.Session),
		NewClient: shopify.NewClientFactory(cfg),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
