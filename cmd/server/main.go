package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/rs/zerolog"

	"github.com/Lierre03/bcp-ems-sub000/internal/clock"
	"github.com/Lierre03/bcp-ems-sub000/internal/config"
	"github.com/Lierre03/bcp-ems-sub000/internal/database"
	"github.com/Lierre03/bcp-ems-sub000/internal/draftstore"
	"github.com/Lierre03/bcp-ems-sub000/internal/handler"
	"github.com/Lierre03/bcp-ems-sub000/internal/logging"
	"github.com/Lierre03/bcp-ems-sub000/internal/middleware"
	"github.com/Lierre03/bcp-ems-sub000/internal/predictor"
	"github.com/Lierre03/bcp-ems-sub000/internal/queue"
	"github.com/Lierre03/bcp-ems-sub000/internal/repository"
	"github.com/Lierre03/bcp-ems-sub000/internal/repository/memstore"
	"github.com/Lierre03/bcp-ems-sub000/internal/router"
	"github.com/Lierre03/bcp-ems-sub000/internal/service"
	"github.com/Lierre03/bcp-ems-sub000/migrations"
)

// store is what the server needs from a storage backend.
type store interface {
	service.Store
	handler.Pinger
}

func main() {
	cfg := config.Load() // Load environment config
	log := logging.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithUndecidedPolicy(service.UndecidedPolicy(cfg.Workflow.UndecidedLinePolicy)),
	}

	// Redis is optional: without it drafts stay in process memory and
	// requests are not rate limited.
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
		opts = append(opts, service.WithDraftStore(draftstore.NewRedis(rdb, cfg.Workflow.DraftTTL)))
		log.Info().Msg("redis connected")
	} else {
		opts = append(opts, service.WithDraftStore(service.NewMemoryDraftStore(cfg.Workflow.DraftTTL)))
		log.Warn().Msg("redis unavailable; drafts kept in memory, rate limiting off")
	}

	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer pub.Close()
		opts = append(opts, service.WithNotifier(pub))
		consumer := &queue.Consumer{URL: cfg.RabbitURL, LogDir: cfg.LogDir, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("approvals consumer stopped")
			}
		}()
	}

	if cfg.PredictorURL != "" {
		opts = append(opts, service.WithPredictor(predictor.New(cfg.PredictorURL, cfg.PredictorTimeout)))
	}

	svc := service.New(st, clock.NewSystem(), opts...)

	if cfg.Workflow.AutoReleaseOnEnd {
		go service.NewSweeper(svc, cfg.Workflow.AutoReleaseInterval).Run(ctx)
		log.Info().Dur("interval", cfg.Workflow.AutoReleaseInterval).Msg("auto-release sweeper started")
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(log))
	router.RegisterRoutes(e, st)
	router.RegisterAPI(e, handler.New(svc, log), cfg.JWTSecret, middleware.NewTokenBucket(cfg.RateLimit, rdb, log))

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memstore.New(), func() {}
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		log.Fatal().Err(err).Msg("migrations failed")
	}
	return repository.NewStore(db), func() { _ = db.Close() }
}
