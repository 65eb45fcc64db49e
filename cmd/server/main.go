package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fieldserve/backend/internal/config"
	"github.com/fieldserve/backend/internal/db"
	"github.com/fieldserve/backend/internal/directions"
	httpapi "github.com/fieldserve/backend/internal/http"
	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/scoring"
	"github.com/fieldserve/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "fieldserve-scheduler").Logger()

	engine, err := scoring.NewEngine(scoring.DefaultWeights())
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scoring weights")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.ScheduleTimezone).Msg("invalid schedule timezone")
	}
	workdayStart, err := service.ParseClock(cfg.WorkdayStart)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid workday start")
	}

	ctx := context.Background()
	var store service.Store
	if cfg.DatabaseURL == "" {
		store = db.NewMemory()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
	} else {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer pg.Close()
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Fatal().Err(err).Msg("failed to apply schema")
			}
		}
		store = pg
	}

	provider := buildProvider(ctx, cfg, logger)
	metrics.RegisterDefault()

	orchestrator := &service.Orchestrator{
		Store:         store,
		Engine:        engine,
		Provider:      provider,
		Logger:        logger,
		Location:      loc,
		WorkdayStart:  workdayStart,
		BufferMinutes: cfg.BufferMinutes,
		Workers:       cfg.WorkerPoolSize,
	}

	router := httpapi.Router(cfg, store, orchestrator, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("timezone", loc.String()).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

// buildProvider layers the Google adapter behind the Redis cache and the
// timeout/retry/rate-limit wrapper. Without an API key every call reports
// directions.ErrNotConfigured and the estimator is used.
func buildProvider(ctx context.Context, cfg config.Config, logger zerolog.Logger) directions.Provider {
	if cfg.DirectionsAPIKey == "" {
		logger.Info().Msg("no directions API key, using great-circle estimates")
		return directions.Unconfigured{}
	}
	google := directions.NewGoogleProvider(cfg.DirectionsBaseURL, cfg.DirectionsAPIKey,
		&http.Client{Timeout: cfg.DirectionsTimeout + 2*time.Second})
	cached := directions.NewCachedProvider(google, directions.NewRedisClient(ctx, cfg.RedisURL, logger), cfg.TravelCacheTTL, logger)
	return directions.NewResilient(cached, cfg.DirectionsTimeout, cfg.DirectionsRPS, logger)
}
