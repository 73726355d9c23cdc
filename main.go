package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tournament-league/config"
	"tournament-league/database"
	"tournament-league/handlers"
	"tournament-league/middleware"
	"tournament-league/services"
	"tournament-league/utils"
	"tournament-league/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ServiceToken == "" {
		return fmt.Errorf("GAME_SERVICE_TOKEN is not set, service cannot authenticate gateway")
	}

	db, err := database.Open(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(reg)

	clock := clockwork.NewRealClock()
	league, err := services.NewLeague(db, clock, cfg.Tournament, logger, metrics)
	if err != nil {
		return err
	}
	if t, err := league.Registry.EnsureToday(ctx); err != nil {
		logger.Warn("could not ensure today's tournament", zap.Error(err))
	} else {
		logger.Info("current tournament", zap.String("tournament_id", t.ID), zap.String("date", t.Date))
	}

	host, _ := os.Hostname()
	locker := services.NewSchedulerLocker(db, clock, host+"-"+uuid.NewString()[:8], 10*time.Minute, logger.Named("locker"))
	sched, err := services.NewScheduler(clock, locker, logger.Named("scheduler"))
	if err != nil {
		return err
	}
	if err := sched.ScheduleDailyTournament(league.Registry, cfg.Schedule.CreateTournament); err != nil {
		return err
	}

	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2)
		if err != nil {
			return err
		}
		archiver := workers.NewStandingsArchiver(league.Registry, league.Ranks, r2, metrics, logger.Named("archiver"))
		if err := sched.Every("archive-standings", cfg.Schedule.ArchiveStandings, archiver.Run); err != nil {
			return err
		}
	} else {
		logger.Info("R2 not configured, standings archiving disabled")
	}
	sched.Start()

	if cfg.Sync.BaseURL != "" {
		workers.NewPlayerSyncWorker(league.Players, cfg.Sync, logger.Named("sync")).Start(ctx)
	} else {
		logger.Info("SYNC_SERVICE_URL not set, player sync disabled")
	}

	app := newApp(cfg, league, reg, logger)
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()
	logger.Info("server running",
		zap.String("port", cfg.Port),
		zap.Strings("allow_origins", cfg.AllowOrigins),
		zap.String("claim_scope", string(cfg.Tournament.ClaimScope)),
	)

	<-ctx.Done()
	logger.Info("shutting down server")

	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	return app.ShutdownWithTimeout(10 * time.Second)
}

func newApp(cfg *config.Config, league *services.League, reg *prometheus.Registry, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "tournament-league",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ","),
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles",
		MaxAge:       86400,
	}))

	// Scraped directly, not through the gateway.
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, logger))

	handlers.SetupTournamentRoutes(app, handlers.NewTournamentHandler(league, cfg.Schedule, logger), logger)
	handlers.SetupPlayerRoutes(app, handlers.NewPlayerHandler(league.Players, league.Ledger, logger), logger)
	handlers.SetupLeaderboardRoutes(app, handlers.NewLeaderboardHandler(league.Leaderboards, league.Players, logger), logger)
	return app
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
