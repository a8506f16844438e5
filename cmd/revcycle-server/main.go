package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/revcycle/revcycle/internal/config"
	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/internal/domain/correction"
	"github.com/revcycle/revcycle/internal/domain/metrics"
	"github.com/revcycle/revcycle/internal/domain/rejection"
	"github.com/revcycle/revcycle/internal/domain/resubmission"
	"github.com/revcycle/revcycle/internal/domain/validation"
	"github.com/revcycle/revcycle/internal/platform/db"
	"github.com/revcycle/revcycle/internal/platform/middleware"
	"github.com/revcycle/revcycle/internal/platform/payer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "revcycle-server",
		Short: "Claims rejection correction and resubmission engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the resubmission API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Roll forward with a new migration instead.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Persistence. Without DATABASE_URL the server runs entirely in memory,
	// which is only useful for local development.
	ctx := context.Background()
	var (
		pool        *pgxpool.Pool
		claimRepo   claims.Repository
		attemptRepo resubmission.AttemptRepository
		reviewRepo  resubmission.ReviewQueueRepository
		eventRepo   metrics.EventRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		claimRepo = claims.NewRepoPG(pool)
		attemptRepo = resubmission.NewAttemptRepoPG(pool)
		reviewRepo = resubmission.NewReviewQueuePG(pool)
		eventRepo = metrics.NewEventRepoPG(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set; using in-memory stores")
		claimRepo = claims.NewMemoryRepo()
		attemptRepo = resubmission.NewMemoryAttemptRepo()
		reviewRepo = resubmission.NewMemoryReviewQueue()
		eventRepo = metrics.NewMemoryEventRepo()
	}

	// External collaborators, with in-process sandboxes for development.
	var gateway resubmission.SubmissionGateway
	if cfg.GatewayURL != "" {
		gateway = payer.NewGatewayClient(cfg.GatewayURL)
	} else {
		logger.Warn().Msg("GATEWAY_URL not set; using sandbox gateway")
		gateway = payer.NewSandboxGateway()
	}

	var lookup correction.FieldLookup
	if cfg.LookupURL != "" {
		lookup = payer.NewLookupClient(cfg.LookupURL)
	} else {
		logger.Warn().Msg("LOOKUP_URL not set; using empty static lookup")
		lookup = payer.StaticLookup{}
	}

	var scorer validation.Scorer
	if cfg.ScorerURL != "" {
		scorer = payer.NewScorerClient(cfg.ScorerURL)
	} else {
		logger.Warn().Msg("SCORER_URL not set; using sandbox scorer")
		scorer = payer.SandboxScorer{Confidence: 0.95}
	}

	// Engine
	classifier := rejection.NewClassifier(rejection.DefaultGlobalTable(), rejection.DefaultPayerOverrides())
	corrector := correction.NewCorrector(correction.DefaultRegistry())
	validator := validation.NewValidator(cfg.MinConfidence)
	aggregator := metrics.NewAggregator(eventRepo)

	orch := resubmission.NewOrchestrator(resubmission.Config{
		MaxAttempts:   cfg.MaxAttempts,
		WorkerCount:   cfg.WorkerCount,
		SubmitTimeout: cfg.SubmitTimeout,
	}, resubmission.Deps{
		Claims:     claimRepo,
		Attempts:   attemptRepo,
		Review:     reviewRepo,
		Classifier: classifier,
		Corrector:  corrector,
		Lookup:     lookup,
		Validator:  validator,
		Scorer:     scorer,
		Gateway:    gateway,
		Metrics:    aggregator,
		Backoff:    resubmission.NewBackoff(cfg.BaseDelay, cfg.MaxDelay, 0.2),
		Logger:     logger,
	})
	orch.Start()
	orch.StartRecoverySweep(cfg.RecoveryInterval)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Domain handlers
	claimSvc := claims.NewService(claimRepo)
	claims.NewHandler(claimSvc).RegisterRoutes(apiV1)
	resubmission.NewHandler(orch).RegisterRoutes(apiV1)
	metrics.NewHandler(aggregator).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	orch.Stop()
	return nil
}
