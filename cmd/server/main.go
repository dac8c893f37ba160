package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/migrations"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/validation"
	applog "github.com/maheshrc27/postflow/pkg/logger"
	"github.com/robfig/cron"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level := slog.LevelDebug
	if cfg.IsProduction() {
		level = slog.LevelInfo
	}
	applog.SetDefault(applog.Opts{Env: cfg.AppEnv, Level: level})

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		fatal("Database is unreachable", err)
	}

	if err := migrations.Up(db); err != nil {
		fatal("Failed to run migrations", err)
	}

	ctx := context.Background()

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()
	inspector := asynq.NewInspector(redisConn)
	defer inspector.Close()

	r2Service, err := service.NewR2Service(ctx, *cfg)
	if err != nil {
		fatal("Failed to configure storage", err)
	}

	registry := newRegistry(*cfg, r2Service)

	transactor := repository.NewTransactor(db)
	postRepo := repository.NewPostRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	scheduledPostRepo := repository.NewScheduledPostRepository(db)
	metricsRepo := repository.NewPostMetricsRepository(db)

	validator := validation.New(platform.NewProvider())
	jobQueue := queue.NewQueue(client, inspector)

	postService := service.NewPostService(transactor, postRepo, scheduledPostRepo, channelRepo, validator, r2Service)
	publishService := service.NewPublishService(transactor, postRepo, scheduledPostRepo, validator, jobQueue, registry, cfg.SecretKey)
	metricsService := service.NewMetricsService(metricsRepo, scheduledPostRepo, registry, cfg.SecretKey, cfg.MetricsWindow)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    512 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error(err.Error(), slog.String("path", c.Path()))
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api.Register(app, authMiddleware.AuthMiddleware(), api.Handlers{
		Post:    handlers.NewPostHandler(postService, publishService),
		Channel: handlers.NewChannelHandler(postService),
		Media:   handlers.NewMediaHandler(postService),
		Metrics: handlers.NewMetricsHandler(metricsService),
	})

	// cron jobs
	metricsJob := job.NewMetricsRefreshJob(metricsService, 30*time.Minute)
	requeueJob := job.NewRequeueJob(publishService, time.Minute)

	c := cron.New()
	if err := c.AddJob(cfg.MetricsSchedule, metricsJob); err != nil {
		fatal("Invalid metrics schedule", err)
	}
	if err := c.AddJob(cfg.RequeueSchedule, requeueJob); err != nil {
		fatal("Invalid requeue schedule", err)
	}
	c.Start()
	defer c.Stop()

	// queue
	worker := queue.NewWorker(publishService)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency:    cfg.QueueConcurrency,
		RetryDelayFunc: queue.RetryDelay,
		Queues:         map[string]int{queue.DefaultQueue: 1},
	})

	slog.Info("Starting the Asynq server...")
	if err := server.Start(worker.NewServeMux()); err != nil {
		fatal("Could not start Asynq server", err)
	}

	// Channels left scheduled without a task by a previous crash.
	go requeueJob.Run()

	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			fatal("Failed to start server", err)
		}
	}()
	slog.Info(fmt.Sprintf("Server is running on http://localhost:%s", cfg.AppPort))

	gracefulShutdown(app, server)
}

func newRegistry(cfg config.Config, resolver publisher.ResourceResolver) *publisher.Registry {
	httpClient := &http.Client{Timeout: 5 * time.Minute}

	return publisher.NewRegistry(map[models.Platform]publisher.ChannelPublisher{
		models.PlatformFacebook: publisher.NewFacebookPublisher(resolver, publisher.FacebookConfig{
			BaseURL:    cfg.Platforms.FacebookBaseURL,
			HTTPClient: httpClient,
		}),
		models.PlatformInstagram: publisher.NewInstagramPublisher(resolver, publisher.InstagramConfig{
			BaseURL:    cfg.Platforms.InstagramBaseURL,
			HTTPClient: httpClient,
		}),
		models.PlatformTikTok: publisher.NewTikTokPublisher(resolver, publisher.TikTokConfig{
			BaseURL:    cfg.Platforms.TikTokBaseURL,
			HTTPClient: httpClient,
		}),
		models.PlatformYouTube: publisher.NewYouTubePublisher(resolver, publisher.YouTubeConfig{
			Endpoint:   cfg.Platforms.YouTubeEndpoint,
			HTTPClient: httpClient,
		}),
		models.PlatformX: publisher.NewXPublisher(resolver, publisher.XConfig{
			BaseURL:        cfg.Platforms.XBaseURL,
			HTTPClient:     httpClient,
			AppBearerToken: cfg.Platforms.XAppBearerToken,
		}),
	})
}

func fatal(msg string, err error) {
	slog.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}

func closeDB(db *sql.DB) {
	slog.Info("Closing database connection...")
	if err := db.Close(); err != nil {
		slog.Error("Failed to close database", slog.String("error", err.Error()))
		return
	}
	slog.Info("Database connection closed")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("Failed to shut down server", slog.String("error", err.Error()))
	}
	server.Shutdown()

	slog.Info("Server shutdown complete.")
}
