package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pleastandby/major-project-sub000/internal/cache"
	"github.com/pleastandby/major-project-sub000/internal/config"
	"github.com/pleastandby/major-project-sub000/internal/database"
	"github.com/pleastandby/major-project-sub000/internal/events"
	"github.com/pleastandby/major-project-sub000/internal/handler"
	"github.com/pleastandby/major-project-sub000/internal/middleware"
	"github.com/pleastandby/major-project-sub000/internal/observability"
	"github.com/pleastandby/major-project-sub000/internal/repository"
	"github.com/pleastandby/major-project-sub000/internal/router"
	"github.com/pleastandby/major-project-sub000/internal/service"
	"github.com/pleastandby/major-project-sub000/pkg/ai"
	cloud "github.com/pleastandby/major-project-sub000/pkg/cloudinary"
	objectstore "github.com/pleastandby/major-project-sub000/pkg/minio"
	"github.com/pleastandby/major-project-sub000/pkg/ocr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	store, err := newContentStore(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create content store: %v", err)
	}

	extractor, err := newExtractor(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create ocr extractor: %v", err)
	}

	grader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create grader: %v", err)
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create event publisher: %v", err)
	}
	defer publisher.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	reviewCache := cache.NewReviewCache(redisClient, cfg.ReviewCacheTTL)
	hooks := service.PipelineHooks{
		Publisher: publisher,
		Cache:     reviewCache,
		Logger:    logger,
	}

	activityService := service.NewActivityService(activityRepo, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, courseRepo, validate, activityService, reviewCache, logger)
	submissionService := service.NewSubmissionService(service.SubmissionServiceConfig{
		Assignments: assignmentRepo,
		Courses:     courseRepo,
		Submissions: submissionRepo,
		Store:       store,
		Extractor:   extractor,
		Hooks:       hooks,
		MaxSizeMB:   cfg.UploadMaxSizeMB,
		Logger:      logger,
	})
	gradingService := service.NewGradingService(service.GradingServiceConfig{
		Assignments: assignmentRepo,
		Submissions: submissionRepo,
		Grader:      grader,
		Validator:   validate,
		Activity:    activityService,
		Hooks:       hooks,
		Timeout:     cfg.GradingTimeout,
		Logger:      logger,
	})
	reviewService := service.NewReviewService(service.ReviewServiceConfig{
		Assignments: assignmentRepo,
		Courses:     courseRepo,
		Submissions: submissionRepo,
		Activity:    activityService,
		Cache:       reviewCache,
		Logger:      logger,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, logger),
		ReviewHandler:     handler.NewReviewHandler(reviewService, logger),
		DependencyChecks:  dependencyChecks(db, redisClient),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		AIGradeLimiter: middleware.RateLimit("ai-grade", cfg.AIGradeRateLimit, time.Minute,
			middleware.NewRedisStorage(redisClient, "gradeflow:ratelimit:")),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func newContentStore(cfg config.Config, logger zerolog.Logger) (service.ContentStore, error) {
	if cfg.StorageProvider == "minio" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Region:    cfg.MinIORegion,
			UseSSL:    cfg.MinIOUseSSL,
			Prefix:    "submissions",
			URLExpiry: 15 * time.Minute,
		}, logger)
	}

	return cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
}

// newExtractor routes plain text directly and everything else to the configured OCR backend.
func newExtractor(cfg config.Config, logger zerolog.Logger) (ocr.Extractor, error) {
	routes := ocr.NewRouter().Handle("text/plain", ocr.PlainTextExtractor{Timeout: cfg.OCRTimeout})

	if cfg.OCRServiceURL != "" {
		remote, err := ocr.NewHTTPExtractor(cfg.OCRServiceURL, cfg.OCRTimeout, logger)
		if err != nil {
			return nil, err
		}
		routes.Handle("application/pdf", remote)
		if cfg.OCRProvider == "http" {
			routes.Handle("image/*", remote)
		}
	}

	if cfg.OCRProvider == "openai" {
		vision, err := ocr.NewOpenAIExtractor(ocr.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OCRVisionModel,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		routes.Handle("image/*", vision)
	}

	return routes, nil
}

func newPublisher(cfg config.Config, logger zerolog.Logger) (events.Publisher, error) {
	switch cfg.EventsProvider {
	case "nats":
		conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			return nil, err
		}
		return events.NewNATSPublisher(conn, cfg.NATSSubject, logger), nil
	case "rabbitmq":
		return events.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
	default:
		return events.Nop{}, nil
	}
}

func dependencyChecks(db *gorm.DB, redisClient *redis.Client) map[string]handler.DependencyCheck {
	return map[string]handler.DependencyCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
