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
	"github.com/rs/zerolog"

	"github.com/intervo-dev/intervo-go-api/internal/config"
	"github.com/intervo-dev/intervo-go-api/internal/database"
	"github.com/intervo-dev/intervo-go-api/internal/handler"
	"github.com/intervo-dev/intervo-go-api/internal/middleware"
	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/internal/repository"
	"github.com/intervo-dev/intervo-go-api/internal/router"
	"github.com/intervo-dev/intervo-go-api/internal/service"
	"github.com/intervo-dev/intervo-go-api/pkg/ai"
	"github.com/intervo-dev/intervo-go-api/pkg/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectSQLite(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.QuestionBankItem{}, &models.SessionRecord{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var cache *repository.SessionCache
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		cache = repository.NewSessionCache(redisClient, cfg.SessionCacheTTL)
	}

	var notifier service.CompletionNotifier
	if cfg.NATSURL != "" {
		natsNotifier, err := service.NewNATSNotifier(cfg.NATSURL, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
	}

	executor, cleanup, err := buildExecutor(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create sandbox executor: %v", err)
	}
	defer cleanup()

	llm, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create openai client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	bankRepo := repository.NewQuestionBankRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	answerService := service.NewAnswerEvaluationService(llm, cfg.EvaluationRetries, logger)
	codingService := service.NewCodingGradingService(executor, cfg.ExecutionTimeout, logger)
	sqlService := service.NewSQLGradingService(logger)
	reportService := service.NewInterviewReportService(llm, cfg.EvaluationRetries, logger)
	interviewService := service.NewInterviewService(answerService, codingService, sqlService, reportService, llm, service.InterviewConfig{
		EnableHumanizer: cfg.EnableHumanizer,
	}, logger)
	sessionService := service.NewSessionService(interviewService, bankRepo, sessionRepo, cache, notifier, validate, logger)

	interviewHandler := handler.NewInterviewHandler(sessionService, validate, logger)
	questionBankHandler := handler.NewQuestionBankHandler(bankRepo, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})

	var jwtMiddleware fiber.Handler
	if cfg.JWTSecret != "" {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	router.Register(app, cfg, router.Dependencies{
		InterviewHandler:    interviewHandler,
		QuestionBankHandler: questionBankHandler,
		JWTMiddleware:       jwtMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildExecutor(cfg config.Config, logger zerolog.Logger) (sandbox.Executor, func(), error) {
	if cfg.SandboxBackend == "docker" {
		executor, err := sandbox.NewDockerExecutor(sandbox.DockerConfig{
			Host:          cfg.DockerHost,
			Image:         cfg.SandboxImage,
			Timeout:       cfg.ExecutionTimeout,
			MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
			CPUShares:     int64(cfg.CodeRunCPUShares),
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return executor, func() { _ = executor.Close() }, nil
	}

	executor := sandbox.NewProcessExecutor(sandbox.ProcessConfig{
		Timeout: cfg.ExecutionTimeout,
		Logger:  logger,
	})
	return executor, func() {}, nil
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
