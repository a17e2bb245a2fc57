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

	"github.com/noah-isme/oralex-api/internal/config"
	"github.com/noah-isme/oralex-api/internal/database"
	"github.com/noah-isme/oralex-api/internal/handler"
	"github.com/noah-isme/oralex-api/internal/middleware"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/internal/router"
	"github.com/noah-isme/oralex-api/internal/service"
	"github.com/noah-isme/oralex-api/internal/token"
	"github.com/noah-isme/oralex-api/pkg/ai"
	cloud "github.com/noah-isme/oralex-api/pkg/cloudinary"
	"github.com/noah-isme/oralex-api/pkg/mailer"
	"github.com/noah-isme/oralex-api/pkg/transcribe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	media, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	scorer, err := ai.NewOpenAIScorer(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.ScoringModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create scorer: %v", err)
	}

	transcriber, err := transcribe.NewWhisperTranscriber(transcribe.WhisperConfig{
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.WhisperModel,
		Language: "he",
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to create transcriber: %v", err)
	}

	var mail mailer.Mailer
	if cfg.SendGridAPIKey != "" {
		mail, err = mailer.NewSendGridMailer(mailer.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromName:  cfg.FromName,
			FromEmail: cfg.FromEmail,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create mailer: %v", err)
		}
	} else {
		mail = mailer.NewLogMailer(logger)
	}

	tokens, err := token.NewService(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to create token service: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	sessionRepo := repository.NewSessionRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	questionRepo := repository.NewQuestionRepository(db)

	locker := service.NewRedisSessionLocker(redisClient, cfg.SessionLockTTL, logger)

	gateService := service.NewGateService(tokens, sessionRepo, rosterRepo, locker, cfg.SlotPrepWindow, logger)
	sessionService := service.NewSessionService(tokens, sessionRepo, questionRepo, locker, validate, logger)
	uploadService := service.NewUploadService(sessionRepo, media, locker, logger)
	transcriptionService := service.NewTranscriptionService(sessionRepo, media, transcriber, locker, logger)
	scoringService := service.NewScoringService(sessionRepo, questionRepo, rosterRepo, scorer, locker, logger)
	notificationService := service.NewNotificationService(sessionRepo, mail, locker, service.NotificationConfig{
		InstructorEmail: cfg.InstructorEmail,
		AppBaseURL:      cfg.AppBaseURL,
	}, logger)
	adminService := service.NewAdminService(tokens, sessionRepo, rosterRepo, locker, service.AdminConfig{
		AppBaseURL: cfg.AppBaseURL,
	}, validate, logger)

	authHandler := handler.NewAuthHandler(gateService, validate, logger)
	sessionHandler := handler.NewSessionHandler(sessionService, transcriptionService, scoringService, notificationService, logger)
	uploadHandler := handler.NewUploadHandler(uploadService, logger)
	adminHandler := handler.NewAdminHandler(adminService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    100 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:     authHandler,
		SessionHandler:  sessionHandler,
		UploadHandler:   uploadHandler,
		AdminHandler:    adminHandler,
		AdminMiddleware: middleware.AdminProtected(cfg.AdminJWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
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
