package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/communityfix/maintenance-service/internal/api/http"
	"github.com/communityfix/maintenance-service/internal/api/http/handlers"
	"github.com/communityfix/maintenance-service/internal/auth"
	"github.com/communityfix/maintenance-service/internal/config"
	"github.com/communityfix/maintenance-service/internal/events"
	"github.com/communityfix/maintenance-service/internal/observability"
	"github.com/communityfix/maintenance-service/internal/oracle"
	"github.com/communityfix/maintenance-service/internal/persistence"
	"github.com/communityfix/maintenance-service/internal/repository"
	"github.com/communityfix/maintenance-service/internal/service"
	"github.com/communityfix/maintenance-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	technicianRepo := repository.NewTechnicianRepository(pool)
	communityRepo := repository.NewCommunityRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		TechnicianRepo: technicianRepo,
		CommunityRepo:  communityRepo,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	assignmentService := service.NewAssignmentService(cfg.Assignment, service.AssignmentDependencies{
		TicketRepo:     ticketRepo,
		TechnicianRepo: technicianRepo,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	classifier := oracle.NewHTTPClassifier(cfg.Oracle, logger)
	intakeService := service.NewIntakeService(cfg.Oracle, cfg.Assignment, service.IntakeDependencies{
		Lifecycle:      ticketService,
		Assignments:    assignmentService,
		Classifier:     classifier,
		TicketRepo:     ticketRepo,
		TechnicianRepo: technicianRepo,
		Metrics:        metrics,
		Logger:         logger,
	})
	notificationService := service.NewNotificationService(notificationRepo, dispatcher, redis, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	retryWorker := worker.NewAssignmentRetryWorker(cfg.Assignment, ticketRepo, assignmentService, logger)
	if cfg.Assignment.RetryEnabled {
		if err := retryWorker.Start(); err != nil {
			logger.Fatal("failed to start assignment retry worker", zap.Error(err))
		}
		defer retryWorker.Stop()
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Tickets:        handlers.NewTicketsHandler(intakeService, ticketService, assignmentService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
