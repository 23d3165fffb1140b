package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/career-marketplace/internal/config"
	"github.com/ignatzorin/career-marketplace/internal/db"
	"github.com/ignatzorin/career-marketplace/internal/fee"
	"github.com/ignatzorin/career-marketplace/internal/goroutine"
	httpHandlers "github.com/ignatzorin/career-marketplace/internal/http/handlers"
	"github.com/ignatzorin/career-marketplace/internal/http/middleware"
	httpRouter "github.com/ignatzorin/career-marketplace/internal/http/router"
	"github.com/ignatzorin/career-marketplace/internal/logger"
	"github.com/ignatzorin/career-marketplace/internal/payment"
	"github.com/ignatzorin/career-marketplace/internal/repository"
	"github.com/ignatzorin/career-marketplace/internal/service"
	"github.com/ignatzorin/career-marketplace/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = db.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("main: %v", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Log.WithError(err).Warn("main: ошибка закрытия redis")
			}
		}()
	} else {
		logger.Log.Warn("main: REDIS_URL не задан, лимиты запросов считаются в памяти процесса")
	}

	limitStore, err := middleware.NewLimiterStore(redisClient)
	if err != nil {
		log.Fatalf("main: не удалось создать хранилище лимитов: %v", err)
	}

	fees, err := fee.NewCalculator(cfg.PlatformFeeRate, cfg.PlatformFeeMin, cfg.PlatformFeeMax)
	if err != nil {
		log.Fatalf("main: %v", err)
	}

	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.GatewayTimeout)
	tokenManager := service.NewTokenManager(cfg.JWTSecret, time.Hour)

	// Репозитории.
	taskRepo := repository.NewTaskRepository(dbConn)
	bidRepo := repository.NewBidRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	payoutRepo := repository.NewPayoutRepository(dbConn)
	coachRepo := repository.NewCoachRepository(dbConn)
	resumeRepo := repository.NewResumeRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	webhookEventRepo := repository.NewWebhookEventRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Сервисы.
	notificationService := service.NewNotificationService(notificationRepo)
	marketService := service.NewMarketplaceService(taskRepo, bidRepo, coachRepo, resumeRepo, fees.MinimumFee())
	escrowService := service.NewEscrowService(taskRepo, bidRepo, paymentRepo, gateway, cfg.Currency)
	payoutService := service.NewPayoutService(taskRepo, paymentRepo, payoutRepo, coachRepo, escrowService, fees, gateway)
	disputeService := service.NewDisputeService(disputeRepo, taskRepo)
	webhookService := service.NewWebhookService(webhookEventRepo, paymentRepo, payoutRepo, coachRepo, taskRepo, gateway, cfg.WebhookSecrets)

	// WebSocket хаб живёт до сигнала остановки.
	hub := ws.NewHub(ctx)
	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))
	goroutine.Go("ws-hub", hub.Run)

	marketService.SetSettler(payoutService)
	marketService.SetNotifier(hub)
	escrowService.SetNotifier(hub)
	payoutService.SetNotifier(hub)
	webhookService.SetNotifier(hub)

	// Хэндлеры.
	taskHandler := httpHandlers.NewTaskHandler(marketService)
	bidHandler := httpHandlers.NewBidHandler(marketService)
	paymentHandler := httpHandlers.NewPaymentHandler(escrowService)
	disputeHandler := httpHandlers.NewDisputeHandler(escrowService, disputeService)
	payoutHandler := httpHandlers.NewPayoutHandler(payoutService)
	webhookHandler := httpHandlers.NewWebhookHandler(webhookService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins)
	healthHandler := httpHandlers.NewHealthHandler(dbConn, redisClient)

	engine := httpRouter.SetupRouter(cfg, limitStore, tokenManager,
		taskHandler, bidHandler, paymentHandler, disputeHandler, payoutHandler,
		webhookHandler, notificationHandler, wsHandler, healthHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.Go("http-shutdown", func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
