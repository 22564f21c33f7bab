package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adslot-service/config"
	"adslot-service/internal/api"
	"adslot-service/internal/broker"
	"adslot-service/internal/redisclient"
	"adslot-service/internal/service"
	"adslot-service/internal/store"
	"adslot-service/internal/store/memstore"
	"adslot-service/internal/telegram"
	"adslot-service/internal/util"
	"adslot-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type backgroundWorker interface {
	Start(ctx context.Context) error
	Stop() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting adslot service", zap.String("env", cfg.Server.Env))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer("adslot-service", cfg.Observ.JaegerEndpoint, cfg.Observ.SampleRatio)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer db.Close()
	readiness := map[string]api.Pinger{cfg.Database.Driver: db}

	var (
		cache   service.ChannelCache
		limiter api.RateLimiter
		locker  worker.Locker
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		cache, limiter, locker = redisClient, redisClient, redisClient
		readiness["redis"] = redisClient
	} else {
		logger.Warn("Redis disabled: no channel cache, rate limiting or job locks")
	}

	var events service.EventPublisher = broker.NopPublisher{}
	if cfg.KafkaEnabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logger.Warn("Kafka disabled: domain events are dropped")
	}

	business := cfg.Business
	channelService := service.NewChannelService(db, cache, business.ChannelCacheTTL.Duration)
	scheduler := service.NewSlotScheduler(db, channelService, events)
	orderService := service.NewOrderService(db, channelService, scheduler, events)
	signalHandler := service.NewSignalHandler(db, orderService)
	sweeper := service.NewDraftSweeper(db, orderService, business.DraftTTL.Duration, business.SweepBatch)
	reconciler := service.NewSlotReconciler(db, scheduler, business.ReconcileGrace.Duration)
	aggregator := service.NewAnalyticsAggregator(db, business.AggregateWindowDays)
	apiKeyService := service.NewAPIKeyService(db, db)
	authService := service.NewAuthService(db, service.AuthConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		TokenTTL:       cfg.Auth.TokenTTL.Duration,
		BotToken:       cfg.Auth.BotToken,
		InitDataMaxAge: cfg.Auth.InitDataMaxAge.Duration,
		EnableDevLogin: cfg.Auth.EnableDevLogin,
	})
	adminService := service.NewAdminService(db, cfg.Auth.AdminTelegramIDs)
	if !adminService.Configured() {
		logger.Warn("ADMIN_TELEGRAM_IDS not set: admin endpoints disabled")
	}

	var bot *telegram.Bot
	if cfg.Auth.BotToken != "" {
		bot, err = telegram.NewBot(cfg.Auth.BotToken, cfg.Telegram.APIEndpoint)
		if err != nil {
			logger.Error("Telegram bot unavailable: notifications and publishing disabled", zap.Error(err))
		}
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set: notifications and publishing disabled")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var workers []backgroundWorker
	if cfg.KafkaEnabled() {
		k := cfg.Kafka
		workers = append(workers,
			worker.NewSignalWorker(broker.NewConsumer(k.Brokers, k.TopicOrderSignals, k.ConsumerGroup), signalHandler),
			worker.NewViewWorker(broker.NewConsumer(k.Brokers, k.TopicPostViews, k.ConsumerGroup), aggregator),
			worker.NewAnalyticsWorker(broker.NewConsumer(k.Brokers, k.TopicOrderEvents, k.ConsumerGroup+"-analytics"), aggregator),
		)
		if bot != nil {
			workers = append(workers, worker.NewNotificationWorker(
				broker.NewConsumer(k.Brokers, k.TopicOrderEvents, k.ConsumerGroup+"-notify"),
				service.NewNotifier(db, bot)))
		}
	}
	for _, w := range workers {
		go func(w backgroundWorker) {
			if err := w.Start(workerCtx); err != nil {
				logger.Error("Worker stopped with error", zap.Error(err))
			}
		}(w)
	}

	jobs := worker.NewJobRunner(locker)
	jobs.Add("draft-sweeper", business.SweepInterval.Duration, sweeper.Sweep)
	jobs.Add("slot-reconciler", business.ReconcileInterval.Duration, reconciler.Reconcile)
	jobs.Add("analytics-rollup", business.AggregateInterval.Duration, aggregator.Run)
	if bot != nil {
		publisher := service.NewPostPublisher(db, bot, signalHandler, business.PublishBatch)
		jobs.Add("post-publisher", business.PublishInterval.Duration, publisher.Publish)
	}
	jobs.Start(workerCtx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Channels:           channelService,
		Scheduler:          scheduler,
		Orders:             orderService,
		Analytics:          aggregator,
		APIKeys:            apiKeyService,
		Auth:               authService,
		Admin:              adminService,
		Limiter:            limiter,
		RateLimitPerMinute: business.RateLimitPerMinute,
		Readiness:          readiness,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	jobs.Stop()
	for _, w := range workers {
		if err := w.Stop(); err != nil {
			logger.Warn("Failed to stop worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// openStore returns the configured storage backend with its schema applied
func openStore(ctx context.Context, cfg *config.Config) (service.Store, error) {
	if cfg.Database.Driver == "memory" {
		util.GetLogger().Warn("Using in-memory store, data is lost on restart")
		return memstore.New(), nil
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	util.GetLogger().Info("Database connected")
	return db, nil
}
