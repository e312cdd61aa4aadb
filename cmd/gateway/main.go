package main

import (
	"robopay/internal/execution/repository"
	executionservice "robopay/internal/execution/service"
	lockrepository "robopay/internal/locks/repository"
	paymenthandler "robopay/internal/payments/handler"
	paymentservice "robopay/internal/payments/service"
	"robopay/internal/payments/validator"
	robothandler "robopay/internal/robots/handler"
	robotrepository "robopay/internal/robots/repository"
	robotservice "robopay/internal/robots/service"
	sessionrepository "robopay/internal/sessions/repository"
	settlementrepository "robopay/internal/settlement/repository"
	"robopay/internal/settlement/verifier"
	"robopay/pkg/app"
	"robopay/pkg/config"
	"robopay/pkg/contracts"
	"robopay/pkg/events"
	"robopay/pkg/kafka"
	kafka_config "robopay/pkg/kafka/config"
	kafka_middleware "robopay/pkg/kafka/middleware"
	"robopay/pkg/retry"
)

const ServiceName = "gateway"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting robot payment gateway")
	cfg.SetMongo()
	cfg.SetRedis()

	publisher := initPublisher(cfg)
	handlers := initHandlers(cfg, publisher)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, handlers)
	serverApp.OnShutdown(func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close event publisher", "error", err)
		}
	})
	serverApp.OnShutdown(cfg.GracefulShutdown)
	serverApp.Run()
}

func initPublisher(cfg *config.Config) events.Publisher {
	if !cfg.EventsEnabled {
		cfg.Log.Info("Event publishing disabled")
		return events.Nop{}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.EventsTopic, cfg.EventsDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		metrics, err := kafka_middleware.MetricsProducerMiddleware(nil)
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka metrics middleware", "error", err)
		}
		producer.Use(metrics)
	}

	return events.NewKafkaPublisher(producer, ServiceName, cfg.Log)
}

func initHandlers(cfg *config.Config, publisher events.Publisher) contracts.Handlers {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)

	robotRepo := robotrepository.NewMongoRobotRepository(db, cfg.ReadTimeout)
	sessionRepo := sessionrepository.NewRedisSessionRepository(cfg.Client.Redis, cfg.SessionLifetime)
	lockRepo := lockrepository.NewRedisLockRepository(cfg.Client.Redis)
	settlementRepo := settlementrepository.NewMongoSettlementRepository(db, cfg.ReadTimeout, cfg.WriteTimeout)
	executionRepo := repository.NewMongoExecutionRepository(cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.WriteTimeout)

	chainVerifier, err := verifier.NewVerifier(verifier.NewRPCFetcher(cfg.SolanaRPCURL), verifier.Config{
		Policy:        retry.Policy{Attempts: cfg.VerifyAttempts, Delay: cfg.VerifyRetryDelay},
		Tolerance:     cfg.VerifyTolerance,
		Decimals:      cfg.TokenDecimals,
		Mint:          cfg.StablecoinMint,
		MemoSupported: cfg.SolanaMemoEnabled,
	}, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create settlement verifier", "error", err)
	}

	executor := executionservice.NewExecutor(executionRepo, cfg.ExecutorTimeout, publisher, cfg.Log)

	robots := robotservice.NewRobotService(robotRepo, lockRepo, cfg)
	payments := paymentservice.NewPaymentService(
		robots,
		sessionRepo,
		lockRepo,
		chainVerifier,
		settlementRepo,
		executor,
		publisher,
		validator.NewPaymentValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Gateway services initialized", "database", cfg.MongoDatabaseName, "network", cfg.SolanaNetwork)
	return contracts.Handlers{
		paymenthandler.NewPaymentHandler(payments, cfg.Log),
		robothandler.NewRobotHandler(robots, cfg.Log),
	}
}
