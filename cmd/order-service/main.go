package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-summary/internal/circuitbreaker"
	"github.com/jogardn/order-summary/internal/config"
	"github.com/jogardn/order-summary/internal/events"
	"github.com/jogardn/order-summary/internal/middleware"
	"github.com/jogardn/order-summary/internal/orders"
	"github.com/jogardn/order-summary/internal/store"
	"github.com/jogardn/order-summary/internal/websocket"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(".env")
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orderStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open order store")
	}
	defer closeStore()

	service := orders.NewService(orderStore, logger)
	handler := orders.NewHandler(service, logger)

	if cfg.EventsEnabled() {
		producer, err := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()

		breaker := newEventBreaker(cfg, logger)
		service.SetPublisher(events.NewGuardedPublisher(producer, breaker))
		handler.AddHealthDetail("order_events", func() interface{} { return breaker.Metrics() })
		logger.WithFields(logrus.Fields{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		}).Info("Order events enabled")
	} else {
		logger.Info("KAFKA_BROKERS not configured - order events disabled")
	}

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)
	service.SetNotifier(hub)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.Use(middleware.Logging(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.CORS(cfg.CORS.AllowedOrigins)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":  cfg.Server.Port,
			"store": cfg.Store.Driver,
		}).Info("Starting order service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func configureLogger(logger *logrus.Logger, cfg *config.Config) {
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func newEventBreaker(cfg *config.Config, logger *logrus.Logger) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(circuitbreaker.Config{
		Name:          "order-events",
		MaxFailures:   cfg.Breaker.MaxFailures,
		MaxRequests:   cfg.Breaker.MaxRequests,
		Timeout:       cfg.Breaker.Timeout,
		OnStateChange: logEventBreakerChange(logger),
	}, logger)
}

// logEventBreakerChange reports when order events stop or resume reaching Kafka.
func logEventBreakerChange(logger *logrus.Logger) func(string, circuitbreaker.State, circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		entry := logger.WithFields(logrus.Fields{
			"circuit_breaker": name,
			"from_state":      from.String(),
			"to_state":        to.String(),
		})
		switch to {
		case circuitbreaker.StateOpen:
			entry.Warn("Order events paused - Kafka publishing is failing")
		case circuitbreaker.StateClosed:
			entry.Info("Order events resumed")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Store, func(), error) {
	if cfg.Store.Driver != config.StorePostgres {
		return store.NewMemory(logger), func() {}, nil
	}

	pg, err := store.OpenPostgres(ctx, store.PostgresConfig{
		Host:     cfg.Store.DBHost,
		Port:     cfg.Store.DBPort,
		User:     cfg.Store.DBUser,
		Password: cfg.Store.DBPassword,
		Name:     cfg.Store.DBName,
		SSLMode:  cfg.Store.DBSSLMode,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}
