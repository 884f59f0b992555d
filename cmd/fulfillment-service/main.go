package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-fulfillment/internal/analytics"
	analytics_api "ms-fulfillment/internal/analytics/api"
	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/database/migrations"
	"ms-fulfillment/internal/dispatch/label"
	"ms-fulfillment/internal/fulfillment"
	fulfillment_api "ms-fulfillment/internal/fulfillment/api"
	fulfillment_kafka "ms-fulfillment/internal/fulfillment/kafka"
	rediswrap "ms-fulfillment/internal/fulfillment/redis"
	"ms-fulfillment/internal/gateway"
	"ms-fulfillment/internal/kafka"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/marketing"
	"ms-fulfillment/internal/marketing/storage"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/orders/db"
	terminal_handler "ms-fulfillment/internal/terminal/handler"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Fulfillment Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", "No .env file found, relying on environment")
	}
	cfg := config.Load()

	ctx := context.Background()
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	// Schema: file migrations when present, bun bootstrap otherwise.
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.Run(); err != nil {
		log.Warn("DATABASE", fmt.Sprintf("Migration runner unavailable (%v), bootstrapping schema", err))
		db.Bootstrap(ctx, bunDB)
	}

	// --- Kafka ---
	var publisher fulfillment.EventPublisher
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.OrderCaptured,
			cfg.Kafka.Topics.OrderDispatched,
			cfg.Kafka.Topics.OrderCanceled,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		publisher = fulfillment_kafka.NewPublisher(producer, cfg.Kafka.Topics)
	} else {
		log.Warn("KAFKA", "Kafka disabled, order events will not be streamed")
		publisher = noopPublisher{}
	}

	// --- Stripe gateway ---
	stripeGateway, err := gateway.NewStripeGateway(cfg.Stripe, log)
	if err != nil {
		log.Fatal("GATEWAY", fmt.Sprintf("Stripe initialization failed: %v", err))
	}

	// --- Marketing sync ---
	profileCache, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, log)
	if err != nil {
		log.Warn("MARKETING", fmt.Sprintf("Profile cache unavailable: %v", err))
	}
	var cache marketing.ProfileCache
	if profileCache != nil {
		cache = profileCache
	}
	marketingClient := marketing.NewClient(nil, cfg.Klaviyo, cache, log)

	// --- Fulfillment workflow ---
	orderStore := &db.DB{Bun: bunDB}
	locks := rediswrap.NewLocks(redisClient, cfg.Locks.TTL)
	labels := label.NewGenerator(cfg.Dispatch.LabelSecret)

	service := fulfillment.NewService(orderStore, stripeGateway, locks, publisher, marketingClient, labels, log)
	handler := &fulfillment_api.Handler{Workflow: service}

	analyticsHandler := &analytics_api.Handler{
		Service: analytics.NewService(analytics.NewDB(bunDB)),
	}

	// --- Terminal surface (gin) ---
	gin.SetMode(gin.ReleaseMode)
	terminal := gin.New()
	terminal.Use(gin.Recovery())
	th := terminal_handler.NewTerminalHandler(stripeGateway, log)
	terminal.POST("/connection_token", th.CreateConnectionToken)
	terminal.GET("/readers", th.ListReaders)
	terminal.POST("/readers/:readerId/cancel_action", th.CancelAction)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Group(func(r chi.Router) {
		if cfg.Auth.OIDCIssuer != "" {
			r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
		} else {
			log.Warn("AUTH", "OIDC_ISSUER not set, running without request authentication")
		}

		r.Post("/api/v1/orders/{orderId}/capture", handler.StartCapture)
		r.Post("/api/v1/orders/{orderId}/cancel", handler.Cancel)
		r.Post("/api/v1/orders/{orderId}/dispatch", handler.Dispatch)
		r.Get("/api/v1/stores/{storeId}/orders/outstanding", handler.ListOutstanding)

		r.Get("/api/v1/stores/{storeId}/analytics/summary", analyticsHandler.GetStoreSummary)
		r.Get("/api/v1/stores/{storeId}/analytics/daily", analyticsHandler.GetDailySales)

		r.Mount("/api/v1/terminal", terminal)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("APP", fmt.Sprintf("Fulfillment Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("APP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("APP", "Shutdown signal received")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("APP", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("APP", "Server exited gracefully")
}

// noopPublisher stands in when Kafka is disabled.
type noopPublisher struct{}

func (noopPublisher) PublishOrderCaptured(models.Order) error   { return nil }
func (noopPublisher) PublishOrderDispatched(models.Order) error { return nil }
func (noopPublisher) PublishOrderCanceled(models.Order) error   { return nil }
