package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"conference-payments/internal/config"
	"conference-payments/internal/handlers"
	"conference-payments/internal/kafka"
	"conference-payments/internal/logger"
	"conference-payments/internal/mail"
	"conference-payments/internal/middleware"
	"conference-payments/internal/pricing"
	"conference-payments/internal/receipt"
	rediswrap "conference-payments/internal/redis"
	"conference-payments/internal/services"
	"conference-payments/internal/storage"

	"github.com/gin-gonic/gin"
)

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	log.LogProcess("STARTUP", "Conference payment service starting up...")

	cfg := config.Load()
	log.Info("CONFIG", "Configuration loaded successfully")

	log.LogProcess("DATABASE", "Initializing MySQL database...")
	store, err := storage.NewMySQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize MySQL: "+err.Error())
	}
	defer store.Close()
	log.LogDatabase("INIT", "mysql", "MySQL storage initialized successfully")

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MockMode, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer kafkaProducer.Close()
	log.LogKafka("INIT", "producer", "Kafka producer initialized successfully")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	tokenCache := rediswrap.NewRedis(redisClient)
	log.LogProcess("REDIS", "Redis client initialized")

	stripeService, err := services.NewStripeService(cfg.Stripe, log)
	if err != nil {
		log.Fatal("STRIPE", "Failed to initialize Stripe service: "+err.Error())
	}
	log.LogProcess("SERVICE", "Stripe service initialized")

	orderService := services.NewOrderService(store, stripeService, pricing.DefaultMethods(), log)
	reconcileService := services.NewReconcileService(store, stripeService, kafkaProducer, log)
	log.LogProcess("SERVICE", "Order and reconciliation services initialized")

	mailer := mail.NewMailer(cfg.Mail, tokenCache, log)
	tokenIssuer := receipt.NewTokenIssuer(cfg.Receipt.Secret)

	paymentHandler := handlers.NewPaymentHandler(orderService, reconcileService, tokenIssuer, store)
	stripeHandler := handlers.NewStripeHandler(stripeService, reconcileService, log)
	log.LogProcess("HANDLER", "All handlers initialized")

	// Receipt emails are delivered off the request path by a consumer group.
	if !cfg.Kafka.MockMode {
		receiptConsumer, err := kafka.NewReceiptConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
		if err != nil {
			log.Fatal("KAFKA", "Failed to create receipt consumer: "+err.Error())
		}
		defer receiptConsumer.Close()

		go func() {
			log.LogKafka("START", "consumer", "Starting receipt consumer goroutine")
			if err := receiptConsumer.ConsumeReceiptTasks(context.Background(), mailer.SendReceipt); err != nil {
				log.Error("KAFKA", "Consumer error: "+err.Error())
			}
		}()
	} else {
		log.Warn("KAFKA", "Mock mode enabled, receipt consumer not started")
	}

	router := setupRouter(cfg, store, paymentHandler, stripeHandler)
	log.LogProcess("ROUTER", "HTTP router configured")

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on "+cfg.Server.Port)
		log.Info("STARTUP", "Conference payment service is ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}

	log.Info("SHUTDOWN", "Shutdown completed successfully")
}

func setupRouter(cfg *config.Config, store storage.Store, paymentHandler *handlers.PaymentHandler, stripeHandler *handlers.StripeHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if err := store.HealthCheck(c.Request.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "conference-payments",
			"version":   "1.0.0",
		})
	})

	// Receipt links are shared by email and carry their own signed token.
	router.GET("/payments/receipt/:token", paymentHandler.DownloadReceipt)

	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		payments.Use(middleware.RequireAuth(cfg.Auth.JWTSecret, log))
		{
			payments.POST("/checkout", paymentHandler.Checkout)
			payments.GET("/verify", paymentHandler.VerifyPayment)
			payments.GET("/:orderId/status", paymentHandler.OrderStatus)
			payments.GET("/:orderId/receipt-token", paymentHandler.ReceiptToken)
			payments.POST("/cancel-intent", paymentHandler.CancelIntent)
		}

		stripeRoutes := v1.Group("/stripe")
		{
			stripeRoutes.POST("/webhook", stripeHandler.Webhook)
		}
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
