package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront-orders/config"
	"storefront-orders/consumers"
	"storefront-orders/controllers"
	"storefront-orders/database"
	"storefront-orders/notifier"
	"storefront-orders/rabbitmq"
	"storefront-orders/repository"
	"storefront-orders/services"
	"storefront-orders/utils"
)

func main() {
	cfg := config.LoadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	db, err := database.Open(startCtx, cfg)
	if err != nil {
		cancel()
		slog.Error("database initialization failed", "error", err)
		os.Exit(1)
	}
	err = database.Migrate(startCtx, db, cfg.DBDriver)
	cancel()
	if err != nil {
		_ = db.Close()
		slog.Error("database migration failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	orders := repository.NewOrderRepository(db)

	var mailer notifier.Mailer
	if cfg.SMTPHost != "" {
		mailer = notifier.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}

	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		if rmq := setupRabbitMQ(ctx, cfg, orders, mailer); rmq != nil {
			defer rmq.Close()
			publisher = rmq
		}
	} else {
		slog.Info("RABBITMQ_URL not set, order events disabled")
	}

	svc := services.NewOrderService(orders, publisher, services.Options{
		HighValueThreshold: decimal.NewFromFloat(cfg.HighValueThreshold),
		VerifyTotal:        cfg.VerifyTotal,
	})

	router := controllers.NewRouter(controllers.RouterConfig{
		Orders:         svc,
		DB:             db,
		CustomerTokens: utils.NewTokenService([]byte(cfg.JWTSecret), utils.CustomerNamespace, cfg.TokenTTL),
		AdminTokens:    utils.NewTokenService([]byte(cfg.AdminJWTSecret), utils.AdminNamespace, cfg.TokenTTL),
		QueryTimeout:   cfg.DBQueryTimeout,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("order service starting", "port", cfg.HTTPPort, "db_driver", cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}

// setupRabbitMQ connects the event publisher and starts the consumer. The
// service keeps running without events when the broker is unavailable.
func setupRabbitMQ(ctx context.Context, cfg *config.Config, orders consumers.OrderLookup, mailer notifier.Mailer) *rabbitmq.RabbitMQ {
	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		slog.Error("RabbitMQ unavailable, order events disabled", "error", err)
		return nil
	}
	if err := rmq.SetupQueues(); err != nil {
		slog.Error("failed to set up RabbitMQ queues, order events disabled", "error", err)
		rmq.Close()
		return nil
	}

	// The consumer gets its own channel so acks never contend with publishes.
	ch, err := rmq.Conn.Channel()
	if err != nil {
		slog.Error("failed to open consumer channel", "error", err)
		return rmq
	}
	if err := consumers.NewOrderConsumer(orders, mailer).Start(ctx, ch, cfg); err != nil {
		slog.Error("failed to start order consumer", "error", err)
		_ = ch.Close()
	}
	return rmq
}
