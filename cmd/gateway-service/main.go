package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/auth"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/config"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/database/migrations"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/gateway/api"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/kafka"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/ledger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/paylater"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/reconcile"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/returntoken"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/signature"
)

// returnURLs builds the signed links embedded in pay-later responses.
type returnURLs struct {
	codec *returntoken.Codec
	base  string
}

func (u returnURLs) ReturnURL(formID, orderID int64) string {
	return u.base + "?token=" + url.QueryEscape(u.codec.Issue(formID, orderID))
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	// --- PostgreSQL Setup ---
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	// --- Migrations ---
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to run migrations: %v", err))
	}
	defer runner.Close()

	store := &orderstore.DB{Bun: bunDB}

	// --- Idempotency Ledger ---
	var eventLedger ledger.Ledger
	var eventHistory *ledger.PostgreSQLLedger
	switch cfg.Ledger.Backend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
		}
		defer redisClient.Close()
		eventLedger = ledger.NewRedisLedger(redisClient, cfg.Ledger.TTL, log)
	default:
		pgLedger, err := ledger.NewPostgreSQLLedger(cfg.Database, log)
		if err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize ledger: %v", err))
		}
		defer pgLedger.Close()
		eventLedger = pgLedger
		eventHistory = pgLedger
	}

	// --- Kafka Setup ---
	var producer kafka.Publisher
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.PaymentCompleted,
			cfg.Kafka.Topics.PaymentFailed,
			cfg.Kafka.Topics.PaymentPending,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to ensure topics: %v", err))
		}
		kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer kafkaProducer.Close()
		producer = kafkaProducer
	}

	// --- Reconciliation Core ---
	machine := reconcile.NewStateMachine(store, eventLedger, producer, cfg.Kafka.Topics, log)
	dispatcher := reconcile.NewDispatcher(store, log)
	verifier := signature.NewVerifier(cfg.Webhook.SigningSecret, log)
	returns := returntoken.NewCodec(cfg.Return.Secret)

	paylinks := paylater.NewService(store, returnURLs{codec: returns, base: cfg.Return.BaseURL}, log)

	var adminAuth func(http.Handler) http.Handler
	if cfg.Auth.OIDCIssuer != "" {
		adminAuth = auth.Middleware(cfg.Auth.OIDCIssuer)
	} else {
		log.Warn("AUTH", "OIDC issuer not configured, admin endpoints are unauthenticated")
	}

	handler := api.NewHandler(verifier, dispatcher, machine, store, returns, paylinks, eventHistory, log)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(adminAuth),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Gateway service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received. Cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}
