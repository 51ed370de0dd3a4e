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
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/auth"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/checkout"
	checkoutapi "github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/checkout/api"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/config"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/kafka"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/ledger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/processor"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/reconcile"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/returntoken"
)

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

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	store := &orderstore.DB{Bun: bunDB}

	// Both services share the ledger so a webhook applied by the gateway is
	// visible to a racing synchronous charge here.
	pgLedger, err := ledger.NewPostgreSQLLedger(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize ledger: %v", err))
	}
	defer pgLedger.Close()

	// --- Kafka Setup ---
	var producer kafka.Publisher
	if cfg.Kafka.Enabled {
		kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer kafkaProducer.Close()
		producer = kafkaProducer
	}

	// --- Checkout Wiring ---
	machine := reconcile.NewStateMachine(store, pgLedger, producer, cfg.Kafka.Topics, log)
	dispatcher := reconcile.NewDispatcher(store, log)
	sessions := auth.NewSessionSigner(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	returns := returntoken.NewCodec(cfg.Return.Secret)
	charger := processor.NewClient(cfg.Processor, log)
	service := checkout.NewService(store, charger, dispatcher, machine, sessions, returns, cfg, log)

	router := gin.Default()
	checkoutapi.NewHandler(service, sessions, log).Register(router)

	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// The charge handler waits out the processor timeout before it can
		// resolve the order, so the write timeout must outlast it.
		WriteTimeout: cfg.Processor.Timeout + cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Checkout service running on %s", cfg.Server.Port))
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
