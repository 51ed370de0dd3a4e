package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/config"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/database/migrations"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	opts := migrations.DefaultOptions()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		opts.MigrationsDir = dir
	}

	runner := migrations.NewRunner(bunDB, opts)
	defer runner.Close()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		if err := runner.RunMigrations(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations applied")
	case "down":
		if err := runner.MigrateDown(); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Migrations rolled back")
	case "to":
		if len(os.Args) < 3 {
			log.Fatal("Usage: migrate to <version>")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			log.Fatalf("Invalid version %q: %v", os.Args[2], err)
		}
		if err := runner.MigrateTo(uint(version)); err != nil {
			log.Fatalf("Migration to version %d failed: %v", version, err)
		}
		log.Printf("Migrated to version %d", version)
	default:
		log.Fatalf("Unknown command %q (expected up, down, or to)", command)
	}
}
