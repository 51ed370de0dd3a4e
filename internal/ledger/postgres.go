package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/config"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
)

// PostgreSQLLedger stores processed-event records in a table with a primary
// key on the event identifier. The unique constraint is what makes Record
// atomic across concurrent callers.
type PostgreSQLLedger struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLLedgerWithDB creates a ledger over an existing connection.
func NewPostgreSQLLedgerWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLLedger, error) {
	l := &PostgreSQLLedger{db: db, log: log}
	if err := l.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize processed_events table: "+err.Error())
		return nil, fmt.Errorf("failed to initialize processed_events table: %w", err)
	}
	return l, nil
}

func NewPostgreSQLLedger(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLLedger, error) {
	log.LogDatabase("CONNECT", "processed_events", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgreSQLLedgerWithDB(db, log)
}

func (l *PostgreSQLLedger) initTables() error {
	l.log.LogDatabase("MIGRATE", "processed_events", "Creating processed_events table if not exists")

	query := `
    CREATE TABLE IF NOT EXISTS processed_events (
        event_id VARCHAR(128) PRIMARY KEY,
        order_id BIGINT NOT NULL,
        applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `
	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create processed_events table: %w", err)
	}

	index := "CREATE INDEX IF NOT EXISTS idx_processed_events_order_id ON processed_events(order_id);"
	if _, err := l.db.Exec(index); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (l *PostgreSQLLedger) HasBeenApplied(ctx context.Context, eventID string) (bool, error) {
	var found string
	err := l.db.QueryRowContext(ctx,
		"SELECT event_id FROM processed_events WHERE event_id = $1", eventID).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		l.log.Error("DATABASE", fmt.Sprintf("Failed to check event %s: %s", eventID, err.Error()))
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return true, nil
}

func (l *PostgreSQLLedger) Record(ctx context.Context, eventID string, orderID int64) error {
	res, err := l.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, order_id, applied_at) VALUES ($1, $2, $3) ON CONFLICT (event_id) DO NOTHING",
		eventID, orderID, time.Now().UTC())
	if err != nil {
		l.log.Error("DATABASE", fmt.Sprintf("Failed to record event %s: %s", eventID, err.Error()))
		return fmt.Errorf("failed to record event: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyRecorded
	}

	l.log.LogDatabase("INSERT", "processed_events", fmt.Sprintf("Recorded event %s for order %d", eventID, orderID))
	return nil
}

// ListByOrder returns the processed-event records for an order, newest
// first. Used by the admin API.
func (l *PostgreSQLLedger) ListByOrder(ctx context.Context, orderID int64) ([]ProcessedEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT event_id, order_id, applied_at FROM processed_events WHERE order_id = $1 ORDER BY applied_at DESC",
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var records []ProcessedEvent
	for rows.Next() {
		var rec ProcessedEvent
		if err := rows.Scan(&rec.EventID, &rec.OrderID, &rec.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// ProcessedEvent mirrors one processed_events row.
type ProcessedEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   int64     `json:"order_id"`
	AppliedAt time.Time `json:"applied_at"`
}

func (l *PostgreSQLLedger) Close() error {
	return l.db.Close()
}

func (l *PostgreSQLLedger) HealthCheck() error {
	return l.db.Ping()
}
