package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
}

const createSnapshotsTable = `CREATE TABLE IF NOT EXISTS order_snapshots (
	id UUID PRIMARY KEY,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

const insertSnapshot = `INSERT INTO order_snapshots (id, payload, created_at) VALUES ($1, $2, $3)`

type Postgres struct {
	db     *sql.DB
	logger *logrus.Logger
}

// OpenPostgres connects, waits for the database to accept connections and
// creates the snapshot table.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *logrus.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := waitForDatabase(ctx, db, 30, 2*time.Second, logger); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, createSnapshotsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create order_snapshots table: %w", err)
	}

	return &Postgres{db: db, logger: logger}, nil
}

func waitForDatabase(ctx context.Context, db *sql.DB, attempts int, delay time.Duration, logger *logrus.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Info("Database connection established")
			return nil
		}
		logger.WithField("attempt", i+1).Info("Waiting for database...")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
}

func (p *Postgres) Append(ctx context.Context, record Record) (RecordID, error) {
	if record.ID == "" {
		record.ID = RecordID(uuid.New().String())
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if _, err := p.db.ExecContext(ctx, insertSnapshot, string(record.ID), string(record.Payload), record.CreatedAt); err != nil {
		return "", fmt.Errorf("failed to insert order snapshot: %w", err)
	}

	p.logger.WithField("record_id", record.ID).Debug("Order snapshot appended to postgres store")
	return record.ID, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
