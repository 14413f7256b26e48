package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ongoingai/traceview/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore is the shared-server index backend. It relies on the server
// for write concurrency and needs no serialization of its own.
type PostgresStore struct {
	*sqlStore
	DSN string
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	base, err := openSQLStore("pgx", dsn, dialectPostgres, migrations.DriverPostgres, preparePostgresPool)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return &PostgresStore{sqlStore: base, DSN: dsn}, nil
}

func preparePostgresPool(db *sql.DB) error {
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *PostgresStore) Driver() string {
	return migrations.DriverPostgres
}

func (s *PostgresStore) WriteRecord(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}
	return s.upsert(ctx, s.db, record)
}

func (s *PostgresStore) WriteBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.upsertBatch(ctx, records); err != nil {
		return fmt.Errorf("write postgres index batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, file string) (int64, error) {
	return s.deleteFile(ctx, file)
}
