package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/crucial707/rule-scheduler/internal/config"
)

func Connect(
	host, port, name, user, password string,
) (*sql.DB, error) {

	dsn := fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		host, port, name, user, password,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// OpenPostgres connects, sizes the pool and applies pending migrations.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig) (*sql.DB, error) {
	conn, err := Connect(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	conn.SetConnMaxLifetime(30 * time.Minute)

	if _, err := Migrate(cfg.DatabaseURL()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
