package postgres

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"certintake/internal/config"
)

// NewDB opens a PostgreSQL pool through the pgx stdlib driver and verifies
// connectivity within the configured timeout.
func NewDB(ctx context.Context, cfg *config.DBConfig) (*sqlx.DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
