// internal/db/db.go
package db

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    _ "github.com/lib/pq"
    "go.uber.org/zap"

    "github.com/unclebandit/crm-pipeline/internal/config"
)

// Open connects to Postgres and verifies the connection. When AutoMigrate is
// set the embedded schema is applied before returning.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*sql.DB, error) {
    conn, err := sql.Open("postgres", cfg.DatabaseURL)
    if err != nil {
        return nil, fmt.Errorf("open database: %w", err)
    }
    conn.SetMaxOpenConns(cfg.DBMaxOpenConn)
    conn.SetMaxIdleConns(cfg.DBMaxIdleConn)
    conn.SetConnMaxIdleTime(5 * time.Minute)

    pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := conn.PingContext(pingCtx); err != nil {
        conn.Close()
        return nil, fmt.Errorf("ping database: %w", err)
    }
    log.Info("connected to database")

    if cfg.AutoMigrate {
        if err := Migrate(conn); err != nil {
            conn.Close()
            return nil, err
        }
        log.Info("database schema up to date")
    }
    return conn, nil
}
