package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is the read-only lib/pq pool behind the transaction feed
type DB struct {
	conn *sql.DB
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	// AppName shows up in pg_stat_activity; defaults to billtrack-feed
	AppName string
}

// DSN renders the lib/pq connection string. Sessions default to read-only
// transactions since the feed never writes.
func (c Config) DSN() string {
	app := c.AppName
	if app == "" {
		app = "billtrack-feed"
	}
	parts := []string{
		"host=" + quoteDSN(c.Host),
		"port=" + quoteDSN(c.Port),
		"user=" + quoteDSN(c.User),
		"password=" + quoteDSN(c.Password),
		"dbname=" + quoteDSN(c.DBName),
		"sslmode=disable",
		"application_name=" + quoteDSN(app),
		"default_transaction_read_only=on",
	}
	return strings.Join(parts, " ")
}

// quoteDSN quotes values containing spaces or quotes as lib/pq expects
func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// NewConnection opens the feed pool and verifies it within ctx
func NewConnection(ctx context.Context, cfg Config) (*DB, error) {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Feed reads are short keyset pages; a small pool is enough
	conn.SetMaxOpenConns(16)
	conn.SetMaxIdleConns(8)
	conn.SetConnMaxLifetime(5 * time.Minute)
	conn.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Msg("✅ Transaction feed connection established")

	return &DB{conn: conn}, nil
}

// WrapConn adopts an existing pool
func WrapConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the feed pool
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	log.Info().Msg("📡 Closing transaction feed connection...")
	return db.conn.Close()
}

// Ping checks that the feed pool can still reach the server
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// GetConn returns the underlying sql.DB connection
func (db *DB) GetConn() *sql.DB {
	return db.conn
}
