package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/lottery-backend/shared"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var defaultSchema string

// PostgresStore keeps key-value pairs in a single kv_store table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the connection pool, verifies it and applies the schema
func NewPostgresStore(ctx context.Context, cfg shared.StoreConfig) (*PostgresStore, error) {
	db, err := ConnectWithConfig(ctx, cfg.DatabaseURL, &cfg)
	if err != nil {
		return nil, err
	}
	store := &PostgresStore{db: db}
	if err := store.MigrateSQL(ctx, defaultSchema); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreFromDB wraps an existing pool; the schema is not applied
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectWithConfig establishes a database connection pool with custom configuration
func ConnectWithConfig(ctx context.Context, dbURL string, config *shared.StoreConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "DB_OPEN_FAILED", "database", "ConnectWithConfig", false)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, config.PingTimeout)
	defer cancel()

	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, shared.WrapError(fmt.Errorf("failed to ping database: %w", err),
			shared.ErrorCategoryStorage, "DB_PING_FAILED", "database", "ConnectWithConfig", true)
	}

	logrus.WithFields(logrus.Fields{
		"max_open_conns":    config.MaxOpenConns,
		"max_idle_conns":    config.MaxIdleConns,
		"conn_max_lifetime": config.ConnMaxLifetime,
	}).Info("Connected to database successfully")

	return db, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv_store WHERE key LIKE $1 ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("kv list %s: %w", prefix, err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("kv list scan: %w", err)
		}
		result[key] = value
	}
	return result, rows.Err()
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	logrus.Info("Database connection closed")
	return s.db.Close()
}

// HealthCheck pings the database and logs pool statistics
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	stats := s.db.Stats()
	logrus.WithFields(logrus.Fields{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
	}).Debug("Database connection pool health check")
	return nil
}

// MigrateSQL applies every statement in content. Failing statements are
// logged and skipped so that re-running against an existing schema works.
func (s *PostgresStore) MigrateSQL(ctx context.Context, content string) error {
	for _, stmt := range parseSQLStatements(content) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			logrus.Warnf("Migration statement failed (continuing): %v", err)
		}
	}
	logrus.Info("Database migration completed successfully")
	return nil
}

// parseSQLStatements splits SQL content into statements, dropping comment lines
func parseSQLStatements(content string) []string {
	var statements []string
	var currentStatement strings.Builder

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if currentStatement.Len() > 0 {
			currentStatement.WriteString(" ")
		}
		currentStatement.WriteString(line)

		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSpace(strings.TrimSuffix(currentStatement.String(), ";"))
			if stmt != "" {
				statements = append(statements, stmt)
			}
			currentStatement.Reset()
		}
	}

	if stmt := strings.TrimSpace(currentStatement.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
