package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore persists snapshots in MySQL 8 (or compatible) tables.
type MySQLStore[S any] struct {
	*sqlStore[S]
}

var mysqlDialect = dialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS agent_steps (
			run_id VARCHAR(64) NOT NULL,
			seq INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			snapshot LONGTEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (run_id, seq)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS agent_checkpoints (
			checkpoint_id VARCHAR(255) NOT NULL PRIMARY KEY,
			seq INT NOT NULL,
			snapshot LONGTEXT NOT NULL,
			updated_at BIGINT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	},
	upsertStep: `INSERT INTO agent_steps (run_id, seq, node_id, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			snapshot = VALUES(snapshot),
			created_at = VALUES(created_at)`,
	upsertCheckpoint: `INSERT INTO agent_checkpoints (checkpoint_id, seq, snapshot, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			seq = VALUES(seq),
			snapshot = VALUES(snapshot),
			updated_at = VALUES(updated_at)`,
}

// NewMySQLStore connects using dsn, for example
// "user:pass@tcp(localhost:3306)/agents", and creates the tables.
func NewMySQLStore[S any](ctx context.Context, dsn string) (*MySQLStore[S], error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	core, err := newSQLStore[S](ctx, db, mysqlDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MySQLStore[S]{sqlStore: core}, nil
}
