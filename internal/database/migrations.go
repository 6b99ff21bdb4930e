package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

// migration はバージョンごとのスキーマ変更です。
// 文は MySQL と SQLite の両方で通る構文に限定し、1文ずつ実行します。
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(36) NOT NULL PRIMARY KEY,
				username VARCHAR(255) NOT NULL UNIQUE,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				role VARCHAR(50) NOT NULL DEFAULT 'user',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS todos (
				id VARCHAR(36) NOT NULL PRIMARY KEY,
				user_id VARCHAR(36) NOT NULL,
				title VARCHAR(255) NOT NULL,
				notes TEXT NULL,
				tags TEXT NOT NULL,
				completed BOOLEAN NOT NULL DEFAULT FALSE,
				due_at DATETIME NULL,
				due_day VARCHAR(10) NULL,
				time_of_day VARCHAR(5) NULL,
				recurrence VARCHAR(10) NOT NULL DEFAULT 'NONE',
				is_template BOOLEAN NOT NULL DEFAULT FALSE,
				template_id VARCHAR(36) NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				CONSTRAINT uq_todos_template_day UNIQUE (template_id, due_day),
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX idx_todos_user_template ON todos (user_id, is_template)`,
		},
	},
}

// Migrate は未適用のマイグレーションを順に適用します。
func Migrate(db *sqlx.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for i, stmt := range m.statements {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("applying migration v%d (statement %d): %w", m.version, i+1, err)
			}
		}
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
		log.Printf("Applied schema migration v%d", m.version)
	}
	return nil
}
