package store

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at path and prepares the schema
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}

	// Initialize tables and run migrations
	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.migrateSchema(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables
func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS duty_panels (
			guild_id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			active_message_id TEXT,
			summary_message_id TEXT,
			log_channel_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS active_duty_users (
			user_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			start_time TEXT NOT NULL,
			log_message_id TEXT,
			PRIMARY KEY (user_id, guild_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_duty_stats (
			user_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			total_duty_seconds INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, guild_id)
		)`,
		`CREATE TABLE IF NOT EXISTS duty_logs (
			log_id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			details TEXT
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// migrateSchema handles database schema migrations. Every step checks the
// current schema first, so running it again on an up-to-date database is a
// no-op.
func (db *DB) migrateSchema() error {
	type columnMigration struct {
		table, column, ddl string
	}
	columns := []columnMigration{
		{"duty_panels", "log_channel_id",
			`ALTER TABLE duty_panels ADD COLUMN log_channel_id TEXT`},
		{"active_duty_users", "log_message_id",
			`ALTER TABLE active_duty_users ADD COLUMN log_message_id TEXT`},
	}

	for _, m := range columns {
		exists, err := db.columnExists(m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.conn.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", m.table, m.column, err)
		}
		log.Info().Str("table", m.table).Str("column", m.column).Msg("added missing column")
	}

	return db.migrateLegacyDutyTable()
}

// migrateLegacyDutyTable moves rows out of the old combined on_duty_users
// table, then drops it.
func (db *DB) migrateLegacyDutyTable() error {
	exists, err := db.tableExists("on_duty_users")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	log.Info().Msg("legacy on_duty_users table detected, migrating")

	steps := []string{
		`INSERT OR IGNORE INTO user_duty_stats (user_id, guild_id, total_duty_seconds)
			SELECT user_id, guild_id, total_duty_seconds FROM on_duty_users`,
		`INSERT OR IGNORE INTO active_duty_users (user_id, guild_id, start_time)
			SELECT user_id, guild_id, start_time FROM on_duty_users
			WHERE start_time IS NOT NULL`,
		`DROP TABLE on_duty_users`,
	}
	for _, step := range steps {
		if _, err := db.conn.Exec(step); err != nil {
			return fmt.Errorf("failed to migrate legacy duty table: %w", err)
		}
	}

	log.Info().Msg("legacy on_duty_users table migrated and dropped")
	return nil
}

func (db *DB) columnExists(table, column string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to inspect columns of %s: %w", table, err)
	}
	return count > 0, nil
}

func (db *DB) tableExists(table string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to inspect tables: %w", err)
	}
	return count > 0, nil
}
