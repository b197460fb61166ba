package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all database migrations
func GetMigrations(dbType string) []Migration {
	if dbType == "postgres" {
		return getPostgresMigrations()
	}
	return getSQLiteMigrations()
}

func getPostgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create accounts table",
			SQL: `CREATE TABLE IF NOT EXISTS accounts (
				username VARCHAR(64) PRIMARY KEY,
				license_key VARCHAR(64) UNIQUE NOT NULL,
				credits INTEGER NOT NULL DEFAULT 0,
				plan VARCHAR(20) NOT NULL DEFAULT 'Standard',
				status VARCHAR(20) NOT NULL DEFAULT 'active',
				expiry_date TIMESTAMP WITH TIME ZONE NOT NULL,
				custom_limit INTEGER,
				custom_cost INTEGER,
				custom_cost_pro INTEGER,
				key_group VARCHAR(64),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				last_seen TIMESTAMP WITH TIME ZONE,
				session_minutes INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Version:     2,
			Description: "Create vouchers tables",
			SQL: `CREATE TABLE IF NOT EXISTS vouchers (
				code VARCHAR(64) PRIMARY KEY,
				amount INTEGER NOT NULL,
				max_uses INTEGER NOT NULL DEFAULT 1,
				current_uses INTEGER NOT NULL DEFAULT 0,
				expiry_date TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE TABLE IF NOT EXISTS voucher_usage (
				id SERIAL PRIMARY KEY,
				code VARCHAR(64) NOT NULL,
				username VARCHAR(64) NOT NULL,
				used_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_voucher_usage_code_user ON voucher_usage(code, username)`,
		},
		{
			Version:     3,
			Description: "Create tasks table",
			SQL: `CREATE TABLE IF NOT EXISTS tasks (
				task_id VARCHAR(128) PRIMARY KEY,
				username VARCHAR(64) NOT NULL,
				cost INTEGER NOT NULL,
				status VARCHAR(20) NOT NULL DEFAULT 'pending',
				model VARCHAR(64),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     4,
			Description: "Create api_keys table",
			SQL: `CREATE TABLE IF NOT EXISTS api_keys (
				id SERIAL PRIMARY KEY,
				key_value TEXT UNIQUE NOT NULL,
				label VARCHAR(128) NOT NULL DEFAULT '',
				key_group VARCHAR(64),
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				error_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     5,
			Description: "Create banned_ips table",
			SQL: `CREATE TABLE IF NOT EXISTS banned_ips (
				ip VARCHAR(64) PRIMARY KEY,
				reason TEXT NOT NULL DEFAULT '',
				banned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     6,
			Description: "Create settings and logs tables",
			SQL: `CREATE TABLE IF NOT EXISTS settings (
				key VARCHAR(64) PRIMARY KEY,
				value TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS logs (
				id SERIAL PRIMARY KEY,
				username VARCHAR(64) NOT NULL,
				action TEXT NOT NULL,
				cost INTEGER NOT NULL DEFAULT 0,
				status VARCHAR(32) NOT NULL DEFAULT '',
				task_id VARCHAR(128) NOT NULL DEFAULT '',
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     7,
			Description: "Create indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_accounts_license_key ON accounts(license_key);
				CREATE INDEX IF NOT EXISTS idx_tasks_username ON tasks(username);
				CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
				CREATE INDEX IF NOT EXISTS idx_api_keys_active ON api_keys(is_active);
				CREATE INDEX IF NOT EXISTS idx_logs_username ON logs(username);
				CREATE INDEX IF NOT EXISTS idx_voucher_usage_code ON voucher_usage(code)`,
		},
	}
}

func getSQLiteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create accounts table",
			SQL: `CREATE TABLE IF NOT EXISTS accounts (
				username TEXT PRIMARY KEY,
				license_key TEXT UNIQUE NOT NULL,
				credits INTEGER NOT NULL DEFAULT 0,
				plan TEXT NOT NULL DEFAULT 'Standard',
				status TEXT NOT NULL DEFAULT 'active',
				expiry_date DATETIME NOT NULL,
				custom_limit INTEGER,
				custom_cost INTEGER,
				custom_cost_pro INTEGER,
				key_group TEXT,
				created_at DATETIME NOT NULL,
				last_seen DATETIME,
				session_minutes INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Version:     2,
			Description: "Create vouchers tables",
			SQL: `CREATE TABLE IF NOT EXISTS vouchers (
				code TEXT PRIMARY KEY,
				amount INTEGER NOT NULL,
				max_uses INTEGER NOT NULL DEFAULT 1,
				current_uses INTEGER NOT NULL DEFAULT 0,
				expiry_date DATETIME,
				created_at DATETIME NOT NULL
			);
			CREATE TABLE IF NOT EXISTS voucher_usage (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				code TEXT NOT NULL,
				username TEXT NOT NULL,
				used_at DATETIME NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_voucher_usage_code_user ON voucher_usage(code, username)`,
		},
		{
			Version:     3,
			Description: "Create tasks table",
			SQL: `CREATE TABLE IF NOT EXISTS tasks (
				task_id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				cost INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				model TEXT,
				created_at DATETIME NOT NULL
			)`,
		},
		{
			Version:     4,
			Description: "Create api_keys table",
			SQL: `CREATE TABLE IF NOT EXISTS api_keys (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				key_value TEXT UNIQUE NOT NULL,
				label TEXT NOT NULL DEFAULT '',
				key_group TEXT,
				is_active BOOLEAN NOT NULL DEFAULT 1,
				error_count INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			)`,
		},
		{
			Version:     5,
			Description: "Create banned_ips table",
			SQL: `CREATE TABLE IF NOT EXISTS banned_ips (
				ip TEXT PRIMARY KEY,
				reason TEXT NOT NULL DEFAULT '',
				banned_at DATETIME NOT NULL
			)`,
		},
		{
			Version:     6,
			Description: "Create settings and logs tables",
			SQL: `CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL,
				action TEXT NOT NULL,
				cost INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT '',
				task_id TEXT NOT NULL DEFAULT '',
				timestamp DATETIME NOT NULL
			)`,
		},
		{
			Version:     7,
			Description: "Create indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_accounts_license_key ON accounts(license_key);
				CREATE INDEX IF NOT EXISTS idx_tasks_username ON tasks(username);
				CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
				CREATE INDEX IF NOT EXISTS idx_api_keys_active ON api_keys(is_active);
				CREATE INDEX IF NOT EXISTS idx_logs_username ON logs(username);
				CREATE INDEX IF NOT EXISTS idx_voucher_usage_code ON voucher_usage(code)`,
		},
	}
}

// createMigrationsTable creates the migrations tracking table
func createMigrationsTable(db *sql.DB, dbType string) error {
	var query string
	if dbType == "postgres" {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`
	} else {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	}

	_, err := db.Exec(query)
	return err
}

// getAppliedMigrations returns the list of applied migration versions
func getAppliedMigrations(db *sql.DB) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return applied, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return applied, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// recordMigration records that a migration has been applied
func recordMigration(db *sql.DB, dbType string, version int) error {
	var query string
	if dbType == "postgres" {
		query = "INSERT INTO schema_migrations (version) VALUES ($1)"
	} else {
		query = "INSERT INTO schema_migrations (version) VALUES (?)"
	}
	_, err := db.Exec(query, version)
	return err
}

// RunMigrations runs all pending migrations. It is the only place in the
// process that issues DDL; runtime code assumes a fully migrated schema.
func RunMigrations(db *sql.DB, dbType string) error {
	if err := createMigrationsTable(db, dbType); err != nil {
		return fmt.Errorf("failed to create migrations table: %v", err)
	}

	applied, err := getAppliedMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %v", err)
	}

	for _, migration := range GetMigrations(dbType) {
		if applied[migration.Version] {
			continue
		}

		log.Printf("Applying migration %d: %s", migration.Version, migration.Description)

		statements := strings.Split(migration.SQL, ";")
		for _, stmt := range statements {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply migration %d: %v", migration.Version, err)
			}
		}

		if err := recordMigration(db, dbType, migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %v", migration.Version, err)
		}
	}

	return nil
}
