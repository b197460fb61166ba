package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SoraGate-io/soragate/internal/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors surfaced by the conditional-update primitives. Handlers
// map these to HTTP statuses; none of them indicate store corruption.
var (
	ErrNotFound            = errors.New("record not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNoKeysAvailable     = errors.New("no active api keys available")
	ErrDuplicate           = errors.New("record already exists")

	ErrVoucherNotFound    = errors.New("voucher code not found")
	ErrVoucherExpired     = errors.New("voucher expired")
	ErrVoucherExhausted   = errors.New("voucher fully used")
	ErrVoucherAlreadyUsed = errors.New("voucher already redeemed by this user")
)

// Store wraps the SQL connection for one of the supported backends.
type Store struct {
	db     *sql.DB
	dbType string
}

// New opens the database, runs pending migrations and returns the store.
func New(cfg *config.Config) (*Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Database.Type {
	case "postgres":
		db, err = openPostgreSQL(cfg)
	case "sqlite", "":
		db, err = openSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	if err := RunMigrations(db, cfg.Database.Type); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	s := &Store{db: db, dbType: cfg.Database.Type}
	if s.dbType == "" {
		s.dbType = "sqlite"
	}

	if err := s.seedDefaultSettings(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed default settings: %v", err)
	}

	log.Printf("Database initialized (%s)", s.dbType)
	return s, nil
}

func openPostgreSQL(cfg *config.Config) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %v", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func openSQLite(cfg *config.Config) (*sql.DB, error) {
	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", cfg.Database.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// Conn returns the underlying database connection.
func (s *Store) Conn() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts ?-style placeholders to $n for the PostgreSQL backend.
// Queries in this package are written once with ? and rebound as needed.
func (s *Store) rebind(query string) string {
	if s.dbType != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
