package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// BusyTimeout bounds how long a write waits on a locked database. The server
// calls the store from its event loop, so this is also the worst-case stall.
const BusyTimeout = 100 * time.Millisecond

// SQLStore keeps credentials in a SQLite database.
type SQLStore struct {
	DB *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database and runs migrations.
func OpenSQLite(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("credstore: open DB: %w", err)
	}

	// One connection, so the pragmas below hold for every query.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credstore: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", BusyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credstore: set busy_timeout: %w", err)
	}

	s := &SQLStore{DB: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credstore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.DB.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS credentials (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		username   TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 19),
		password   TEXT    NOT NULL CHECK(length(password) > 0 AND length(password) <= 19),
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{version: 1, statements: []string{schema}},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("credstore: migrate v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("credstore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("credstore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("credstore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("credstore: read schema version: %w", err)
	}
	return version, nil
}

func (s *SQLStore) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("credstore: update schema version: %w", err)
	}
	return nil
}

// Lookup returns the password stored for username.
func (s *SQLStore) Lookup(username string) (string, bool, error) {
	var pw string
	err := s.DB.QueryRowContext(context.Background(), "SELECT password FROM credentials WHERE username = ?", username).Scan(&pw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credstore: lookup: %w", err)
	}
	return pw, true, nil
}

// Register inserts a new pair. An existing username yields ErrDuplicate.
func (s *SQLStore) Register(username, password string) error {
	res, err := s.DB.ExecContext(context.Background(),
		"INSERT INTO credentials (username, password) VALUES (?, ?) ON CONFLICT(username) DO NOTHING",
		username, password)
	if err != nil {
		return fmt.Errorf("credstore: register: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credstore: register: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// List returns every pair in registration order.
func (s *SQLStore) List() ([]Credential, error) {
	rows, err := s.DB.QueryContext(context.Background(), "SELECT username, password FROM credentials ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("credstore: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.Username, &c.Password); err != nil {
			return nil, fmt.Errorf("credstore: list: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credstore: list: %w", err)
	}
	return creds, nil
}
