package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/hostlog/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const serverColumns = "id, name, address, log_path, created_at, updated_at"

// UpsertServer creates or updates a server by name and fills in its ID
func (s *Store) UpsertServer(ctx context.Context, srv *domain.Server) error {
	now := formatTimestamp(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (name, address, log_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			address = excluded.address,
			log_path = excluded.log_path,
			updated_at = excluded.updated_at
	`, srv.Name, srv.Address, srv.LogPath, now, now)
	if err != nil {
		return fmt.Errorf("upserting server %s: %w", srv.Name, err)
	}

	// Always query for the ID (LastInsertId unreliable with ON CONFLICT)
	row := s.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM servers WHERE name = ?", srv.Name)
	stored, err := scanServer(row)
	if err != nil {
		return fmt.Errorf("reading server %s: %w", srv.Name, err)
	}
	*srv = *stored
	return nil
}

// SyncServers upserts every configured server and removes the ones that are
// no longer configured
func (s *Store) SyncServers(ctx context.Context, servers []domain.Server) ([]domain.Server, error) {
	names := make([]any, 0, len(servers))
	for i := range servers {
		if err := s.UpsertServer(ctx, &servers[i]); err != nil {
			return nil, err
		}
		names = append(names, servers[i].Name)
	}

	query := "DELETE FROM servers"
	if len(names) > 0 {
		query += " WHERE name NOT IN (?" + strings.Repeat(", ?", len(names)-1) + ")"
	}
	if _, err := s.db.ExecContext(ctx, query, names...); err != nil {
		return nil, fmt.Errorf("pruning servers: %w", err)
	}
	return servers, nil
}

// GetServers returns all servers
func (s *Store) GetServers(ctx context.Context) ([]domain.Server, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+serverColumns+" FROM servers ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := []domain.Server{}
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *srv)
	}
	return servers, rows.Err()
}

// GetServerByID returns a server by ID
func (s *Store) GetServerByID(ctx context.Context, id int64) (*domain.Server, error) {
	srv, err := scanServer(s.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM servers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return srv, err
}

// GetServerByName returns a server by its configured name
func (s *Store) GetServerByName(ctx context.Context, name string) (*domain.Server, error) {
	srv, err := scanServer(s.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM servers WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return srv, err
}
