// Package sqlite provides the durable generation repository backed by an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/restylehq/restyle-api/internal/generation"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check that Store implements the repository port.
var _ generation.Repository = (*Store)(nil)

// Store is the SQLite implementation of generation.Repository.
// Terminal transitions are committed through a conditional UPDATE keyed on
// the current status, so duplicate or racing completion notifications are
// resolved atomically at the storage layer.
type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

// NewStore opens (or creates) the database under dataDir and runs migrations.
func NewStore(dataDir string) (*Store, error) {
	registerHook()

	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "restyle.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a new generation.
func (s *Store) Create(ctx context.Context, gen *generation.Generation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (id, owner_id, prompt, source_url, result_url, request_id, aspect_ratio, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gen.ID, gen.OwnerID, gen.Prompt, gen.SourceURL, gen.ResultURL,
		gen.RequestID, gen.AspectRatio, string(gen.Status), gen.Error,
		gen.CreatedAt, gen.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return generation.ErrSourceURLTaken
		}
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// FindByID retrieves a generation by its ID.
func (s *Store) FindByID(ctx context.Context, genID string) (*generation.Generation, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM generations WHERE id = ?`, genID)
	return scanGeneration(row)
}

// FindByRequestID retrieves a generation by its external service handle.
func (s *Store) FindByRequestID(ctx context.Context, requestID string) (*generation.Generation, error) {
	if requestID == "" {
		return nil, generation.ErrGenerationNotFound
	}
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM generations WHERE request_id = ?`, requestID)
	return scanGeneration(row)
}

// ListByOwner returns the owner's generations, most recently updated first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*generation.Generation, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM generations WHERE owner_id = ? ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*generation.Generation, 0)
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, gen)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return result, nil
}

// AttachRequestID records the external service handle. The handle is set
// exactly once; attaching a different handle fails.
func (s *Store) AttachRequestID(ctx context.Context, genID, requestID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE generations SET request_id = ?, updated_at = ?
		WHERE id = ? AND (request_id = '' OR request_id = ?)`,
		requestID, time.Now().UTC(), genID, requestID,
	)
	if err != nil {
		return fmt.Errorf("attach request ID: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach request ID: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, genID); err != nil {
			return err
		}
		return generation.ErrRequestIDAttached
	}
	return nil
}

// Finalize applies a terminal outcome if and only if the row is still in
// processing state. The condition lives in the UPDATE itself, closing the
// check-then-act window between concurrent webhook deliveries.
func (s *Store) Finalize(ctx context.Context, genID string, outcome generation.Outcome) error {
	if !outcome.Status.IsTerminal() {
		return generation.ErrInvalidTransition
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE generations SET status = ?, result_url = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(outcome.Status), outcome.ResultURL, outcome.Error,
		time.Now().UTC(), genID, string(generation.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("finalize generation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize generation: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, genID); err != nil {
			return err
		}
		return generation.ErrAlreadyFinalized
	}
	return nil
}

// Delete removes a generation.
func (s *Store) Delete(ctx context.Context, genID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE id = ?`, genID)
	if err != nil {
		return fmt.Errorf("delete generation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete generation: %w", err)
	}
	if affected == 0 {
		return generation.ErrGenerationNotFound
	}
	return nil
}

const selectColumns = `SELECT id, owner_id, prompt, source_url, result_url, request_id, aspect_ratio, status, error_message, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*generation.Generation, error) {
	var gen generation.Generation
	var status string
	err := row.Scan(
		&gen.ID, &gen.OwnerID, &gen.Prompt, &gen.SourceURL, &gen.ResultURL,
		&gen.RequestID, &gen.AspectRatio, &status, &gen.Error,
		&gen.CreatedAt, &gen.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, generation.ErrGenerationNotFound
		}
		return nil, fmt.Errorf("scan generation: %w", err)
	}
	gen.Status = generation.Status(status)
	return &gen, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
