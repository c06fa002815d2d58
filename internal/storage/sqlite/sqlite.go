// Package sqlite provides a SQLite-backed implementation of the storage.DocumentStore interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/pharmasupps/internal/storage"
)

// Ensure SQLiteStore implements storage.DocumentStore
var _ storage.DocumentStore = (*SQLiteStore)(nil)

// UseNumber keeps integers exact when documents are read back.
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements storage.DocumentStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers; SQLite would otherwise report SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns every document of the collection in insertion order.
func (s *SQLiteStore) List(ctx context.Context, collection string) ([]storage.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data FROM documents WHERE collection = ? ORDER BY seq",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return scanDocuments(rows)
}

// Create inserts a document under a new UUID.
func (s *SQLiteStore) Create(ctx context.Context, collection string, fields storage.Fields) (string, error) {
	id := uuid.New().String()
	if err := insertDocument(ctx, s.db, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Update merges fields into an existing document.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields storage.Fields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := mergeDocument(ctx, tx, collection, id, fields); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes a document.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	return deleteDocument(ctx, s.db, collection, id)
}

// Batch applies every operation inside a single transaction.
func (s *SQLiteStore) Batch(ctx context.Context, ops []storage.Op) error {
	if len(ops) == 0 {
		return storage.ErrEmptyBatch
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case storage.OpCreate:
			id := op.ID
			if id == "" {
				id = uuid.New().String()
			}
			err = insertDocument(ctx, tx, op.Collection, id, op.Fields)
		case storage.OpUpdate:
			err = mergeDocument(ctx, tx, op.Collection, op.ID, op.Fields)
		case storage.OpDelete:
			err = deleteDocument(ctx, tx, op.Collection, op.ID)
		default:
			err = fmt.Errorf("unsupported batch op %s", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("batch %s %s/%s: %w", op.Kind, op.Collection, op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns documents whose top-level field equals value.
func (s *SQLiteStore) Query(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	if !fieldName.MatchString(field) {
		return nil, fmt.Errorf("invalid field name %q", field)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data FROM documents WHERE collection = ? AND json_extract(data, ?) = ? ORDER BY seq",
		collection, "$."+field, value,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]storage.Document, error) {
	defer rows.Close()

	docs := []storage.Document{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		fields, err := decodeFields(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		docs = append(docs, storage.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func insertDocument(ctx context.Context, db execer, collection, id string, fields storage.Fields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		collection, id, data, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func mergeDocument(ctx context.Context, db execer, collection, id string, fields storage.Fields) error {
	var data string
	err := db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	current, err := decodeFields(data)
	if err != nil {
		return fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	for k, v := range fields {
		current[k] = v
	}

	merged, err := encodeFields(current)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		"UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?",
		merged, time.Now().Unix(), collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func deleteDocument(ctx context.Context, db execer, collection, id string) error {
	result, err := db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return nil
}

func encodeFields(fields storage.Fields) (string, error) {
	if fields == nil {
		fields = storage.Fields{}
	}
	data, err := json.MarshalToString(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

func decodeFields(data string) (storage.Fields, error) {
	fields := storage.Fields{}
	if err := json.UnmarshalFromString(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
