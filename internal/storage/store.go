// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
)

// Collection names used by the inventory.
const (
	SupplementsCollection = "supplements"
	CategoriesCollection  = "categories"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrEmptyBatch is returned when Batch is called without operations.
	ErrEmptyBatch = errors.New("batch has no operations")
)

// Fields is the field map of a single document.
type Fields map[string]any

// Document is an identified set of fields as returned by the store.
type Document struct {
	ID     string
	Fields Fields
}

// OpKind selects the mutation a batched Op performs.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is a single write inside a batch.
// For OpCreate an empty ID lets the store assign one.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Fields     Fields
}

// DocumentStore defines the interface for document storage operations.
// This abstraction allows swapping storage backends (SQLite, Firestore, memory)
// without changing the inventory layer.
type DocumentStore interface {
	// List returns every document in the collection in enumeration order.
	List(ctx context.Context, collection string) ([]Document, error)

	// Create persists a new document and returns the generated ID.
	Create(ctx context.Context, collection string, fields Fields) (string, error)

	// Update merges fields into an existing document.
	// Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fields Fields) error

	// Delete removes a document.
	// Returns ErrNotFound if the document does not exist.
	Delete(ctx context.Context, collection, id string) error

	// Batch applies all operations or none of them.
	Batch(ctx context.Context, ops []Op) error

	// Query returns the documents whose field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)

	// Close releases any resources held by the store.
	Close() error
}

// Clone returns a shallow copy of the field map.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// String returns the field as a string, or "" when missing or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Int returns the field as an int64. Numeric types produced by the different
// drivers (int, int64, float64, json numbers) are all accepted.
func (f Fields) Int(key string) int64 {
	switch v := f[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// OptionalString returns a pointer to the string field, or nil when the field
// is missing, null, or empty.
func (f Fields) OptionalString(key string) *string {
	s, ok := f[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}
