// Package memory provides an in-process implementation of storage.DocumentStore.
// It keeps documents in insertion order and supports injecting failures, which
// makes it the store of choice for tests.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/mmynk/pharmasupps/internal/storage"
)

// Ensure Store implements storage.DocumentStore
var _ storage.DocumentStore = (*Store)(nil)

// Method names accepted by FailOn and Calls.
const (
	MethodList   = "list"
	MethodCreate = "create"
	MethodUpdate = "update"
	MethodDelete = "delete"
	MethodBatch  = "batch"
	MethodQuery  = "query"
)

type collection struct {
	order []string
	docs  map[string]storage.Fields
}

// Store is a mutex guarded document store.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	failures    map[string]error
	calls       map[string]int
	holds       map[string]chan struct{}
	waiting     map[string]int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
		holds:       make(map[string]chan struct{}),
		waiting:     make(map[string]int),
	}
}

// FailOn makes every subsequent call to method return err. A nil err clears it.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Hold parks every subsequent call to method until release is called.
func (s *Store) Hold(method string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[method] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, method)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Waiting reports how many calls to method are parked by Hold.
func (s *Store) Waiting(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting[method]
}

// Calls reports how many times method has been invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Seed inserts a document with a fixed ID, bypassing failure injection.
func (s *Store) Seed(coll, id string, fields storage.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(coll, id, fields.Clone())
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// List returns every document in insertion order.
func (s *Store) List(ctx context.Context, coll string) ([]storage.Document, error) {
	s.wait(ctx, MethodList)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, MethodList); err != nil {
		return nil, err
	}

	c := s.collections[coll]
	if c == nil {
		return []storage.Document{}, nil
	}
	docs := make([]storage.Document, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, storage.Document{ID: id, Fields: c.docs[id].Clone()})
	}
	return docs, nil
}

// Create inserts a document under a generated UUID.
func (s *Store) Create(ctx context.Context, coll string, fields storage.Fields) (string, error) {
	s.wait(ctx, MethodCreate)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, MethodCreate); err != nil {
		return "", err
	}

	id := uuid.New().String()
	s.put(coll, id, fields.Clone())
	return id, nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, coll, id string, fields storage.Fields) error {
	s.wait(ctx, MethodUpdate)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, MethodUpdate); err != nil {
		return err
	}
	return s.merge(coll, id, fields)
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, coll, id string) error {
	s.wait(ctx, MethodDelete)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, MethodDelete); err != nil {
		return err
	}
	return s.remove(coll, id)
}

// Batch validates every operation against the current state, then applies them.
// Nothing is written if any operation would fail.
func (s *Store) Batch(ctx context.Context, ops []storage.Op) error {
	s.wait(ctx, MethodBatch)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, MethodBatch); err != nil {
		return err
	}
	if len(ops) == 0 {
		return storage.ErrEmptyBatch
	}

	// Track deletions within the batch so a later op on the same doc fails.
	deleted := make(map[string]bool)
	for _, op := range ops {
		key := op.Collection + "/" + op.ID
		switch op.Kind {
		case storage.OpCreate:
		case storage.OpUpdate, storage.OpDelete:
			if !s.exists(op.Collection, op.ID) || deleted[key] {
				return fmt.Errorf("batch %s %s: %w", op.Kind, key, storage.ErrNotFound)
			}
			if op.Kind == storage.OpDelete {
				deleted[key] = true
			}
		default:
			return fmt.Errorf("batch: unsupported op %s", op.Kind)
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case storage.OpCreate:
			id := op.ID
			if id == "" {
				id = uuid.New().String()
			}
			s.put(op.Collection, id, op.Fields.Clone())
		case storage.OpUpdate:
			_ = s.merge(op.Collection, op.ID, op.Fields)
		case storage.OpDelete:
			_ = s.remove(op.Collection, op.ID)
		}
	}
	return nil
}

// Query returns documents whose field equals value.
func (s *Store) Query(ctx context.Context, coll, field string, value any) ([]storage.Document, error) {
	s.wait(ctx, MethodQuery)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, MethodQuery); err != nil {
		return nil, err
	}

	docs := []storage.Document{}
	c := s.collections[coll]
	if c == nil {
		return docs, nil
	}
	for _, id := range c.order {
		if reflect.DeepEqual(c.docs[id][field], value) {
			docs = append(docs, storage.Document{ID: id, Fields: c.docs[id].Clone()})
		}
	}
	return docs, nil
}

func (s *Store) wait(ctx context.Context, method string) {
	s.mu.Lock()
	ch := s.holds[method]
	if ch == nil {
		s.mu.Unlock()
		return
	}
	s.waiting[method]++
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
	}

	s.mu.Lock()
	s.waiting[method]--
	s.mu.Unlock()
}

func (s *Store) enter(ctx context.Context, method string) error {
	s.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failures[method]
}

func (s *Store) exists(coll, id string) bool {
	c := s.collections[coll]
	if c == nil {
		return false
	}
	_, ok := c.docs[id]
	return ok
}

func (s *Store) put(coll, id string, fields storage.Fields) {
	c := s.collections[coll]
	if c == nil {
		c = &collection{docs: make(map[string]storage.Fields)}
		s.collections[coll] = c
	}
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	if fields == nil {
		fields = storage.Fields{}
	}
	c.docs[id] = fields
}

func (s *Store) merge(coll, id string, fields storage.Fields) error {
	if !s.exists(coll, id) {
		return fmt.Errorf("%s/%s: %w", coll, id, storage.ErrNotFound)
	}
	doc := s.collections[coll].docs[id]
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (s *Store) remove(coll, id string) error {
	if !s.exists(coll, id) {
		return fmt.Errorf("%s/%s: %w", coll, id, storage.ErrNotFound)
	}
	c := s.collections[coll]
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}
