// Package firestore provides a Cloud Firestore implementation of storage.DocumentStore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/mmynk/pharmasupps/internal/storage"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// Ensure Store implements storage.DocumentStore
var _ storage.DocumentStore = (*Store)(nil)

// Store maps the document store contract onto Firestore collections.
type Store struct {
	provider *Provider
}

// New creates a Store backed by the provider's client.
func New(provider *Provider) (*Store, error) {
	if provider == nil {
		return nil, errors.New("firestore store requires a provider")
	}
	return &Store{provider: provider}, nil
}

// Close releases the Firestore client.
func (s *Store) Close() error {
	return s.provider.Close()
}

// List returns every document in the collection in Firestore enumeration order.
func (s *Store) List(ctx context.Context, collection string) ([]storage.Document, error) {
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	return collect(collection+".list", coll.Documents(ctx))
}

// Create adds a document with an auto-generated ID.
func (s *Store) Create(ctx context.Context, collection string, fields storage.Fields) (string, error) {
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return "", err
	}
	ref, _, err := coll.Add(ctx, map[string]any(fields))
	if err != nil {
		return "", wrapError(collection+".create", err)
	}
	return ref.ID, nil
}

// Update applies field updates; Firestore rejects updates to missing documents.
func (s *Store) Update(ctx context.Context, collection, id string, fields storage.Fields) error {
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}
	_, err = coll.Doc(id).Update(ctx, toUpdates(fields))
	return wrapError(collection+".update", err)
}

// Delete removes a document, failing if it does not exist.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}
	_, err = coll.Doc(id).Delete(ctx, firestore.Exists)
	return wrapError(collection+".delete", err)
}

// Batch runs every operation inside one Firestore transaction.
func (s *Store) Batch(ctx context.Context, ops []storage.Op) error {
	if len(ops) == 0 {
		return storage.ErrEmptyBatch
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}

	txCtx := ctx
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > defaultTxTimeout {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	err = client.RunTransaction(txCtx, func(_ context.Context, tx *firestore.Transaction) error {
		for _, op := range ops {
			coll := client.Collection(op.Collection)
			var opErr error
			switch op.Kind {
			case storage.OpCreate:
				ref := coll.NewDoc()
				if op.ID != "" {
					ref = coll.Doc(op.ID)
				}
				opErr = tx.Create(ref, map[string]any(op.Fields))
			case storage.OpUpdate:
				opErr = tx.Update(coll.Doc(op.ID), toUpdates(op.Fields))
			case storage.OpDelete:
				opErr = tx.Delete(coll.Doc(op.ID), firestore.Exists)
			default:
				opErr = fmt.Errorf("unsupported batch op %s", op.Kind)
			}
			if opErr != nil {
				return opErr
			}
		}
		return nil
	}, firestore.MaxAttempts(defaultTxAttempts))

	return wrapError("batch", err)
}

// Query returns documents whose field equals value.
func (s *Store) Query(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	return collect(collection+".query", coll.Where(field, "==", value).Documents(ctx))
}

func (s *Store) collection(ctx context.Context, name string) (*firestore.CollectionRef, error) {
	if name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(name), nil
}

func collect(op string, iter *firestore.DocumentIterator) ([]storage.Document, error) {
	defer iter.Stop()

	docs := []storage.Document{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, wrapError(op, err)
		}
		data := snap.Data()
		if data == nil {
			data = map[string]any{}
		}
		docs = append(docs, storage.Document{ID: snap.Ref.ID, Fields: storage.Fields(data)})
	}
}

func toUpdates(fields storage.Fields) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	return updates
}
