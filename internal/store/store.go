package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a record does not exist in a collection.
var ErrNotFound = errors.New("not found")

// Fields is the schemaless field bag of a document.
type Fields map[string]any

// Record is a persisted document: an opaque identifier plus its fields.
type Record struct {
	ID     string
	Fields Fields
}

// Key names one persisted record; the importer keeps these as its
// compensation log.
type Key struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// Store is the document-store collaborator. Only single-record operations
// exist; there is no batching and no multi-record transaction.
type Store interface {
	Create(ctx context.Context, collection, id string, fields Fields) (Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Update(ctx context.Context, collection, id string, fields Fields) (Record, error)
	Delete(ctx context.Context, collection, id string) error
	// List returns all records of a collection in insertion order.
	List(ctx context.Context, collection string) ([]Record, error)
}

// Encode converts a typed value into a field bag via its JSON form.
func Encode(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// Decode fills a typed value from a record's field bag.
func (r Record) Decode(v any) error {
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// String reads a string field, returning "" when absent or mistyped.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}
