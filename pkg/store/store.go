// Package store persists serialized Markov models by name. Models are kept as
// opaque blobs with a little scalar metadata, so any key/value backend can
// hold them. Two implementations are provided: SQLStore on database/sql
// (SQLite) and BoltStore on bbolt.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Load when no model has the requested name.
	ErrNotFound = errors.New("store: model not found")
	// ErrInvalidRecord is returned by Save for records that cannot be stored.
	ErrInvalidRecord = errors.New("store: invalid record")
)

// Record is the persisted form of one model.
type Record struct {
	Name       string    `json:"name"`
	Order      int       `json:"order"`
	Size       int       `json:"size"`
	Serialized string    `json:"serialized,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store saves and loads model records keyed by unique name.
//
// Save must overwrite atomically: a reader sees either the previous record or
// the new one, never a mix. CreatedAt is kept from the first save.
type Store interface {
	// Save inserts or replaces the record with the same name.
	Save(ctx context.Context, rec Record) error
	// Load returns the record for name, or an error wrapping ErrNotFound.
	Load(ctx context.Context, name string) (Record, error)
	// List returns all records ordered by name, without their serialized tables.
	List(ctx context.Context) ([]Record, error)
	// Delete removes the record for name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error
	// Close releases the resources held by the store.
	Close() error
}

func validateRecord(rec Record) error {
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecord)
	}
	if rec.Order <= 0 {
		return fmt.Errorf("%w: order must be positive, got %d", ErrInvalidRecord, rec.Order)
	}
	if rec.Serialized == "" {
		return fmt.Errorf("%w: serialized table is empty", ErrInvalidRecord)
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: '%s'", ErrNotFound, name)
}
