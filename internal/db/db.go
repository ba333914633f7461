// Package db provides the pluggable investigation store behind the
// HTTP surface.
//
// The store holds one record per investigation: lifecycle status plus
// the serialized session once the run terminates. Two implementations
// exist: an in-memory map for the default setup and tests, and SQLite
// for durable deployments. The interface is small on purpose so a
// remote store can substitute without changing the API layer.
package db

import (
	"context"
	"errors"
	"time"
)

// Investigation statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when no record exists for the id.
var ErrNotFound = errors.New("investigation not found")

// Investigation is one stored investigation record.
type Investigation struct {
	ID          string    `json:"id"`
	Goal        string    `json:"goal"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`

	// SessionJSON is the versioned session document, populated when
	// the run terminates.
	SessionJSON []byte `json:"-"`
}

// Store persists investigation records.
type Store interface {
	// Put inserts or replaces the record.
	Put(ctx context.Context, inv *Investigation) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*Investigation, error)

	// List returns records newest first, filtered by status when
	// status is non-empty, capped at limit when limit > 0.
	List(ctx context.Context, limit int, status string) ([]*Investigation, error)

	// Close releases store resources.
	Close() error
}
