package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no artifact exists for the id
var ErrNotFound = errors.New("artifact not found")

// Extension is appended to the transition id to form the object name
const Extension = ".wav"

// Store persists generated audio under its transition id.
// Callers must not assume durability: Exists is the source of truth.
type Store interface {
	Exists(ctx context.Context, id string) bool
	Write(ctx context.Context, id string, data []byte) (string, error)
	Read(ctx context.Context, id string) ([]byte, error)
	// Delete is best effort; failures are logged, never returned
	Delete(ctx context.Context, id string)
}

// ObjectName returns the file/object name for an id
func ObjectName(id string) string {
	return id + Extension
}
