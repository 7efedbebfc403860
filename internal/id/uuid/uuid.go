// Package uuid provides task ID generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// TaskID returns a UUIDv7 string, falling back to a random UUIDv4 if the
// time-ordered source fails.
func (g Generator) TaskID() string {
	if id, err := g.NewID(); err == nil {
		return id
	}
	return uuid.NewString()
}
