package storage

import "github.com/google/uuid"

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}
