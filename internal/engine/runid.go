package engine

import "github.com/google/uuid"

// RunIDGenerator produces unique identifiers for validation runs.
// Implemented by UUIDv7Generator (production) and the fixed generator
// in internal/testutil (tests).
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so archived
// runs sort by creation time without a separate column.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
