// Package testutil provides deterministic helpers for tests: fixed run
// identity and compact source-table builders.
package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDGenerator returns the same run id every time.
//
// This enables deterministic golden snapshot comparison: the same
// scenario with the same generator produces byte-identical reports.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for
// concurrent use.
type FixedRunIDGenerator struct {
	token string
}

// NewFixedRunIDGenerator creates a fixed run id generator.
// If token is empty, Generate() returns "test-run-default".
func NewFixedRunIDGenerator(token string) *FixedRunIDGenerator {
	if token == "" {
		token = "test-run-default"
	}
	return &FixedRunIDGenerator{token: token}
}

// Generate returns the fixed run id.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.token
}

// SequencedRunIDGenerator returns "prefix-000001", "prefix-000002", ...
// so multi-pass correction loops still get distinct but reproducible
// run ids.
type SequencedRunIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequencedRunIDGenerator creates a sequenced generator.
// If prefix is empty, "test-run" is used.
func NewSequencedRunIDGenerator(prefix string) *SequencedRunIDGenerator {
	if prefix == "" {
		prefix = "test-run"
	}
	return &SequencedRunIDGenerator{prefix: prefix}
}

// Generate returns the next id in sequence.
//
// Implements engine.RunIDGenerator. Safe for concurrent use.
func (g *SequencedRunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}
