package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable ids for tests: prefix-0001,
// prefix-0002, and so on. Unlike uuid.NewString it makes stored
// records and transaction uids stable across runs.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to
// "id".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDs{prefix: prefix}
}

// Next returns the next id in the sequence.
func (g *SequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}
