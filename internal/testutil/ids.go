package testutil

import "strconv"

// SequentialIDs generates operation IDs "<prefix>-1", "<prefix>-2", ...
// in place of random UUIDs, so logs of a scenario run are reproducible.
type SequentialIDs struct {
	prefix string
	clock  DeterministicClock
}

// NewSequentialIDs creates a generator. An empty prefix yields "op".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "op"
	}
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next ID. Safe for concurrent use.
func (g *SequentialIDs) Next() string {
	return g.prefix + "-" + strconv.FormatInt(g.clock.Next(), 10)
}
