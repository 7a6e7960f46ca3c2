package idgen

import "sync/atomic"

// Generator mints globally unique, monotonically increasing order ids.
// The first id is 1; 0 is reserved as "unset". Safe for concurrent use.
// Must not be copied after first use.
type Generator struct {
	last atomic.Uint64
}

// Next returns the next order id.
func (g *Generator) Next() uint64 {
	return g.last.Add(1)
}
