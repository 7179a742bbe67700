// Package stackiter enumerates the Cartesian product of patches and
// variant chains in forward or backward order (component C).
package stackiter

import "github.com/SakuraUO/thcrap/internal/runconfig"

// Direction selects forward (JSON overlay, generic-then-specific) or
// backward (binary file, first-hit-wins) traversal.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Entry is one (patch, candidate filename) pair produced by Iterator.
type Entry struct {
	Patch *runconfig.Patch
	Fn    string
}

// Iterator walks patches × variants. Zero value is not usable; build
// with New. A fresh Iterator must be constructed per resolution call —
// state is never shared between calls.
type Iterator struct {
	patches   []*runconfig.Patch
	variants  []string
	dir       Direction
	step      int
	chainSize int
	total     int
}

// New builds an iterator over patches × variants in the given
// direction. patches is read in the order given; the iterator does
// not mutate it.
func New(patches []*runconfig.Patch, variants []string, dir Direction) *Iterator {
	chainSize := len(variants)
	return &Iterator{
		patches:   patches,
		variants:  variants,
		dir:       dir,
		chainSize: chainSize,
		total:     len(patches) * chainSize,
	}
}

// Len returns the total number of entries this iterator will produce.
func (it *Iterator) Len() int {
	return it.total
}

// Next returns the next entry and true, or a zero Entry and false
// once the iterator is exhausted.
func (it *Iterator) Next() (Entry, bool) {
	if it.chainSize == 0 || it.step >= it.total {
		return Entry{}, false
	}

	idx := it.step
	if it.dir == Backward {
		idx = it.total - 1 - it.step
	}
	it.step++

	patchIdx := idx / it.chainSize
	chainIdx := idx % it.chainSize
	return Entry{Patch: it.patches[patchIdx], Fn: it.variants[chainIdx]}, true
}
