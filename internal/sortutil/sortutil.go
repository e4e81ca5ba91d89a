// Package sortutil centralizes the total orders used wherever iteration order
// could leak into output.
package sortutil

import (
	"cmp"
	"sort"
)

// Key is the sort key of a span: the owning section's order index, then the
// path, the inclusive line range and finally the id as a tie-breaker.
type Key struct {
	Rank  int
	Path  string
	Start int
	End   int
	ID    string
}

// Compare orders keys by (Rank, Path, Start, End, ID).
func Compare(a, b Key) int {
	if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.End, b.End); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortedKeys returns the keys of m in lexicographic order.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
