package assemble

import "ctxpack/internal/draft"

// duplicate records a content-identical occurrence that was folded into the
// canonical candidate named by of.
type duplicate struct {
	section string
	rank    int
	path    string
	start   int
	end     int
	of      string
}

// dedupe keeps the first occurrence of every (path, start, end, text) tuple,
// scanning in (order index, path, start, end, id) order, and turns the rest
// into duplicates. The returned alias map sends every folded id to the id of
// its canonical candidate.
//
// Invariant: no two returned candidates share a content key.
func dedupe(in []candidate) ([]candidate, []duplicate, map[string]string) {
	sorted := append([]candidate(nil), in...)
	sortCandidates(sorted)

	index := make(map[draft.ContentKey]int, len(sorted))
	kept := make([]candidate, 0, len(sorted))
	var dups []duplicate
	alias := make(map[string]string)

	for _, c := range sorted {
		k := c.content()
		i, seen := index[k]
		if !seen {
			index[k] = len(kept)
			kept = append(kept, c)
			continue
		}
		canonical := &kept[i]
		canonical.absorb(c)
		for _, id := range c.ids {
			alias[id] = canonical.id
		}
		dups = append(dups, duplicate{
			section: c.section,
			rank:    c.rank,
			path:    c.path,
			start:   c.start,
			end:     c.end,
			of:      canonical.id,
		})
	}
	return kept, dups, alias
}

// resolve follows alias links from id to the surviving candidate id.
func resolve(id string, aliases ...map[string]string) string {
	for hops := 0; hops < 64; hops++ {
		moved := false
		for _, a := range aliases {
			if next, ok := a[id]; ok && next != id {
				id = next
				moved = true
			}
		}
		if !moved {
			return id
		}
	}
	return id
}
