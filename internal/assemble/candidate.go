package assemble

import (
	"sort"

	"ctxpack/internal/draft"
	"ctxpack/internal/sortutil"
)

// priority is the allocation class; lower is admitted first.
type priority int

const (
	prioMust priority = iota
	prioSection
	prioNice
)

func (p priority) String() string {
	switch p {
	case prioMust:
		return "must"
	case prioNice:
		return "nice"
	}
	return "section"
}

// candidate is a span moving through the passes.
type candidate struct {
	id        string
	section   string
	rank      int // index of section in draft.Order
	path      string
	start     int
	end       int
	text      string
	ids       []string // constituent ids, own id first
	must      []string // constituent ids listed in must_include
	prio      priority
	tokens    int
	truncated bool
	merged    []candidate // unmerged constituents, nil unless merged
}

func (c *candidate) key() sortutil.Key {
	return sortutil.Key{Rank: c.rank, Path: c.path, Start: c.start, End: c.end, ID: c.id}
}

func (c *candidate) content() draft.ContentKey {
	return draft.ContentKey{Path: c.path, StartLine: c.start, EndLine: c.end, Text: c.text}
}

// absorb folds the priority of other into c: c becomes must when other was,
// and a section item outranks a nice-to-have.
func (c *candidate) absorb(other candidate) {
	if other.prio < c.prio {
		c.prio = other.prio
	}
	c.must = append(c.must, other.must...)
}

// firstMust returns the smallest must id carried by c.
func (c *candidate) firstMust() string {
	if len(c.must) == 0 {
		return c.id
	}
	ids := append([]string(nil), c.must...)
	sort.Strings(ids)
	return ids[0]
}

func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		return sortutil.Compare(cands[i].key(), cands[j].key()) < 0
	})
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return m
}

// collect flattens the sections listed in d.Order into candidates, dropping
// never_include ids. never_include beats must_include. Sections absent from
// Order contribute nothing.
func collect(d *draft.Draft) []candidate {
	never := toSet(d.NeverInclude)
	must := toSet(d.MustInclude)
	nice := toSet(d.NiceToHave)

	var out []candidate
	for rank, sec := range d.Order {
		for _, it := range d.Items(sec) {
			if _, drop := never[it.ID]; drop {
				continue
			}
			c := candidate{
				id:      it.ID,
				section: sec,
				rank:    rank,
				path:    it.Path,
				start:   it.StartLine,
				end:     it.EndLine,
				text:    it.Text,
				ids:     []string{it.ID},
				prio:    prioSection,
			}
			if _, ok := must[it.ID]; ok {
				c.prio = prioMust
				c.must = []string{it.ID}
			} else if _, ok := nice[it.ID]; ok {
				c.prio = prioNice
			}
			out = append(out, c)
		}
	}
	return out
}
