package assemble

import (
	"strings"

	"ctxpack/internal/textutil"
	"ctxpack/internal/tokens"
)

// mergeSpans combines, within one section and one path, spans that overlap,
// touch, or sit within maxTokens of each other. The distance between two
// spans is the estimate for the uncovered lines between them
// (tokens.Estimator.Lines); maxTokens == 0 merges overlapping and contiguous
// spans only. Raising maxTokens never merges less. Merging never crosses
// sections.
//
// The merged candidate keeps the id of its first (lowest start) constituent;
// alias maps every absorbed id to it.
func mergeSpans(in []candidate, est tokens.Estimator, maxTokens int) ([]candidate, int, map[string]string) {
	sorted := append([]candidate(nil), in...)
	sortCandidates(sorted)

	out := make([]candidate, 0, len(sorted))
	alias := make(map[string]string)
	merged := 0

	for _, c := range sorted {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.rank == c.rank && last.path == c.path && within(*last, c, est, maxTokens) {
				for _, id := range c.ids {
					alias[id] = last.id
				}
				*last = union(*last, c)
				merged++
				continue
			}
		}
		out = append(out, c)
	}
	return out, merged, alias
}

// within reports whether b, starting at or after a, is close enough to merge.
func within(a, b candidate, est tokens.Estimator, maxTokens int) bool {
	gap := b.start - a.end - 1
	if gap <= 0 {
		return true
	}
	return maxTokens > 0 && est.Lines(gap) <= maxTokens
}

// parts returns the unmerged candidates c was built from.
func (c *candidate) parts() []candidate {
	if len(c.merged) > 0 {
		return c.merged
	}
	return []candidate{*c}
}

// union joins b into a; a.start <= b.start holds.
func union(a, b candidate) candidate {
	u := a
	u.ids = append(append([]string(nil), a.ids...), b.ids...)
	u.must = append(append([]string(nil), a.must...), b.must...)
	u.merged = append(append([]candidate(nil), a.parts()...), b.parts()...)
	if b.prio < u.prio {
		u.prio = b.prio
	}
	if b.end <= a.end {
		return u
	}
	u.end = b.end
	u.text = unionText(a, b)
	return u
}

// unionText stitches b's lines past a.end onto a's text. When the spans do
// not overlap or touch, or either text does not hold exactly one line per
// covered line number, the texts are joined with a single newline instead.
func unionText(a, b candidate) string {
	al := textutil.SplitLines(a.text)
	bl := textutil.SplitLines(b.text)
	if b.start > a.end+1 || len(al) != a.end-a.start+1 || len(bl) != b.end-b.start+1 {
		return textutil.JoinWithSingleNL(a.text, b.text)
	}
	skip := a.end + 1 - b.start
	lines := append(append([]string(nil), al...), bl[skip:]...)
	text := strings.Join(lines, "\n")
	if strings.HasSuffix(b.text, "\n") {
		text += "\n"
	}
	return text
}
