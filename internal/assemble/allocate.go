package assemble

import (
	"sort"

	"go.uber.org/zap"

	"ctxpack/internal/ctxerr"
	"ctxpack/internal/draft"
	"ctxpack/internal/sortutil"
	"ctxpack/internal/textutil"
	"ctxpack/internal/tokens"
)

// Ceiling names as reported in BUDGET_ERROR details.
const (
	CeilingMaxTokens        = "max_tokens"
	CeilingMaxFiles         = "max_files"
	CeilingMaxPerFileTokens = "max_per_file_tokens"
)

// SectionCeiling names a section cap dimension, e.g. "section_caps.contracts.tokens".
func SectionCeiling(section, dim string) string {
	return "section_caps." + section + "." + dim
}

// ledger tracks what has been admitted so far.
type ledger struct {
	b          draft.Budgets
	tokens     int
	paths      map[string]struct{}
	pathTokens map[string]int
	secTokens  map[string]int
	secPaths   map[string]map[string]struct{}
	contents   map[draft.ContentKey]struct{}
}

func newLedger(b draft.Budgets) *ledger {
	return &ledger{
		b:          b,
		paths:      make(map[string]struct{}),
		pathTokens: make(map[string]int),
		secTokens:  make(map[string]int),
		secPaths:   make(map[string]map[string]struct{}),
		contents:   make(map[draft.ContentKey]struct{}),
	}
}

// violations lists the ceilings c would break, in check order: global
// tokens, global files, section tokens, section files, per-path tokens.
func (l *ledger) violations(c candidate) []string {
	var v []string
	if l.tokens+c.tokens > l.b.MaxTokens {
		v = append(v, CeilingMaxTokens)
	}
	if _, ok := l.paths[c.path]; !ok && len(l.paths)+1 > l.b.MaxFiles {
		v = append(v, CeilingMaxFiles)
	}
	if cp, ok := l.b.SectionCaps[c.section]; ok {
		if cp.Tokens != nil && l.secTokens[c.section]+c.tokens > *cp.Tokens {
			v = append(v, SectionCeiling(c.section, "tokens"))
		}
		if cp.Files != nil {
			if _, ok := l.secPaths[c.section][c.path]; !ok && len(l.secPaths[c.section])+1 > *cp.Files {
				v = append(v, SectionCeiling(c.section, "files"))
			}
		}
	}
	if l.pathTokens[c.path]+c.tokens > l.b.MaxPerFileTokens {
		v = append(v, CeilingMaxPerFileTokens)
	}
	return v
}

func (l *ledger) admit(c candidate) {
	l.tokens += c.tokens
	l.paths[c.path] = struct{}{}
	l.pathTokens[c.path] += c.tokens
	l.secTokens[c.section] += c.tokens
	if l.secPaths[c.section] == nil {
		l.secPaths[c.section] = make(map[string]struct{})
	}
	l.secPaths[c.section][c.path] = struct{}{}
	l.contents[c.content()] = struct{}{}
}

// allocation is the outcome of allocate.
type allocation struct {
	admitted  []candidate
	evictions int
	// unmerged lists the ids of merged must spans that were split back into
	// their constituents; merges counts the merges undone.
	unmerged []string
	merges   int
}

func byPriority(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].prio != cands[j].prio {
			return cands[i].prio < cands[j].prio
		}
		return sortutil.Compare(cands[i].key(), cands[j].key()) < 0
	})
}

// allocate admits candidates by (priority, order index, path, start, end, id).
// A merged must candidate that breaks a ceiling is split back into its
// constituents: the must ones are retried as must, the rest rejoin the queue
// in their own class. An unmerged must candidate that breaks any ceiling fails
// the call. Other candidates are clipped when only the per-path ceiling is in
// the way, or evicted.
func allocate(cands []candidate, b draft.Budgets, est tokens.Estimator, log *zap.Logger) (allocation, error) {
	queue := append([]candidate(nil), cands...)
	byPriority(queue)

	l := newLedger(b)
	out := allocation{admitted: make([]candidate, 0, len(queue))}

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		v := l.violations(c)
		if len(v) == 0 {
			l.admit(c)
			out.admitted = append(out.admitted, c)
			continue
		}
		if c.prio == prioMust {
			if parts, ok := split(c, est); ok {
				log.Debug("split merged span",
					zap.String("id", c.id),
					zap.Strings("ids", c.ids),
					zap.Strings("ceilings", v))
				out.unmerged = append(out.unmerged, c.ids...)
				out.merges += len(parts) - 1
				queue = append(parts, queue...)
				byPriority(queue)
				continue
			}
			id := c.firstMust()
			return allocation{}, ctxerr.Budget(id, v[0],
				"must_include item %s (%s:%d-%d, %d tokens) exceeds %s", id, c.path, c.start, c.end, c.tokens, v[0])
		}
		if len(v) == 1 && v[0] == CeilingMaxPerFileTokens {
			remaining := b.MaxPerFileTokens - l.pathTokens[c.path]
			if cc, ok := clip(c, remaining, est); ok {
				if _, dup := l.contents[cc.content()]; !dup && len(l.violations(cc)) == 0 {
					log.Debug("clipped span",
						zap.String("id", cc.id),
						zap.String("path", cc.path),
						zap.Int("tokens_before", c.tokens),
						zap.Int("tokens_after", cc.tokens))
					l.admit(cc)
					out.admitted = append(out.admitted, cc)
					continue
				}
			}
		}
		out.evictions++
		log.Debug("evicted span",
			zap.String("id", c.id),
			zap.String("priority", c.prio.String()),
			zap.Strings("ceilings", v))
	}
	return out, nil
}

// split undoes the merges behind c. It refuses when c was never merged or
// carries must ids that no constituent carries itself.
func split(c candidate, est tokens.Estimator) ([]candidate, bool) {
	if len(c.merged) == 0 {
		return nil, false
	}
	parts := append([]candidate(nil), c.merged...)
	carried := make(map[string]struct{})
	for i := range parts {
		parts[i].tokens = est.Count(parts[i].text)
		for _, id := range parts[i].must {
			carried[id] = struct{}{}
		}
	}
	for _, id := range c.must {
		if _, ok := carried[id]; !ok {
			return nil, false
		}
	}
	return parts, true
}

// clip truncates c to fit budget tokens: the longest byte prefix that fits,
// cut back to a rune boundary and then to the last complete line when the
// prefix holds one. EndLine shrinks to the lines kept.
func clip(c candidate, budget int, est tokens.Estimator) (candidate, bool) {
	if budget <= 0 {
		return candidate{}, false
	}
	text := textutil.TruncateUTF8(c.text, est.MaxBytes(budget))
	text = textutil.CutToLastLine(text)
	if text == "" || text == c.text {
		return candidate{}, false
	}
	out := c
	out.text = text
	out.tokens = est.Count(text)
	out.truncated = true
	if end := c.start + textutil.CountLines(text) - 1; end < c.end {
		out.end = end
	}
	return out, true
}
