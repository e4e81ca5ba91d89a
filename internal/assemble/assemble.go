package assemble

import (
	"sort"

	"go.uber.org/zap"

	"ctxpack/internal/ctxerr"
	"ctxpack/internal/draft"
	"ctxpack/internal/sortutil"
	"ctxpack/internal/tokens"
)

// Assemble selects, deduplicates, merges and truncates the draft's spans to
// fit its budgets and returns a sealed manifest. d is expected to have passed
// validate.Draft; it is never modified.
//
// Failures: BUDGET_ERROR when a must_include item cannot be admitted,
// ASSEMBLY_ERROR for malformed input the validator would have rejected.
func Assemble(d *draft.Draft, cfg Config) (*Manifest, error) {
	if d == nil {
		return nil, ctxerr.Assembly(nil, "nil draft")
	}
	log := cfg.logger()
	est := tokens.ForModel(cfg.Model)

	cands := collect(d)
	for _, c := range cands {
		if c.start < 1 || c.end < c.start {
			return nil, ctxerr.Assembly(nil, "item %s has invalid range %d-%d", c.id, c.start, c.end)
		}
	}

	cands, dups, alias1 := dedupe(cands)
	cands, merged, alias2 := mergeSpans(cands, est, cfg.MergeMaxTokens)
	// Merging can produce a span identical to one in another section.
	cands, dups2, alias3 := dedupe(cands)
	dups = append(dups, dups2...)

	for i := range cands {
		cands[i].tokens = est.Count(cands[i].text)
	}

	alloc, err := allocate(cands, d.Budgets, est, log)
	if err != nil {
		return nil, err
	}
	for _, id := range alloc.unmerged {
		delete(alias2, id)
	}
	merged -= alloc.merges

	byID := make(map[string]candidate, len(alloc.admitted))
	for _, c := range alloc.admitted {
		byID[c.id] = c
	}
	never := toSet(d.NeverInclude)
	for _, id := range d.MustInclude {
		if _, dropped := never[id]; dropped {
			continue
		}
		if _, ok := byID[resolve(id, alias1, alias2, alias3)]; !ok {
			return nil, ctxerr.Assembly(nil, "must_include id %s was not assembled", id)
		}
	}

	m := build(d, alloc.admitted, dups, byID, alias1, alias2, alias3)
	m.Metrics.MergedSpans = merged
	m.Metrics.EvictionsTotal += alloc.evictions
	if err := m.Seal(); err != nil {
		return nil, ctxerr.Assembly(err, "hash manifest")
	}

	log.Debug("assembled",
		zap.Int("tokens", m.Totals.Tokens),
		zap.Int("files", m.Totals.Files),
		zap.Int("merged_spans", merged),
		zap.Int("evictions", m.Metrics.EvictionsTotal),
		zap.Int("pointers", len(m.Pointers)),
		zap.String("hash", m.Hash))
	return m, nil
}

// build lays out the manifest: sections in draft order, items by
// (path, start, end, id), pointers by (order index, path, start, end, target).
// A duplicate whose target was evicted is dropped; one whose target no
// longer covers the duplicated range (clipped, or split back out of a merge)
// counts as an eviction.
func build(d *draft.Draft, admitted []candidate, dups []duplicate, byID map[string]candidate, aliases ...map[string]string) *Manifest {
	m := &Manifest{
		Project:  d.Project,
		PR:       d.PR,
		Mode:     d.Mode,
		Sections: make([]Section, 0, len(d.Order)),
		Pointers: []Pointer{},
	}

	bySection := make(map[string][]candidate, len(d.Order))
	paths := make(map[string]struct{})
	for _, c := range admitted {
		bySection[c.section] = append(bySection[c.section], c)
		paths[c.path] = struct{}{}
		m.Totals.Tokens += c.tokens
	}
	m.Totals.Files = len(paths)

	for _, name := range d.Order {
		cs := bySection[name]
		sortCandidates(cs)
		items := make([]Item, 0, len(cs))
		for _, c := range cs {
			it := Item{
				ID:        c.id,
				Path:      c.path,
				StartLine: c.start,
				EndLine:   c.end,
				Text:      c.text,
				Tokens:    c.tokens,
				Truncated: c.truncated,
			}
			if len(c.ids) > 1 {
				it.MergedFrom = append([]string(nil), c.ids...)
				sort.Strings(it.MergedFrom)
			}
			items = append(items, it)
		}
		m.Sections = append(m.Sections, Section{Name: name, Items: items})
	}

	type keyed struct {
		key sortutil.Key
		p   Pointer
	}
	var ptrs []keyed
	for _, dp := range dups {
		target := resolve(dp.of, aliases...)
		c, ok := byID[target]
		if !ok {
			continue
		}
		if c.truncated || c.path != dp.path || dp.start < c.start || dp.end > c.end {
			m.Metrics.EvictionsTotal++
			continue
		}
		ptrs = append(ptrs, keyed{
			key: sortutil.Key{Rank: dp.rank, Path: dp.path, Start: dp.start, End: dp.end, ID: target},
			p: Pointer{
				Path:        dp.path,
				StartLine:   dp.start,
				EndLine:     dp.end,
				Section:     dp.section,
				DuplicateOf: target,
			},
		})
	}
	sort.Slice(ptrs, func(i, j int) bool { return sortutil.Compare(ptrs[i].key, ptrs[j].key) < 0 })
	for _, k := range ptrs {
		m.Pointers = append(m.Pointers, k.p)
	}

	m.Metrics.TokensTotal = m.Totals.Tokens
	m.Metrics.FilesTotal = m.Totals.Files
	m.Metrics.DedupPointersTotal = len(m.Pointers)
	return m
}
