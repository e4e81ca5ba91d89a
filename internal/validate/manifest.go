package validate

import (
	"fmt"
	"regexp"
	"sort"

	"ctxpack/internal/assemble"
	"ctxpack/internal/draft"
	"ctxpack/internal/sortutil"
)

var reHex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Manifest re-checks the invariants every assembled manifest must hold
// against the budgets it was assembled under:
//
//   - sections are known and listed once; items sorted by (path, start, end, id)
//   - item ids unique; no two items content-identical
//   - totals and metrics agree with the items
//   - global, per-path and per-section ceilings hold
//   - pointers target admitted items and are sorted
//   - hash, when set, is sha256 hex and matches the content
//
// Violations are aggregated into one ASSEMBLY_ERROR: a breach here is a bug
// in the assembler, not bad input.
func Manifest(m *assemble.Manifest, b draft.Budgets) error {
	var errs errlist
	if m == nil {
		errs.add("", "manifest is nil")
		return errs.assembly()
	}

	rank := make(map[string]int, len(m.Sections))
	ids := make(map[string]struct{})
	contents := make(map[draft.ContentKey]string)
	pathTokens := make(map[string]int)
	tokens := 0

	for si, sec := range m.Sections {
		field := fmt.Sprintf("sections[%d]", si)
		if !draft.IsKnownSection(sec.Name) {
			errs.add(field, "unknown section %q", sec.Name)
		}
		if _, dup := rank[sec.Name]; dup {
			errs.add(field, "section %q listed twice", sec.Name)
		}
		rank[sec.Name] = si

		secTokens := 0
		secPaths := make(map[string]struct{})
		for ii, it := range sec.Items {
			f := fmt.Sprintf("%s.items[%d] (%s)", field, ii, it.ID)
			if _, dup := ids[it.ID]; dup {
				errs.add(f, "duplicate id")
			}
			ids[it.ID] = struct{}{}

			key := draft.ContentKey{Path: it.Path, StartLine: it.StartLine, EndLine: it.EndLine, Text: it.Text}
			if prev, dup := contents[key]; dup {
				errs.add(f, "content-identical to %s", prev)
			} else {
				contents[key] = it.ID
			}
			if it.StartLine < 1 || it.EndLine < it.StartLine {
				errs.add(f, "invalid range %d-%d", it.StartLine, it.EndLine)
			}
			if it.Tokens < 0 {
				errs.add(f, "negative tokens %d", it.Tokens)
			}
			tokens += it.Tokens
			pathTokens[it.Path] += it.Tokens
			secTokens += it.Tokens
			secPaths[it.Path] = struct{}{}
		}
		if !sort.SliceIsSorted(sec.Items, func(i, j int) bool {
			return sortutil.Compare(itemKey(sec.Items[i]), itemKey(sec.Items[j])) < 0
		}) {
			errs.add(field, "items are not sorted by (path, start_line, end_line, id)")
		}

		if cp, ok := b.SectionCaps[sec.Name]; ok {
			if cp.Tokens != nil && secTokens > *cp.Tokens {
				errs.add(field, "section tokens %d exceed cap %d", secTokens, *cp.Tokens)
			}
			if cp.Files != nil && len(secPaths) > *cp.Files {
				errs.add(field, "section files %d exceed cap %d", len(secPaths), *cp.Files)
			}
		}
	}

	if m.Totals.Tokens != tokens {
		errs.add("totals.tokens", "is %d, items sum to %d", m.Totals.Tokens, tokens)
	}
	if m.Totals.Files != len(pathTokens) {
		errs.add("totals.files", "is %d, items cover %d paths", m.Totals.Files, len(pathTokens))
	}
	if m.Totals.Tokens > b.MaxTokens {
		errs.add("totals.tokens", "%d exceeds max_tokens %d", m.Totals.Tokens, b.MaxTokens)
	}
	if m.Totals.Files > b.MaxFiles {
		errs.add("totals.files", "%d exceeds max_files %d", m.Totals.Files, b.MaxFiles)
	}
	for _, p := range sortutil.SortedKeys(pathTokens) {
		if pathTokens[p] > b.MaxPerFileTokens {
			errs.add("path "+p, "tokens %d exceed max_per_file_tokens %d", pathTokens[p], b.MaxPerFileTokens)
		}
	}
	if m.Metrics.TokensTotal != m.Totals.Tokens || m.Metrics.FilesTotal != m.Totals.Files {
		errs.add("metrics", "totals disagree with metrics")
	}
	if m.Metrics.DedupPointersTotal != len(m.Pointers) {
		errs.add("metrics.dedup_pointers_total", "is %d, manifest has %d pointers", m.Metrics.DedupPointersTotal, len(m.Pointers))
	}

	for i, p := range m.Pointers {
		field := fmt.Sprintf("pointers[%d]", i)
		if _, ok := ids[p.DuplicateOf]; !ok {
			errs.add(field, "duplicate_of %q is not an item", p.DuplicateOf)
		}
		if m.Section(p.Section) == nil {
			errs.add(field, "section %q is not in the manifest", p.Section)
		}
	}
	if !sort.SliceIsSorted(m.Pointers, func(i, j int) bool {
		return sortutil.Compare(pointerKey(m.Pointers[i], rank), pointerKey(m.Pointers[j], rank)) < 0
	}) {
		errs.add("pointers", "not sorted by (section, path, start_line, end_line, duplicate_of)")
	}

	if m.Hash != "" {
		if !reHex64.MatchString(m.Hash) {
			errs.add("hash", "must be 64 lowercase hex chars (sha256), got %q", m.Hash)
		} else if h, err := m.ComputeHash(); err != nil {
			errs.add("hash", "recompute: %v", err)
		} else if h != m.Hash {
			errs.add("hash", "does not match content (have %s, want %s)", m.Hash, h)
		}
	}

	return errs.assembly()
}

func itemKey(it assemble.Item) sortutil.Key {
	return sortutil.Key{Path: it.Path, Start: it.StartLine, End: it.EndLine, ID: it.ID}
}

func pointerKey(p assemble.Pointer, rank map[string]int) sortutil.Key {
	return sortutil.Key{Rank: rank[p.Section], Path: p.Path, Start: p.StartLine, End: p.EndLine, ID: p.DuplicateOf}
}
