package assemble

import (
	"errors"
	"math/rand/v2"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxpack/internal/ctxerr"
	"ctxpack/internal/draft"
)

func intp(n int) *int { return &n }

func item(id, path string, start, end int, text string) draft.Item {
	return draft.Item{ID: id, Path: path, StartLine: start, EndLine: end, Text: text}
}

func lines(prefix string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(prefix)
		b.WriteString(" line of code\n")
	}
	return b.String()
}

func baseDraft() *draft.Draft {
	return &draft.Draft{
		Version: "1",
		Order:   []string{draft.SectionDiffSlices, draft.SectionLinkedTests, draft.SectionContracts, draft.SectionExtras},
		Budgets: draft.Budgets{MaxTokens: 10_000, MaxFiles: 50, MaxPerFileTokens: 5_000},
		DiffSlices: []draft.Item{
			item("d1", "svc/handler.go", 10, 12, "func A() {\n\treturn\n}\n"),
			item("d2", "svc/handler.go", 12, 14, "}\n\nfunc B() {}\n"),
			item("d3", "svc/store.go", 1, 2, "package svc\n\nimport \"db\"\n"),
		},
		LinkedTests: []draft.Item{
			item("t1", "svc/handler_test.go", 1, 3, "func TestA(t *testing.T) {\n\tA()\n}\n"),
		},
		Contracts: []draft.Item{
			item("c1", "svc/store.go", 1, 2, "package svc\n\nimport \"db\"\n"),
			item("c2", "api/v1.proto", 5, 9, lines("rpc", 5)),
		},
		Extras: []draft.Item{
			item("x1", "README.md", 1, 40, lines("doc", 40)),
		},
	}
}

func shuffled(d *draft.Draft, seed uint64) *draft.Draft {
	c := d.Clone()
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, sec := range draft.KnownSections {
		items := c.Items(sec)
		r.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	}
	for _, l := range [][]string{c.MustInclude, c.NiceToHave, c.NeverInclude} {
		r.Shuffle(len(l), func(i, j int) { l[i], l[j] = l[j], l[i] })
	}
	return c
}

func allItems(m *Manifest) []Item {
	var out []Item
	for _, s := range m.Sections {
		out = append(out, s.Items...)
	}
	return out
}

func TestAssembleHashIndependentOfArrayOrder(t *testing.T) {
	d := baseDraft()
	d.MustInclude = []string{"d1", "t1"}
	d.NiceToHave = []string{"x1", "c2"}
	want, err := Assemble(d, Config{})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), want.Hash)

	for seed := uint64(1); seed <= 20; seed++ {
		got, err := Assemble(shuffled(d, seed), Config{})
		require.NoError(t, err)
		require.Equal(t, want.Hash, got.Hash, "seed %d", seed)
	}
}

func TestAssembleDoesNotMutateDraft(t *testing.T) {
	d := baseDraft()
	before := d.Clone()
	_, err := Assemble(d, Config{})
	require.NoError(t, err)
	assert.Equal(t, before, d)
}

func TestAssembleDedupAcrossSectionsYieldsPointer(t *testing.T) {
	m, err := Assemble(baseDraft(), Config{})
	require.NoError(t, err)

	count := 0
	for _, it := range allItems(m) {
		if it.Path == "svc/store.go" {
			count++
			assert.Equal(t, "d3", it.ID)
		}
	}
	assert.Equal(t, 1, count, "content-identical items must appear once")
	require.Len(t, m.Pointers, 1)
	assert.Equal(t, Pointer{Path: "svc/store.go", StartLine: 1, EndLine: 2, Section: "contracts", DuplicateOf: "d3"}, m.Pointers[0])
	assert.Equal(t, 1, m.Metrics.DedupPointersTotal)
	contracts := m.Section(draft.SectionContracts).Items
	require.Len(t, contracts, 1, "contracts keeps only its non-duplicate item")
	assert.Equal(t, "c2", contracts[0].ID)
}

func TestAssembleMergesOverlappingSpans(t *testing.T) {
	m, err := Assemble(baseDraft(), Config{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.Metrics.MergedSpans, 1)

	sec := m.Section(draft.SectionDiffSlices)
	require.NotNil(t, sec)
	var handler []Item
	for _, it := range sec.Items {
		if it.Path == "svc/handler.go" {
			handler = append(handler, it)
		}
	}
	require.Len(t, handler, 1)
	assert.Equal(t, "d1", handler[0].ID)
	assert.Equal(t, 10, handler[0].StartLine)
	assert.Equal(t, 14, handler[0].EndLine)
	assert.Equal(t, []string{"d1", "d2"}, handler[0].MergedFrom)
	assert.Equal(t, "func A() {\n\treturn\n}\n\nfunc B() {}\n", handler[0].Text)
}

func TestAssembleMustIncludeOverBudgetFails(t *testing.T) {
	d := baseDraft()
	d.Budgets.MaxTokens = 1
	d.MustInclude = []string{"t1"}
	_, err := Assemble(d, Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ctxerr.ErrBudget))

	var ce *ctxerr.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ctxerr.CodeBudget, ce.Code)
	assert.Equal(t, "t1", ce.ID)
	assert.Equal(t, CeilingMaxTokens, ce.Ceiling)
}

func TestAssembleMustIncludeNeverTruncated(t *testing.T) {
	d := baseDraft()
	d.Budgets.MaxPerFileTokens = 30
	d.MustInclude = []string{"x1"}
	_, err := Assemble(d, Config{})
	var ce *ctxerr.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "x1", ce.ID)
	assert.Equal(t, CeilingMaxPerFileTokens, ce.Ceiling)
}

func TestAssemblePerFileBudgetClipsNonMustItem(t *testing.T) {
	d := &draft.Draft{
		Version: "1",
		Order:   []string{draft.SectionExtras},
		Budgets: draft.Budgets{MaxTokens: 1000, MaxFiles: 5, MaxPerFileTokens: 30},
		Extras:  []draft.Item{item("huge", "big.go", 1, 200, lines("x", 200))},
	}
	m, err := Assemble(d, Config{})
	require.NoError(t, err)
	assert.LessOrEqual(t, m.Metrics.TokensTotal, 30)
	require.Len(t, m.Sections[0].Items, 1)
	got := m.Sections[0].Items[0]
	assert.True(t, got.Truncated)
	assert.Less(t, got.EndLine, 200)
	assert.True(t, strings.HasPrefix(d.Extras[0].Text, got.Text))
}

func TestAssembleBudgetConformance(t *testing.T) {
	for _, b := range []draft.Budgets{
		{MaxTokens: 40, MaxFiles: 10, MaxPerFileTokens: 25},
		{MaxTokens: 100, MaxFiles: 2, MaxPerFileTokens: 100},
		{MaxTokens: 0, MaxFiles: 0, MaxPerFileTokens: 0},
		{MaxTokens: 500, MaxFiles: 3, MaxPerFileTokens: 60, SectionCaps: map[string]draft.SectionCap{
			draft.SectionExtras: {Tokens: intp(10)},
		}},
	} {
		d := baseDraft()
		d.Budgets = b
		m, err := Assemble(d, Config{})
		require.NoError(t, err)
		assert.LessOrEqual(t, m.Totals.Tokens, b.MaxTokens)
		assert.LessOrEqual(t, m.Totals.Files, b.MaxFiles)
		perPath := map[string]int{}
		for _, it := range allItems(m) {
			perPath[it.Path] += it.Tokens
		}
		for p, n := range perPath {
			assert.LessOrEqual(t, n, b.MaxPerFileTokens, "path %s", p)
		}
		if cp, ok := b.SectionCaps[draft.SectionExtras]; ok {
			tok := 0
			for _, it := range m.Section(draft.SectionExtras).Items {
				tok += it.Tokens
			}
			assert.LessOrEqual(t, tok, *cp.Tokens)
		}
	}
}

func TestAssembleSectionFileCapEvicts(t *testing.T) {
	d := baseDraft()
	d.Budgets.SectionCaps = map[string]draft.SectionCap{draft.SectionDiffSlices: {Files: intp(1)}}
	m, err := Assemble(d, Config{})
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, it := range m.Section(draft.SectionDiffSlices).Items {
		paths[it.Path] = true
	}
	assert.Len(t, paths, 1)
	assert.GreaterOrEqual(t, m.Metrics.EvictionsTotal, 1)
}

func TestAssembleNeverIncludeWins(t *testing.T) {
	d := baseDraft()
	d.NeverInclude = []string{"d3", "x1"}
	m, err := Assemble(d, Config{})
	require.NoError(t, err)
	for _, it := range allItems(m) {
		assert.NotEqual(t, "x1", it.ID)
		assert.NotContains(t, it.MergedFrom, "x1")
	}
	// With d3 dropped, c1 becomes the only copy of store.go and no pointer remains.
	assert.Empty(t, m.Pointers)
	var ids []string
	for _, it := range m.Section(draft.SectionContracts).Items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"c2", "c1"}, ids, "sorted by path: api/ before svc/")
}

func TestAssembleNiceToHaveGoesLast(t *testing.T) {
	d := &draft.Draft{
		Version: "1",
		Order:   []string{draft.SectionTemplates, draft.SectionExtras},
		Budgets: draft.Budgets{MaxTokens: 10, MaxFiles: 10, MaxPerFileTokens: 10},
		Templates: []draft.Item{
			item("early-nice", "a.tmpl", 1, 1, strings.Repeat("a", 40)),
		},
		Extras: []draft.Item{
			item("plain", "b.txt", 1, 1, strings.Repeat("b", 40)),
		},
		NiceToHave: []string{"early-nice"},
	}
	m, err := Assemble(d, Config{})
	require.NoError(t, err)
	assert.Empty(t, m.Section(draft.SectionTemplates).Items)
	require.Len(t, m.Section(draft.SectionExtras).Items, 1)
	assert.Equal(t, "plain", m.Section(draft.SectionExtras).Items[0].ID)
	assert.Equal(t, 1, m.Metrics.EvictionsTotal)
}

func TestAssembleDuplicateMustPromotesCanonical(t *testing.T) {
	d := baseDraft()
	d.Budgets.MaxTokens = 12
	d.MustInclude = []string{"c1"} // duplicate of d3
	m, err := Assemble(d, Config{})
	require.NoError(t, err)
	found := false
	for _, it := range allItems(m) {
		if it.ID == "d3" {
			found = true
		}
	}
	assert.True(t, found, "canonical copy of a must_include duplicate must be admitted")
	require.Len(t, m.Pointers, 1)
	assert.Equal(t, "d3", m.Pointers[0].DuplicateOf)
}

func TestAssembleItemsSortedByPathThenLine(t *testing.T) {
	d := baseDraft()
	d.DiffSlices = append(d.DiffSlices, item("d0", "a/first.go", 50, 51, "z\nz\n"), item("d9", "a/first.go", 5, 5, "q\n"))
	m, err := Assemble(d, Config{})
	require.NoError(t, err)
	items := m.Section(draft.SectionDiffSlices).Items
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if prev.Path > cur.Path || (prev.Path == cur.Path && prev.StartLine > cur.StartLine) {
			t.Fatalf("items out of order: %+v before %+v", prev, cur)
		}
	}
	names := make([]string, 0, len(m.Sections))
	for _, s := range m.Sections {
		names = append(names, s.Name)
	}
	assert.Equal(t, d.Order, names)
}

func TestAssembleRejectsInvalidRange(t *testing.T) {
	d := baseDraft()
	d.Extras = []draft.Item{item("bad", "x", 5, 2, "t")}
	_, err := Assemble(d, Config{})
	assert.True(t, errors.Is(err, ctxerr.ErrAssembly))
}

func TestSummaryPerSection(t *testing.T) {
	m, err := Assemble(baseDraft(), Config{})
	require.NoError(t, err)
	s := m.Summary()
	assert.Equal(t, m.Totals, s.Totals)
	total := 0
	for _, name := range baseDraft().Order {
		ps, ok := s.PerSection[name]
		require.True(t, ok, name)
		total += ps.Tokens
	}
	assert.Equal(t, m.Totals.Tokens, total)
}

func TestModelChangesOnlyTokenScale(t *testing.T) {
	a, err := Assemble(baseDraft(), Config{Model: "gpt-4"})
	require.NoError(t, err)
	b, err := Assemble(baseDraft(), Config{Model: "claude-3"})
	require.NoError(t, err)
	assert.Len(t, b.Sections, len(a.Sections))
	assert.Greater(t, b.Totals.Tokens, a.Totals.Tokens)
}

func TestAssembleMustMergedWithLargeNeighbourSplits(t *testing.T) {
	d := &draft.Draft{
		Version: "1",
		Order:   []string{draft.SectionDiffSlices},
		Budgets: draft.Budgets{MaxTokens: 100, MaxFiles: 5, MaxPerFileTokens: 100},
		DiffSlices: []draft.Item{
			item("m", "f.go", 1, 1, "small\n"),
			item("big", "f.go", 2, 200, lines("b", 199)),
		},
		MustInclude: []string{"m"},
	}
	m, err := Assemble(d, Config{})
	require.NoError(t, err, "a must item that fits alone must not fail because of its merge partner")

	items := m.Section(draft.SectionDiffSlices).Items
	require.NotEmpty(t, items)
	assert.Equal(t, "m", items[0].ID)
	assert.Equal(t, 1, items[0].EndLine)
	assert.Empty(t, items[0].MergedFrom)
	assert.Equal(t, 0, m.Metrics.MergedSpans, "an undone merge is not counted")
	assert.LessOrEqual(t, m.Totals.Tokens, 100)
	for _, it := range items[1:] {
		assert.Equal(t, "big", it.ID)
		assert.True(t, it.Truncated)
	}

	alone := d.Clone()
	alone.DiffSlices = alone.DiffSlices[:1]
	want, err := Assemble(alone, Config{})
	require.NoError(t, err)
	assert.Equal(t, want.Section(draft.SectionDiffSlices).Items[0], items[0])
}

func TestAssembleMustSplitStillFailsWhenMustPartDoesNotFit(t *testing.T) {
	d := &draft.Draft{
		Version: "1",
		Order:   []string{draft.SectionDiffSlices},
		Budgets: draft.Budgets{MaxTokens: 3, MaxFiles: 5, MaxPerFileTokens: 100},
		DiffSlices: []draft.Item{
			item("m", "f.go", 1, 4, lines("m", 4)),
			item("n", "f.go", 5, 6, "x\ny\n"),
		},
		MustInclude: []string{"m"},
	}
	_, err := Assemble(d, Config{})
	var ce *ctxerr.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ctxerr.CodeBudget, ce.Code)
	assert.Equal(t, "m", ce.ID)
	assert.Equal(t, CeilingMaxTokens, ce.Ceiling)
}

func TestAssembleDropsPointerToClippedCanonical(t *testing.T) {
	text := lines("shared", 50)
	d := &draft.Draft{
		Version:    "1",
		Order:      []string{draft.SectionDiffSlices, draft.SectionContracts},
		Budgets:    draft.Budgets{MaxTokens: 1000, MaxFiles: 5, MaxPerFileTokens: 30},
		DiffSlices: []draft.Item{item("a", "f.go", 1, 50, text)},
		Contracts:  []draft.Item{item("b", "f.go", 1, 50, text)},
	}
	m, err := Assemble(d, Config{})
	require.NoError(t, err)

	items := m.Section(draft.SectionDiffSlices).Items
	require.Len(t, items, 1)
	assert.True(t, items[0].Truncated)
	assert.Less(t, items[0].EndLine, 50)
	assert.Empty(t, m.Pointers, "a pointer must not claim lines its target no longer holds")
	assert.Equal(t, 0, m.Metrics.DedupPointersTotal)
	assert.Equal(t, 1, m.Metrics.EvictionsTotal)
}

func TestAssembleNeverIncludeBeatsMustInclude(t *testing.T) {
	d := baseDraft()
	d.MustInclude = []string{"t1", "x1"}
	d.NeverInclude = []string{"x1"}
	d.Budgets.MaxTokens = 60
	m, err := Assemble(d, Config{})
	require.NoError(t, err)
	for _, it := range allItems(m) {
		assert.NotEqual(t, "x1", it.ID)
	}
	require.NotEmpty(t, m.Section(draft.SectionLinkedTests).Items)
	assert.Equal(t, "t1", m.Section(draft.SectionLinkedTests).Items[0].ID)
}

func TestAssembleMergesAcrossGapWithinThreshold(t *testing.T) {
	d := &draft.Draft{
		Version: "1",
		Order:   []string{draft.SectionDiffSlices},
		Budgets: draft.Budgets{MaxTokens: 1000, MaxFiles: 5, MaxPerFileTokens: 1000},
		DiffSlices: []draft.Item{
			item("a", "f.go", 1, 2, "1\n2\n"),
			item("b", "f.go", 5, 6, "5\n6\n"),
		},
	}
	m, err := Assemble(d, Config{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Metrics.MergedSpans)
	assert.Len(t, m.Section(draft.SectionDiffSlices).Items, 2)

	m, err = Assemble(d, Config{MergeMaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Metrics.MergedSpans)
	items := m.Section(draft.SectionDiffSlices).Items
	require.Len(t, items, 1)
	assert.Equal(t, Item{
		ID: "a", Path: "f.go", StartLine: 1, EndLine: 6,
		Text: "1\n2\n5\n6\n", Tokens: 2, MergedFrom: []string{"a", "b"},
	}, items[0])
}
