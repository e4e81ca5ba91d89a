package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxpack/internal/assemble"
	"ctxpack/internal/ctxerr"
	"ctxpack/internal/draft"
)

func assembled(t *testing.T) (*assemble.Manifest, draft.Budgets) {
	t.Helper()
	d, err := Draft([]byte(validDraft), Options{})
	require.NoError(t, err)
	d.Contracts = append(d.Contracts, draft.Item{ID: "dup", Path: "svc/a.go", StartLine: 1, EndLine: 2, Text: "x\ny\n"})
	m, err := assemble.Assemble(d, assemble.Config{})
	require.NoError(t, err)
	return m, d.Budgets
}

func TestManifestAcceptsAssemblerOutput(t *testing.T) {
	m, b := assembled(t)
	require.Len(t, m.Pointers, 1)
	assert.NoError(t, Manifest(m, b))
}

func TestManifestDetectsBreaches(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(m *assemble.Manifest, b *draft.Budgets)
		msg    string
	}{
		{"tampered hash", func(m *assemble.Manifest, _ *draft.Budgets) { m.Sections[0].Items[0].Text = "changed\n" }, "does not match content"},
		{"malformed hash", func(m *assemble.Manifest, _ *draft.Budgets) { m.Hash = "abc" }, "64 lowercase hex"},
		{"over global budget", func(_ *assemble.Manifest, b *draft.Budgets) { b.MaxTokens = 1 }, "exceeds max_tokens"},
		{"over file budget", func(_ *assemble.Manifest, b *draft.Budgets) { b.MaxFiles = 1 }, "exceeds max_files"},
		{"over per-file budget", func(_ *assemble.Manifest, b *draft.Budgets) { b.MaxPerFileTokens = 1 }, "max_per_file_tokens"},
		{"over section cap", func(_ *assemble.Manifest, b *draft.Budgets) {
			one := 0
			b.SectionCaps = map[string]draft.SectionCap{draft.SectionDiffSlices: {Files: &one}}
		}, "exceed cap"},
		{"dangling pointer", func(m *assemble.Manifest, _ *draft.Budgets) { m.Pointers[0].DuplicateOf = "nope" }, "is not an item"},
		{"pointer section missing", func(m *assemble.Manifest, _ *draft.Budgets) { m.Pointers[0].Section = draft.SectionExtras }, "is not in the manifest"},
		{"pointer count", func(m *assemble.Manifest, _ *draft.Budgets) { m.Metrics.DedupPointersTotal = 7 }, "pointers"},
		{"totals drift", func(m *assemble.Manifest, _ *draft.Budgets) { m.Totals.Tokens++ }, "items sum to"},
		{"duplicate content", func(m *assemble.Manifest, _ *draft.Budgets) {
			sec := &m.Sections[1]
			sec.Items = append(sec.Items, m.Sections[0].Items[0])
			sec.Items[len(sec.Items)-1].ID = "zz"
		}, "content-identical"},
		{"unsorted items", func(m *assemble.Manifest, _ *draft.Budgets) {
			sec := &m.Sections[1]
			sec.Items = append([]assemble.Item{{ID: "z", Path: "zz.go", StartLine: 1, EndLine: 1, Text: "z"}}, sec.Items...)
		}, "not sorted"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, b := assembled(t)
			tc.mutate(m, &b)
			err := Manifest(m, b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ctxerr.ErrAssembly))
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestManifestNil(t *testing.T) {
	assert.Equal(t, ctxerr.CodeAssembly, ctxerr.CodeOf(Manifest(nil, draft.Budgets{})))
}
