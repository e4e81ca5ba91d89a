// Package pack runs the full pipeline from raw draft JSON to a sealed,
// self-checked manifest: validate, apply cap overrides, assemble, verify.
package pack

import (
	"go.uber.org/zap"

	"ctxpack/internal/assemble"
	"ctxpack/internal/draft"
	"ctxpack/internal/sortutil"
	"ctxpack/internal/validate"
)

// Options configures one pipeline run.
type Options struct {
	Validate validate.Options
	Assemble assemble.Config
	// SectionCaps override the draft's budgets.section_caps per section.
	SectionCaps map[string]draft.SectionCap
}

// Result is a successful run.
type Result struct {
	Draft    *draft.Draft
	Manifest *assemble.Manifest
}

// Build validates raw, assembles it and re-checks the manifest invariants.
// Errors carry the ctxerr taxonomy: VALIDATION_ERROR, BUDGET_ERROR or
// ASSEMBLY_ERROR.
func Build(raw []byte, opts Options) (*Result, error) {
	d, err := validate.Draft(raw, opts.Validate)
	if err != nil {
		return nil, err
	}
	if len(opts.SectionCaps) > 0 {
		d = WithCaps(d, opts.SectionCaps)
		if err := validate.Typed(d, opts.Validate); err != nil {
			return nil, err
		}
	}

	m, err := assemble.Assemble(d, opts.Assemble)
	if err != nil {
		return nil, err
	}
	if err := validate.Manifest(m, d.Budgets); err != nil {
		return nil, err
	}

	if log := opts.Assemble.Logger; log != nil {
		log.Info("pack built",
			zap.String("hash", m.Hash),
			zap.Int("tokens_total", m.Metrics.TokensTotal),
			zap.Int("files_total", m.Metrics.FilesTotal),
			zap.Int("evictions_total", m.Metrics.EvictionsTotal),
			zap.Int("dedup_pointers_total", m.Metrics.DedupPointersTotal))
	}
	return &Result{Draft: d, Manifest: m}, nil
}

// WithCaps returns a copy of d whose section caps are overridden by caps.
// A cap replaces the draft's entry for that section as a whole.
func WithCaps(d *draft.Draft, caps map[string]draft.SectionCap) *draft.Draft {
	c := d.Clone()
	if c.Budgets.SectionCaps == nil {
		c.Budgets.SectionCaps = make(map[string]draft.SectionCap, len(caps))
	}
	for _, name := range sortutil.SortedKeys(caps) {
		c.Budgets.SectionCaps[name] = caps[name]
	}
	return c
}
