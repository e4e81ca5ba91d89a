// Package assemble turns a validated draft into a budget-conformant,
// deterministic manifest.
//
// The work is split into explicit passes, each unit-tested on its own:
//
//	collect   -> drop never_include, tag priorities
//	dedupe    -> exact (path, start, end, text) duplicates become pointers
//	mergeSpans-> spans on one path within MergeMaxTokens merge per section
//	allocate  -> admit by priority against the budget ceilings, split merged
//	             must spans that do not fit, clip or evict
//	build     -> sort, total, seal the hash
//
// Nothing here depends on input array order: every pass sorts by an explicit
// key first (see sortutil.Key).
package assemble

import (
	"encoding/json"

	"go.uber.org/zap"

	"ctxpack/internal/canon"
)

// Config tunes one assembly call.
type Config struct {
	// Model selects the token-estimate scale factor only.
	Model string
	// MergeMaxTokens is the widest gap, in estimated tokens of the uncovered
	// lines, across which two spans on one path still merge. 0 merges
	// overlapping and contiguous spans only.
	MergeMaxTokens int
	// Logger receives debug events (merges, clips, evictions). Nil is a no-op.
	Logger *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Item is an admitted excerpt.
type Item struct {
	ID         string   `json:"id"`
	Path       string   `json:"path"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Text       string   `json:"text"`
	Tokens     int      `json:"tokens"`
	Truncated  bool     `json:"truncated,omitempty"`
	MergedFrom []string `json:"merged_from,omitempty"`
}

// Section groups admitted items under a section name.
type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Pointer stands in for a later duplicate of content already admitted as
// DuplicateOf.
type Pointer struct {
	Path        string `json:"path"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Section     string `json:"section"`
	DuplicateOf string `json:"duplicate_of"`
}

type Totals struct {
	Tokens int `json:"tokens"`
	Files  int `json:"files"`
}

type Metrics struct {
	TokensTotal        int `json:"tokens_total"`
	FilesTotal         int `json:"files_total"`
	MergedSpans        int `json:"merged_spans"`
	EvictionsTotal     int `json:"evictions_total"`
	DedupPointersTotal int `json:"dedup_pointers_total"`
}

// Manifest is the assembler output. Hash covers every other field.
type Manifest struct {
	Project  json.RawMessage `json:"project,omitempty"`
	PR       json.RawMessage `json:"pr,omitempty"`
	Mode     json.RawMessage `json:"mode,omitempty"`
	Sections []Section       `json:"sections"`
	Totals   Totals          `json:"totals"`
	Metrics  Metrics         `json:"metrics"`
	Pointers []Pointer       `json:"pointers"`
	Hash     string          `json:"hash,omitempty"`
}

// ComputeHash hashes the canonical form of m without its Hash field.
func (m *Manifest) ComputeHash() (string, error) {
	c := *m
	c.Hash = ""
	return canon.Hash(&c)
}

// Seal recomputes and stores m.Hash.
func (m *Manifest) Seal() error {
	h, err := m.ComputeHash()
	if err != nil {
		return err
	}
	m.Hash = h
	return nil
}

// Section returns the named section, or nil.
func (m *Manifest) Section(name string) *Section {
	for i := range m.Sections {
		if m.Sections[i].Name == name {
			return &m.Sections[i]
		}
	}
	return nil
}

// SectionSummary is the per-section part of a dry-run Summary.
type SectionSummary struct {
	Files  int `json:"files"`
	Tokens int `json:"tokens"`
}

// Summary is the dry-run view of a manifest.
type Summary struct {
	Totals     Totals                    `json:"totals"`
	PerSection map[string]SectionSummary `json:"perSection"`
}

// Summary reports totals and distinct files/tokens per section.
func (m *Manifest) Summary() Summary {
	s := Summary{Totals: m.Totals, PerSection: make(map[string]SectionSummary, len(m.Sections))}
	for _, sec := range m.Sections {
		paths := make(map[string]struct{}, len(sec.Items))
		tok := 0
		for _, it := range sec.Items {
			paths[it.Path] = struct{}{}
			tok += it.Tokens
		}
		s.PerSection[sec.Name] = SectionSummary{Files: len(paths), Tokens: tok}
	}
	return s
}
