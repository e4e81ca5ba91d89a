// Package draft defines the assembler's input: candidate spans grouped into
// named sections, plus budgets and include/exclude lists.
//
// Line numbers are 1-based and inclusive on both ends, as in the rest of the
// module. A Draft is built upstream and only read here; helpers that need to
// change it (Clone, SetItems) never touch the original.
package draft

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Known section names, in their default canonical order.
const (
	SectionTemplates   = "templates"
	SectionSpecCanvas  = "spec_canvas"
	SectionDiffSlices  = "diff_slices"
	SectionLinkedTests = "linked_tests"
	SectionContracts   = "contracts"
	SectionExtras      = "extras"
)

// KnownSections lists every section a draft may carry.
var KnownSections = []string{
	SectionTemplates,
	SectionSpecCanvas,
	SectionDiffSlices,
	SectionLinkedTests,
	SectionContracts,
	SectionExtras,
}

// IsKnownSection reports whether name is one of KnownSections.
func IsKnownSection(name string) bool {
	for _, s := range KnownSections {
		if s == name {
			return true
		}
	}
	return false
}

// KnownVersions are the accepted values of Draft.Version.
var KnownVersions = []Version{"1"}

// Version is the draft format tag. It decodes from either a JSON string or a
// JSON integer ("1" and 1 are the same tag) and always encodes as a string.
type Version string

func (v *Version) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("version must be a string or integer")
	}
	*v = Version(n.String())
	return nil
}

// IsKnown reports whether v is one of KnownVersions.
func (v Version) IsKnown() bool {
	for _, k := range KnownVersions {
		if v == k {
			return true
		}
	}
	return false
}

// Item is a candidate excerpt of Path covering [StartLine..EndLine].
type Item struct {
	ID        string `json:"id"`
	Section   string `json:"section,omitempty"`
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

// ContentKey identifies content for duplicate detection: two items with the
// same key are content-identical regardless of id or section.
type ContentKey struct {
	Path      string
	StartLine int
	EndLine   int
	Text      string
}

func (it Item) ContentKey() ContentKey {
	return ContentKey{Path: it.Path, StartLine: it.StartLine, EndLine: it.EndLine, Text: it.Text}
}

// SectionCap is an optional per-section ceiling. Nil fields are unbounded.
type SectionCap struct {
	Tokens *int `json:"tokens,omitempty" yaml:"tokens,omitempty" toml:"tokens,omitempty"`
	Files  *int `json:"files,omitempty" yaml:"files,omitempty" toml:"files,omitempty"`
}

// String renders the cap in the CLI form "tokens,files" (empty side = none).
func (c SectionCap) String() string {
	var b strings.Builder
	if c.Tokens != nil {
		fmt.Fprintf(&b, "%d", *c.Tokens)
	}
	b.WriteByte(',')
	if c.Files != nil {
		fmt.Fprintf(&b, "%d", *c.Files)
	}
	return b.String()
}

// Budgets are the numeric ceilings applied during allocation.
type Budgets struct {
	MaxTokens        int                   `json:"max_tokens"`
	MaxFiles         int                   `json:"max_files"`
	MaxPerFileTokens int                   `json:"max_per_file_tokens"`
	SectionCaps      map[string]SectionCap `json:"section_caps,omitempty"`
}

// Draft is the assembler input.
type Draft struct {
	Version Version         `json:"version"`
	Project json.RawMessage `json:"project,omitempty"`
	PR      json.RawMessage `json:"pr,omitempty"`
	Mode    json.RawMessage `json:"mode,omitempty"`

	Order   []string `json:"order"`
	Budgets Budgets  `json:"budgets"`

	MustInclude  []string `json:"must_include,omitempty"`
	NiceToHave   []string `json:"nice_to_have,omitempty"`
	NeverInclude []string `json:"never_include,omitempty"`

	Templates   []Item `json:"templates,omitempty"`
	SpecCanvas  []Item `json:"spec_canvas,omitempty"`
	DiffSlices  []Item `json:"diff_slices,omitempty"`
	LinkedTests []Item `json:"linked_tests,omitempty"`
	Contracts   []Item `json:"contracts,omitempty"`
	Extras      []Item `json:"extras,omitempty"`
}

// Items returns the item array of section name (nil for unknown names).
func (d *Draft) Items(name string) []Item {
	switch name {
	case SectionTemplates:
		return d.Templates
	case SectionSpecCanvas:
		return d.SpecCanvas
	case SectionDiffSlices:
		return d.DiffSlices
	case SectionLinkedTests:
		return d.LinkedTests
	case SectionContracts:
		return d.Contracts
	case SectionExtras:
		return d.Extras
	}
	return nil
}

// SetItems replaces the item array of section name. Unknown names are ignored.
func (d *Draft) SetItems(name string, items []Item) {
	switch name {
	case SectionTemplates:
		d.Templates = items
	case SectionSpecCanvas:
		d.SpecCanvas = items
	case SectionDiffSlices:
		d.DiffSlices = items
	case SectionLinkedTests:
		d.LinkedTests = items
	case SectionContracts:
		d.Contracts = items
	case SectionExtras:
		d.Extras = items
	}
}

// OrderIndex returns the position of section in Order, or -1.
func (d *Draft) OrderIndex(section string) int {
	for i, s := range d.Order {
		if s == section {
			return i
		}
	}
	return -1
}

// Locate finds the item with id and the section array holding it.
func (d *Draft) Locate(id string) (Item, string, bool) {
	for _, sec := range KnownSections {
		for _, it := range d.Items(sec) {
			if it.ID == id {
				return it, sec, true
			}
		}
	}
	return Item{}, "", false
}

// Clone returns a deep copy; slices and maps are not shared with d.
func (d *Draft) Clone() *Draft {
	c := *d
	c.Project = append(json.RawMessage(nil), d.Project...)
	c.PR = append(json.RawMessage(nil), d.PR...)
	c.Mode = append(json.RawMessage(nil), d.Mode...)
	c.Order = append([]string(nil), d.Order...)
	c.MustInclude = append([]string(nil), d.MustInclude...)
	c.NiceToHave = append([]string(nil), d.NiceToHave...)
	c.NeverInclude = append([]string(nil), d.NeverInclude...)
	if d.Budgets.SectionCaps != nil {
		c.Budgets.SectionCaps = make(map[string]SectionCap, len(d.Budgets.SectionCaps))
		for k, v := range d.Budgets.SectionCaps {
			c.Budgets.SectionCaps[k] = v.clone()
		}
	}
	for _, sec := range KnownSections {
		if items := d.Items(sec); items != nil {
			c.SetItems(sec, append([]Item(nil), items...))
		}
	}
	return &c
}

func (c SectionCap) clone() SectionCap {
	out := SectionCap{}
	if c.Tokens != nil {
		v := *c.Tokens
		out.Tokens = &v
	}
	if c.Files != nil {
		v := *c.Files
		out.Files = &v
	}
	return out
}

// Parse decodes a draft from JSON into the typed model. It performs no
// semantic checks; see package validate.
func Parse(data []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("draft: decode: %w", err)
	}
	return &d, nil
}
