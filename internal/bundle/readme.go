package bundle

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// ReadmeOptions configures the pack README. All fields are rendered
// deterministically; no timestamps or environment data.
type ReadmeOptions struct {
	Hash     string
	Model    string
	Tokens   int
	Files    int
	Sections []string
	Pointers int
}

const packReadmeTemplate = `
# Context pack {{.ShortHash}}

This archive is a **context pack** produced by *ctxpack*: source excerpts selected under token and file budgets for automated review.

## Layout
- **manifest.json**: the full manifest (sections, items, totals, metrics, pointers, hash).
- **PACK.HASH**: the manifest hash (sha256 of its canonical JSON).
- **TOC.md**: per-section and per-item table of contents.
- **sections/**: one Markdown file per section, in pack order.
{{- if .Pointers}}
- **pointers.jsonl**: one JSON object per duplicate excerpt that was replaced by a reference.
{{- end}}

## Summary
- Token estimate model: {{.Model}}
- Tokens: {{.Tokens}}
- Files: {{.Files}}
- Sections: {{.SectionsCSV}}

## Conventions
- Line numbers are **1-based** and inclusive.
- Encoding: **UTF-8**; newlines: **\n** only.
- Token counts are estimates, not tokenizer output.
- Items marked *truncated* were clipped to whole lines to fit a per-file budget.
- Re-hashing manifest.json without its ` + "`hash`" + ` field in canonical form (sorted keys, no whitespace) reproduces PACK.HASH.

`

type readmeCtx struct {
	ShortHash   string
	Model       string
	Tokens      int
	Files       int
	SectionsCSV string
	Pointers    int
}

var packReadme = template.Must(template.New("readme").Parse(packReadmeTemplate))

// GenerateReadme renders the pack README.
func GenerateReadme(opts ReadmeOptions) ([]byte, error) {
	short := opts.Hash
	if len(short) > 12 {
		short = short[:12]
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "default"
	}
	sections := strings.Join(opts.Sections, ", ")
	if sections == "" {
		sections = "-"
	}
	ctx := readmeCtx{
		ShortHash:   short,
		Model:       model,
		Tokens:      opts.Tokens,
		Files:       opts.Files,
		SectionsCSV: sections,
		Pointers:    opts.Pointers,
	}

	var buf bytes.Buffer
	if err := packReadme.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("render README.md: %w", err)
	}
	// Normalize lines: strip trailing spaces and leading blank line.
	lines := strings.Split(strings.TrimLeft(buf.String(), "\n"), "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return []byte(out), nil
}
