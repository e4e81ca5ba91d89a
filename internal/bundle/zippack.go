// Package bundle writes ctxpack outputs: the --report record, manifest JSON
// and the reproducible zip pack. Every file is written atomically.
//
// The zip pack layout:
//
//	manifest.json
//	PACK.HASH
//	README.md            # stable (no wall-clock timestamps)
//	TOC.md
//	sections/NN-<name>.md
//	pointers.jsonl       # only when the manifest has pointers
//
// Entries carry a fixed 1980 timestamp and are written in a fixed order, so
// the same manifest always produces the same bytes.
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"ctxpack/internal/assemble"
	"ctxpack/internal/textutil"
)

// PackOptions configures WritePack.
type PackOptions struct {
	// Model is recorded in README.md.
	Model string
}

// WritePack writes the zip pack for m to zipPath.
func WritePack(zipPath string, m *assemble.Manifest, opts PackOptions) error {
	if m == nil || m.Hash == "" {
		return fmt.Errorf("write pack: manifest is not sealed")
	}
	return WriteFileAtomic(zipPath, func(w io.Writer) error {
		return writePack(w, m, opts)
	})
}

func writePack(w io.Writer, m *assemble.Manifest, opts PackOptions) error {
	zw := zip.NewWriter(w)

	if err := writeJSONEntry(zw, "manifest.json", m); err != nil {
		return err
	}
	if err := writeTextEntry(zw, "PACK.HASH", []byte(m.Hash+"\n")); err != nil {
		return err
	}

	names := make([]string, 0, len(m.Sections))
	for _, s := range m.Sections {
		names = append(names, s.Name)
	}
	readme, err := GenerateReadme(ReadmeOptions{
		Hash:     m.Hash,
		Model:    opts.Model,
		Tokens:   m.Totals.Tokens,
		Files:    m.Totals.Files,
		Sections: names,
		Pointers: len(m.Pointers),
	})
	if err != nil {
		return err
	}
	if err := writeTextEntry(zw, "README.md", readme); err != nil {
		return err
	}
	if err := writeTextEntry(zw, "TOC.md", toc(m)); err != nil {
		return err
	}

	for i, s := range m.Sections {
		if err := writeTextEntry(zw, sectionFile(i, s.Name), sectionMarkdown(s)); err != nil {
			return err
		}
	}
	if len(m.Pointers) > 0 {
		if err := writeJSONLEntry(zw, "pointers.jsonl", m.Pointers); err != nil {
			return err
		}
	}
	return zw.Close()
}

func sectionFile(i int, name string) string {
	return "sections/" + pad2(i+1) + "-" + name + ".md"
}

// toc renders the section table then one row per item.
func toc(m *assemble.Manifest) []byte {
	sum := m.Summary()
	var b strings.Builder
	b.WriteString("# TOC\n\n| # | Section | Files | Tokens |\n|---:|:--------|------:|-------:|\n")
	for i, s := range m.Sections {
		ss := sum.PerSection[s.Name]
		fmt.Fprintf(&b, "| %d | [%s](%s) | %d | %d |\n", i+1, s.Name, sectionFile(i, s.Name), ss.Files, ss.Tokens)
	}
	b.WriteString("\n| Section | Path | Lines | Tokens | Id |\n|:--------|:-----|------:|-------:|:---|\n")
	for _, s := range m.Sections {
		for _, it := range s.Items {
			fmt.Fprintf(&b, "| %s | %s | %d-%d | %d | %s |\n", s.Name, it.Path, it.StartLine, it.EndLine, it.Tokens, it.ID)
		}
	}
	fmt.Fprintf(&b, "\nTotal: %d tokens, %d files, %d pointers.\n", m.Totals.Tokens, m.Totals.Files, len(m.Pointers))
	return []byte(b.String())
}

func sectionMarkdown(s assemble.Section) []byte {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(s.Name)
	b.WriteString("\n\n")
	if len(s.Items) == 0 {
		b.WriteString("_No items._\n")
		return []byte(b.String())
	}
	for _, it := range s.Items {
		fmt.Fprintf(&b, "## %s:%d-%d (%s)\n\n", it.Path, it.StartLine, it.EndLine, it.ID)
		var notes []string
		if it.Truncated {
			notes = append(notes, "truncated")
		}
		if len(it.MergedFrom) > 0 {
			notes = append(notes, "merged from "+strings.Join(it.MergedFrom, ", "))
		}
		notes = append(notes, strconv.Itoa(it.Tokens)+" tokens")
		b.WriteString("_" + strings.Join(notes, "; ") + "_\n\n")

		fence := fenceFor(it.Text)
		b.WriteString(fence)
		b.WriteString(langFromExt(filepath.Ext(it.Path)))
		b.WriteString("\n")
		b.WriteString(textutil.EnsureTrailingLF(it.Text))
		b.WriteString(fence)
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}

// fenceFor returns a backtick fence longer than any backtick run in text.
func fenceFor(text string) string {
	longest, run := 0, 0
	for i := 0; i < len(text); i++ {
		if text[i] == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

func pad2(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 2 {
		s = "0" + s
	}
	return s
}

func langFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".go":
		return "go"
	case ".java":
		return "java"
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return "ts"
	case ".kt":
		return "kotlin"
	case ".cs":
		return "csharp"
	case ".py":
		return "python"
	case ".proto":
		return "protobuf"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".md":
		return "markdown"
	default:
		return ""
	}
}
