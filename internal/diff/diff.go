// Package diff renders unified diffs between two canonical manifest texts.
// It uses github.com/pmezard/go-difflib/difflib to produce classic unified
// patches (---/+++ headers, @@ hunks, lines prefixed with ' ', '-', '+').
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"ctxpack/internal/canon"
)

// Options controls patch generation behavior.
type Options struct {
	// MaxBytes is a guardrail on input size (a+b). When exceeded, a
	// placeholder patch is returned and oversize is true. 0 means no limit.
	MaxBytes int

	// Context is the number of context lines in hunks. 0 means 3.
	Context int
}

// Unified produces a unified patch for a->b. An empty body means the inputs
// are identical.
func Unified(aName, bName string, a, b []byte, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return omitted(aName, bName), false
	}
	return s, false
}

// Values diffs the indented canonical JSON of a and b, so key order and
// whitespace never show up as changes.
func Values(aName, bName string, a, b any, opt Options) (string, error) {
	ta, err := canon.Indent(a)
	if err != nil {
		return "", fmt.Errorf("diff: %s: %w", aName, err)
	}
	tb, err := canon.Indent(b)
	if err != nil {
		return "", fmt.Errorf("diff: %s: %w", bName, err)
	}
	body, _ := Unified(aName, bName, ta, tb, opt)
	return body, nil
}

// splitLinesKeepNL splits into lines and keeps newline characters,
// which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
