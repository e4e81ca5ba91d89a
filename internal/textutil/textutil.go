// Package textutil holds the small line/byte helpers used when merging and
// clipping spans. All helpers are byte-exact: they never normalize newlines
// or rewrite content, so hashes over their output stay content-addressed.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// SplitLines splits s into lines without their '\n'. A single trailing
// newline does not produce an extra empty line.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// CountLines is len(SplitLines(s)).
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}

// EnsureTrailingLF appends a single \n if not already present.
func EnsureTrailingLF(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// JoinWithSingleNL concatenates chunks, inserting a single '\n' between
// chunks when the previous chunk does not end with '\n'.
func JoinWithSingleNL(chunks ...string) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(c)
	}
	return b.String()
}

// TruncateUTF8 returns the longest prefix of s that is at most n bytes and
// does not split a multi-byte rune.
func TruncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// CutToLastLine trims s back to its last complete line (keeping the '\n').
// When s holds no newline it is returned unchanged.
func CutToLastLine(s string) string {
	i := strings.LastIndexByte(s, '\n')
	if i < 0 {
		return s
	}
	return s[:i+1]
}
