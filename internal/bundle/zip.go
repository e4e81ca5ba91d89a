package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// fixedZipTime ensures byte-for-byte reproducible archives.
// (ZIP epoch start: 1980-01-01)
var fixedZipTime = time.Unix(315532800, 0).UTC()

// sanitizeZipPath normalizes entry paths: forward slashes, no drive letter,
// no leading '/', and no '.' or '..' segments escaping the root.
func sanitizeZipPath(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	if len(stack) == 0 {
		return "entry"
	}
	return strings.Join(stack, "/")
}

func entryHeader(name string) *zip.FileHeader {
	h := &zip.FileHeader{Name: sanitizeZipPath(name), Method: zip.Deflate}
	h.SetMode(0o644)
	h.Modified = fixedZipTime
	return h
}

func writeTextEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(entryHeader(name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	w, err := zw.CreateHeader(entryHeader(name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := EncodeJSON(w, v); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// writeJSONLEntry writes one compact JSON value per line.
func writeJSONLEntry[T any](zw *zip.Writer, name string, items []T) error {
	w, err := zw.CreateHeader(entryHeader(name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
