package diff

import (
	"strings"
	"testing"
)

func TestUnifiedIdenticalIsEmpty(t *testing.T) {
	body, over := Unified("a", "b", []byte("x\ny\n"), []byte("x\ny\n"), Options{})
	if body != "" || over {
		t.Fatalf("identical inputs produced %q (oversize=%v)", body, over)
	}
}

func TestUnifiedShowsChangedLine(t *testing.T) {
	body, _ := Unified("run-a", "run-b", []byte("one\ntwo\nthree\n"), []byte("one\n2\nthree\n"), Options{})
	for _, want := range []string{"--- run-a", "+++ run-b", "-two", "+2", " one"} {
		if !strings.Contains(body, want) {
			t.Fatalf("patch missing %q:\n%s", want, body)
		}
	}
}

func TestUnifiedOversize(t *testing.T) {
	body, over := Unified("a", "b", []byte("aaaa"), []byte("bbbb"), Options{MaxBytes: 4})
	if !over || !strings.Contains(body, "omitted") {
		t.Fatalf("want oversize placeholder, got %q", body)
	}
}

func TestValuesIgnoresKeyOrder(t *testing.T) {
	a := map[string]any{"b": 1, "a": []int{1, 2}}
	b := map[string]any{"a": []int{1, 2}, "b": 1}
	body, err := Values("a", "b", a, b, Options{})
	if err != nil || body != "" {
		t.Fatalf("equal values diffed: %q err=%v", body, err)
	}

	b["b"] = 2
	body, err = Values("a", "b", a, b, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, `-  "b": 1`) || !strings.Contains(body, `+  "b": 2`) {
		t.Fatalf("unexpected patch:\n%s", body)
	}
}
