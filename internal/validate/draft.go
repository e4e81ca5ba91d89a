package validate

import (
	"fmt"
	"strings"

	"ctxpack/internal/draft"
	"ctxpack/internal/sortutil"
)

// Options tunes draft validation.
type Options struct {
	// StrictOrder requires order to list every known section exactly once.
	StrictOrder bool
}

// Draft validates raw draft JSON and returns the typed draft.
//
// Checks, all aggregated into one VALIDATION_ERROR:
//
//   - required keys version, order, budgets with correct JSON types
//   - version is known
//   - order is a duplicate-free subset of the known sections (all of them
//     with StrictOrder)
//   - item ids are non-empty and unique across the draft; paths are
//     non-empty (otherwise opaque)
//   - 1 <= start_line <= end_line; an item's section, when given, names the
//     array holding it
//   - every id in must_include, nice_to_have and never_include resolves
//   - must_include items live in sections listed in order, unless
//     never_include drops them anyway
//   - budgets and section caps are non-negative; caps name known sections
func Draft(raw []byte, opts Options) (*draft.Draft, error) {
	var errs errlist
	structure(raw, &errs)
	if err := errs.validation(); err != nil {
		return nil, err
	}

	d, err := draft.Parse(raw)
	if err != nil {
		errs.add("", "%v", err)
		return nil, errs.validation()
	}
	semantics(d, opts, &errs)
	if err := errs.validation(); err != nil {
		return nil, err
	}
	return d, nil
}

// Typed runs only the semantic checks on an already decoded draft.
func Typed(d *draft.Draft, opts Options) error {
	var errs errlist
	if d == nil {
		errs.add("", "draft is nil")
		return errs.validation()
	}
	semantics(d, opts, &errs)
	return errs.validation()
}

func semantics(d *draft.Draft, opts Options, errs *errlist) {
	if !d.Version.IsKnown() {
		errs.add("version", "unknown version %q (known: %s)", d.Version, knownVersions())
	}

	seen := make(map[string]int, len(d.Order))
	for i, name := range d.Order {
		field := fmt.Sprintf("order[%d]", i)
		if !draft.IsKnownSection(name) {
			errs.add(field, "unknown section %q", name)
			continue
		}
		if j, dup := seen[name]; dup {
			errs.add(field, "section %q already listed at order[%d]", name, j)
			continue
		}
		seen[name] = i
	}
	if opts.StrictOrder {
		for _, name := range draft.KnownSections {
			if _, ok := seen[name]; !ok {
				errs.add("order", "strict order requires section %q", name)
			}
		}
	}

	b := d.Budgets
	for _, n := range []struct {
		field string
		v     int
	}{
		{"budgets.max_tokens", b.MaxTokens},
		{"budgets.max_files", b.MaxFiles},
		{"budgets.max_per_file_tokens", b.MaxPerFileTokens},
	} {
		if n.v < 0 {
			errs.add(n.field, "must be non-negative, got %d", n.v)
		}
	}
	for _, name := range sortutil.SortedKeys(b.SectionCaps) {
		field := "budgets.section_caps." + name
		if !draft.IsKnownSection(name) {
			errs.add(field, "unknown section %q", name)
		}
		cp := b.SectionCaps[name]
		if cp.Tokens != nil && *cp.Tokens < 0 {
			errs.add(field+".tokens", "must be non-negative, got %d", *cp.Tokens)
		}
		if cp.Files != nil && *cp.Files < 0 {
			errs.add(field+".files", "must be non-negative, got %d", *cp.Files)
		}
	}

	owner := make(map[string]string)
	for _, sec := range draft.KnownSections {
		for i, it := range d.Items(sec) {
			field := fmt.Sprintf("%s[%d]", sec, i)
			items(field, sec, it, owner, errs)
		}
	}

	lists := []struct {
		field string
		ids   []string
	}{
		{"must_include", d.MustInclude},
		{"nice_to_have", d.NiceToHave},
		{"never_include", d.NeverInclude},
	}
	for _, l := range lists {
		for i, id := range l.ids {
			if _, ok := owner[id]; !ok {
				errs.add(fmt.Sprintf("%s[%d]", l.field, i), "id %q does not match any item", id)
			}
		}
	}

	never := make(map[string]struct{}, len(d.NeverInclude))
	for _, id := range d.NeverInclude {
		never[id] = struct{}{}
	}
	for i, id := range d.MustInclude {
		if _, dropped := never[id]; dropped {
			continue
		}
		if _, sec, ok := d.Locate(id); ok && d.OrderIndex(sec) < 0 {
			errs.add(fmt.Sprintf("must_include[%d]", i), "id %q lives in section %q which is not in order", id, sec)
		}
	}
}

func items(field, sec string, it draft.Item, owner map[string]string, errs *errlist) {
	switch {
	case strings.TrimSpace(it.ID) == "":
		errs.add(field+".id", "must be non-empty")
	default:
		if prev, dup := owner[it.ID]; dup {
			errs.add(field+".id", "duplicate id %q (first seen in %s)", it.ID, prev)
		} else {
			owner[it.ID] = sec
		}
	}
	if it.Section != "" && it.Section != sec {
		errs.add(field+".section", "item is in %s but declares section %q", sec, it.Section)
	}
	if strings.TrimSpace(it.Path) == "" {
		errs.add(field+".path", "must be non-empty")
	}
	if it.StartLine < 1 {
		errs.add(field+".start_line", "must be >= 1 (got %d)", it.StartLine)
	}
	if it.EndLine < it.StartLine {
		errs.add(field+".end_line", "must be >= start_line (start=%d, end=%d)", it.StartLine, it.EndLine)
	}
}

func knownVersions() string {
	out := make([]string, len(draft.KnownVersions))
	for i, v := range draft.KnownVersions {
		out[i] = string(v)
	}
	return strings.Join(out, ", ")
}
