// Package validate checks drafts before assembly and manifests after it.
//
// Draft runs in two phases. The structural phase walks the raw JSON tree and
// checks that required keys exist with the right JSON types, so the typed
// decode that follows can never silently zero a malformed field. The
// semantic phase then checks references, ranges, budgets and order on the
// typed draft. Issues from one phase are aggregated into a single
// VALIDATION_ERROR.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ctxpack/internal/draft"
	"ctxpack/internal/sortutil"
)

// structure checks the raw JSON shape of a draft.
func structure(raw []byte, errs *errlist) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		errs.add("", "invalid JSON: %v", err)
		return
	}
	if dec.More() {
		errs.add("", "trailing data after JSON value")
		return
	}
	root, ok := tree.(map[string]any)
	if !ok {
		errs.add("", "draft must be a JSON object, got %s", kind(tree))
		return
	}

	for _, key := range []string{"version", "order", "budgets"} {
		if _, ok := root[key]; !ok {
			errs.add(key, "required key is missing")
		}
	}

	if v, ok := root["version"]; ok {
		switch x := v.(type) {
		case string:
		case json.Number:
			if !isInt(x) {
				errs.add("version", "must be a string or integer, got %s", x)
			}
		default:
			errs.add("version", "must be a string or integer, got %s", kind(v))
		}
	}

	if v, ok := root["order"]; ok {
		stringArray("order", v, errs)
	}
	for _, key := range []string{"must_include", "nice_to_have", "never_include"} {
		if v, ok := root[key]; ok && v != nil {
			stringArray(key, v, errs)
		}
	}

	if v, ok := root["budgets"]; ok {
		budgets(v, errs)
	}

	for _, sec := range draft.KnownSections {
		v, ok := root[sec]
		if !ok || v == nil {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			errs.add(sec, "must be an array, got %s", kind(v))
			continue
		}
		for i, el := range arr {
			item(fmt.Sprintf("%s[%d]", sec, i), el, errs)
		}
	}
}

func budgets(v any, errs *errlist) {
	obj, ok := v.(map[string]any)
	if !ok {
		errs.add("budgets", "must be an object, got %s", kind(v))
		return
	}
	for _, key := range []string{"max_tokens", "max_files", "max_per_file_tokens"} {
		field := "budgets." + key
		n, ok := obj[key]
		if !ok {
			errs.add(field, "required key is missing")
			continue
		}
		nonNegInt(field, n, errs)
	}
	caps, ok := obj["section_caps"]
	if !ok || caps == nil {
		return
	}
	cm, ok := caps.(map[string]any)
	if !ok {
		errs.add("budgets.section_caps", "must be an object, got %s", kind(caps))
		return
	}
	for _, name := range sortutil.SortedKeys(cm) {
		c := cm[name]
		field := "budgets.section_caps." + name
		if c == nil {
			continue
		}
		co, ok := c.(map[string]any)
		if !ok {
			errs.add(field, "must be an object, got %s", kind(c))
			continue
		}
		for _, dim := range []string{"tokens", "files"} {
			if n, ok := co[dim]; ok && n != nil {
				nonNegInt(field+"."+dim, n, errs)
			}
		}
	}
}

func item(field string, v any, errs *errlist) {
	obj, ok := v.(map[string]any)
	if !ok {
		errs.add(field, "item must be an object, got %s", kind(v))
		return
	}
	for _, key := range []string{"id", "path", "text"} {
		s, ok := obj[key]
		if !ok {
			errs.add(field+"."+key, "required key is missing")
			continue
		}
		if _, ok := s.(string); !ok {
			errs.add(field+"."+key, "must be a string, got %s", kind(s))
		}
	}
	if s, ok := obj["section"]; ok && s != nil {
		if _, ok := s.(string); !ok {
			errs.add(field+".section", "must be a string, got %s", kind(s))
		}
	}
	for _, key := range []string{"start_line", "end_line"} {
		n, ok := obj[key]
		if !ok {
			errs.add(field+"."+key, "required key is missing")
			continue
		}
		if num, ok := n.(json.Number); !ok || !isInt(num) {
			errs.add(field+"."+key, "must be an integer, got %s", kind(n))
		}
	}
}

func stringArray(field string, v any, errs *errlist) {
	arr, ok := v.([]any)
	if !ok {
		errs.add(field, "must be an array of strings, got %s", kind(v))
		return
	}
	for i, el := range arr {
		if _, ok := el.(string); !ok {
			errs.add(fmt.Sprintf("%s[%d]", field, i), "must be a string, got %s", kind(el))
		}
	}
}

func nonNegInt(field string, v any, errs *errlist) {
	num, ok := v.(json.Number)
	if !ok || !isInt(num) {
		errs.add(field, "must be a non-negative integer, got %s", kind(v))
		return
	}
	if n, _ := num.Int64(); n < 0 {
		errs.add(field, "must be a non-negative integer, got %d", n)
	}
}

func isInt(n json.Number) bool {
	_, err := n.Int64()
	return err == nil
}

// kind names the JSON type of a decoded value for messages.
func kind(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		if isInt(x) {
			return "integer"
		}
		return "number " + x.String()
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
