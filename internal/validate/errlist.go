package validate

import (
	"fmt"
	"strings"

	"ctxpack/internal/ctxerr"
)

// errlist aggregates multiple issues into a single taxonomy error. The first
// issue's field becomes the error's Field.
type errlist struct {
	fields []string
	msgs   []string
}

func (e *errlist) add(field, format string, args ...any) {
	if e == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if field != "" {
		msg = field + ": " + msg
	}
	e.fields = append(e.fields, field)
	e.msgs = append(e.msgs, msg)
}

func (e *errlist) empty() bool { return e == nil || len(e.msgs) == 0 }

func (e *errlist) validation() error {
	if e.empty() {
		return nil
	}
	return ctxerr.Validation(e.fields[0], "%s", strings.Join(e.msgs, "; "))
}

func (e *errlist) assembly() error {
	if e.empty() {
		return nil
	}
	return ctxerr.Assembly(nil, "manifest self-check: %s", strings.Join(e.msgs, "; "))
}
