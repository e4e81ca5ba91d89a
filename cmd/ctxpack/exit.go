package main

import (
	"errors"
	"fmt"
	"io"

	"ctxpack/internal/ctxerr"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitDeterminism = 4
)

// exitError carries an explicit exit status. Anything else returned by the
// command tree that is not a *ctxerr.Error came from cobra itself (unknown
// command, bad flag) and is a usage error.
type exitError struct {
	code int
	err  error
	// reported means the command already wrote its own stderr output.
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func failure(err error) error {
	return &exitError{code: exitFailure, err: err}
}

// exitCode reports err on stderr in the CLI contract's form and maps it to a
// process status.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.reported {
			report(stderr, ee.err, ee.code)
		}
		return ee.code
	}
	var ce *ctxerr.Error
	if errors.As(err, &ce) {
		fmt.Fprintln(stderr, ce.Error())
		return exitFailure
	}
	report(stderr, err, exitUsage)
	return exitUsage
}

func report(stderr io.Writer, err error, code int) {
	var ce *ctxerr.Error
	switch {
	case err == nil:
	case errors.As(err, &ce):
		fmt.Fprintln(stderr, ce.Error())
	case code == exitUsage:
		fmt.Fprintf(stderr, "usage: %v\nRun 'ctxpack --help' for usage.\n", err)
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
}
