// Command ctxpack validates, hashes and assembles context-pack drafts.
//
//	ctxpack validate <draft.json> [--strict-order]
//	ctxpack hash     <draft.json>
//	ctxpack print    <draft.json> [--format json|yaml]
//	ctxpack assemble <draft.json> [--model M] [--merge-max-tokens N] [--dry-run]
//	                 [--out path] [--report path] [--bundle path]
//	                 [--section.cap name=tokens,files ...]
//
// Exit codes: 0 success; 1 validation, budget or assembly failure (stderr
// "CODE:message"); 2 bad usage; 4 determinism mismatch (CTX_DETERMINISM_CHECK=1).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
