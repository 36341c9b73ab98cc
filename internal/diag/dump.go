// Package diag provides debug-dump helpers for diagnosing a Process's
// state or an error chain during development. The engine calls it only on
// an error path (readPipes, when a pipe step fails, to enrich its Warn log
// line); the other call sites are tests.
package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// DumpErrChain renders err and every error it wraps, one per line, each
// annotated with a go-spew dump of its fields.
func DumpErrChain(err error) string {
	if err == nil {
		return "<nil>"
	}
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%s\n", e.Error())
		fmt.Fprint(&b, spew.Sdump(e))
	}
	return b.String()
}

// Dump renders v with go-spew, for ad-hoc inspection of a Process or
// ProcessInformation snapshot in logs or failing tests.
func Dump(v any) string {
	return spew.Sdump(v)
}
