// Package escape implements the Argument Escaper: a pure function that
// makes a single argument safe to splice into a platform shell command
// line. It deliberately stops at escaping — assembling a full command
// line from multiple arguments is the caller's job.
package escape

import "runtime"

// Arg escapes a single argument for the current platform. On everything
// but Windows it's the POSIX single-quote escape; on Windows it uses the
// CMD-aware quoting in windows.go.
func Arg(arg string) string {
	if runtime.GOOS == "windows" {
		return windowsArg(arg)
	}
	return posixArg(arg)
}
