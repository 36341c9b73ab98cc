// Package goproc launches external programs, feeds them input, drains their
// standard output and standard error concurrently with the child's own
// execution, enforces runtime and idle timeouts, propagates signals, and
// reports rich termination information back to the caller.
//
// The core type is Process: a small state machine (ready → started →
// terminated) backed by a platform Pipe Backend (see internal/pipe) that
// performs non-blocking, interleaved I/O over the child's standard streams.
// On POSIX this is anonymous pipes driven by a readiness primitive
// (poll(2)); on Windows, where reading a full stdout pipe from the parent
// can deadlock the child, stdout/stderr are redirected to temp files and
// streamed back incrementally instead.
//
// A Process is not a shell: building a command line from structured
// arguments is the caller's job (see the escape package for the one
// primitive this library does own — escaping a single argument for safe
// insertion into a platform command line).
package goproc
