package goproc

import "fmt"

// exitCodeText maps well-known POSIX exit codes (0-143, plus the
// user-defined 64-113 "EX_" range from sysexits.h) to human-readable
// labels. GetExitCodeText falls back to "Unknown error" for anything not
// listed here.
var exitCodeText = map[int]string{
	0:   "OK",
	1:   "General error",
	2:   "Misuse of shell builtins",
	126: "Invoked command cannot execute",
	127: "Command not found",
	128: "Invalid exit argument",

	// sysexits.h user-defined range.
	64: "Command line usage error",
	65: "Data format error",
	66: "Cannot open input",
	67: "Addressee unknown",
	68: "Host name unknown",
	69: "Service unavailable",
	70: "Internal software error",
	71: "System error (e.g., can't fork)",
	72: "Critical OS file missing",
	73: "Can't create (user) output file",
	74: "Input/output error",
	75: "Temp failure; user is invited to retry",
	76: "Remote error in protocol",
	77: "Permission denied",
	78: "Configuration error",
	113: "Service unavailable (alternate)",
}

func init() {
	// 128+N: fatal error signal "N" (130 = SIGINT, 137 = SIGKILL, ...).
	for sig := 1; sig <= 15; sig++ {
		exitCodeText[128+sig] = fmt.Sprintf("Fatal error signal %d", sig)
	}
}

// GetExitCodeText returns a human-readable label for an exit code,
// resolving the 128+N signal convention and falling back to "Unknown
// error" for anything not recognized.
func GetExitCodeText(exitCode int) string {
	if text, ok := exitCodeText[exitCode]; ok {
		return text
	}
	return "Unknown error"
}

// resolveExitCode is the exit-code precedence chain, extracted as a pure
// function so it can be unit tested without a real child process.
//
//  1. reaped != -1            → reaped
//  2. lastKnown != nil         → *lastKnown
//  3. fallback != nil          → *fallback
//  4. signaled && termsig > 0  → 128 + termsig
//  5. otherwise                → -1
func resolveExitCode(reaped int, lastKnown, fallback *int, signaled bool, termsig int) int {
	if reaped != -1 {
		return reaped
	}
	if lastKnown != nil {
		return *lastKnown
	}
	if fallback != nil {
		return *fallback
	}
	if signaled && termsig > 0 {
		return 128 + termsig
	}
	return -1
}
