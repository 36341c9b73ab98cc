package escape

import "strings"

// posixArg is the standard single-quote shell escape: wrap the argument in
// single quotes, and for each embedded single quote emit '\'' — close the
// quote, an escaped literal quote, reopen the quote. An empty argument
// becomes '' rather than being dropped.
func posixArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
