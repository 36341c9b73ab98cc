package escape

import "strings"

// windowsArg implements the custom Windows quoter: cmd.exe's own argument
// quoting strips '%' and mishandles several characters, so arguments are
// escaped token-by-token instead.
//
// An empty argument falls back to the POSIX escape (which yields '').
// Otherwise the argument is split into runs of non-quote characters plus
// isolated `"` tokens; each token is rendered as:
//
//   - `"`                                → `\"`
//   - a run fully wrapped in `%` (len≥2,
//     first and last byte `%`)            → `^%"<run>"^%`, suppressing
//     cmd.exe environment-variable expansion
//   - anything else                      → trailing backslashes doubled
//     (so they can't escape a closing quote), and the whole argument is
//     wrapped in `"…"` once any such token was seen
//
// Note: a "surrounded by %" guard using length < 2 would treat the
// single-character "%" as wrapped — an inverted comparison. This
// implementation uses length ≥ 2.
func windowsArg(arg string) string {
	if arg == "" {
		return posixArg(arg)
	}

	var out strings.Builder
	needsQuotes := false

	for _, part := range splitPreservingQuoteChars(arg) {
		switch {
		case part == `"`:
			out.WriteString(`\"`)
		case isPercentWrapped(part):
			out.WriteString(`^%"` + part + `"^%`)
		default:
			out.WriteString(doubleTrailingBackslashes(part))
			needsQuotes = true
		}
	}

	if needsQuotes {
		return `"` + out.String() + `"`
	}
	return out.String()
}

func isPercentWrapped(part string) bool {
	return len(part) >= 2 && part[0] == '%' && part[len(part)-1] == '%'
}

// splitPreservingQuoteChars splits s into runs of non-`"` characters,
// isolating every `"` as its own single-character token.
func splitPreservingQuoteChars(s string) []string {
	var parts []string
	var cur strings.Builder
	for _, r := range s {
		if r == '"' {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, `"`)
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// doubleTrailingBackslashes doubles only the run of backslashes at the end
// of s, so a trailing "\" can't swallow a closing quote once wrapped.
func doubleTrailingBackslashes(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '\\' {
		i--
	}
	trailing := len(s) - i
	if trailing == 0 {
		return s
	}
	return s[:i] + strings.Repeat(`\`, trailing*2)
}
