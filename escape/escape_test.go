package escape

import "testing"

func TestPosixArg(t *testing.T) {
	cases := map[string]string{
		"":        "''",
		"hello":   "'hello'",
		"a b":     "'a b'",
		"it's ok": `'it'\''s ok'`,
	}
	for in, want := range cases {
		if got := posixArg(in); got != want {
			t.Errorf("posixArg(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDoubleTrailingBackslashes(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"abc":     "abc",
		`abc\`:    `abc\\`,
		`abc\\`:   `abc\\\\`,
		`a\b`:     `a\b`,
	}
	for in, want := range cases {
		if got := doubleTrailingBackslashes(in); got != want {
			t.Errorf("doubleTrailingBackslashes(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsPercentWrapped(t *testing.T) {
	cases := map[string]bool{
		"":       false,
		"%":      false,
		"%%":     true,
		"%PATH%": true,
		"PATH%":  false,
		"%PATH":  false,
	}
	for in, want := range cases {
		if got := isPercentWrapped(in); got != want {
			t.Errorf("isPercentWrapped(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSplitPreservingQuoteChars(t *testing.T) {
	got := splitPreservingQuoteChars(`a"b"c`)
	want := []string{"a", `"`, "b", `"`, "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("part %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWindowsArgPercentWrapping(t *testing.T) {
	got := windowsArg("%PATH%")
	want := `^%"%PATH%"^%`
	if got != want {
		t.Errorf("windowsArg(%%PATH%%) = %q, want %q", got, want)
	}
}

func TestWindowsArgEmpty(t *testing.T) {
	if got := windowsArg(""); got != "''" {
		t.Errorf("windowsArg(\"\") = %q, want ''", got)
	}
}

func TestWindowsArgPlain(t *testing.T) {
	got := windowsArg("hello")
	want := `"hello"`
	if got != want {
		t.Errorf("windowsArg(hello) = %q, want %q", got, want)
	}
}
