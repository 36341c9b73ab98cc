package goproc

import "testing"

func TestResolveExitCodePrecedence(t *testing.T) {
	two := 2
	three := 3

	cases := []struct {
		name              string
		reaped            int
		lastKnown         *int
		fallback          *int
		signaled          bool
		termsig           int
		want              int
	}{
		{"reaped wins", 5, &two, &three, true, 9, 5},
		{"last known when reap unavailable", -1, &two, &three, false, 0, 2},
		{"fallback when neither reap nor last known", -1, nil, &three, false, 0, 3},
		{"signal convention as last resort", -1, nil, nil, true, 15, 143},
		{"unknown when nothing available", -1, nil, nil, false, 0, -1},
		{"signaled without termsig is unknown", -1, nil, nil, true, 0, -1},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := resolveExitCode(c.reaped, c.lastKnown, c.fallback, c.signaled, c.termsig)
			if got != c.want {
				t.Errorf("resolveExitCode(...) = %d, want %d", got, c.want)
			}
		})
	}
}

func TestGetExitCodeTextKnownAndUnknown(t *testing.T) {
	if GetExitCodeText(0) != "OK" {
		t.Errorf("GetExitCodeText(0) = %q, want OK", GetExitCodeText(0))
	}
	if GetExitCodeText(130) == "Unknown error" {
		t.Errorf("GetExitCodeText(130) should resolve the 128+N signal convention")
	}
	if GetExitCodeText(9999) != "Unknown error" {
		t.Errorf("GetExitCodeText(9999) = %q, want Unknown error", GetExitCodeText(9999))
	}
}
