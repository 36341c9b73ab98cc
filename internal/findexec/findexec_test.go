package findexec

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFindLocatesExecutableInExtraDirs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable-bit semantics differ on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "mytool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := Find("mytool", "", []string{dir}, nil)
	if got != path {
		t.Errorf("Find = %q, want %q", got, path)
	}
}

func TestFindFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	got := Find("does-not-exist-xyz", "/fallback/path", nil, []string{dir})
	if got != "/fallback/path" {
		t.Errorf("Find = %q, want default", got)
	}
}

func TestFindSkipsNonExecutableFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable-bit semantics differ on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "notexec")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := Find("notexec", "default", nil, []string{dir})
	if got != "default" {
		t.Errorf("Find = %q, want default for a non-executable file", got)
	}
}
