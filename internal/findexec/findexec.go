// Package findexec implements the Executable Finder: a PATH search with
// platform-appropriate suffixes, deliberately narrower than a general
// "which".
package findexec

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Find locates name on disk, returning def if it can't be found. When dirs
// is non-empty it's treated as an open_basedir-style restriction and
// searched instead of PATH+extraDirs; otherwise the PATH-equivalent
// environment variable is combined with extraDirs.
func Find(name, def string, extraDirs []string, dirs []string) string {
	searchDirs := dirs
	if len(searchDirs) == 0 {
		searchDirs = append(pathDirs(), extraDirs...)
	}

	for _, suffix := range suffixes() {
		for _, dir := range searchDirs {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, name+suffix)
			if isExecutableFile(candidate) {
				return candidate
			}
		}
	}
	return def
}

func pathDirs() []string {
	path := os.Getenv("PATH")
	if path == "" {
		return nil
	}
	return strings.Split(path, string(os.PathListSeparator))
}

func suffixes() []string {
	if runtime.GOOS != "windows" {
		return []string{""}
	}
	if pathext := os.Getenv("PATHEXT"); pathext != "" {
		return strings.Split(pathext, string(os.PathListSeparator))
	}
	return []string{".exe", ".bat", ".cmd", ".com"}
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
