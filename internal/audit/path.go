package audit

import (
	"os"
	"path/filepath"
)

// EnvLogDir overrides cleanup log directory resolution when set.
const EnvLogDir = "LEASH_CLEANUP_LOG_DIR"

// Project markers recognized when no version-control root is found, in
// preference order.
var projectMarkers = []string{"go.mod", "package.json", "Makefile"}

// ResolveDir picks the directory for the cleanup log. Each tier is attempted
// only when the previous produced nothing: explicit override, environment
// override, detected version-control root, nearest directory with a project
// marker, current working directory.
func ResolveDir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if dir := os.Getenv(EnvLogDir); dir != "" {
		return dir
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if root := findUp(cwd, func(dir string) bool {
		info, err := os.Stat(filepath.Join(dir, ".git"))
		return err == nil && info.IsDir()
	}); root != "" {
		return filepath.Join(root, ".leash")
	}
	if root := findUp(cwd, func(dir string) bool {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return true
			}
		}
		return false
	}); root != "" {
		return filepath.Join(root, ".leash")
	}
	return cwd
}

// findUp walks from dir to the filesystem root looking for the first
// directory satisfying the predicate.
func findUp(dir string, ok func(string) bool) string {
	for {
		if ok(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
