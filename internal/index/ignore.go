package index

import (
	"path"
	"path/filepath"
	"strings"
)

// DefaultIgnorePatterns lists directories that never hold indexable
// source.
func DefaultIgnorePatterns() []string {
	return []string{
		".git",
		".aether",
		"node_modules",
		"vendor",
		"dist",
		"build",
		".next",
		"target",
		"bin",
		"obj",
		".terraform",
		".venv",
		".cache",
	}
}

func normalizePattern(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimSuffix(p, "/")
	p = strings.TrimSuffix(p, "\\")
	return filepath.ToSlash(p)
}

// isIgnoredRel reports whether a workspace-relative path should be
// ignored. Patterns may be simple names, path prefixes or globs.
func isIgnoredRel(rel, name string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, raw := range patterns {
		p := normalizePattern(raw)
		if p == "" {
			continue
		}
		// Glob pattern
		if strings.ContainsAny(p, "*?[]") {
			if ok, _ := path.Match(p, rel); ok {
				return true
			}
			// Handle directory globs like "vendor/*"
			if strings.HasSuffix(p, "/*") {
				prefix := strings.TrimSuffix(p, "/*")
				if strings.HasPrefix(rel, prefix+"/") {
					return true
				}
			}
			continue
		}
		// Simple dir/file name
		if name == p {
			return true
		}
		// Any path segment matching the name
		if strings.HasPrefix(rel, p+"/") || strings.Contains(rel, "/"+p+"/") {
			return true
		}
	}
	return false
}
