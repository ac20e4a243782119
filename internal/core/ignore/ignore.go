// Package ignore parses .dockerignore-style exclusion files into the pattern
// list handed to the build-context archiver.
// This is part of the Functional Core - all functions are pure with no I/O.
package ignore

import (
	"strings"
)

// File is the well-known exclusion file in a build context root.
const File = ".dockerignore"

// Parse parses exclusion file content into patterns. Blank lines and "#"
// comments are skipped, a leading "!" (negation) is passed through untouched,
// and leading "/" and trailing "/" are trimmed the way the engine's own
// pattern matcher normalizes them.
func Parse(content string) []string {
	var patterns []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		negate := strings.HasPrefix(line, "!")
		if negate {
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
		}

		line = strings.TrimPrefix(line, "/")
		line = strings.TrimSuffix(line, "/")
		if line == "" || line == "." {
			continue
		}

		if negate {
			line = "!" + line
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// Excluded reports whether the manifest file would be excluded by the given
// patterns. The build fails fast when the context cannot contain its
// dependency manifest, so the archiver checks this before taring anything.
func Excluded(name string, patterns []string) bool {
	excluded := false
	for _, p := range patterns {
		negate := strings.HasPrefix(p, "!")
		if negate {
			p = p[1:]
		}
		if !matches(name, p) {
			continue
		}
		excluded = !negate
	}
	return excluded
}

// matches implements the subset of pattern matching the exclusion check
// needs: exact names, "*" wildcards within one path segment, and directory
// prefixes.
func matches(name, pattern string) bool {
	if pattern == name {
		return true
	}
	if strings.HasPrefix(name, pattern+"/") {
		return true
	}
	if strings.Contains(pattern, "*") {
		return wildcardMatch(name, pattern)
	}
	return false
}

func wildcardMatch(name, pattern string) bool {
	nameParts := strings.Split(name, "/")
	patternParts := strings.Split(pattern, "/")
	if len(patternParts) > len(nameParts) {
		return false
	}
	for i, pp := range patternParts {
		if !segmentMatch(nameParts[i], pp) {
			return false
		}
	}
	// All pattern segments matched; deeper path segments fall under the
	// matched directory.
	return true
}

func segmentMatch(segment, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return segment == pattern
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(segment, parts[0]) {
		return false
	}
	segment = segment[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(segment, part)
		if i < 0 {
			return false
		}
		segment = segment[i+len(part):]
	}
	return strings.HasSuffix(segment, parts[len(parts)-1])
}
