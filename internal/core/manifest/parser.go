package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// =============================================================================
// Types
// =============================================================================

// Requirement is one parsed dependency declaration.
type Requirement struct {
	Name      string   `json:"name"`                // declared package name, original casing
	Extras    []string `json:"extras,omitempty"`    // e.g. requests[socks]
	Specifier string   `json:"specifier,omitempty"` // e.g. "==2.31.0", ">=1.0,<2.0"
	Marker    string   `json:"marker,omitempty"`    // environment marker after ";"
	Line      int      `json:"line"`                // 1-based source line
}

// Pinned reports whether the requirement pins an exact version with "==".
func (r Requirement) Pinned() bool {
	return strings.HasPrefix(r.Specifier, "==") && !strings.Contains(r.Specifier, ",")
}

// canonicalName normalizes a package name per PEP 503: lowercase, with runs
// of "-", "_" and "." collapsed to a single "-".
func canonicalName(name string) string {
	var b strings.Builder
	prevSep := false
	for _, r := range strings.ToLower(name) {
		if r == '-' || r == '_' || r == '.' {
			if !prevSep {
				b.WriteByte('-')
			}
			prevSep = true
			continue
		}
		prevSep = false
		b.WriteRune(r)
	}
	return b.String()
}

// Directive is a non-requirement instruction line, such as "-r other.txt" or
// "--index-url https://...". Directives are preserved but not interpreted;
// resolving them is the package installer's concern.
type Directive struct {
	Option string `json:"option"` // e.g. "-r", "--index-url"
	Value  string `json:"value,omitempty"`
	Line   int    `json:"line"`
}

// Manifest is a parsed requirements file.
type Manifest struct {
	Requirements []Requirement `json:"requirements"`
	Directives   []Directive   `json:"directives,omitempty"`
	Digest       string        `json:"digest"` // sha256 over canonicalized content
}

// Requirement returns the requirement with the given name, if declared.
func (m *Manifest) Requirement(name string) (Requirement, bool) {
	want := canonicalName(name)
	for _, r := range m.Requirements {
		if canonicalName(r.Name) == want {
			return r, true
		}
	}
	return Requirement{}, false
}

// FullyPinned reports whether every requirement pins an exact version.
func (m *Manifest) FullyPinned() bool {
	for _, r := range m.Requirements {
		if !r.Pinned() {
			return false
		}
	}
	return len(m.Requirements) > 0
}

// =============================================================================
// Parsing
// =============================================================================

// Parse parses requirements.txt content into a Manifest.
// This is a pure function - no I/O, no side effects.
//
// Supported line forms:
//   - blank lines and "#" comments (skipped)
//   - backslash line continuations
//   - option lines ("-r", "-c", "-e", "--index-url", ...) kept as Directives
//   - "name[extras]specifier ; marker" requirement lines
//
// An empty file parses to an empty manifest; installing from it is a no-op,
// not an error, so only whitespace-only content relies on the caller to decide
// whether that is acceptable.
func Parse(content string) (*Manifest, error) {
	m := &Manifest{}
	seen := map[string]int{} // canonical name -> first line

	lines := strings.Split(content, "\n")
	for i := 0; i < len(lines); i++ {
		lineNo := i + 1
		line := lines[i]

		// Join backslash continuations
		for strings.HasSuffix(strings.TrimRight(line, " \t"), "\\") && i+1 < len(lines) {
			line = strings.TrimSuffix(strings.TrimRight(line, " \t"), "\\")
			i++
			line += strings.TrimSpace(lines[i])
		}

		line = stripComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "-") {
			m.Directives = append(m.Directives, parseDirective(line, lineNo))
			continue
		}

		req, err := parseRequirement(line, lineNo)
		if err != nil {
			return nil, err
		}

		canon := canonicalName(req.Name)
		if first, dup := seen[canon]; dup {
			return nil, NewManifestError("Parse", lineNo,
				fmt.Sprintf("%q already declared on line %d", req.Name, first), ErrDuplicateRequirement)
		}
		seen[canon] = lineNo

		m.Requirements = append(m.Requirements, req)
	}

	m.Digest = digest(m)
	return m, nil
}

// stripComment removes a trailing "#" comment. A "#" only starts a comment at
// the beginning of the line or after whitespace, mirroring pip's behavior.
func stripComment(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}
	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return line[:i]
		}
	}
	return line
}

// parseDirective splits an option line into option and value.
func parseDirective(line string, lineNo int) Directive {
	parts := strings.SplitN(line, " ", 2)
	d := Directive{Option: parts[0], Line: lineNo}
	if len(parts) == 2 {
		d.Value = strings.TrimSpace(parts[1])
	}
	if i := strings.Index(d.Option, "="); i > 0 {
		d.Value = d.Option[i+1:]
		d.Option = d.Option[:i]
	}
	return d
}

// parseRequirement parses one "name[extras]specifier ; marker" line.
func parseRequirement(line string, lineNo int) (Requirement, error) {
	req := Requirement{Line: lineNo}

	// Split off the environment marker
	if i := strings.Index(line, ";"); i >= 0 {
		req.Marker = strings.TrimSpace(line[i+1:])
		line = strings.TrimSpace(line[:i])
	}

	// Name runs until the first extras bracket or specifier operator
	nameEnd := len(line)
	for i, r := range line {
		if r == '[' || r == '<' || r == '>' || r == '=' || r == '!' || r == '~' || r == ' ' {
			nameEnd = i
			break
		}
	}

	req.Name = line[:nameEnd]
	if req.Name == "" {
		return Requirement{}, NewManifestError("Parse", lineNo,
			fmt.Sprintf("missing package name in %q", line), ErrInvalidRequirement)
	}
	for _, r := range req.Name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.') {
			return Requirement{}, NewManifestError("Parse", lineNo,
				fmt.Sprintf("invalid character %q in package name", string(r)), ErrInvalidRequirement)
		}
	}

	rest := strings.TrimSpace(line[nameEnd:])

	// Extras
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return Requirement{}, NewManifestError("Parse", lineNo,
				"unterminated extras bracket", ErrInvalidRequirement)
		}
		for _, e := range strings.Split(rest[1:end], ",") {
			if e = strings.TrimSpace(e); e != "" {
				req.Extras = append(req.Extras, e)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	// Specifier
	if rest != "" {
		if !strings.ContainsAny(string(rest[0]), "<>=!~") {
			return Requirement{}, NewManifestError("Parse", lineNo,
				fmt.Sprintf("invalid version specifier %q", rest), ErrInvalidRequirement)
		}
		req.Specifier = strings.ReplaceAll(rest, " ", "")
	}

	return req, nil
}

// =============================================================================
// Digest
// =============================================================================

// digest computes a content digest over the canonicalized manifest. Two
// manifests that declare the same dependencies in the same order (ignoring
// comments and whitespace) share a digest, which is what the build-idempotence
// check compares.
func digest(m *Manifest) string {
	h := sha256.New()
	for _, d := range m.Directives {
		fmt.Fprintf(h, "%s %s\n", d.Option, d.Value)
	}
	for _, r := range m.Requirements {
		fmt.Fprintf(h, "%s[%s]%s;%s\n", canonicalName(r.Name), strings.Join(r.Extras, ","), r.Specifier, r.Marker)
	}
	return hex.EncodeToString(h.Sum(nil))
}
