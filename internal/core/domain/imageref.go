package domain

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Image Reference Errors
// =============================================================================

var (
	ErrEmptyImageRef   = errors.New("image reference must not be empty")
	ErrInvalidImageRef = errors.New("invalid image reference")
)

// =============================================================================
// Image Reference
// =============================================================================

// ImageRef is a parsed image reference of the form [registry/]repository[:tag].
type ImageRef struct {
	Registry   string `json:"registry,omitempty"`
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
}

// String returns the canonical string form of the reference.
func (r ImageRef) String() string {
	s := r.Repository
	if r.Registry != "" {
		s = r.Registry + "/" + s
	}
	return s + ":" + r.Tag
}

// ParseImageRef parses an image reference string. A missing tag defaults to
// "latest". The registry component is recognized the way Docker does: the
// first path segment is a registry only if it contains a dot, a colon, or is
// "localhost".
func ParseImageRef(ref string) (ImageRef, error) {
	if strings.TrimSpace(ref) == "" {
		return ImageRef{}, ErrEmptyImageRef
	}

	parsed := ImageRef{Tag: "latest"}

	rest := ref
	if i := strings.Index(rest, "/"); i > 0 {
		first := rest[:i]
		if strings.ContainsAny(first, ".:") || first == "localhost" {
			parsed.Registry = first
			rest = rest[i+1:]
		}
	}

	// Split off the tag. A colon after the last slash separates the tag;
	// a colon before it belongs to a registry port.
	if i := strings.LastIndex(rest, ":"); i >= 0 && !strings.Contains(rest[i:], "/") {
		parsed.Tag = rest[i+1:]
		rest = rest[:i]
	}

	parsed.Repository = rest

	if parsed.Repository == "" || parsed.Tag == "" {
		return ImageRef{}, fmt.Errorf("%w: %q", ErrInvalidImageRef, ref)
	}
	for _, r := range parsed.Repository {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '/') {
			return ImageRef{}, fmt.Errorf("%w: repository contains %q", ErrInvalidImageRef, string(r))
		}
	}

	return parsed, nil
}
