package safety

import (
	"errors"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"pathgc/internal/fsops"
)

var (
	ErrInvalidPath      = errors.New("invalid path")
	ErrProtectedPath    = errors.New("protected path")
	ErrProtectedPattern = errors.New("path matches protected pattern")
	ErrOutsideAllowed   = errors.New("outside allowed roots")
	ErrTraversal        = errors.New("path traversal detected")
)

// IsViolation reports whether err was raised by the validator.
func IsViolation(err error) bool {
	return errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrProtectedPath) ||
		errors.Is(err, ErrProtectedPattern) ||
		errors.Is(err, ErrOutsideAllowed) ||
		errors.Is(err, ErrTraversal)
}

// Validator enforces the safety contract for every recursive delete
type Validator struct {
	// AllowedRoots, when set, confines deletes to these subtrees.
	AllowedRoots []string
	// ProtectedPaths are never deleted, nor is anything below them.
	ProtectedPaths []string
	// ProtectedPatterns are doublestar globs matched against the cleaned path.
	ProtectedPatterns []string
	// PinnedPaths may not be deleted themselves; their children may.
	PinnedPaths []string
}

// NewValidator creates a validator. The filesystem root and every pinned path
// (typically the shared working directory) can never be deleted.
func NewValidator(allowed, protected, patterns, pinned []string) *Validator {
	return &Validator{
		AllowedRoots:      normalizeRoots(allowed),
		ProtectedPaths:    normalizeRoots(protected),
		ProtectedPatterns: patterns,
		PinnedPaths:       append([]string{"/"}, normalizeRoots(pinned)...),
	}
}

// ValidateDeleteTarget is the single-source-of-truth for delete authorization
func (v *Validator) ValidateDeleteTarget(raw string) error {
	// 1. Detect path traversal in raw input
	if DetectTraversal(raw) {
		return ErrTraversal
	}

	// 2. Normalize
	p := fsops.CleanPath(raw)
	if strings.TrimSpace(p) == "" {
		return ErrInvalidPath
	}

	// 3. Pinned and protected paths
	for _, pinned := range v.PinnedPaths {
		if p == pinned {
			return ErrProtectedPath
		}
	}
	if IsProtectedPath(p, v.ProtectedPaths) {
		return ErrProtectedPath
	}

	// 4. Protected patterns
	for _, pattern := range v.ProtectedPatterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return ErrProtectedPattern
		}
	}

	// 5. Allowed roots
	if len(v.AllowedRoots) > 0 && !IsWithinAllowedRoots(p, v.AllowedRoots) {
		return ErrOutsideAllowed
	}

	return nil
}

// DetectTraversal blocks any ".." segment in raw input
func DetectTraversal(raw string) bool {
	for _, part := range strings.Split(raw, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// IsWithinAllowedRoots checks if p is within any allowed root
func IsWithinAllowedRoots(p string, allowedRoots []string) bool {
	for _, r := range allowedRoots {
		if hasPathPrefix(p, r) {
			return true
		}
	}
	return false
}

// IsProtectedPath checks if p is, or is below, a protected path
func IsProtectedPath(p string, protected []string) bool {
	for _, prot := range protected {
		if hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

func hasPathPrefix(p, prefix string) bool {
	p = path.Clean(p)
	prefix = path.Clean(prefix)

	if prefix == "/" {
		return true
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}

// normalizeRoots cleans roots and drops blanks
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		out = append(out, fsops.CleanPath(r))
	}
	return out
}
