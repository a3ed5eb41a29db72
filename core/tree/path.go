package tree

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Path is a normalized node path. The root is the empty path.
type Path []string

// NormalizeSegment lower-cases a single path segment and brings it into
// Unicode NFC form.
func NormalizeSegment(segment string) string {
	// Casers keep internal state and must not be shared between goroutines.
	return norm.NFC.String(cases.Lower(language.Und).String(segment))
}

// Normalize converts display segments into a normalized Path.
func Normalize(segments []string) Path {
	p := make(Path, 0, len(segments))
	for _, s := range segments {
		p = append(p, NormalizeSegment(s))
	}
	return p
}

// ParseKey is the inverse of Path.Key.
func ParseKey(key string) Path {
	if key == "" {
		return Path{}
	}
	return Path(strings.Split(key, "/"))
}

// Key returns the arena key of the path.
func (p Path) Key() string {
	return strings.Join(p, "/")
}

// String renders the path with a leading slash.
func (p Path) String() string {
	return "/" + p.Key()
}

// IsRoot reports whether p addresses the root node.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Name returns the last segment, or "" for the root.
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the parent path. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return append(Path{}, p[:len(p)-1]...)
}

// Child returns a new path with name appended.
func (p Path) Child(name string) Path {
	c := make(Path, len(p), len(p)+1)
	copy(c, p)
	return append(c, name)
}

// Equal reports whether both paths address the same node.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is p itself or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}
