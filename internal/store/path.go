package store

import (
	"fmt"
	"strings"
)

// Path addresses either a collection ("matches") or a node inside it ("matches/abc")
type Path string

// Join builds a node path, or a collection path when key is empty
func Join(collection, key string) Path {
	if key == "" {
		return Path(collection)
	}
	return Path(collection + "/" + key)
}

// ParsePath trims surrounding slashes and checks segment count and characters
func ParsePath(s string) (Path, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	parts := strings.Split(s, "/")
	if s == "" || len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	for _, part := range parts {
		if !validSegment(part) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}
	}
	return Path(s), nil
}

func validSegment(seg string) bool {
	if seg == "" || len(seg) > 128 {
		return false
	}
	return !strings.ContainsAny(seg, ".#$[]/ \t\n")
}

// Collection returns the first segment
func (p Path) Collection() string {
	c, _, _ := strings.Cut(string(p), "/")
	return c
}

// Key returns the second segment, empty for collection paths
func (p Path) Key() string {
	_, k, _ := strings.Cut(string(p), "/")
	return k
}

// IsCollection reports whether p has a single segment
func (p Path) IsCollection() bool {
	return !strings.Contains(string(p), "/")
}

// Parent returns the collection of a node path, or p itself
func (p Path) Parent() Path {
	return Path(p.Collection())
}

// Observes reports whether an observer of p sees a change at changed
func (p Path) Observes(changed Path) bool {
	if p == changed {
		return true
	}
	return p.IsCollection() && changed.Parent() == p
}

func (p Path) String() string { return string(p) }
