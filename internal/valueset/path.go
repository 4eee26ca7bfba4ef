package valueset

import (
	"strings"
)

// PathSeparator joins the ancestor ids of a Path.
const PathSeparator = ","

// Well-known tree ids.
const (
	RootID              = "-1"
	ContentRecycleBinID = "-20"
	MediaRecycleBinID   = "-21"
)

// Path is a root-anchored list of ancestor ids ending with the item itself,
// serialized as "-1,1046,1076".
type Path string

// ParsePath trims whitespace around every segment and drops empty ones.
func ParsePath(s string) Path {
	parts := strings.Split(s, PathSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return Path(strings.Join(out, PathSeparator))
}

// JoinPath builds a Path from ids.
func JoinPath(ids ...string) Path {
	return Path(strings.Join(ids, PathSeparator))
}

// String returns the serialized form.
func (p Path) String() string { return string(p) }

// Segments returns the ids of the path, root first.
func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), PathSeparator)
}

// Contains reports whether id is one of the path's segments.
// Matching is whole-segment: "12" does not match a path holding "120".
func (p Path) Contains(id string) bool {
	id = NodeID(id)
	if id == "" {
		return false
	}
	for _, seg := range p.Segments() {
		if seg == id {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of ids is a segment of the path.
func (p Path) ContainsAny(ids ...string) bool {
	for _, id := range ids {
		if p.Contains(id) {
			return true
		}
	}
	return false
}

// IsDescendantOf reports whether p equals ancestor or lies beneath it.
func (p Path) IsDescendantOf(ancestor Path) bool {
	a := ancestor.Segments()
	s := p.Segments()
	if len(a) == 0 || len(a) > len(s) {
		return false
	}
	for i := range a {
		if a[i] != s[i] {
			return false
		}
	}
	return true
}

// Last returns the final segment, the id of the item the path belongs to.
func (p Path) Last() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	segs := p.Segments()
	if len(segs) <= 1 {
		return ""
	}
	return JoinPath(segs[:len(segs)-1]...)
}

// Level is the depth of the item below the root (the root itself is 0).
func (p Path) Level() int {
	n := len(p.Segments())
	if n == 0 {
		return 0
	}
	return n - 1
}
