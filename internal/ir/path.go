package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// segmentMark prefixes every encoded segment. It can never appear inside a
// segment because Append strips it.
const segmentMark = "\x1f"

// Path is an ordered, immutable sequence of segments describing where a live
// view sits in the view tree.
//
// Path is comparable: two paths are equal iff their segments are equal
// after normalization. Append rewrites every segment to Unicode NFC and
// drops the unit separator (U+001F), so canonically equivalent spellings,
// or spellings that differ only in U+001F, name the same path.
// The zero value is the root path with no segments.
type Path struct {
	key string
}

// NewPath builds a path from segments.
func NewPath(segments ...string) Path {
	var p Path
	for _, s := range segments {
		p = p.Append(s)
	}
	return p
}

// ParsePath parses the slash form produced by String ("/Main/Second").
// Empty segments are skipped, so "/", "" and "//" all parse to the root path.
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg == "" {
			continue
		}
		p = p.Append(seg)
	}
	return p
}

// Append returns a new path with segment added at the end. The receiver is
// never modified. The segment is NFC normalized and stripped of U+001F.
func (p Path) Append(segment string) Path {
	segment = strings.ReplaceAll(norm.NFC.String(segment), segmentMark, "")
	return Path{key: p.key + segmentMark + segment}
}

// IsSubpathOf reports whether other's segments are a prefix of p's segments.
// Every path is a subpath of itself and of the root path.
func (p Path) IsSubpathOf(other Path) bool {
	if !strings.HasPrefix(p.key, other.key) {
		return false
	}
	return len(p.key) == len(other.key) || strings.HasPrefix(p.key[len(other.key):], segmentMark)
}

// Segments returns a copy of the path's segments.
func (p Path) Segments() []string {
	if p.key == "" {
		return nil
	}
	return strings.Split(p.key[len(segmentMark):], segmentMark)
}

// Depth returns the number of segments.
func (p Path) Depth() int {
	return strings.Count(p.key, segmentMark)
}

// IsRoot reports whether p has no segments.
func (p Path) IsRoot() bool {
	return p.key == ""
}

// Parent returns p without its last segment. The root's parent is the root.
func (p Path) Parent() Path {
	i := strings.LastIndex(p.key, segmentMark)
	if i <= 0 {
		return Path{}
	}
	return Path{key: p.key[:i]}
}

// String renders the path as "/A/B". The root renders as "/".
func (p Path) String() string {
	if p.key == "" {
		return "/"
	}
	return strings.ReplaceAll(p.key, segmentMark, "/")
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	*p = ParsePath(string(text))
	return nil
}
