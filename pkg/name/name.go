// Package name holds the identifier value types shared by the front end and
// the backend: simple names and dot-separated qualified names.
package name

import (
	"strings"
	"unicode"
)

// Name is a simple identifier. Special names such as "<anonymous>" or
// "<init>" are wrapped in angle brackets. The zero Name means "no name".
type Name string

// Special names used for declarations without a source identifier.
const (
	Anonymous Name = "<anonymous>"
	Init      Name = "<init>"
	NoName    Name = "<no name provided>"
)

// IsSpecial reports whether n is a compiler-generated name.
func (n Name) IsSpecial() bool { return strings.HasPrefix(string(n), "<") }

// IsZero reports whether n is absent.
func (n Name) IsZero() bool { return n == "" }

func (n Name) String() string { return string(n) }

// FqName is a qualified name such as "kotlin.collections.List". The root
// package is the empty string.
type FqName string

// Root is the fully qualified name of the root package.
const Root FqName = ""

// IsRoot reports whether f is the root package.
func (f FqName) IsRoot() bool { return f == Root }

// Segments splits f at dots. The root has no segments.
func (f FqName) Segments() []Name {
	if f.IsRoot() {
		return nil
	}
	parts := strings.Split(string(f), ".")
	out := make([]Name, len(parts))
	for i, p := range parts {
		out[i] = Name(p)
	}
	return out
}

// ShortName returns the last segment, or "" for the root.
func (f FqName) ShortName() Name {
	if i := strings.LastIndexByte(string(f), '.'); i >= 0 {
		return Name(f[i+1:])
	}
	return Name(f)
}

// Parent drops the last segment. The parent of a top-level name is the root.
func (f FqName) Parent() FqName {
	if i := strings.LastIndexByte(string(f), '.'); i >= 0 {
		return f[:i]
	}
	return Root
}

// Child appends a segment.
func (f FqName) Child(n Name) FqName {
	if f.IsRoot() {
		return FqName(n)
	}
	return f + "." + FqName(n)
}

// StartsWith reports whether prefix is f itself or one of its ancestors.
func (f FqName) StartsWith(prefix FqName) bool {
	if prefix.IsRoot() || f == prefix {
		return true
	}
	return strings.HasPrefix(string(f), string(prefix)+".")
}

func (f FqName) String() string { return string(f) }

// Render prints f for use in source text: segments that are keywords or are
// not plain identifiers are quoted with backticks.
func (f FqName) Render() string {
	segs := f.Segments()
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = RenderName(s)
	}
	return strings.Join(parts, ".")
}

// RenderName quotes n with backticks when it cannot be written bare.
func RenderName(n Name) string {
	s := string(n)
	if s == "" || keywords[s] || !isIdentifier(s) {
		return "`" + s + "`"
	}
	return s
}

var keywords = map[string]bool{
	"as": true, "break": true, "class": true, "continue": true, "do": true,
	"else": true, "false": true, "for": true, "fun": true, "if": true,
	"in": true, "interface": true, "is": true, "null": true, "object": true,
	"package": true, "return": true, "super": true, "this": true, "throw": true,
	"true": true, "try": true, "typealias": true, "typeof": true, "val": true,
	"var": true, "when": true, "while": true,
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
