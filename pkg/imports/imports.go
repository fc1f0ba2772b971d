// Package imports models import directives as plain values.
package imports

import (
	"strings"

	"github.com/daimatz/lambdainline/pkg/name"
)

// Import is anything that behaves like an import directive.
type Import interface {
	Path() name.FqName
	AllUnder() bool
	AliasName() name.Name
}

// ImportPath is a resolved import clause. It is comparable, so it can be used
// directly as a map key; equality covers all three fields.
type ImportPath struct {
	FqName     name.FqName
	IsAllUnder bool

	// Alias is empty when the import has no "as" clause.
	Alias name.Name
}

var _ Import = ImportPath{}

func (p ImportPath) Path() name.FqName { return p.FqName }
func (p ImportPath) AllUnder() bool { return p.IsAllUnder }
func (p ImportPath) AliasName() name.Name { return p.Alias }

// HasAlias reports whether the import renames what it imports.
func HasAlias(i Import) bool { return !i.AliasName().IsZero() }

// ImportedName is the name an import binds in the file: the alias if present,
// otherwise the last segment of the path. Star imports bind no single name and
// return ok=false.
func ImportedName(i Import) (name.Name, bool) {
	if i.AllUnder() {
		return "", false
	}
	if HasAlias(i) {
		return i.AliasName(), true
	}
	return i.Path().ShortName(), true
}

// Text renders the import as it would appear after the "import" keyword.
func Text(i Import) string {
	s := i.Path().Render()
	if i.AllUnder() {
		s += ".*"
	}
	if HasAlias(i) && !i.AllUnder() {
		s += " as " + name.RenderName(i.AliasName())
	}
	return s
}

func (p ImportPath) HasAlias() bool { return HasAlias(p) }
func (p ImportPath) ImportedName() (name.Name, bool) { return ImportedName(p) }
func (p ImportPath) String() string { return Text(p) }

// FromString parses "a.b.c", "a.b.*" or "a.b.c as d". Backticks around
// segments are removed.
func FromString(s string) ImportPath {
	s = strings.TrimSpace(s)
	var alias name.Name
	if path, a, ok := strings.Cut(s, " as "); ok {
		s = strings.TrimSpace(path)
		alias = name.Name(unquote(strings.TrimSpace(a)))
	}
	if strings.HasSuffix(s, ".*") {
		return ImportPath{FqName: parseFqName(strings.TrimSuffix(s, ".*")), IsAllUnder: true}
	}
	return ImportPath{FqName: parseFqName(s), Alias: alias}
}

func parseFqName(s string) name.FqName {
	if !strings.Contains(s, "`") {
		return name.FqName(s)
	}
	var segs []string
	for _, seg := range splitOutsideBackticks(s) {
		segs = append(segs, unquote(seg))
	}
	return name.FqName(strings.Join(segs, "."))
}

func splitOutsideBackticks(s string) []string {
	var out []string
	quoted := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '`':
			quoted = !quoted
		case '.':
			if !quoted {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return s[1 : len(s)-1]
	}
	return s
}
