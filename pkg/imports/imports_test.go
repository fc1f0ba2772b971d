package imports

import (
	"testing"

	"github.com/daimatz/lambdainline/pkg/name"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		in          string
		fqName      name.FqName
		allUnder    bool
		imported    name.Name
		hasImported bool
		text        string
	}{
		{"a.b.c", "a.b.c", false, "c", true, "a.b.c"},
		{"a.b.*", "a.b", true, "", false, "a.b.*"},
		{"a.b.c as d", "a.b.c", false, "d", true, "a.b.c as d"},
		{"c", "c", false, "c", true, "c"},
		{"a.`is`.c", "a.is.c", false, "c", true, "a.`is`.c"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p := FromString(tt.in)
			if p.FqName != tt.fqName {
				t.Errorf("FqName: got %q, want %q", p.FqName, tt.fqName)
			}
			if p.IsAllUnder != tt.allUnder {
				t.Errorf("IsAllUnder: got %v, want %v", p.IsAllUnder, tt.allUnder)
			}
			got, ok := p.ImportedName()
			if ok != tt.hasImported || got != tt.imported {
				t.Errorf("ImportedName: got (%q, %v), want (%q, %v)", got, ok, tt.imported, tt.hasImported)
			}
			if p.String() != tt.text {
				t.Errorf("String: got %q, want %q", p.String(), tt.text)
			}
		})
	}
}

func TestStructuralEquality(t *testing.T) {
	a := FromString("a.b.c as d")
	b := ImportPath{FqName: "a.b.c", Alias: "d"}
	if a != b {
		t.Errorf("got %+v != %+v", a, b)
	}
	seen := map[ImportPath]bool{a: true}
	if !seen[b] {
		t.Error("equal import paths must hash equally")
	}
	if FromString("a.b.c") == a {
		t.Error("alias must take part in equality")
	}
	if FromString("a.b.*") == FromString("a.b") {
		t.Error("star flag must take part in equality")
	}
}

func TestAliasIgnoredForStarImport(t *testing.T) {
	p := ImportPath{FqName: "a.b", IsAllUnder: true, Alias: "x"}
	if _, ok := p.ImportedName(); ok {
		t.Error("star import must not bind a name")
	}
	if p.String() != "a.b.*" {
		t.Errorf("String: got %q, want %q", p.String(), "a.b.*")
	}
}
