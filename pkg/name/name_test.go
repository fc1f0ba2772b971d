package name

import "testing"

func TestFqName(t *testing.T) {
	f := FqName("kotlin.collections.List")
	if f.ShortName() != "List" {
		t.Errorf("ShortName: got %q", f.ShortName())
	}
	if f.Parent() != "kotlin.collections" {
		t.Errorf("Parent: got %q", f.Parent())
	}
	if FqName("List").Parent() != Root {
		t.Errorf("Parent of top-level: got %q", FqName("List").Parent())
	}
	if Root.Child("a").Child("b") != "a.b" {
		t.Errorf("Child: got %q", Root.Child("a").Child("b"))
	}
	if len(f.Segments()) != 3 || len(Root.Segments()) != 0 {
		t.Errorf("Segments: got %v / %v", f.Segments(), Root.Segments())
	}
	if !f.StartsWith("kotlin") || f.StartsWith("kot") || !f.StartsWith(Root) {
		t.Error("StartsWith must match whole segments")
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		in   FqName
		want string
	}{
		{"a.b.c", "a.b.c"},
		{"a.in.c", "a.`in`.c"},
		{"a.with space", "a.`with space`"},
		{"x1._y", "x1._y"},
	}
	for _, tt := range tests {
		if got := tt.in.Render(); got != tt.want {
			t.Errorf("Render(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
	if !Anonymous.IsSpecial() || Name("foo").IsSpecial() {
		t.Error("IsSpecial")
	}
}
