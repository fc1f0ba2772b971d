package smap

import "testing"

const inlinedSMAP = `SMAP
1.kt
Kotlin
*S Kotlin
*F
+ 1 1.kt
_1Kt
+ 2 inline.kt
test/InlineKt
*L
1#1,10:1
5#2,3:11
*E
*S KotlinDebug
*F
+ 1 1.kt
_1Kt
*L
4#1:11
*E
`

func TestParse(t *testing.T) {
	s, err := Parse(inlinedSMAP)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.GeneratedFile != "1.kt" || s.Stratum != "Kotlin" {
		t.Errorf("header: got %q/%q", s.GeneratedFile, s.Stratum)
	}
	if len(s.Files) != 2 {
		t.Fatalf("files: got %d, want 2 (KotlinDebug stratum must be ignored)", len(s.Files))
	}
	if s.Files[1].Path != "test/InlineKt" {
		t.Errorf("file 2 path: got %q", s.Files[1].Path)
	}
	want := RangeMapping{Source: 5, Dest: 11, Range: 3}
	if len(s.Files[1].Ranges) != 1 || s.Files[1].Ranges[0] != want {
		t.Errorf("file 2 ranges: got %+v, want %+v", s.Files[1].Ranges, want)
	}
}

func TestLookup(t *testing.T) {
	s, err := Parse(inlinedSMAP)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tests := []struct {
		dest     int
		file     string
		src      int
		wantFind bool
	}{
		{1, "1.kt", 1, true},
		{10, "1.kt", 10, true},
		{11, "inline.kt", 5, true},
		{13, "inline.kt", 7, true},
		{14, "", 0, false},
	}
	for _, tt := range tests {
		f, src, ok := s.Lookup(tt.dest)
		if ok != tt.wantFind {
			t.Errorf("Lookup(%d): found=%v, want %v", tt.dest, ok, tt.wantFind)
			continue
		}
		if ok && (f.Name != tt.file || src != tt.src) {
			t.Errorf("Lookup(%d): got %s:%d, want %s:%d", tt.dest, f.Name, src, tt.file, tt.src)
		}
	}
	if got := s.MaxDest(); got != 13 {
		t.Errorf("MaxDest: got %d, want 13", got)
	}
}

func TestRenderParse(t *testing.T) {
	s := Default("Foo.kt", "FooKt", 3, 7)
	parsed, err := Parse(s.String())
	if err != nil {
		t.Fatalf("Parse(render): %v\n%s", err, s.String())
	}
	if len(parsed.Files) != 1 || parsed.Files[0].Name != "Foo.kt" || parsed.Files[0].Path != "FooKt" {
		t.Fatalf("files: got %+v", parsed.Files)
	}
	if got := parsed.Files[0].Ranges; len(got) != 1 || got[0] != (RangeMapping{Source: 3, Dest: 3, Range: 5}) {
		t.Errorf("ranges: got %+v", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no header", "Foo.kt\nKotlin\n"},
		{"bad line entry", "SMAP\nA.kt\nKotlin\n*S Kotlin\n*F\n+ 1 A.kt\nA\n*L\nx#1:1\n*E\n"},
		{"unknown file", "SMAP\nA.kt\nKotlin\n*S Kotlin\n*F\n+ 1 A.kt\nA\n*L\n1#2,1:1\n*E\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.text); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSourceMapper(t *testing.T) {
	callee, err := Parse(inlinedSMAP)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := NewSourceMapper("Caller.kt", "CallerKt", 20)

	// consecutive callee lines extend one range
	if got := m.MapLineNumber(11, callee); got != 21 {
		t.Errorf("line 11: got %d, want 21", got)
	}
	if got := m.MapLineNumber(12, callee); got != 22 {
		t.Errorf("line 12: got %d, want 22", got)
	}
	// same source line maps to the same output line
	if got := m.MapLineNumber(11, callee); got != 21 {
		t.Errorf("line 11 again: got %d, want 21", got)
	}
	// a line of another file starts a new file mapping
	if got := m.MapLineNumber(2, callee); got != 23 {
		t.Errorf("line 2: got %d, want 23", got)
	}
	if got := m.MapLineNumber(99, callee); got != -1 {
		t.Errorf("unmapped line: got %d, want -1", got)
	}

	s := m.SMAP()
	if len(s.Files) != 3 {
		t.Fatalf("files: got %d, want 3\n%s", len(s.Files), s)
	}
	inline := s.Files[1]
	if inline.Name != "inline.kt" || len(inline.Ranges) != 1 || inline.Ranges[0] != (RangeMapping{Source: 5, Dest: 21, Range: 2}) {
		t.Errorf("inline.kt mapping: got %+v", inline)
	}
	if f, src, ok := s.Lookup(22); !ok || f.Name != "inline.kt" || src != 6 {
		t.Errorf("Lookup(22): got %v %d %v", f, src, ok)
	}
	if m.MaxUsedLine() != 23 {
		t.Errorf("MaxUsedLine: got %d, want 23", m.MaxUsedLine())
	}
}
