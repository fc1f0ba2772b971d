// Package smap models JSR-45 source maps as stored in the
// SourceDebugExtension attribute, and remaps line numbers of inlined code.
package smap

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/daimatz/lambdainline/pkg/bytecode"
)

// DefaultStratum is the stratum name written when none is configured.
const DefaultStratum = "Kotlin"

// RangeMapping maps Range consecutive source lines starting at Source onto
// output lines starting at Dest.
type RangeMapping struct {
	Source int
	Dest   int
	Range  int
}

// ContainsDest reports whether output line dest falls in the mapping.
func (r RangeMapping) ContainsDest(dest int) bool {
	return dest >= r.Dest && dest < r.Dest+r.Range
}

// FileMapping is one source file of a stratum with its line ranges.
type FileMapping struct {
	Name   string
	Path   string
	Ranges []RangeMapping
}

// SMAP is a parsed or generated source map with a single stratum.
type SMAP struct {
	GeneratedFile string
	Stratum       string
	Files         []*FileMapping
}

// Default returns the identity mapping of lines lo..hi of sourceFile, which is
// what a class without a SourceDebugExtension implicitly has.
func Default(sourceFile, className string, lo, hi int) *SMAP {
	s := &SMAP{GeneratedFile: sourceFile, Stratum: DefaultStratum}
	if sourceFile == "" {
		return s
	}
	f := &FileMapping{Name: sourceFile, Path: className}
	if lo > 0 && hi >= lo {
		f.Ranges = append(f.Ranges, RangeMapping{Source: lo, Dest: lo, Range: hi - lo + 1})
	}
	s.Files = append(s.Files, f)
	return s
}

// IsTrivial reports whether the map has no ranges at all.
func (s *SMAP) IsTrivial() bool {
	for _, f := range s.Files {
		if len(f.Ranges) > 0 {
			return false
		}
	}
	return true
}

// Lookup finds the source file and line that output line dest maps to.
func (s *SMAP) Lookup(dest int) (*FileMapping, int, bool) {
	for _, f := range s.Files {
		for _, r := range f.Ranges {
			if r.ContainsDest(dest) {
				return f, r.Source + dest - r.Dest, true
			}
		}
	}
	return nil, 0, false
}

// MaxDest returns the largest output line covered by the map.
func (s *SMAP) MaxDest() int {
	m := 0
	for _, f := range s.Files {
		for _, r := range f.Ranges {
			m = max(m, r.Dest+r.Range-1)
		}
	}
	return m
}

// String renders the map in SourceDebugExtension form.
func (s *SMAP) String() string {
	stratum := s.Stratum
	if stratum == "" {
		stratum = DefaultStratum
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SMAP\n%s\n%s\n*S %s\n*F\n", s.GeneratedFile, stratum, stratum)
	for i, f := range s.Files {
		fmt.Fprintf(&sb, "+ %d %s\n%s\n", i+1, f.Name, f.Path)
	}
	sb.WriteString("*L\n")
	for i, f := range s.Files {
		for _, r := range f.Ranges {
			fmt.Fprintf(&sb, "%d#%d,%d:%d\n", r.Source, i+1, r.Range, r.Dest)
		}
	}
	sb.WriteString("*E\n")
	return sb.String()
}

// Parse reads the first stratum of a SourceDebugExtension.
func Parse(text string) (*SMAP, error) {
	sc := bufio.NewScanner(strings.NewReader(text))
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if len(lines) < 3 || lines[0] != "SMAP" {
		return nil, fmt.Errorf("smap: missing SMAP header")
	}
	s := &SMAP{GeneratedFile: lines[1], Stratum: lines[2]}

	byID := make(map[int]*FileMapping)
	section := ""
	lastFile := 1
	for i := 3; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, "*") {
			section = strings.Fields(line + " ")[0]
			if section == "*S" && len(s.Files) > 0 {
				// only the first stratum is read
				return s, nil
			}
			if section == "*E" {
				return s, nil
			}
			continue
		}
		switch section {
		case "*F":
			f, id, err := parseFileEntry(line)
			if err != nil {
				return nil, fmt.Errorf("smap: line %d: %w", i+1, err)
			}
			if strings.HasPrefix(line, "+") {
				i++
				if i >= len(lines) {
					return nil, fmt.Errorf("smap: missing path for file %d", id)
				}
				f.Path = lines[i]
			}
			byID[id] = f
			s.Files = append(s.Files, f)
		case "*L":
			r, id, err := parseLineEntry(line, lastFile)
			if err != nil {
				return nil, fmt.Errorf("smap: line %d: %w", i+1, err)
			}
			lastFile = id
			f, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("smap: line %d: unknown file id %d", i+1, id)
			}
			f.Ranges = append(f.Ranges, r)
		}
	}
	return s, nil
}

// "+ 1 Foo.kt" or "1 Foo.kt"
func parseFileEntry(line string) (*FileMapping, int, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "+"))
	if len(fields) < 2 {
		return nil, 0, fmt.Errorf("malformed file entry %q", line)
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, 0, fmt.Errorf("malformed file id in %q", line)
	}
	return &FileMapping{Name: strings.Join(fields[1:], " ")}, id, nil
}

// "src[#file][,range]:dest[,incr]"
func parseLineEntry(line string, lastFile int) (RangeMapping, int, error) {
	left, right, ok := strings.Cut(line, ":")
	if !ok {
		return RangeMapping{}, 0, fmt.Errorf("malformed line entry %q", line)
	}
	r := RangeMapping{Range: 1}
	file := lastFile

	srcPart, rangePart, hasRange := strings.Cut(left, ",")
	srcPart, filePart, hasFile := strings.Cut(srcPart, "#")
	var err error
	if r.Source, err = strconv.Atoi(srcPart); err != nil {
		return RangeMapping{}, 0, fmt.Errorf("malformed source line in %q", line)
	}
	if hasFile {
		if file, err = strconv.Atoi(filePart); err != nil {
			return RangeMapping{}, 0, fmt.Errorf("malformed file id in %q", line)
		}
	}
	if hasRange {
		if r.Range, err = strconv.Atoi(rangePart); err != nil {
			return RangeMapping{}, 0, fmt.Errorf("malformed range in %q", line)
		}
	}
	destPart, _, _ := strings.Cut(right, ",")
	if r.Dest, err = strconv.Atoi(destPart); err != nil {
		return RangeMapping{}, 0, fmt.Errorf("malformed output line in %q", line)
	}
	return r, file, nil
}

// SMAPAndMethodNode pairs a method body with the source map its line numbers
// refer to.
type SMAPAndMethodNode struct {
	Node *bytecode.MethodNode
	SMAP *SMAP
}
