package smap

// SourceMapper collects the source map of a class that receives inlined
// code. The class's own lines keep their numbers; every inlined line gets a
// fresh output line past the end of the class's own range.
type SourceMapper struct {
	result  *SMAP
	maxUsed int
	files   map[fileKey]*FileMapping
	mapped  map[fileKey]map[int]int
}

type fileKey struct {
	name, path string
}

// NewSourceMapper starts a mapper for a class compiled from sourceFile whose
// own code spans lines 1..maxLine.
func NewSourceMapper(sourceFile, className string, maxLine int) *SourceMapper {
	m := &SourceMapper{
		result:  Default(sourceFile, className, 1, maxLine),
		maxUsed: maxLine,
		files:   make(map[fileKey]*FileMapping),
		mapped:  make(map[fileKey]map[int]int),
	}
	for _, f := range m.result.Files {
		m.files[fileKey{f.Name, f.Path}] = f
	}
	return m
}

// SetStratum overrides the stratum name of the produced map.
func (m *SourceMapper) SetStratum(stratum string) {
	if stratum != "" {
		m.result.Stratum = stratum
	}
}

// MapLineNumber returns the output line for line of inlined code whose
// positions are described by from. It returns -1 when from does not cover
// line, in which case the line number should be dropped.
func (m *SourceMapper) MapLineNumber(line int, from *SMAP) int {
	if from == nil {
		return -1
	}
	f, src, ok := from.Lookup(line)
	if !ok {
		return -1
	}
	key := fileKey{f.Name, f.Path}
	if dest, ok := m.mapped[key][src]; ok {
		return dest
	}

	target, ok := m.files[key]
	if !ok {
		target = &FileMapping{Name: f.Name, Path: f.Path}
		m.files[key] = target
		m.result.Files = append(m.result.Files, target)
		m.mapped[key] = make(map[int]int)
	}
	if m.mapped[key] == nil {
		m.mapped[key] = make(map[int]int)
	}

	m.maxUsed++
	dest := m.maxUsed
	if n := len(target.Ranges); n > 0 {
		last := &target.Ranges[n-1]
		if last.Dest+last.Range == dest && last.Source+last.Range == src {
			last.Range++
			m.mapped[key][src] = dest
			return dest
		}
	}
	target.Ranges = append(target.Ranges, RangeMapping{Source: src, Dest: dest, Range: 1})
	m.mapped[key][src] = dest
	return dest
}

// MaxUsedLine returns the largest output line handed out so far.
func (m *SourceMapper) MaxUsedLine() int { return m.maxUsed }

// SMAP returns the accumulated map.
func (m *SourceMapper) SMAP() *SMAP { return m.result }
