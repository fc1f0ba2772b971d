// Package descriptor parses and builds JVM field and method descriptors.
package descriptor

import (
	"fmt"
	"strings"
)

// Sort classifies a Type by the first character of its descriptor.
type Sort int

const (
	SortVoid Sort = iota
	SortBoolean
	SortChar
	SortByte
	SortShort
	SortInt
	SortFloat
	SortLong
	SortDouble
	SortArray
	SortObject
)

// Type is a JVM field type (or void) identified by its descriptor.
type Type struct {
	desc string
}

var (
	Void    = Type{"V"}
	Boolean = Type{"Z"}
	Char    = Type{"C"}
	Byte    = Type{"B"}
	Short   = Type{"S"}
	Int     = Type{"I"}
	Float   = Type{"F"}
	Long    = Type{"J"}
	Double  = Type{"D"}

	Object = ObjectType("java/lang/Object")
	String = ObjectType("java/lang/String")
)

// ObjectType returns the type of the class with the given internal name.
func ObjectType(internalName string) Type {
	if strings.HasPrefix(internalName, "[") {
		return Type{internalName}
	}
	return Type{"L" + internalName + ";"}
}

// ArrayOf returns the one-dimensional array type of elem.
func ArrayOf(elem Type) Type {
	return Type{"[" + elem.desc}
}

// Parse parses a single field descriptor such as "I" or "Ljava/lang/String;".
func Parse(desc string) (Type, error) {
	t, n, err := parseOne(desc, 0)
	if err != nil {
		return Type{}, err
	}
	if n != len(desc) {
		return Type{}, fmt.Errorf("trailing characters in descriptor %q", desc)
	}
	return t, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(desc string) Type {
	t, err := Parse(desc)
	if err != nil {
		panic(err)
	}
	return t
}

func parseOne(s string, i int) (Type, int, error) {
	if i >= len(s) {
		return Type{}, i, fmt.Errorf("unexpected end of descriptor %q", s)
	}
	start := i
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return Type{}, i, fmt.Errorf("array without element type in %q", s)
	}
	switch s[i] {
	case 'V':
		if i != start {
			return Type{}, i, fmt.Errorf("array of void in %q", s)
		}
		i++
	case 'Z', 'C', 'B', 'S', 'I', 'F', 'J', 'D':
		i++
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			return Type{}, i, fmt.Errorf("unterminated class type in %q", s)
		}
		i += end + 1
	default:
		return Type{}, i, fmt.Errorf("invalid type descriptor char '%c' in %s", s[i], s)
	}
	return Type{s[start:i]}, i, nil
}

// Descriptor returns the field descriptor.
func (t Type) Descriptor() string { return t.desc }

func (t Type) String() string { return t.desc }

// IsZero reports whether t is the zero Type.
func (t Type) IsZero() bool { return t.desc == "" }

// Sort returns the kind of t.
func (t Type) Sort() Sort {
	if t.desc == "" {
		return SortVoid
	}
	switch t.desc[0] {
	case 'Z':
		return SortBoolean
	case 'C':
		return SortChar
	case 'B':
		return SortByte
	case 'S':
		return SortShort
	case 'I':
		return SortInt
	case 'F':
		return SortFloat
	case 'J':
		return SortLong
	case 'D':
		return SortDouble
	case '[':
		return SortArray
	case 'L':
		return SortObject
	}
	return SortVoid
}

// IsReference reports whether t is an object or array type.
func (t Type) IsReference() bool {
	s := t.Sort()
	return s == SortObject || s == SortArray
}

// InternalName returns the internal name for object types ("java/lang/String")
// and the descriptor for arrays.
func (t Type) InternalName() string {
	if t.Sort() == SortObject {
		return t.desc[1 : len(t.desc)-1]
	}
	return t.desc
}

// Size returns the number of local variable slots a value of type t occupies.
func (t Type) Size() int {
	switch t.Sort() {
	case SortVoid:
		return 0
	case SortLong, SortDouble:
		return 2
	}
	return 1
}

// Method is a method name plus its descriptor.
type Method struct {
	Name       string
	Descriptor string
}

func (m Method) String() string { return m.Name + m.Descriptor }

// IsZero reports whether m is unset.
func (m Method) IsZero() bool { return m.Name == "" && m.Descriptor == "" }

// ArgumentTypes returns the parameter types of m.
func (m Method) ArgumentTypes() ([]Type, error) { return ArgumentTypes(m.Descriptor) }

// ReturnType returns the return type of m.
func (m Method) ReturnType() (Type, error) { return ReturnType(m.Descriptor) }

// MethodDescriptor builds "(args)ret".
func MethodDescriptor(ret Type, args ...Type) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, a := range args {
		sb.WriteString(a.desc)
	}
	sb.WriteByte(')')
	sb.WriteString(ret.desc)
	return sb.String()
}

// ArgumentTypes parses the parameter list of a method descriptor.
func ArgumentTypes(desc string) ([]Type, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, fmt.Errorf("invalid method descriptor: %s", desc)
	}
	end := strings.IndexByte(desc, ')')
	if end < 0 {
		return nil, fmt.Errorf("invalid method descriptor: %s", desc)
	}
	var args []Type
	for i := 1; i < end; {
		t, next, err := parseOne(desc[:end], i)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
		i = next
	}
	return args, nil
}

// ReturnType parses the return type of a method descriptor.
func ReturnType(desc string) (Type, error) {
	end := strings.IndexByte(desc, ')')
	if !strings.HasPrefix(desc, "(") || end < 0 {
		return Type{}, fmt.Errorf("invalid method descriptor: %s", desc)
	}
	return Parse(desc[end+1:])
}

// ArgumentsSize returns the number of slots taken by the parameters of desc,
// not counting the receiver.
func ArgumentsSize(desc string) (int, error) {
	args, err := ArgumentTypes(desc)
	if err != nil {
		return 0, err
	}
	size := 0
	for _, a := range args {
		size += a.Size()
	}
	return size, nil
}
