package mutability

import (
	"fmt"
	"strings"

	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/classindex"
	"github.com/daimatz/lambdainline/pkg/descriptor"
)

// HostFromClass reads the instance methods of a compiled host interface.
// Descriptors are erased, so type variables show up as java.lang.Object.
func HostFromClass(cf *classfile.ClassFile, typeParams []string) (*HostClass, error) {
	internal, err := cf.ClassName()
	if err != nil {
		return nil, err
	}
	h := &HostClass{Name: SourceName(internal), TypeParameters: typeParams}
	for _, m := range cf.Methods {
		if m.AccessFlags&(classfile.AccStatic|classfile.AccSynthetic) != 0 || strings.HasPrefix(m.Name, "<") {
			continue
		}
		args, err := descriptor.ArgumentTypes(m.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", internal, m.Name, err)
		}
		ret, err := descriptor.ReturnType(m.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", internal, m.Name, err)
		}
		method := Method{Name: m.Name, Return: javaTypeName(ret)}
		for _, a := range args {
			method.Params = append(method.Params, Param{Type: javaTypeName(a)})
		}
		h.Methods = append(h.Methods, method)
	}
	return h, nil
}

// LoadHost finds the host interface of a mapping in idx.
func (t *Table) LoadHost(idx classindex.Index, host string) (*HostClass, error) {
	m, ok := t.HostOf(host)
	if !ok {
		return nil, fmt.Errorf("%s: %w", host, ErrNotMapped)
	}
	cf, err := classindex.LoadClass(idx, InternalName(host), classfile.SkipCode())
	if err != nil {
		return nil, err
	}
	return HostFromClass(cf, m.TypeParameters)
}

// SourceName turns an internal name into a source name:
// "java/util/Map$Entry" becomes "java.util.Map.Entry".
func SourceName(internal string) string {
	return strings.NewReplacer("/", ".", "$", ".").Replace(internal)
}

// InternalName is the inverse of SourceName for names whose packages are
// lower case.
func InternalName(source string) string {
	parts := strings.Split(source, ".")
	for i, p := range parts {
		if p != "" && p[0] >= 'A' && p[0] <= 'Z' {
			return strings.Join(parts[:i], "/") + "/" + strings.Join(parts[i:], "$")
		}
	}
	return strings.Join(parts, "/")
}

var primitiveNames = map[descriptor.Sort]string{
	descriptor.SortVoid:    "void",
	descriptor.SortBoolean: "boolean",
	descriptor.SortChar:    "char",
	descriptor.SortByte:    "byte",
	descriptor.SortShort:   "short",
	descriptor.SortInt:     "int",
	descriptor.SortFloat:   "float",
	descriptor.SortLong:    "long",
	descriptor.SortDouble:  "double",
}

func javaTypeName(t descriptor.Type) string {
	switch t.Sort() {
	case descriptor.SortObject:
		return SourceName(t.InternalName())
	case descriptor.SortArray:
		return javaTypeName(descriptor.MustParse(t.Descriptor()[1:])) + "[]"
	}
	return primitiveNames[t.Sort()]
}
