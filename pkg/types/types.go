// Package types holds the semantic types and declaration descriptors the
// front end hands to the backend. Only what lambda inlining reads is modelled.
package types

import (
	"fmt"
	"strings"

	"github.com/daimatz/lambdainline/pkg/name"
)

// Type is a resolved type: a classifier with type arguments.
type Type struct {
	Classifier name.FqName
	Arguments  []*Type
	Nullable   bool

	// TypeParameter is set for references to a generic parameter such as T;
	// Classifier then holds the parameter name.
	TypeParameter bool
}

// Builtin classifiers.
const (
	AnyName     name.FqName = "kotlin.Any"
	UnitName    name.FqName = "kotlin.Unit"
	NothingName name.FqName = "kotlin.Nothing"
	StringName  name.FqName = "kotlin.String"
	IntName     name.FqName = "kotlin.Int"
	LongName    name.FqName = "kotlin.Long"
	BooleanName name.FqName = "kotlin.Boolean"
	DoubleName  name.FqName = "kotlin.Double"
	FloatName   name.FqName = "kotlin.Float"
	CharName    name.FqName = "kotlin.Char"
	ByteName    name.FqName = "kotlin.Byte"
	ShortName   name.FqName = "kotlin.Short"
)

// Simple returns a non-generic type.
func Simple(classifier name.FqName) *Type {
	return &Type{Classifier: classifier}
}

// Param returns a reference to the type parameter called n.
func Param(n string) *Type {
	return &Type{Classifier: name.FqName(n), TypeParameter: true}
}

var (
	Any     = Simple(AnyName)
	Unit    = Simple(UnitName)
	String  = Simple(StringName)
	Int     = Simple(IntName)
	Long    = Simple(LongName)
	Boolean = Simple(BooleanName)
	Double  = Simple(DoubleName)
)

// NullableAny is "Any?", the erasure of every generic parameter.
var NullableAny = &Type{Classifier: AnyName, Nullable: true}

// MakeNullable returns a nullable copy of t.
func (t *Type) MakeNullable() *Type {
	c := *t
	c.Nullable = true
	return &c
}

const functionPrefix = "kotlin.Function"

// FunctionType returns the type "(params) -> ret", i.e. kotlin.FunctionN
// with the parameter types followed by the return type as arguments.
func FunctionType(ret *Type, params ...*Type) *Type {
	args := append(append([]*Type(nil), params...), ret)
	return &Type{Classifier: name.FqName(fmt.Sprintf("%s%d", functionPrefix, len(params))), Arguments: args}
}

// IsFunctionType reports whether t is one of the kotlin.FunctionN types.
func (t *Type) IsFunctionType() bool {
	if t == nil || t.TypeParameter {
		return false
	}
	s := string(t.Classifier)
	if !strings.HasPrefix(s, functionPrefix) {
		return false
	}
	for _, r := range s[len(functionPrefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > len(functionPrefix)
}

// FunctionArity returns N for kotlin.FunctionN, or -1.
func (t *Type) FunctionArity() int {
	if !t.IsFunctionType() {
		return -1
	}
	return len(t.Arguments) - 1
}

// String renders t in source form.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	if t.IsFunctionType() {
		params := make([]string, 0, len(t.Arguments)-1)
		for _, a := range t.Arguments[:len(t.Arguments)-1] {
			params = append(params, a.String())
		}
		fmt.Fprintf(&sb, "(%s) -> %s", strings.Join(params, ", "), t.Arguments[len(t.Arguments)-1])
	} else {
		sb.WriteString(string(t.Classifier.ShortName()))
		if len(t.Arguments) > 0 {
			args := make([]string, len(t.Arguments))
			for i, a := range t.Arguments {
				args[i] = a.String()
			}
			fmt.Fprintf(&sb, "<%s>", strings.Join(args, ", "))
		}
	}
	if t.Nullable {
		sb.WriteByte('?')
	}
	return sb.String()
}
