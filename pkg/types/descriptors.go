package types

import (
	"strings"

	"github.com/daimatz/lambdainline/pkg/name"
)

// ClassDescriptor is a class, including the synthetic classes generated for
// lambdas and callable references.
type ClassDescriptor struct {
	FqName name.FqName
	// InternalName is the JVM name ("pkg/Outer$1"); derived from FqName when
	// empty.
	InternalName string
	Supertypes   []*Type
}

// ValueParameterDescriptor is one declared parameter of a function.
type ValueParameterDescriptor struct {
	Name            name.Name
	Index           int
	Type            *Type
	IsCrossinline   bool
	IsNoinline      bool
	HasDefaultValue bool
}

// FunctionDescriptor is a resolved function. Lambda literals are functions
// named name.Anonymous.
type FunctionDescriptor struct {
	Name name.Name
	// Owner is the containing class; nil for top-level functions.
	Owner *ClassDescriptor
	// Facade is the JVM class holding a top-level function ("pkg/FileKt").
	Facade string

	ExtensionReceiver *Type
	ValueParameters   []*ValueParameterDescriptor
	ReturnType        *Type

	IsInline bool
	IsStatic bool
}

// IsAnonymous reports whether f is a lambda literal.
func (f *FunctionDescriptor) IsAnonymous() bool {
	return f.Name == name.Anonymous
}

// Variable is a local variable, value parameter or property. It is the key of
// the captured-variable table of a closure.
type Variable interface {
	VariableName() name.Name
	VariableType() *Type
}

// LocalVariableDescriptor is a local "val"/"var" or a parameter seen from
// inside a function body.
type LocalVariableDescriptor struct {
	Name    name.Name
	Type    *Type
	Mutable bool
}

func (v *LocalVariableDescriptor) VariableName() name.Name { return v.Name }
func (v *LocalVariableDescriptor) VariableType() *Type { return v.Type }

// PropertyDescriptor is a member or top-level property with accessors.
type PropertyDescriptor struct {
	Name              name.Name
	Type              *Type
	Owner             *ClassDescriptor
	Facade            string
	ExtensionReceiver *Type
	// Getter is the accessor function; nil means the default getter
	// "getName()".
	Getter *FunctionDescriptor
}

func (p *PropertyDescriptor) VariableName() name.Name { return p.Name }
func (p *PropertyDescriptor) VariableType() *Type { return p.Type }

// HasAccessors is always true for properties; plain locals have none.
func (p *PropertyDescriptor) HasAccessors() bool { return true }

// GetterName returns the JVM name of the property getter.
func (p *PropertyDescriptor) GetterName() string {
	if p.Getter != nil {
		return string(p.Getter.Name)
	}
	s := string(p.Name)
	if s == "" {
		return "get"
	}
	return "get" + strings.ToUpper(s[:1]) + s[1:]
}

// WithAccessors is implemented by variables that are read through a getter.
type WithAccessors interface {
	Variable
	HasAccessors() bool
}
