// Package codegen generates method bodies for lambda literals and callable
// references, and tracks the nesting of code generation contexts.
package codegen

import (
	"github.com/daimatz/lambdainline/pkg/binding"
	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/types"
)

// Kind is the kind of a code generation context.
type Kind int

const (
	KindPackage Kind = iota
	KindClass
	KindMethod
	KindClosure
	KindAnonymousClass
	KindInlinedLambda
)

var kindNames = [...]string{"package", "class", "method", "closure", "anonymous class", "inlined lambda"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Context is one level of the code generation scope chain.
type Context struct {
	Kind   Kind
	Parent *Context

	// SourceFile is the name of the file being compiled, inherited by nested
	// contexts.
	SourceFile string
	// Owner is the JVM class that receives the generated code.
	Owner descriptor.Type

	Function *types.FunctionDescriptor
	Class    *types.ClassDescriptor
	Closure  *binding.Closure

	IsCrossinline       bool
	IsPropertyReference bool
}

// NewPackageContext returns the root context of a source file whose
// top-level declarations compile into facade.
func NewPackageContext(sourceFile, facade string) *Context {
	return &Context{Kind: KindPackage, SourceFile: sourceFile, Owner: descriptor.ObjectType(facade)}
}

func (c *Context) child(kind Kind) *Context {
	return &Context{
		Kind:       kind,
		Parent:     c,
		SourceFile: c.SourceFile,
		Owner:      c.Owner,
		Function:   c.Function,
		Class:      c.Class,
		Closure:    c.Closure,
	}
}

// IntoFunction enters the body of f.
func (c *Context) IntoFunction(f *types.FunctionDescriptor) *Context {
	ctx := c.child(KindMethod)
	ctx.Function = f
	return ctx
}

// IntoClosure enters the class generated for lambda literal f.
func (c *Context) IntoClosure(f *types.FunctionDescriptor, class descriptor.Type, closure *binding.Closure) *Context {
	ctx := c.child(KindClosure)
	ctx.Function = f
	ctx.Owner = class
	ctx.Closure = closure
	return ctx
}

// IntoAnonymousClass enters the class generated for a callable reference.
func (c *Context) IntoAnonymousClass(cls *types.ClassDescriptor, class descriptor.Type, closure *binding.Closure) *Context {
	ctx := c.child(KindAnonymousClass)
	ctx.Class = cls
	ctx.Owner = class
	ctx.Closure = closure
	return ctx
}

// IntoInlinedLambda enters the invoke method of a lambda that is about to be
// inlined.
func (c *Context) IntoInlinedLambda(f *types.FunctionDescriptor, isCrossinline, isPropertyReference bool) *Context {
	ctx := c.child(KindInlinedLambda)
	ctx.Function = f
	ctx.IsCrossinline = isCrossinline
	ctx.IsPropertyReference = isPropertyReference
	return ctx
}

// Root returns the outermost context.
func (c *Context) Root() *Context {
	for c.Parent != nil {
		c = c.Parent
	}
	return c
}

// MethodAccessFlags returns the access flags of a method generated for f in
// a context of the given kind.
func MethodAccessFlags(f *types.FunctionDescriptor, kind Kind) uint16 {
	flags := uint16(classfile.AccPublic)
	if f.IsStatic {
		flags |= classfile.AccStatic
	}
	switch kind {
	case KindClosure, KindAnonymousClass, KindInlinedLambda:
		flags |= classfile.AccFinal
	}
	return flags
}
