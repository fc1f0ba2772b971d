// Package binding holds the results of name and type resolution, keyed by
// syntax nodes and declarations.
package binding

import (
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/syntax"
	"github.com/daimatz/lambdainline/pkg/types"
)

// Callable is a function or property descriptor that can be turned into an
// anonymous class.
type Callable interface{}

// Context is the set of resolution tables for one compilation.
type Context struct {
	functions        map[syntax.Expr]*types.FunctionDescriptor
	variables        map[syntax.Expr]types.Variable
	references       map[syntax.Expr]types.Variable
	calls            map[syntax.Expr]*types.FunctionDescriptor
	anonymousClasses map[Callable]*types.ClassDescriptor
	closures         map[*types.ClassDescriptor]*Closure
}

func NewContext() *Context {
	return &Context{
		functions:        make(map[syntax.Expr]*types.FunctionDescriptor),
		variables:        make(map[syntax.Expr]types.Variable),
		references:       make(map[syntax.Expr]types.Variable),
		calls:            make(map[syntax.Expr]*types.FunctionDescriptor),
		anonymousClasses: make(map[Callable]*types.ClassDescriptor),
		closures:         make(map[*types.ClassDescriptor]*Closure),
	}
}

// RecordFunction binds a lambda literal to its function descriptor.
func (c *Context) RecordFunction(e syntax.Expr, f *types.FunctionDescriptor) {
	c.functions[e] = f
}

// Function returns the function declared by e, or nil.
func (c *Context) Function(e syntax.Expr) *types.FunctionDescriptor {
	return c.functions[e]
}

// RecordVariable binds a callable reference to the property it denotes.
func (c *Context) RecordVariable(e syntax.Expr, v types.Variable) {
	c.variables[e] = v
}

// Variable returns the variable declared or referenced by e, or nil.
func (c *Context) Variable(e syntax.Expr) types.Variable {
	return c.variables[e]
}

// RecordReference resolves a name reference.
func (c *Context) RecordReference(e syntax.Expr, v types.Variable) {
	c.references[e] = v
}

// Reference returns the variable a name reference resolves to, or nil.
func (c *Context) Reference(e syntax.Expr) types.Variable {
	return c.references[e]
}

// RecordCall resolves a call expression to its target.
func (c *Context) RecordCall(e syntax.Expr, f *types.FunctionDescriptor) {
	c.calls[e] = f
}

// ResolvedCall returns the function a call expression invokes, or nil.
func (c *Context) ResolvedCall(e syntax.Expr) *types.FunctionDescriptor {
	return c.calls[e]
}

// RecordAnonymousClass records the class generated for a lambda or callable
// reference together with its closure.
func (c *Context) RecordAnonymousClass(callable Callable, class *types.ClassDescriptor, closure *Closure) {
	c.anonymousClasses[callable] = class
	if closure != nil {
		c.closures[class] = closure
	}
}

// AnonymousClassForCallable returns the class generated for callable, or nil.
func (c *Context) AnonymousClassForCallable(callable Callable) *types.ClassDescriptor {
	return c.anonymousClasses[callable]
}

// AsmTypeForAnonymousClass returns the JVM type of the class generated for
// callable.
func (c *Context) AsmTypeForAnonymousClass(callable Callable) (descriptor.Type, bool) {
	cls := c.anonymousClasses[callable]
	if cls == nil || cls.InternalName == "" {
		return descriptor.Type{}, false
	}
	return descriptor.ObjectType(cls.InternalName), true
}

// Closure returns the closure of a generated class, or nil.
func (c *Context) Closure(class *types.ClassDescriptor) *Closure {
	return c.closures[class]
}
