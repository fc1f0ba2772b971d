package codegen

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/daimatz/lambdainline/pkg/binding"
	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/smap"
	"github.com/daimatz/lambdainline/pkg/syntax"
	"github.com/daimatz/lambdainline/pkg/typemap"
	"github.com/daimatz/lambdainline/pkg/types"
)

var log = commonlog.GetLogger("lambdainline.codegen")

// Field names of captured outer instances in generated classes.
const (
	CapturedThisField     = "this$0"
	CapturedReceiverField = "$receiver"
)

// CompileError is a construct the generator cannot compile.
type CompileError struct {
	Line int
	Msg  string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

func errorf(line int, format string, args ...interface{}) error {
	return &CompileError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// BodyGenerator fills a method shell with the body of a lambda literal or
// callable reference and returns the source map of the emitted lines.
type BodyGenerator interface {
	GenerateMethodBody(m *bytecode.MethodNode, f *types.FunctionDescriptor, ctx *Context, body syntax.Expr, sig typemap.Signature) (*smap.SMAP, error)
}

// Generator is the BodyGenerator for the expression subset in package syntax.
type Generator struct {
	Bindings *binding.Context
	Types    *typemap.Mapper
}

var _ BodyGenerator = (*Generator)(nil)

// method is the state of one method being generated.
type method struct {
	g      *Generator
	ctx    *Context
	node   *bytecode.MethodNode
	locals map[types.Variable]localVar
	line   int
	lo, hi int
}

type localVar struct {
	slot int
	t    descriptor.Type
}

func (g *Generator) GenerateMethodBody(m *bytecode.MethodNode, f *types.FunctionDescriptor, ctx *Context, body syntax.Expr, sig typemap.Signature) (*smap.SMAP, error) {
	gm := &method{g: g, ctx: ctx, node: m, locals: make(map[types.Variable]localVar)}
	start, end := &bytecode.Label{Name: "start"}, &bytecode.Label{Name: "end"}
	m.Add(start)

	slot := 0
	if m.Access&classfile.AccStatic == 0 {
		m.LocalVariables = append(m.LocalVariables, bytecode.LocalVariable{Name: "this", Desc: ctx.Owner.Descriptor(), Start: start, End: end, Index: 0})
		slot = 1
	}
	firstValueParam := 0
	if f.ExtensionReceiver != nil {
		firstValueParam = 1
	}

	var err error
	switch b := body.(type) {
	case *syntax.Lambda:
		for i, t := range sig.Parameters {
			name := "$receiver"
			if i >= firstValueParam {
				vi := i - firstValueParam
				if vi < len(b.Params) {
					p := b.Params[vi]
					name = p.Name
					if v := g.Bindings.Variable(p); v != nil {
						gm.locals[v] = localVar{slot, t}
					}
				} else {
					name = fmt.Sprintf("p%d", vi)
				}
			}
			m.LocalVariables = append(m.LocalVariables, bytecode.LocalVariable{Name: name, Desc: t.Descriptor(), Start: start, End: end, Index: slot})
			slot += t.Size()
		}
		err = gm.lambdaBody(b, sig.ReturnType)
	case *syntax.CallableReference:
		err = gm.propertyReferenceBody(b, sig)
	default:
		err = errorf(body.Position().Line, "cannot generate a method body for %T", body)
	}
	if err != nil {
		return nil, err
	}
	m.Add(end)

	root := ctx.Root().Owner.InternalName()
	log.Debugf("generated %s%s for %s (lines %d-%d)", m.Name, m.Desc, ctx.Owner.InternalName(), gm.lo, gm.hi)
	return smap.Default(ctx.SourceFile, root, gm.lo, gm.hi), nil
}

func (gm *method) markLine(line int) {
	if line <= 0 || line == gm.line {
		return
	}
	gm.line = line
	l := &bytecode.Label{}
	gm.node.Add(l, &bytecode.LineNumber{Line: line, Start: l})
	if gm.lo == 0 || line < gm.lo {
		gm.lo = line
	}
	if line > gm.hi {
		gm.hi = line
	}
}

func (gm *method) lambdaBody(l *syntax.Lambda, ret descriptor.Type) error {
	if len(l.Body) == 0 {
		gm.markLine(l.Line)
		gm.node.Add(Coerce(descriptor.Void, ret)...)
		gm.node.Add(&bytecode.Insn{Op: ReturnOpcode(ret)})
		return nil
	}
	for i, e := range l.Body {
		t, err := gm.expr(e)
		if err != nil {
			return err
		}
		if i < len(l.Body)-1 {
			gm.node.Add(Pop(t)...)
			continue
		}
		gm.node.Add(Coerce(t, ret)...)
		gm.node.Add(&bytecode.Insn{Op: ReturnOpcode(ret)})
	}
	return nil
}

// expr emits e and returns the JVM type of the value it leaves on the stack.
func (gm *method) expr(e syntax.Expr) (descriptor.Type, error) {
	gm.markLine(e.Position().Line)
	switch n := e.(type) {
	case *syntax.StringLit:
		gm.node.Add(&bytecode.LdcInsn{Value: n.Value})
		return descriptor.String, nil
	case *syntax.IntLit:
		gm.node.Add(PushInt(n.Value))
		return descriptor.Int, nil
	case *syntax.Labeled:
		return gm.expr(n.Expr)
	case *syntax.NameRef:
		return gm.nameRef(n)
	case *syntax.ThisRef:
		return gm.capturedThis(n)
	case *syntax.Call:
		return gm.call(n)
	}
	return descriptor.Type{}, errorf(e.Position().Line, "unsupported expression %T", e)
}

func (gm *method) nameRef(n *syntax.NameRef) (descriptor.Type, error) {
	v := gm.g.Bindings.Reference(n)
	if v == nil {
		return descriptor.Type{}, errorf(n.Line, "unresolved reference: %s", n.Name)
	}
	if lv, ok := gm.locals[v]; ok {
		gm.node.Add(&bytecode.VarInsn{Op: LoadOpcode(lv.t), Var: lv.slot})
		return lv.t, nil
	}
	if gm.ctx.Closure != nil {
		if ev, ok := gm.ctx.Closure.CapturedVariable(v); ok {
			gm.node.Add(
				&bytecode.VarInsn{Op: bytecode.OpAload, Var: 0},
				&bytecode.FieldInsn{Op: bytecode.OpGetfield, Owner: gm.ctx.Owner.InternalName(), Name: ev.FieldName, Desc: ev.Type.Descriptor()},
			)
			return ev.Type, nil
		}
	}
	return descriptor.Type{}, errorf(n.Line, "%s is neither local nor captured", n.Name)
}

func (gm *method) capturedThis(n *syntax.ThisRef) (descriptor.Type, error) {
	if gm.ctx.Closure == nil || gm.ctx.Closure.CaptureThis == nil {
		return descriptor.Type{}, errorf(n.Line, "'this' is not captured")
	}
	t := gm.g.Types.MapClass(gm.ctx.Closure.CaptureThis)
	gm.node.Add(
		&bytecode.VarInsn{Op: bytecode.OpAload, Var: 0},
		&bytecode.FieldInsn{Op: bytecode.OpGetfield, Owner: gm.ctx.Owner.InternalName(), Name: CapturedThisField, Desc: t.Descriptor()},
	)
	return t, nil
}

func (gm *method) call(c *syntax.Call) (descriptor.Type, error) {
	f := gm.g.Bindings.ResolvedCall(c)
	if f == nil {
		return descriptor.Type{}, errorf(c.Line, "unresolved call: %s", c.Callee)
	}
	sig := gm.g.Types.MapSignatureSkipGeneric(f)
	params := sig.Parameters

	op := byte(bytecode.OpInvokestatic)
	owner := f.Facade
	if f.Owner != nil {
		owner = gm.g.Types.MapClass(f.Owner).InternalName()
		if !f.IsStatic {
			op = bytecode.OpInvokevirtual
			if c.Receiver == nil {
				return descriptor.Type{}, errorf(c.Line, "call of member %s without receiver", c.Callee)
			}
			t, err := gm.expr(c.Receiver)
			if err != nil {
				return descriptor.Type{}, err
			}
			gm.node.Add(Coerce(t, gm.g.Types.MapClass(f.Owner))...)
		}
	} else if f.ExtensionReceiver != nil {
		if c.Receiver == nil {
			return descriptor.Type{}, errorf(c.Line, "call of extension %s without receiver", c.Callee)
		}
		t, err := gm.expr(c.Receiver)
		if err != nil {
			return descriptor.Type{}, err
		}
		gm.node.Add(Coerce(t, params[0])...)
		params = params[1:]
	}
	if len(c.Args) != len(params) {
		return descriptor.Type{}, errorf(c.Line, "%s expects %d arguments, got %d", c.Callee, len(params), len(c.Args))
	}
	for i, a := range c.Args {
		t, err := gm.expr(a)
		if err != nil {
			return descriptor.Type{}, err
		}
		gm.node.Add(Coerce(t, params[i])...)
	}
	gm.node.Add(&bytecode.MethodInsn{Op: op, Owner: owner, Name: sig.Method.Name, Desc: sig.Method.Descriptor})
	return sig.ReturnType, nil
}

// propertyReferenceBody emits the get method of a property reference class:
// read the receiver (captured for bound references, the first parameter
// otherwise) and call the getter.
func (gm *method) propertyReferenceBody(ref *syntax.CallableReference, sig typemap.Signature) error {
	gm.markLine(ref.Line)
	prop, ok := gm.g.Bindings.Variable(ref).(*types.PropertyDescriptor)
	if !ok {
		return errorf(ref.Line, "callable reference %s does not denote a property", ref.Callee)
	}
	propType := gm.g.Types.MapType(prop.Type)

	var receiverType descriptor.Type
	switch {
	case prop.Owner != nil:
		receiverType = gm.g.Types.MapClass(prop.Owner)
	case prop.ExtensionReceiver != nil:
		receiverType = gm.g.Types.MapType(prop.ExtensionReceiver)
	}

	if !receiverType.IsZero() {
		if ref.Receiver != nil {
			if gm.ctx.Closure == nil || gm.ctx.Closure.CaptureReceiverType == nil {
				return errorf(ref.Line, "bound reference %s has no captured receiver", ref.Callee)
			}
			captured := gm.g.Types.MapType(gm.ctx.Closure.CaptureReceiverType)
			gm.node.Add(
				&bytecode.VarInsn{Op: bytecode.OpAload, Var: 0},
				&bytecode.FieldInsn{Op: bytecode.OpGetfield, Owner: gm.ctx.Owner.InternalName(), Name: CapturedReceiverField, Desc: captured.Descriptor()},
			)
			gm.node.Add(Coerce(captured, receiverType)...)
		} else {
			if len(sig.Parameters) == 0 {
				return errorf(ref.Line, "unbound reference %s takes no receiver", ref.Callee)
			}
			gm.node.Add(&bytecode.VarInsn{Op: LoadOpcode(sig.Parameters[0]), Var: 1})
			gm.node.Add(Coerce(sig.Parameters[0], receiverType)...)
		}
	}

	if prop.Owner != nil {
		gm.node.Add(&bytecode.MethodInsn{
			Op:    bytecode.OpInvokevirtual,
			Owner: receiverType.InternalName(),
			Name:  prop.GetterName(),
			Desc:  descriptor.MethodDescriptor(propType),
		})
	} else {
		var args []descriptor.Type
		if !receiverType.IsZero() {
			args = append(args, receiverType)
		}
		gm.node.Add(&bytecode.MethodInsn{
			Op:    bytecode.OpInvokestatic,
			Owner: prop.Facade,
			Name:  prop.GetterName(),
			Desc:  descriptor.MethodDescriptor(propType, args...),
		})
	}
	gm.node.Add(Coerce(propType, sig.ReturnType)...)
	gm.node.Add(&bytecode.Insn{Op: ReturnOpcode(sig.ReturnType)})
	return nil
}
