package inline

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/classindex"
	"github.com/daimatz/lambdainline/pkg/codegen"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/smap"
	"github.com/daimatz/lambdainline/pkg/types"
)

const functionsPackage = "kotlin/jvm/functions/Function"

// Call is one call of an inline function to be inlined.
//
// At the call site the caller pushes the receiver (for instance methods) and
// every argument except those bound to a lambda in Lambdas.
type Call struct {
	Site   *bytecode.MethodInsn
	Owner  string
	Method descriptor.Method
	// Function describes the inline function. It is needed to find default
	// lambdas when Method is a $default stub.
	Function *types.FunctionDescriptor
	// Lambdas maps a parameter index of Method to the lambda passed for it.
	Lambdas map[int]LambdaInfo
	// Remapper resolves fields captured by expression lambdas.
	Remapper FieldRemapper
}

// Inliner replaces calls of inline functions in one caller method.
type Inliner struct {
	Env    *Env
	Caller *bytecode.MethodNode
	Mapper *smap.SourceMapper

	nextLocal int
}

// NewInliner starts inlining into caller. mapper may be nil, in which case
// inlined line numbers are dropped.
func NewInliner(env *Env, caller *bytecode.MethodNode, mapper *smap.SourceMapper) (*Inliner, error) {
	n, err := bytecode.LocalsSize(caller)
	if err != nil {
		return nil, fmt.Errorf("locals of %s%s: %w", caller.Name, caller.Desc, err)
	}
	if caller.MaxLocals > n {
		n = caller.MaxLocals
	}
	return &Inliner{Env: env, Caller: caller, Mapper: mapper, nextLocal: n}, nil
}

// InlineAll inlines every call. Calls are independent; all of them are
// attempted and the errors are combined. Max stack and locals of the caller
// are recomputed at the end. The caller is only updated when every call was
// inlined and the result passes the stack analysis.
func (in *Inliner) InlineAll(calls []*Call) error {
	caller, nextLocal := in.Caller, in.nextLocal
	staged := *caller
	in.Caller = &staged
	defer func() { in.Caller = caller }()

	var err error
	for _, c := range calls {
		err = multierr.Append(err, in.InlineCall(c))
	}
	if err == nil {
		err = bytecode.ComputeMaxs(&staged)
	}
	if err != nil {
		in.nextLocal = nextLocal
		return err
	}
	*caller = staged
	return nil
}

func (in *Inliner) reserve(n int) int {
	base := in.nextLocal
	in.nextLocal += n
	return base
}

// InlineCall replaces c.Site in the caller with the body of the inline
// function, splicing lambda bodies in place of their invoke calls.
func (in *Inliner) InlineCall(c *Call) error {
	at := -1
	for i, n := range in.Caller.Instructions {
		if n == bytecode.Node(c.Site) {
			at = i
			break
		}
	}
	if at < 0 {
		return internalErrorf("call of %s.%s is not in %s%s", c.Owner, c.Method, in.Caller.Name, in.Caller.Desc)
	}

	data, err := in.Env.Classes.LookupClassBytes(c.Owner)
	if err != nil {
		if errors.Is(err, classindex.ErrClassNotFound) {
			return wrapInternal(err, "inline function owner %s", c.Owner)
		}
		return fmt.Errorf("reading %s: %w", c.Owner, err)
	}
	found, err := FindMethodNode(data, c.Method.Name, c.Method.Descriptor, c.Owner)
	if err != nil {
		return err
	}
	if found == nil {
		return internalErrorf("inline function %s.%s not found", c.Owner, c.Method)
	}
	callee := found.Node.Clone()

	lambdas := make(map[int]LambdaInfo, len(c.Lambdas))
	for k, l := range c.Lambdas {
		lambdas[k] = l
	}
	removed := make(map[bytecode.Node]bool)
	if strings.HasSuffix(c.Method.Name, "$default") && c.Function != nil {
		defaults, err := ExtractDefaultLambdas(callee, c.Function)
		if err != nil {
			return err
		}
		realInsns := callee.RealInstructions()
		for _, d := range defaults {
			// new, dup, the loads, invokespecial, astore
			for k := d.Offset; k < d.Offset+len(d.InitInstructions)+4; k++ {
				removed[realInsns[k]] = true
			}
			idx := d.Parameter.Index
			if c.Function.ExtensionReceiver != nil {
				idx++
			}
			if _, ok := lambdas[idx]; !ok {
				lambdas[idx] = d
			}
		}
	}

	size, err := bytecode.LocalsSize(callee)
	if err != nil {
		return fmt.Errorf("locals of %s.%s: %w", c.Owner, c.Method, err)
	}
	if callee.MaxLocals > size {
		size = callee.MaxLocals
	}
	base := in.reserve(size)

	frag := &Fragment{}
	lambdaSlots := make(map[int]LambdaInfo)
	if err := in.storeArguments(frag, callee, c, lambdas, base, lambdaSlots); err != nil {
		return err
	}

	depths, err := bytecode.StackDepths(callee)
	if err != nil {
		return fmt.Errorf("stack of %s.%s: %w", c.Owner, c.Method, err)
	}

	end := &bytecode.Label{}
	insns := callee.Instructions
	last := lastReal(insns)
	var pending []pendingLambda
	for i, n := range insns {
		if removed[n] {
			continue
		}
		switch n := n.(type) {
		case *bytecode.LineNumber:
			if line := in.mapLine(n.Line, found.SMAP); line > 0 {
				frag.add(&bytecode.LineNumber{Line: line, Start: n.Start})
			}
		case *bytecode.VarInsn:
			if l, ok := lambdaSlots[n.Var]; ok {
				if n.Op != bytecode.OpAload {
					return internalErrorf("lambda parameter %d of %s.%s is not only invoked", n.Var, c.Owner, c.Method)
				}
				pending = append(pending, pendingLambda{l, depths[i]})
				continue
			}
			n.Var += base
			frag.add(n)
		case *bytecode.IincInsn:
			n.Var += base
			frag.add(n)
		case *bytecode.MethodInsn:
			if !isFunctionInvoke(n) {
				frag.add(n)
				continue
			}
			args, err := descriptor.ArgumentTypes(n.Desc)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", c.Owner, c.Method, err)
			}
			k := receiverOf(pending, depths[i], len(args))
			if k < 0 {
				// a function value that is not inlined
				frag.add(n)
				continue
			}
			l := pending[k].lambda
			pending = append(pending[:k], pending[k+1:]...)
			spliced, err := in.spliceLambda(l, c, base, len(args))
			if err != nil {
				return err
			}
			frag.add(spliced.Instructions...)
			frag.TryCatchBlocks = append(frag.TryCatchBlocks, spliced.TryCatchBlocks...)
			frag.LocalVariables = append(frag.LocalVariables, spliced.LocalVariables...)
		case *bytecode.Insn:
			if !bytecode.IsReturn(n.Op) {
				frag.add(n)
				continue
			}
			if i != last {
				frag.add(&bytecode.JumpInsn{Op: bytecode.OpGoto, Target: end})
			}
		default:
			frag.add(n)
		}
	}
	if len(pending) > 0 {
		return internalErrorf("lambda %s is loaded but never invoked in %s.%s", pending[0].lambda.LambdaClassType(), c.Owner, c.Method)
	}
	frag.add(end)

	frag.TryCatchBlocks = append(frag.TryCatchBlocks, callee.TryCatchBlocks...)
	for _, lv := range callee.LocalVariables {
		if _, ok := lambdaSlots[lv.Index]; ok {
			continue
		}
		lv.Index += base
		frag.LocalVariables = append(frag.LocalVariables, lv)
	}

	m := in.Caller
	out := make([]bytecode.Node, 0, len(m.Instructions)+len(frag.Instructions))
	out = append(out, m.Instructions[:at]...)
	out = append(out, frag.Instructions...)
	out = append(out, m.Instructions[at+1:]...)
	m.Instructions = out
	m.TryCatchBlocks = append(m.TryCatchBlocks, frag.TryCatchBlocks...)
	m.LocalVariables = append(m.LocalVariables, frag.LocalVariables...)
	log.Debugf("inlined %s.%s into %s%s with %d lambdas", c.Owner, c.Method, m.Name, m.Desc, len(lambdas))
	return nil
}

// pendingLambda is a load of a lambda parameter waiting for its invoke.
type pendingLambda struct {
	lambda LambdaInfo
	depth  int
}

// receiverOf returns the index of the pending lambda that is the receiver of
// an invoke taking arity objects with the stack at depth, or -1.
func receiverOf(pending []pendingLambda, depth, arity int) int {
	recv := -1
	if depth >= 0 {
		recv = depth - arity - 1
	}
	for k := len(pending) - 1; k >= 0; k-- {
		if pending[k].depth == recv {
			return k
		}
	}
	return -1
}

// storeArguments stores the pushed arguments into the callee's slots shifted
// by base and records the slots that hold lambdas.
func (in *Inliner) storeArguments(frag *Fragment, callee *bytecode.MethodNode, c *Call, lambdas map[int]LambdaInfo, base int, lambdaSlots map[int]LambdaInfo) error {
	args, err := c.Method.ArgumentTypes()
	if err != nil {
		return fmt.Errorf("arguments of %s.%s: %w", c.Owner, c.Method, err)
	}
	type store struct {
		t    descriptor.Type
		slot int
	}
	var stores []store
	slot := 0
	if callee.Access&classfile.AccStatic == 0 {
		stores = append(stores, store{descriptor.ObjectType(c.Owner), 0})
		slot = 1
	}
	for i, t := range args {
		if l, ok := lambdas[i]; ok {
			lambdaSlots[slot] = l
		} else {
			stores = append(stores, store{t, slot})
		}
		slot += t.Size()
	}
	for i := len(stores) - 1; i >= 0; i-- {
		frag.add(&bytecode.VarInsn{Op: codegen.StoreOpcode(stores[i].t), Var: base + stores[i].slot})
	}
	return nil
}

// spliceLambda generates l when needed and splices it for an invoke with
// arity arguments of the callee whose frame starts at calleeBase.
func (in *Inliner) spliceLambda(l LambdaInfo, c *Call, calleeBase, arity int) (*Fragment, error) {
	if l.State() == Pending {
		if err := l.GenerateLambdaBody(in.Env); err != nil {
			return nil, err
		}
	}
	params, err := l.InvokeMethod().ArgumentTypes()
	if err != nil {
		return nil, fmt.Errorf("invoke of %s: %w", l.LambdaClassType(), err)
	}
	if len(params) != arity {
		return nil, internalErrorf("lambda %s takes %d arguments but is invoked with %d in %s.%s", l.LambdaClassType(), len(params), arity, c.Owner, c.Method)
	}

	remapper := c.Remapper
	if d, ok := l.(*DefaultLambda); ok {
		slots, err := d.CapturedArgSlots()
		if err != nil {
			return nil, err
		}
		r := NewCapturedFieldRemapper(c.Remapper)
		for i, desc := range d.CapturedVars() {
			if i >= len(slots) {
				return nil, internalErrorf("default lambda %s captures more fields than it is constructed with", d.LambdaClassType())
			}
			r.Add(desc, calleeBase+slots[i])
		}
		remapper = r
	}
	if remapper == nil {
		remapper = NewCapturedFieldRemapper(nil)
	}

	all, err := AddAllParameters(l, remapper)
	if err != nil {
		return nil, err
	}
	size, err := bytecode.LocalsSize(l.Node().Node)
	if err != nil {
		return nil, fmt.Errorf("locals of %s: %w", l.LambdaClassType(), err)
	}
	if size < 1 {
		size = 1
	}
	s := &Splicer{Base: in.reserve(size - 1), Mapper: in.Mapper}
	return s.Splice(l, all)
}

func (in *Inliner) mapLine(line int, from *smap.SMAP) int {
	if in.Mapper == nil {
		return -1
	}
	return in.Mapper.MapLineNumber(line, from)
}

func isFunctionInvoke(n *bytecode.MethodInsn) bool {
	return n.Op == bytecode.OpInvokeinterface && n.Name == invokeName && strings.HasPrefix(n.Owner, functionsPackage)
}
