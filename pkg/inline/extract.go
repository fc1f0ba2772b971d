package inline

import (
	"fmt"
	"strings"

	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/smap"
	"github.com/daimatz/lambdainline/pkg/typemap"
	"github.com/daimatz/lambdainline/pkg/types"
)

// FindMethodNode decodes method name+desc of the class in classBytes and
// pairs it with the class's source map: the embedded SourceDebugExtension
// when present, otherwise the identity map of the method's lines. It returns
// nil, nil when the class has no such method.
func FindMethodNode(classBytes []byte, name, desc, owner string) (*smap.SMAPAndMethodNode, error) {
	cf, err := classfile.ParseBytes(classBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", owner, err)
	}
	m := cf.FindMethod(name, desc)
	if m == nil {
		return nil, nil
	}
	node, err := bytecode.Decode(m, cf.ConstantPool)
	if err != nil {
		return nil, fmt.Errorf("decoding %s.%s%s: %w", owner, name, desc, err)
	}

	var sm *smap.SMAP
	if cf.SourceDebugExtension != "" {
		sm, err = smap.Parse(cf.SourceDebugExtension)
		if err != nil {
			return nil, fmt.Errorf("source map of %s: %w", owner, err)
		}
	} else {
		lo, hi := node.LineRange()
		sm = smap.Default(cf.SourceFile, owner, lo, hi)
	}
	return &smap.SMAPAndMethodNode{Node: node, SMAP: sm}, nil
}

// findCapturedFieldAssignments returns the putfield instructions of a lambda
// constructor that store a constructor argument into a field of the lambda:
//
//	aload 0
//	<load argument>
//	putfield Owner.field
//
// Other field writes, such as a field initialized to a constant, are skipped.
func findCapturedFieldAssignments(ctor *bytecode.MethodNode) ([]*bytecode.FieldInsn, error) {
	argSlots, err := descriptor.ArgumentsSize(ctor.Desc)
	if err != nil {
		return nil, fmt.Errorf("constructor %s: %w", ctor.Desc, err)
	}
	insns := ctor.RealInstructions()
	var out []*bytecode.FieldInsn
	for i := 2; i < len(insns); i++ {
		f, ok := insns[i].(*bytecode.FieldInsn)
		if !ok || f.Op != bytecode.OpPutfield {
			continue
		}
		this, ok := insns[i-2].(*bytecode.VarInsn)
		if !ok || this.Op != bytecode.OpAload || this.Var != 0 {
			continue
		}
		arg, ok := insns[i-1].(*bytecode.VarInsn)
		if !ok || !bytecode.IsLoad(arg.Op) || arg.Var < 1 || arg.Var > argSlots {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// selectInvoke picks the invoke method to inline among the invoke
// descriptors a lambda class declares. With two candidates, one is the
// erased bridge and the other is taken.
func selectInvoke(class string, invokes []string, erased string) (string, error) {
	switch len(invokes) {
	case 0:
		return "", internalErrorf("can't find invoke method in %s", class)
	case 1:
		return invokes[0], nil
	case 2:
		var rest []string
		for _, d := range invokes {
			if d != erased {
				rest = append(rest, d)
			}
		}
		if len(rest) == 1 {
			return rest[0], nil
		}
	}
	return "", internalErrorf("there are too many invoke methods in class %s, invoke descriptors: %s", class, strings.Join(invokes, ", "))
}

// ExtractDefaultLambdas finds the lambdas that the $default stub of an
// inline function constructs for parameters left out at the call site:
//
//	new C
//	dup
//	<loads of stub locals>
//	invokespecial C.<init>(...)V
//	astore k
//
// where k is the slot of a parameter of function type. f describes the
// inline function; its leading stub slots coincide with its parameters.
func ExtractDefaultLambdas(stub *bytecode.MethodNode, f *types.FunctionDescriptor) ([]*DefaultLambda, error) {
	slot := 0
	if stub.Access&classfile.AccStatic == 0 {
		slot = 1
	}
	mapper := typemap.NewMapper()
	if f.ExtensionReceiver != nil {
		slot += mapper.MapType(f.ExtensionReceiver).Size()
	}
	functional := make(map[int]*types.ValueParameterDescriptor)
	for _, p := range f.ValueParameters {
		if p.Type.IsFunctionType() {
			functional[slot] = p
		}
		slot += mapper.MapType(p.Type).Size()
	}

	insns := stub.RealInstructions()
	var out []*DefaultLambda
	for i := 0; i+3 < len(insns); i++ {
		n, ok := insns[i].(*bytecode.TypeInsn)
		if !ok || n.Op != bytecode.OpNew {
			continue
		}
		if insns[i+1].Opcode() != bytecode.OpDup {
			continue
		}
		j := i + 2
		var loads []bytecode.Node
		for j < len(insns) {
			v, ok := insns[j].(*bytecode.VarInsn)
			if !ok || !bytecode.IsLoad(v.Op) {
				break
			}
			loads = append(loads, v)
			j++
		}
		if j+1 >= len(insns) {
			break
		}
		ctor, ok := insns[j].(*bytecode.MethodInsn)
		if !ok || ctor.Op != bytecode.OpInvokespecial || ctor.Owner != n.Type || ctor.Name != "<init>" {
			continue
		}
		store, ok := insns[j+1].(*bytecode.VarInsn)
		if !ok || store.Op != bytecode.OpAstore {
			continue
		}
		param := functional[store.Var]
		if param == nil {
			continue
		}
		args, err := descriptor.ArgumentTypes(ctor.Desc)
		if err != nil {
			return nil, fmt.Errorf("default lambda %s: %w", n.Type, err)
		}
		if len(args) != len(loads) {
			return nil, internalErrorf("default lambda %s takes %d arguments but %d are loaded", n.Type, len(args), len(loads))
		}
		out = append(out, NewDefaultLambda(descriptor.ObjectType(n.Type), args, param, loads, i))
		i = j + 1
	}
	return out, nil
}
