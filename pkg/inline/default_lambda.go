package inline

import (
	"errors"
	"fmt"

	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/classindex"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/typemap"
	"github.com/daimatz/lambdainline/pkg/types"
)

// DefaultLambda is a lambda written as the default value of a parameter of
// an inline function. Its class is already compiled; the body is read back
// from the class bytes.
type DefaultLambda struct {
	lambdaState

	classType    descriptor.Type
	CapturedArgs []descriptor.Type
	Parameter    *types.ValueParameterDescriptor
	// InitInstructions load the constructor arguments in the $default stub.
	InitInstructions []bytecode.Node
	// Offset is the index of the "new" instruction in the stub.
	Offset int

	invoke   descriptor.Method
	erased   *types.FunctionDescriptor
	captured []CapturedParamDesc
}

var _ LambdaInfo = (*DefaultLambda)(nil)

func NewDefaultLambda(classType descriptor.Type, capturedArgs []descriptor.Type, param *types.ValueParameterDescriptor, init []bytecode.Node, offset int) *DefaultLambda {
	return &DefaultLambda{
		lambdaState:      lambdaState{crossInline: param.IsCrossinline},
		classType:        classType,
		CapturedArgs:     capturedArgs,
		Parameter:        param,
		InitInstructions: init,
		Offset:           offset,
		erased:           typemap.InvokeOf(param.Type),
	}
}

func (l *DefaultLambda) LambdaClassType() descriptor.Type { return l.classType }
func (l *DefaultLambda) InvokeMethod() descriptor.Method { return l.invoke }
func (l *DefaultLambda) CapturedVars() []CapturedParamDesc { return l.captured }

func (l *DefaultLambda) ErasedInvokeMethodDescriptor() *types.FunctionDescriptor {
	return l.erased
}

// IsMyLabel is always false: a default value cannot carry a label.
func (l *DefaultLambda) IsMyLabel(string) bool { return false }

// CapturedArgSlots returns, for every constructor argument, the stub slot it
// is loaded from.
func (l *DefaultLambda) CapturedArgSlots() ([]int, error) {
	slots := make([]int, 0, len(l.InitInstructions))
	for _, n := range l.InitInstructions {
		v, ok := n.(*bytecode.VarInsn)
		if !ok || !bytecode.IsLoad(v.Op) {
			return nil, internalErrorf("default lambda %s: argument is not loaded from a local: %s", l.classType, bytecode.Format(n, nil))
		}
		slots = append(slots, v.Var)
	}
	if len(slots) != len(l.CapturedArgs) {
		return nil, internalErrorf("default lambda %s: %d captured args, %d loads", l.classType, len(l.CapturedArgs), len(slots))
	}
	return slots, nil
}

func (l *DefaultLambda) GenerateLambdaBody(env *Env) error {
	if err := l.checkPending(); err != nil {
		return err
	}
	owner := l.classType.InternalName()
	data, err := env.Classes.LookupClassBytes(owner)
	if err != nil {
		if errors.Is(err, classindex.ErrClassNotFound) {
			return wrapInternal(err, "class of default lambda %s", owner)
		}
		return fmt.Errorf("reading %s: %w", owner, err)
	}

	ctorDesc := descriptor.MethodDescriptor(descriptor.Void, l.CapturedArgs...)
	ctor, err := FindMethodNode(data, "<init>", ctorDesc, owner)
	if err != nil {
		return err
	}
	if ctor == nil && len(l.CapturedArgs) > 0 {
		return internalErrorf("can't find non-default constructor <init>%s for default lambda %s", ctorDesc, owner)
	}

	// Only the method table is needed to pick the invoke method.
	shallow, err := classfile.ParseBytes(data, classfile.SkipCode(), classfile.SkipDebug())
	if err != nil {
		return fmt.Errorf("parsing %s: %w", owner, err)
	}

	var captured []CapturedParamDesc
	if ctor != nil {
		assigns, err := findCapturedFieldAssignments(ctor.Node)
		if err != nil {
			return err
		}
		for _, f := range assigns {
			if f.Owner != owner {
				continue
			}
			if shallow.FindField(f.Name) == nil {
				return internalErrorf("default lambda %s assigns unknown field %s", owner, f.Name)
			}
			t, err := descriptor.Parse(f.Desc)
			if err != nil {
				return fmt.Errorf("field %s.%s: %w", owner, f.Name, err)
			}
			captured = append(captured, capturedParamDesc(l.classType, f.Name, t))
		}
	}
	if len(captured) != len(l.CapturedArgs) {
		return internalErrorf("default lambda %s: constructor takes %d arguments but assigns %d fields", owner, len(l.CapturedArgs), len(captured))
	}

	var invokes []string
	for _, m := range shallow.MethodsNamed(invokeName) {
		invokes = append(invokes, m.Descriptor)
	}
	var erased string
	if l.erased != nil {
		erased = env.Types.MapSignatureSkipGeneric(l.erased).Method.Descriptor
	}
	invokeDesc, err := selectInvoke(owner, invokes, erased)
	if err != nil {
		return err
	}
	node, err := FindMethodNode(data, invokeName, invokeDesc, owner)
	if err != nil {
		return err
	}
	if node == nil {
		return internalErrorf("invoke%s of %s has no body", invokeDesc, owner)
	}

	l.invoke = descriptor.Method{Name: invokeName, Descriptor: invokeDesc}
	l.captured = captured
	l.generated(node)
	log.Debugf("default lambda %s: invoke%s, %d captured", owner, invokeDesc, len(captured))
	return nil
}
