package inline

import (
	"fmt"

	"github.com/daimatz/lambdainline/pkg/binding"
	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/codegen"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/name"
	"github.com/daimatz/lambdainline/pkg/smap"
	"github.com/daimatz/lambdainline/pkg/syntax"
	"github.com/daimatz/lambdainline/pkg/typemap"
	"github.com/daimatz/lambdainline/pkg/types"
)

// DefaultValueLabel is the label of a lambda written as a parameter default.
const DefaultValueLabel = "$default$"

// PropertyReferenceInfo describes a lambda that is a callable reference to a
// property: the property and the get function its class implements.
type PropertyReferenceInfo struct {
	Target *types.PropertyDescriptor
	Getter *types.FunctionDescriptor
}

// ExpressionLambda is a lambda literal or callable reference passed directly
// to an inline function. Its body is generated from the expression tree.
type ExpressionLambda struct {
	lambdaState

	Expr            syntax.Expr
	Function        *types.FunctionDescriptor
	Class           *types.ClassDescriptor
	PropertyRefInfo *PropertyReferenceInfo

	classType descriptor.Type
	closure   *binding.Closure
	labels    map[string]bool
	invoke    descriptor.Method
	erased    *types.FunctionDescriptor
	captured  []CapturedParamDesc
}

var _ LambdaInfo = (*ExpressionLambda)(nil)

// NewExpressionLambda resolves expr against env.Bindings: the function it
// declares (or the property it references), its generated class and its
// closure. The capture list is fixed here.
func NewExpressionLambda(expr syntax.Expr, env *Env, isCrossInline, isBoundCallableReference bool) (*ExpressionLambda, error) {
	l := &ExpressionLambda{
		lambdaState: lambdaState{crossInline: isCrossInline, bound: isBoundCallableReference},
		Expr:        expr,
		labels:      make(map[string]bool),
	}
	e := syntax.Unlabel(expr)

	var callable binding.Callable
	if f := env.Bindings.Function(e); f != nil {
		l.Function = f
		callable = f
	} else {
		ref, ok := e.(*syntax.CallableReference)
		if !ok {
			return nil, internalErrorf("function should be resolved for lambda at line %d", e.Position().Line)
		}
		prop, ok := env.Bindings.Variable(ref).(*types.PropertyDescriptor)
		if !ok || !prop.HasAccessors() {
			return nil, internalErrorf("callable reference %s at line %d does not resolve to a property", ref.Callee, ref.Line)
		}
		callable = prop
		l.PropertyRefInfo = &PropertyReferenceInfo{Target: prop}
	}

	l.Class = env.Bindings.AnonymousClassForCallable(callable)
	if l.Class == nil {
		return nil, internalErrorf("no class generated for lambda at line %d", e.Position().Line)
	}
	l.closure = env.Bindings.Closure(l.Class)
	if l.closure == nil {
		return nil, internalErrorf("closure for lambda %s should not be null", l.Class.FqName)
	}
	l.classType = env.Types.MapClass(l.Class)

	if info := l.PropertyRefInfo; info != nil {
		info.Getter = findGetFunction(info.Target, e.(*syntax.CallableReference), l.Class)
		l.Function = info.Getter
	}

	if lit, ok := e.(*syntax.Lambda); ok {
		for _, n := range syntax.LabelNames(lit) {
			l.labels[n] = true
		}
		if lit.IsDefaultValue {
			l.labels[DefaultValueLabel] = true
		}
	}
	if !l.Function.IsAnonymous() && l.PropertyRefInfo == nil {
		l.labels[string(l.Function.Name)] = true
	}

	l.invoke = env.Types.MapAsmMethod(l.Function)
	l.erased = typemap.ErasedInvokeFunction(l.Function)
	l.captured = l.captures(env.Types)
	return l, nil
}

// findGetFunction returns the get member of the KProperty class implemented
// by a property reference. An unbound reference to a member or extension
// property takes the receiver as its only argument.
func findGetFunction(prop *types.PropertyDescriptor, ref *syntax.CallableReference, cls *types.ClassDescriptor) *types.FunctionDescriptor {
	get := &types.FunctionDescriptor{
		Name:       "get",
		Owner:      cls,
		ReturnType: types.Param("R"),
	}
	if ref.Receiver == nil && (prop.Owner != nil || prop.ExtensionReceiver != nil) {
		get.ValueParameters = []*types.ValueParameterDescriptor{{Name: "receiver", Type: types.Param("T")}}
	}
	return get
}

func (l *ExpressionLambda) captures(m *typemap.Mapper) []CapturedParamDesc {
	var out []CapturedParamDesc
	if l.closure.CaptureThis != nil {
		out = append(out, capturedParamDesc(l.classType, codegen.CapturedThisField, m.MapClass(l.closure.CaptureThis)))
	}
	if l.closure.CaptureReceiverType != nil {
		out = append(out, capturedParamDesc(l.classType, codegen.CapturedReceiverField, m.MapType(l.closure.CaptureReceiverType)))
	}
	for _, ev := range l.closure.CaptureVariables() {
		out = append(out, capturedParamDesc(l.classType, ev.FieldName, ev.Type))
	}
	return out
}

func (l *ExpressionLambda) LambdaClassType() descriptor.Type { return l.classType }
func (l *ExpressionLambda) InvokeMethod() descriptor.Method { return l.invoke }
func (l *ExpressionLambda) CapturedVars() []CapturedParamDesc { return l.captured }
func (l *ExpressionLambda) IsMyLabel(name string) bool { return l.labels[name] }

func (l *ExpressionLambda) ErasedInvokeMethodDescriptor() *types.FunctionDescriptor {
	return l.erased
}

// IsPropertyReference reports whether the lambda is a property reference.
func (l *ExpressionLambda) IsPropertyReference() bool { return l.PropertyRefInfo != nil }

// GenerateLambdaBody generates the invoke method of the lambda class inside
// an inlined-lambda context nested in env.Context.
func (l *ExpressionLambda) GenerateLambdaBody(env *Env) error {
	if err := l.checkPending(); err != nil {
		return err
	}
	if env.Context == nil {
		return internalErrorf("no code generation context for lambda %s", l.classType)
	}

	var closureCtx *codegen.Context
	if l.IsPropertyReference() {
		closureCtx = env.Context.IntoAnonymousClass(l.Class, l.classType, l.closure)
	} else {
		closureCtx = env.Context.IntoClosure(l.Function, l.classType, l.closure)
	}
	ctx := closureCtx.IntoInlinedLambda(l.Function, l.IsCrossInline(), l.IsPropertyReference())

	sig := env.Types.MapSignatureSkipGeneric(l.Function)
	m := bytecode.NewMethodNode(codegen.MethodAccessFlags(l.Function, ctx.Kind), sig.Method.Name, sig.Method.Descriptor)
	sm, err := env.Codegen.GenerateMethodBody(m, l.Function, ctx, syntax.Unlabel(l.Expr), sig)
	if err != nil {
		return fmt.Errorf("generating %s.%s: %w", l.classType.InternalName(), sig.Method, err)
	}
	if err := bytecode.ComputeMaxs(m); err != nil {
		return wrapInternal(err, "maxs of %s.%s", l.classType.InternalName(), sig.Method)
	}
	l.generated(&smap.SMAPAndMethodNode{Node: m, SMAP: sm})
	log.Debugf("expression lambda %s: %s, %d captured", l.classType.InternalName(), sig.Method, len(l.captured))
	return nil
}

// Name returns the function name, "<anonymous>" for literals.
func (l *ExpressionLambda) Name() name.Name { return l.Function.Name }
