package inline

import (
	"errors"
	"testing"

	"go.uber.org/multierr"

	"github.com/daimatz/lambdainline/pkg/binding"
	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/classindex"
	"github.com/daimatz/lambdainline/pkg/codegen"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/name"
	"github.com/daimatz/lambdainline/pkg/smap"
	"github.com/daimatz/lambdainline/pkg/syntax"
	"github.com/daimatz/lambdainline/pkg/typemap"
	"github.com/daimatz/lambdainline/pkg/types"
	"github.com/daimatz/lambdainline/pkg/vm"
)

const (
	inlineKt    = "test/InlineKt"
	boxKt       = "test/BoxKt"
	function0   = "kotlin/jvm/functions/Function0"
	function1   = "kotlin/jvm/functions/Function1"
	lambdaClass = "kotlin/jvm/internal/Lambda"
	objectDesc  = "Ljava/lang/Object;"
	stringDesc  = "Ljava/lang/String;"
)

type testClass struct {
	name       string
	super      string
	sourceFile string
	debugExt   string
	interfaces []string
	fields     map[string]string
	methods    []*bytecode.MethodNode
}

// putClass assembles c into idx.
func putClass(t *testing.T, idx *classindex.Memory, c testClass) {
	t.Helper()
	super := c.super
	if super == "" {
		super = "java/lang/Object"
	}
	w := classfile.NewWriter(classfile.AccPublic|classfile.AccSuper, c.name, super)
	for _, i := range c.interfaces {
		w.AddInterface(i)
	}
	if c.sourceFile != "" {
		w.SetSourceFile(c.sourceFile)
	}
	if c.debugExt != "" {
		w.SetSourceDebugExtension(c.debugExt)
	}
	for n, d := range c.fields {
		w.AddField(classfile.AccFinal, n, d)
	}
	for _, m := range c.methods {
		if err := bytecode.ComputeMaxs(m); err != nil {
			t.Fatalf("ComputeMaxs %s.%s: %v", c.name, m.Name, err)
		}
		code, err := bytecode.Assemble(m, w)
		if err != nil {
			t.Fatalf("Assemble %s.%s: %v", c.name, m.Name, err)
		}
		w.AddMethod(m.Access, m.Name, m.Desc, code)
	}
	if err := idx.PutClass(c.name, w); err != nil {
		t.Fatal(err)
	}
}

func method(access uint16, name, desc string, nodes ...bytecode.Node) *bytecode.MethodNode {
	m := bytecode.NewMethodNode(access, name, desc)
	m.Add(nodes...)
	return m
}

func static(name, desc string, nodes ...bytecode.Node) *bytecode.MethodNode {
	return method(classfile.AccPublic|classfile.AccStatic, name, desc, nodes...)
}

func varInsn(op byte, v int) *bytecode.VarInsn { return &bytecode.VarInsn{Op: op, Var: v} }

func insn(op byte) *bytecode.Insn { return &bytecode.Insn{Op: op} }

func invokeFunction(iface, desc string) *bytecode.MethodInsn {
	return &bytecode.MethodInsn{Op: bytecode.OpInvokeinterface, Owner: iface, Name: "invoke", Desc: desc, Itf: true}
}

// lambdaCtor is the constructor of a lambda class assigning its arguments to
// fields in order.
func lambdaCtor(owner string, fields ...[2]string) *bytecode.MethodNode {
	var args []descriptor.Type
	m := bytecode.NewMethodNode(classfile.AccPublic, "<init>", "")
	for i, f := range fields {
		t, _ := descriptor.Parse(f[1])
		args = append(args, t)
		m.Add(
			varInsn(bytecode.OpAload, 0),
			varInsn(codegen.LoadOpcode(t), i+1),
			&bytecode.FieldInsn{Op: bytecode.OpPutfield, Owner: owner, Name: f[0], Desc: f[1]},
		)
	}
	m.Desc = descriptor.MethodDescriptor(descriptor.Void, args...)
	m.Add(
		varInsn(bytecode.OpAload, 0),
		insn(bytecode.OpIconst0),
		&bytecode.MethodInsn{Op: bytecode.OpInvokespecial, Owner: lambdaClass, Name: "<init>", Desc: "(I)V"},
		insn(bytecode.OpReturn),
	)
	return m
}

// run assembles caller into a class of its own and invokes it.
func run(t *testing.T, idx *classindex.Memory, owner string, caller *bytecode.MethodNode, mapper *smap.SourceMapper) vm.Value {
	t.Helper()
	c := testClass{name: owner, sourceFile: "box.kt", methods: []*bytecode.MethodNode{caller}}
	if mapper != nil {
		c.debugExt = mapper.SMAP().String()
	}
	putClass(t, idx, c)
	got, err := vm.New(idx).Invoke(owner, caller.Name, caller.Desc)
	if err != nil {
		t.Fatalf("Invoke: %v\n%s", err, caller.Disassemble())
	}
	return got
}

func newEnv(idx classindex.Index) *Env {
	bindings := binding.NewContext()
	mapper := typemap.NewMapper()
	return &Env{
		Classes:  idx,
		Bindings: bindings,
		Types:    mapper,
		Codegen:  &codegen.Generator{Bindings: bindings, Types: mapper},
		Context:  codegen.NewPackageContext("box.kt", boxKt),
	}
}

// inlineFun(f: () -> String = { "OK" }), compiled with a $default stub and
// a lambda class that has a specialized invoke and an erased bridge.
func TestInlineDefaultLambda(t *testing.T) {
	idx := classindex.NewMemory()
	lambda := "test/InlineKt$inlineFun$1"
	skip := &bytecode.Label{}
	stubDesc := "(Lkotlin/jvm/functions/Function0;ILjava/lang/Object;)" + objectDesc
	putClass(t, idx, testClass{name: inlineKt, methods: []*bytecode.MethodNode{
		static("inlineFun$default", stubDesc,
			varInsn(bytecode.OpIload, 1),
			insn(bytecode.OpIconst1),
			insn(bytecode.OpIand),
			&bytecode.JumpInsn{Op: bytecode.OpIfeq, Target: skip},
			&bytecode.TypeInsn{Op: bytecode.OpNew, Type: lambda},
			insn(bytecode.OpDup),
			&bytecode.MethodInsn{Op: bytecode.OpInvokespecial, Owner: lambda, Name: "<init>", Desc: "()V"},
			varInsn(bytecode.OpAstore, 0),
			skip,
			varInsn(bytecode.OpAload, 0),
			invokeFunction(function0, "()"+objectDesc),
			insn(bytecode.OpAreturn),
		),
	}})
	putClass(t, idx, testClass{name: lambda, super: lambdaClass, interfaces: []string{function0}, methods: []*bytecode.MethodNode{
		lambdaCtor(lambda),
		method(classfile.AccPublic|classfile.AccFinal, "invoke", "()"+stringDesc,
			&bytecode.LdcInsn{Value: "OK"}, insn(bytecode.OpAreturn)),
		method(classfile.AccPublic, "invoke", "()"+objectDesc,
			varInsn(bytecode.OpAload, 0),
			&bytecode.MethodInsn{Op: bytecode.OpInvokevirtual, Owner: lambda, Name: "invoke", Desc: "()" + stringDesc},
			insn(bytecode.OpAreturn)),
	}})

	site := &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: inlineKt, Name: "inlineFun$default", Desc: stubDesc}
	caller := static("box", "()"+stringDesc,
		insn(bytecode.OpIconst1),
		insn(bytecode.OpAconstNull),
		site,
		&bytecode.TypeInsn{Op: bytecode.OpCheckcast, Type: "java/lang/String"},
		insn(bytecode.OpAreturn),
	)
	fn := &types.FunctionDescriptor{
		Name:     "inlineFun",
		Facade:   inlineKt,
		IsInline: true,
		ValueParameters: []*types.ValueParameterDescriptor{
			{Name: "f", Index: 0, Type: types.FunctionType(types.String), HasDefaultValue: true},
		},
		ReturnType: types.String,
	}

	env := newEnv(idx)
	in, err := NewInliner(env, caller, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = in.InlineAll([]*Call{{
		Site:     site,
		Owner:    inlineKt,
		Method:   descriptor.Method{Name: site.Name, Descriptor: site.Desc},
		Function: fn,
	}})
	if err != nil {
		t.Fatalf("InlineAll: %v", err)
	}

	for _, n := range caller.RealInstructions() {
		if mi, ok := n.(*bytecode.MethodInsn); ok {
			t.Errorf("call left after inlining: %s", bytecode.Format(mi, nil))
		}
		if ti, ok := n.(*bytecode.TypeInsn); ok && ti.Op == bytecode.OpNew {
			t.Errorf("lambda still constructed: %s", bytecode.Format(ti, nil))
		}
	}
	if got := run(t, idx, boxKt, caller, nil).String(); got != "OK" {
		t.Errorf("got %q, want %q", got, "OK")
	}
}

// inlineFun(capturedParam: String, f: () -> Any = { capturedParam }) where
// the lambda class has a single, erased invoke.
func TestInlineDefaultLambdaCapturingParameter(t *testing.T) {
	idx := classindex.NewMemory()
	lambda := "test/InlineKt$inlineFun$2"
	skip := &bytecode.Label{}
	stubDesc := "(Ljava/lang/String;Lkotlin/jvm/functions/Function0;ILjava/lang/Object;)" + objectDesc
	putClass(t, idx, testClass{name: inlineKt, methods: []*bytecode.MethodNode{
		static("inlineFun$default", stubDesc,
			varInsn(bytecode.OpIload, 2),
			insn(bytecode.OpIconst2),
			insn(bytecode.OpIand),
			&bytecode.JumpInsn{Op: bytecode.OpIfeq, Target: skip},
			&bytecode.TypeInsn{Op: bytecode.OpNew, Type: lambda},
			insn(bytecode.OpDup),
			varInsn(bytecode.OpAload, 0),
			&bytecode.MethodInsn{Op: bytecode.OpInvokespecial, Owner: lambda, Name: "<init>", Desc: "(" + stringDesc + ")V"},
			varInsn(bytecode.OpAstore, 1),
			skip,
			varInsn(bytecode.OpAload, 1),
			invokeFunction(function0, "()"+objectDesc),
			insn(bytecode.OpAreturn),
		),
	}})
	putClass(t, idx, testClass{
		name:       lambda,
		super:      lambdaClass,
		interfaces: []string{function0},
		fields:     map[string]string{"$capturedParam": stringDesc},
		methods: []*bytecode.MethodNode{
			lambdaCtor(lambda, [2]string{"$capturedParam", stringDesc}),
			method(classfile.AccPublic|classfile.AccFinal, "invoke", "()"+objectDesc,
				varInsn(bytecode.OpAload, 0),
				&bytecode.FieldInsn{Op: bytecode.OpGetfield, Owner: lambda, Name: "$capturedParam", Desc: stringDesc},
				insn(bytecode.OpAreturn)),
		},
	})

	site := &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: inlineKt, Name: "inlineFun$default", Desc: stubDesc}
	caller := static("box", "()"+stringDesc,
		&bytecode.LdcInsn{Value: "OK"},
		insn(bytecode.OpIconst2),
		insn(bytecode.OpAconstNull),
		site,
		&bytecode.TypeInsn{Op: bytecode.OpCheckcast, Type: "java/lang/String"},
		insn(bytecode.OpAreturn),
	)
	fn := &types.FunctionDescriptor{
		Name:   "inlineFun",
		Facade: inlineKt,
		ValueParameters: []*types.ValueParameterDescriptor{
			{Name: "capturedParam", Index: 0, Type: types.String},
			{Name: "f", Index: 1, Type: types.FunctionType(types.Any), HasDefaultValue: true},
		},
		ReturnType: types.Any,
	}

	in, err := NewInliner(newEnv(idx), caller, nil)
	if err != nil {
		t.Fatal(err)
	}
	call := &Call{Site: site, Owner: inlineKt, Method: descriptor.Method{Name: site.Name, Descriptor: site.Desc}, Function: fn}
	if err := in.InlineAll([]*Call{call}); err != nil {
		t.Fatalf("InlineAll: %v", err)
	}
	if got := run(t, idx, boxKt, caller, nil).String(); got != "OK" {
		t.Errorf("got %q, want %q", got, "OK")
	}
}

// fun box(): String { val s = "OK"; return call { s } } with
// inline fun call(f: () -> Any): Any = f()
func TestInlineExpressionLambda(t *testing.T) {
	idx := classindex.NewMemory()
	callDesc := "(Lkotlin/jvm/functions/Function0;)" + objectDesc
	start := &bytecode.Label{}
	putClass(t, idx, testClass{name: inlineKt, sourceFile: "inline.kt", methods: []*bytecode.MethodNode{
		static("call", callDesc,
			start,
			&bytecode.LineNumber{Line: 3, Start: start},
			varInsn(bytecode.OpAload, 0),
			invokeFunction(function0, "()"+objectDesc),
			insn(bytecode.OpAreturn),
		),
	}})

	env := newEnv(idx)
	s := &types.LocalVariableDescriptor{Name: "s", Type: types.String}
	ref := &syntax.NameRef{Pos: syntax.Pos{Line: 5}, Name: "s"}
	env.Bindings.RecordReference(ref, s)
	lit := &syntax.Lambda{Pos: syntax.Pos{Line: 5}, Body: []syntax.Expr{ref}, End: 5}
	syntax.NewCall(5, "call", nil, lit)
	f := &types.FunctionDescriptor{Name: name.Anonymous, ReturnType: types.String}
	env.Bindings.RecordFunction(lit, f)
	closure := binding.NewClosure()
	closure.CaptureVariable(s, "$s", descriptor.String)
	cls := &types.ClassDescriptor{FqName: "test.BoxKt$box$1", InternalName: "test/BoxKt$box$1"}
	env.Bindings.RecordAnonymousClass(f, cls, closure)
	env.Context = env.Context.IntoFunction(&types.FunctionDescriptor{Name: "box", Facade: boxKt, ReturnType: types.String})

	l, err := NewExpressionLambda(lit, env, false, false)
	if err != nil {
		t.Fatal(err)
	}
	remapper := NewCapturedFieldRemapper(nil)
	remapper.Add(l.CapturedVars()[0], 0)

	site := &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: inlineKt, Name: "call", Desc: callDesc}
	caller := static("box", "()"+stringDesc,
		&bytecode.LdcInsn{Value: "OK"},
		varInsn(bytecode.OpAstore, 0),
		site,
		&bytecode.TypeInsn{Op: bytecode.OpCheckcast, Type: "java/lang/String"},
		insn(bytecode.OpAreturn),
	)

	mapper := smap.NewSourceMapper("box.kt", boxKt, 10)
	in, err := NewInliner(env, caller, mapper)
	if err != nil {
		t.Fatal(err)
	}
	call := &Call{
		Site:     site,
		Owner:    inlineKt,
		Method:   descriptor.Method{Name: "call", Descriptor: callDesc},
		Lambdas:  map[int]LambdaInfo{0: l},
		Remapper: remapper,
	}
	if err := in.InlineAll([]*Call{call}); err != nil {
		t.Fatalf("InlineAll: %v", err)
	}
	if l.State() != Generated {
		t.Errorf("state: got %s, want generated", l.State())
	}

	var lines []int
	for _, n := range caller.Instructions {
		if ln, ok := n.(*bytecode.LineNumber); ok {
			lines = append(lines, ln.Line)
		}
	}
	if len(lines) != 2 || lines[0] != 11 || lines[1] != 12 {
		t.Errorf("line numbers: got %v, want [11 12]", lines)
	}
	wantSMAP := "SMAP\nbox.kt\nKotlin\n*S Kotlin\n*F\n" +
		"+ 1 box.kt\ntest/BoxKt\n" +
		"+ 2 inline.kt\ntest/InlineKt\n" +
		"*L\n1#1,10:1\n5#1,1:12\n3#2,1:11\n*E\n"
	if got := mapper.SMAP().String(); got != wantSMAP {
		t.Errorf("got %q, want %q", got, wantSMAP)
	}

	if got := run(t, idx, boxKt, caller, mapper).String(); got != "OK" {
		t.Errorf("got %q, want %q", got, "OK")
	}
}

// fun box(): Int = apply(41) { x -> inc(x) } with
// inline fun apply(f: (Int) -> Int, v: Any): Any = f(v)
func TestInlineExpressionLambdaWithParameter(t *testing.T) {
	idx := classindex.NewMemory()
	applyDesc := "(Lkotlin/jvm/functions/Function1;" + objectDesc + ")" + objectDesc
	putClass(t, idx, testClass{name: inlineKt, methods: []*bytecode.MethodNode{
		static("apply", applyDesc,
			varInsn(bytecode.OpAload, 0),
			varInsn(bytecode.OpAload, 1),
			invokeFunction(function1, "("+objectDesc+")"+objectDesc),
			insn(bytecode.OpAreturn),
		),
	}})
	putClass(t, idx, testClass{name: "test/MathKt", methods: []*bytecode.MethodNode{
		static("inc", "(I)I",
			varInsn(bytecode.OpIload, 0), insn(bytecode.OpIconst1), insn(bytecode.OpIadd), insn(bytecode.OpIreturn)),
	}})

	env := newEnv(idx)
	x := &types.LocalVariableDescriptor{Name: "x", Type: types.Int}
	param := &syntax.Param{Pos: syntax.Pos{Line: 7}, Name: "x"}
	env.Bindings.RecordVariable(param, x)
	ref := &syntax.NameRef{Pos: syntax.Pos{Line: 7}, Name: "x"}
	env.Bindings.RecordReference(ref, x)
	incCall := syntax.NewCall(7, "inc", nil, ref)
	env.Bindings.RecordCall(incCall, &types.FunctionDescriptor{
		Name:            "inc",
		Facade:          "test/MathKt",
		ValueParameters: []*types.ValueParameterDescriptor{{Name: "v", Type: types.Int}},
		ReturnType:      types.Int,
	})
	lit := &syntax.Lambda{Pos: syntax.Pos{Line: 7}, Params: []*syntax.Param{param}, Body: []syntax.Expr{incCall}, End: 7}
	f := &types.FunctionDescriptor{
		Name:            name.Anonymous,
		ValueParameters: []*types.ValueParameterDescriptor{{Name: "x", Type: types.Int}},
		ReturnType:      types.Int,
	}
	env.Bindings.RecordFunction(lit, f)
	env.Bindings.RecordAnonymousClass(f, &types.ClassDescriptor{FqName: "test.BoxKt$box$1", InternalName: "test/BoxKt$box$1"}, binding.NewClosure())

	l, err := NewExpressionLambda(lit, env, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := l.InvokeMethod().Descriptor; got != "(I)I" {
		t.Errorf("invoke: got %q, want %q", got, "(I)I")
	}

	site := &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: inlineKt, Name: "apply", Desc: applyDesc}
	caller := static("box", "()I",
		&bytecode.IntInsn{Op: bytecode.OpBipush, Operand: 41},
		&bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: "java/lang/Integer", Name: "valueOf", Desc: "(I)Ljava/lang/Integer;"},
		site,
		&bytecode.TypeInsn{Op: bytecode.OpCheckcast, Type: "java/lang/Integer"},
		&bytecode.MethodInsn{Op: bytecode.OpInvokevirtual, Owner: "java/lang/Integer", Name: "intValue", Desc: "()I"},
		insn(bytecode.OpIreturn),
	)
	in, err := NewInliner(env, caller, nil)
	if err != nil {
		t.Fatal(err)
	}
	call := &Call{Site: site, Owner: inlineKt, Method: descriptor.Method{Name: "apply", Descriptor: applyDesc}, Lambdas: map[int]LambdaInfo{0: l}}
	if err := in.InlineAll([]*Call{call}); err != nil {
		t.Fatalf("InlineAll: %v", err)
	}
	if got := run(t, idx, boxKt, caller, nil).Int; got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestInlineAllCombinesErrors(t *testing.T) {
	idx := classindex.NewMemory()
	caller := static("box", "()V", insn(bytecode.OpReturn))
	in, err := NewInliner(newEnv(idx), caller, nil)
	if err != nil {
		t.Fatal(err)
	}
	calls := []*Call{
		{Site: &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: inlineKt, Name: "a", Desc: "()V"}, Owner: inlineKt, Method: descriptor.Method{Name: "a", Descriptor: "()V"}},
		{Site: &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: inlineKt, Name: "b", Desc: "()V"}, Owner: inlineKt, Method: descriptor.Method{Name: "b", Descriptor: "()V"}},
	}
	err = in.InlineAll(calls)
	if err == nil {
		t.Fatal("expected an error for calls that are not in the caller")
	}
	var internal *InternalError
	if !errors.As(err, &internal) {
		t.Errorf("got %T, want *InternalError", err)
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Errorf("got %d errors, want 2", got)
	}
}

func TestInlineMissingOwner(t *testing.T) {
	site := &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: "test/Missing", Name: "f", Desc: "()V"}
	caller := static("box", "()V", site, insn(bytecode.OpReturn))
	in, err := NewInliner(newEnv(classindex.NewMemory()), caller, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = in.InlineCall(&Call{Site: site, Owner: "test/Missing", Method: descriptor.Method{Name: "f", Descriptor: "()V"}})
	if !errors.Is(err, classindex.ErrClassNotFound) {
		t.Errorf("got %v, want ErrClassNotFound", err)
	}
}

// inline fun call(g: (Any) -> Any, noinline h: () -> Any): Any = g(h())
// called as call({ x -> x }, H()) where H returns "OK".
func noinlineCall(t *testing.T) (*classindex.Memory, *Env, *bytecode.MethodNode, *Call) {
	t.Helper()
	idx := classindex.NewMemory()
	callDesc := "(Lkotlin/jvm/functions/Function1;Lkotlin/jvm/functions/Function0;)" + objectDesc
	putClass(t, idx, testClass{name: inlineKt, methods: []*bytecode.MethodNode{
		static("call", callDesc,
			varInsn(bytecode.OpAload, 0),
			varInsn(bytecode.OpAload, 1),
			invokeFunction(function0, "()"+objectDesc),
			invokeFunction(function1, "("+objectDesc+")"+objectDesc),
			insn(bytecode.OpAreturn),
		),
	}})
	const h = "test/BoxKt$h"
	putClass(t, idx, testClass{name: h, super: lambdaClass, interfaces: []string{function0}, methods: []*bytecode.MethodNode{
		lambdaCtor(h),
		method(classfile.AccPublic, "invoke", "()"+objectDesc, &bytecode.LdcInsn{Value: "OK"}, insn(bytecode.OpAreturn)),
	}})

	env := newEnv(idx)
	x := &types.LocalVariableDescriptor{Name: "x", Type: types.Any}
	param := &syntax.Param{Pos: syntax.Pos{Line: 4}, Name: "x"}
	env.Bindings.RecordVariable(param, x)
	ref := &syntax.NameRef{Pos: syntax.Pos{Line: 4}, Name: "x"}
	env.Bindings.RecordReference(ref, x)
	lit := &syntax.Lambda{Pos: syntax.Pos{Line: 4}, Params: []*syntax.Param{param}, Body: []syntax.Expr{ref}, End: 4}
	f := &types.FunctionDescriptor{
		Name:            name.Anonymous,
		ValueParameters: []*types.ValueParameterDescriptor{{Name: "x", Type: types.Any}},
		ReturnType:      types.Any,
	}
	env.Bindings.RecordFunction(lit, f)
	env.Bindings.RecordAnonymousClass(f, &types.ClassDescriptor{FqName: "test.BoxKt$box$1", InternalName: "test/BoxKt$box$1"}, binding.NewClosure())
	g, err := NewExpressionLambda(lit, env, false, false)
	if err != nil {
		t.Fatal(err)
	}

	site := &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: inlineKt, Name: "call", Desc: callDesc}
	caller := static("box", "()"+stringDesc,
		&bytecode.TypeInsn{Op: bytecode.OpNew, Type: h},
		insn(bytecode.OpDup),
		&bytecode.MethodInsn{Op: bytecode.OpInvokespecial, Owner: h, Name: "<init>", Desc: "()V"},
		site,
		&bytecode.TypeInsn{Op: bytecode.OpCheckcast, Type: "java/lang/String"},
		insn(bytecode.OpAreturn),
	)
	call := &Call{Site: site, Owner: inlineKt, Method: descriptor.Method{Name: "call", Descriptor: callDesc}, Lambdas: map[int]LambdaInfo{0: g}}
	return idx, env, caller, call
}

func TestInlineKeepsNoinlineInvoke(t *testing.T) {
	idx, env, caller, call := noinlineCall(t)
	in, err := NewInliner(env, caller, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := in.InlineAll([]*Call{call}); err != nil {
		t.Fatalf("InlineAll: %v\n%s", err, caller.Disassemble())
	}

	var invokes []string
	for _, n := range caller.RealInstructions() {
		if mi, ok := n.(*bytecode.MethodInsn); ok && mi.Op == bytecode.OpInvokeinterface {
			invokes = append(invokes, mi.Owner)
		}
	}
	if len(invokes) != 1 || invokes[0] != function0 {
		t.Errorf("invokes left: got %v, want [%s]", invokes, function0)
	}
	if got := run(t, idx, boxKt, caller, nil).String(); got != "OK" {
		t.Errorf("got %q, want %q", got, "OK")
	}
}

func TestInlineAllLeavesCallerOnError(t *testing.T) {
	_, env, caller, call := noinlineCall(t)
	before := caller.Disassemble()
	maxStack, maxLocals := caller.MaxStack, caller.MaxLocals

	in, err := NewInliner(env, caller, nil)
	if err != nil {
		t.Fatal(err)
	}
	missing := &Call{
		Site:   &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: inlineKt, Name: "other", Desc: "()V"},
		Owner:  inlineKt,
		Method: descriptor.Method{Name: "other", Descriptor: "()V"},
	}
	if err := in.InlineAll([]*Call{call, missing}); err == nil {
		t.Fatal("expected an error")
	}
	if got := caller.Disassemble(); got != before {
		t.Errorf("caller changed:\n%s\nwant\n%s", got, before)
	}
	if caller.MaxStack != maxStack || caller.MaxLocals != maxLocals {
		t.Errorf("maxs: got %d/%d, want %d/%d", caller.MaxStack, caller.MaxLocals, maxStack, maxLocals)
	}
	if in.Caller != caller {
		t.Error("inliner no longer points at the caller")
	}
}

func TestInlineArityMismatch(t *testing.T) {
	_, env, caller, call := noinlineCall(t)
	// g is bound to the Function0 parameter instead
	call.Lambdas = map[int]LambdaInfo{1: call.Lambdas[0]}
	in, err := NewInliner(env, caller, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = in.InlineAll([]*Call{call})
	var internal *InternalError
	if !errors.As(err, &internal) {
		t.Fatalf("got %v, want *InternalError", err)
	}
}
