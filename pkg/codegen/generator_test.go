package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/daimatz/lambdainline/pkg/binding"
	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/name"
	"github.com/daimatz/lambdainline/pkg/syntax"
	"github.com/daimatz/lambdainline/pkg/typemap"
	"github.com/daimatz/lambdainline/pkg/types"
)

func generate(t *testing.T, g *Generator, f *types.FunctionDescriptor, ctx *Context, body syntax.Expr) (*bytecode.MethodNode, string) {
	t.Helper()
	sig := g.Types.MapSignatureSkipGeneric(f)
	m := bytecode.NewMethodNode(MethodAccessFlags(f, ctx.Kind), sig.Method.Name, sig.Method.Descriptor)
	sm, err := g.GenerateMethodBody(m, f, ctx, body, sig)
	if err != nil {
		t.Fatalf("GenerateMethodBody: %v", err)
	}
	if err := bytecode.ComputeMaxs(m); err != nil {
		t.Fatalf("ComputeMaxs: %v", err)
	}
	return m, sm.String()
}

func TestCapturedVariable(t *testing.T) {
	bindings := binding.NewContext()
	g := &Generator{Bindings: bindings, Types: typemap.NewMapper()}

	s := &types.LocalVariableDescriptor{Name: "s", Type: types.String}
	ref := &syntax.NameRef{Pos: syntax.Pos{Line: 5}, Name: "s"}
	bindings.RecordReference(ref, s)
	closure := binding.NewClosure()
	closure.CaptureVariable(s, "$s", descriptor.String)

	lambda := &syntax.Lambda{Pos: syntax.Pos{Line: 4}, Body: []syntax.Expr{ref}}
	f := &types.FunctionDescriptor{Name: name.Anonymous, ReturnType: types.String}

	root := NewPackageContext("box.kt", "test/BoxKt")
	ctx := root.IntoClosure(f, descriptor.ObjectType("test/BoxKt$box$1"), closure).IntoInlinedLambda(f, false, false)
	m, sm := generate(t, g, f, ctx, lambda)

	want := []string{"aload 0", "getfield test/BoxKt$box$1.$s : Ljava/lang/String;", "areturn"}
	insns := m.RealInstructions()
	if len(insns) != len(want) {
		t.Fatalf("got %d instructions, want %d:\n%s", len(insns), len(want), m.Disassemble())
	}
	for i, w := range want {
		if got := strings.TrimSpace(bytecode.Format(insns[i], nil)); got != w {
			t.Errorf("[%d]: got %q, want %q", i, got, w)
		}
	}
	if m.Name != "invoke" || m.Desc != "()Ljava/lang/String;" {
		t.Errorf("method: got %s%s", m.Name, m.Desc)
	}
	if m.Access != classfile.AccPublic|classfile.AccFinal {
		t.Errorf("access: got %#x", m.Access)
	}
	if m.MaxStack != 1 || m.MaxLocals != 1 {
		t.Errorf("maxs: got %d/%d, want 1/1", m.MaxStack, m.MaxLocals)
	}
	if !strings.Contains(sm, "5#1,1:5") {
		t.Errorf("smap must cover line 5:\n%s", sm)
	}
}

func TestParametersAndCalls(t *testing.T) {
	bindings := binding.NewContext()
	g := &Generator{Bindings: bindings, Types: typemap.NewMapper()}

	x := &types.LocalVariableDescriptor{Name: "x", Type: types.Int}
	param := &syntax.Param{Pos: syntax.Pos{Line: 1}, Name: "x"}
	bindings.RecordVariable(param, x)
	ref := &syntax.NameRef{Pos: syntax.Pos{Line: 2}, Name: "x"}
	bindings.RecordReference(ref, x)

	valueOf := &types.FunctionDescriptor{
		Name:            "describe",
		Facade:          "test/UtilKt",
		ValueParameters: []*types.ValueParameterDescriptor{{Name: "i", Type: types.Int}, {Name: "s", Type: types.String}},
		ReturnType:      types.String,
	}
	call := syntax.NewCall(2, "describe", nil, ref, &syntax.StringLit{Pos: syntax.Pos{Line: 2}, Value: "!"})
	bindings.RecordCall(call, valueOf)

	lambda := &syntax.Lambda{Pos: syntax.Pos{Line: 1}, Params: []*syntax.Param{param}, Body: []syntax.Expr{&syntax.IntLit{Pos: syntax.Pos{Line: 1}, Value: 300}, call}}
	f := &types.FunctionDescriptor{
		Name:            name.Anonymous,
		ValueParameters: []*types.ValueParameterDescriptor{{Name: "x", Type: types.Int}},
		ReturnType:      types.Any,
	}
	ctx := NewPackageContext("util.kt", "test/UtilKt").IntoClosure(f, descriptor.ObjectType("test/L"), binding.NewClosure())
	m, _ := generate(t, g, f, ctx, lambda)

	want := []string{
		"sipush 300",
		"pop",
		"iload 1",
		"ldc \"!\"",
		"invokestatic test/UtilKt.describe(ILjava/lang/String;)Ljava/lang/String;",
		"areturn",
	}
	insns := m.RealInstructions()
	if len(insns) != len(want) {
		t.Fatalf("got %d instructions, want %d:\n%s", len(insns), len(want), m.Disassemble())
	}
	for i, w := range want {
		if got := strings.TrimSpace(bytecode.Format(insns[i], nil)); got != w {
			t.Errorf("[%d]: got %q, want %q", i, got, w)
		}
	}
	if lo, hi := m.LineRange(); lo != 1 || hi != 2 {
		t.Errorf("lines: got %d-%d, want 1-2", lo, hi)
	}
}

func TestPropertyReference(t *testing.T) {
	bindings := binding.NewContext()
	g := &Generator{Bindings: bindings, Types: typemap.NewMapper()}
	a := &types.ClassDescriptor{FqName: "test.A", InternalName: "test/A"}
	y := &types.PropertyDescriptor{Name: "y", Type: types.Int, Owner: a}
	ref := &syntax.CallableReference{Pos: syntax.Pos{Line: 7}, Callee: "y"}
	bindings.RecordVariable(ref, y)

	get := &types.FunctionDescriptor{
		Name:            "get",
		ValueParameters: []*types.ValueParameterDescriptor{{Name: "receiver", Type: types.Param("T")}},
		ReturnType:      types.Param("R"),
	}
	cls := &types.ClassDescriptor{FqName: "test.Box$1", InternalName: "test/Box$1"}
	ctx := NewPackageContext("box.kt", "test/BoxKt").
		IntoAnonymousClass(cls, descriptor.ObjectType("test/Box$1"), binding.NewClosure()).
		IntoInlinedLambda(get, false, true)
	m, _ := generate(t, g, get, ctx, ref)

	want := []string{
		"aload 1",
		"checkcast test/A",
		"invokevirtual test/A.getY()I",
		"invokestatic java/lang/Integer.valueOf(I)Ljava/lang/Integer;",
		"areturn",
	}
	insns := m.RealInstructions()
	if len(insns) != len(want) {
		t.Fatalf("got %d instructions, want %d:\n%s", len(insns), len(want), m.Disassemble())
	}
	for i, w := range want {
		if got := strings.TrimSpace(bytecode.Format(insns[i], nil)); got != w {
			t.Errorf("[%d]: got %q, want %q", i, got, w)
		}
	}
}

func TestUnresolvedReference(t *testing.T) {
	g := &Generator{Bindings: binding.NewContext(), Types: typemap.NewMapper()}
	f := &types.FunctionDescriptor{Name: name.Anonymous, ReturnType: types.Any}
	lambda := &syntax.Lambda{Pos: syntax.Pos{Line: 3}, Body: []syntax.Expr{&syntax.NameRef{Pos: syntax.Pos{Line: 3}, Name: "nope"}}}
	ctx := NewPackageContext("a.kt", "AKt").IntoClosure(f, descriptor.ObjectType("AKt$1"), nil)
	sig := g.Types.MapSignatureSkipGeneric(f)
	_, err := g.GenerateMethodBody(bytecode.NewMethodNode(classfile.AccPublic, "invoke", sig.Method.Descriptor), f, ctx, lambda, sig)
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Line != 3 {
		t.Fatalf("got %v, want a CompileError on line 3", err)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		from, to descriptor.Type
		want     []string
	}{
		{"same", descriptor.Int, descriptor.Int, nil},
		{"box", descriptor.Int, descriptor.Object, []string{"invokestatic java/lang/Integer.valueOf(I)Ljava/lang/Integer;"}},
		{"unbox", descriptor.Object, descriptor.Int, []string{"checkcast java/lang/Integer", "invokevirtual java/lang/Integer.intValue()I"}},
		{"cast", descriptor.Object, descriptor.String, []string{"checkcast java/lang/String"}},
		{"upcast", descriptor.String, descriptor.Object, nil},
		{"discard wide", descriptor.Long, descriptor.Void, []string{"pop2"}},
		{"unit", descriptor.Void, descriptor.Object, []string{"getstatic kotlin/Unit.INSTANCE : Lkotlin/Unit;"}},
		{"widen", descriptor.Int, descriptor.Long, []string{"i2l"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(tt.from, tt.to)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d instructions, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if s := strings.TrimSpace(bytecode.Format(got[i], nil)); s != w {
					t.Errorf("[%d]: got %q, want %q", i, s, w)
				}
			}
		})
	}
}
