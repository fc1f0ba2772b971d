package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/daimatz/lambdainline/pkg/binding"
	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/classindex"
	"github.com/daimatz/lambdainline/pkg/codegen"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/inline"
	"github.com/daimatz/lambdainline/pkg/mutability"
	"github.com/daimatz/lambdainline/pkg/name"
	"github.com/daimatz/lambdainline/pkg/smap"
	"github.com/daimatz/lambdainline/pkg/typemap"
	"github.com/daimatz/lambdainline/pkg/types"
	"github.com/daimatz/lambdainline/pkg/vm"
)

const (
	functionsPrefix = "kotlin/jvm/functions/Function"
	mainClass       = "lambdainline/Main"
	mainSource      = "Main.kt"
)

func (t *tool) env(classes classindex.Index, ctx *codegen.Context) *inline.Env {
	bindings := binding.NewContext()
	mapper := typemap.NewMapper()
	return &inline.Env{
		Classes:  classes,
		Bindings: bindings,
		Types:    mapper,
		Codegen:  &codegen.Generator{Bindings: bindings, Types: mapper},
		Context:  ctx,
	}
}

// inspectCmd prints how a compiled lambda class would be inlined.
func (t *tool) inspectCmd(args []string) error {
	if err := classArg(args, 1, inspectUsage); err != nil {
		return err
	}
	class := internalName(args[0])
	cf, err := classindex.LoadClass(t.classes, class, classfile.SkipCode())
	if err != nil {
		return err
	}
	arity, err := functionArity(cf)
	if err != nil {
		return fmt.Errorf("%s: %w", class, err)
	}
	var ctorArgs []descriptor.Type
	if ctors := cf.MethodsNamed("<init>"); len(ctors) > 0 {
		if ctorArgs, err = descriptor.ArgumentTypes(ctors[0].Descriptor); err != nil {
			return fmt.Errorf("constructor of %s: %w", class, err)
		}
	}

	param := &types.ValueParameterDescriptor{Name: "block", Type: anyFunction(arity)}
	l := inline.NewDefaultLambda(descriptor.ObjectType(class), ctorArgs, param, nil, 0)
	if err := l.GenerateLambdaBody(t.env(t.classes, nil)); err != nil {
		return err
	}

	t.heading("%s", class)
	fmt.Printf("invoke:   %s\n", l.InvokeMethod())
	if erased := l.ErasedInvokeMethodDescriptor(); erased != nil {
		fmt.Printf("erased:   %s\n", typemap.NewMapper().MapAsmMethod(erased))
	}
	fmt.Printf("captured: %d\n", len(l.CapturedVars()))
	for _, c := range l.CapturedVars() {
		fmt.Printf("  %s\n", c)
	}
	t.heading("body")
	fmt.Print(l.Node().Node.Disassemble())
	t.heading("smap")
	fmt.Print(l.Node().SMAP.String())
	return nil
}

// inlineCmd builds a caller leaving every parameter of a top-level inline
// function to its default, inlines the call and runs the result.
func (t *tool) inlineCmd(args []string) error {
	if err := classArg(args, 2, inlineUsage); err != nil {
		return err
	}
	owner, stubName := internalName(args[0]), args[1]
	if !strings.HasSuffix(stubName, "$default") {
		stubName += "$default"
	}
	cf, err := classindex.LoadClass(t.classes, owner, classfile.SkipCode())
	if err != nil {
		return err
	}
	stubs := cf.MethodsNamed(stubName)
	if len(stubs) != 1 {
		return fmt.Errorf("%s: want one %s, found %d", owner, stubName, len(stubs))
	}
	stub := stubs[0]
	if stub.AccessFlags&classfile.AccStatic == 0 {
		return fmt.Errorf("%s.%s is not static", owner, stubName)
	}

	f, err := functionFromStub(owner, strings.TrimSuffix(stubName, "$default"), stub.Descriptor)
	if err != nil {
		return err
	}
	site := &bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: owner, Name: stubName, Desc: stub.Descriptor}
	caller, err := syntheticCaller(f, site)
	if err != nil {
		return err
	}

	mem := classindex.NewMemory()
	classes := classindex.Chain{mem, t.classes}
	env := t.env(classes, codegen.NewPackageContext(mainSource, mainClass))
	mapper := smap.NewSourceMapper(mainSource, mainClass, 1)
	mapper.SetStratum(t.cfg.SMAP.Stratum)

	in, err := inline.NewInliner(env, caller, mapper)
	if err != nil {
		return err
	}
	call := &inline.Call{
		Site:     site,
		Owner:    owner,
		Method:   descriptor.Method{Name: stubName, Descriptor: stub.Descriptor},
		Function: f,
	}
	if err := in.InlineAll([]*inline.Call{call}); err != nil {
		return err
	}
	t.heading("%s.%s", mainClass, caller.Name)
	fmt.Print(caller.Disassemble())
	t.heading("smap")
	sm := mapper.SMAP().String()
	fmt.Print(sm)

	w := classfile.NewWriter(classfile.AccPublic|classfile.AccSuper, mainClass, "java/lang/Object")
	w.SetSourceFile(mainSource)
	w.SetSourceDebugExtension(sm)
	code, err := bytecode.Assemble(caller, w)
	if err != nil {
		return fmt.Errorf("assembling %s: %w", mainClass, err)
	}
	w.AddMethod(caller.Access, caller.Name, caller.Desc, code)
	if err := mem.PutClass(mainClass, w); err != nil {
		return err
	}

	machine := vm.New(classes)
	result, err := machine.Invoke(mainClass, caller.Name, caller.Desc)
	if err != nil {
		return err
	}
	t.heading("result")
	fmt.Println(result)
	return nil
}

// runCmd executes the main method of a class. A path to a .class file adds its
// directory to the classpath.
func (t *tool) runCmd(args []string) error {
	if err := classArg(args, 1, runUsage); err != nil {
		return err
	}
	classes := t.classes
	className := internalName(args[0])
	if strings.HasSuffix(args[0], ".class") {
		dir := filepath.Dir(args[0])
		className = strings.TrimSuffix(filepath.Base(args[0]), ".class")
		classes = classindex.Chain{classindex.NewDir(dir), t.classes}
	}
	machine := vm.New(classes)
	if err := machine.Execute(className); err != nil {
		return fmt.Errorf("executing %s: %w", className, err)
	}
	return nil
}

// smapCmd prints the source map of a class, the identity map of its lines when
// it carries none.
func (t *tool) smapCmd(args []string) error {
	if err := classArg(args, 1, smapUsage); err != nil {
		return err
	}
	class := internalName(args[0])
	data, err := t.classes.LookupClassBytes(class)
	if err != nil {
		return err
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", class, err)
	}
	if cf.SourceDebugExtension != "" {
		sm, err := smap.Parse(cf.SourceDebugExtension)
		if err != nil {
			return fmt.Errorf("source map of %s: %w", class, err)
		}
		fmt.Print(sm.String())
		return nil
	}
	lo, hi := 0, 0
	for _, m := range cf.Methods {
		node, err := inline.FindMethodNode(data, m.Name, m.Descriptor, class)
		if err != nil {
			return err
		}
		if node == nil {
			continue
		}
		l, h := node.Node.LineRange()
		if l > 0 && (lo == 0 || l < lo) {
			lo = l
		}
		if h > hi {
			hi = h
		}
	}
	fmt.Print(smap.Default(cf.SourceFile, class, lo, hi).String())
	return nil
}

// wrapCmd prints a host collection interface as the given guest interface.
func (t *tool) wrapCmd(args []string) error {
	if err := classArg(args, 1, wrapUsage); err != nil {
		return err
	}
	table, err := mutability.Default()
	if err != nil {
		return err
	}
	m, _, ok := table.Lookup(args[0])
	if !ok {
		return fmt.Errorf("%s: %w", args[0], mutability.ErrNotMapped)
	}
	host, err := table.LoadHost(t.classes, m.Host)
	if err != nil {
		return err
	}
	w, err := table.Wrap(host, args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, w)
	return nil
}

func functionArity(cf *classfile.ClassFile) (int, error) {
	names, err := cf.InterfaceNames()
	if err != nil {
		return 0, err
	}
	for _, n := range names {
		if strings.HasPrefix(n, functionsPrefix) {
			if arity, err := strconv.Atoi(strings.TrimPrefix(n, functionsPrefix)); err == nil {
				return arity, nil
			}
		}
	}
	return 0, fmt.Errorf("does not implement a function interface")
}

func anyFunction(arity int) *types.Type {
	params := make([]*types.Type, arity)
	for i := range params {
		params[i] = types.NullableAny
	}
	return types.FunctionType(types.NullableAny, params...)
}

var primitiveTypes = map[descriptor.Type]*types.Type{
	descriptor.Boolean: types.Boolean,
	descriptor.Int:     types.Int,
	descriptor.Long:    types.Long,
	descriptor.Double:  types.Double,
	descriptor.Float:   types.Simple(types.FloatName),
	descriptor.Char:    types.Simple(types.CharName),
	descriptor.Byte:    types.Simple(types.ByteName),
	descriptor.Short:   types.Simple(types.ShortName),
}

// semanticType recovers enough of a parameter type from its descriptor to
// size its slot and to recognize function types.
func semanticType(t descriptor.Type) *types.Type {
	if p, ok := primitiveTypes[t]; ok {
		return p
	}
	if t.Sort() == descriptor.SortObject {
		in := t.InternalName()
		if strings.HasPrefix(in, functionsPrefix) {
			if arity, err := strconv.Atoi(strings.TrimPrefix(in, functionsPrefix)); err == nil {
				return anyFunction(arity)
			}
		}
		return types.Simple(name.FqName(strings.ReplaceAll(in, "/", ".")))
	}
	return types.NullableAny
}

// defaultParams returns the number of declared parameters of a $default
// stub: the parameters are followed by one int mask per 32 of them and a
// trailing marker object.
func defaultParams(args []descriptor.Type) (int, error) {
	for n := 0; n <= len(args); n++ {
		if n+(n+31)/32+1 == len(args) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("not a $default stub signature")
}

func functionFromStub(owner, fun, desc string) (*types.FunctionDescriptor, error) {
	args, err := descriptor.ArgumentTypes(desc)
	if err != nil {
		return nil, err
	}
	ret, err := descriptor.ReturnType(desc)
	if err != nil {
		return nil, err
	}
	n, err := defaultParams(args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s$default: %w", owner, fun, err)
	}
	f := &types.FunctionDescriptor{Name: name.Name(fun), Facade: owner, IsInline: true, IsStatic: true}
	for i := 0; i < n; i++ {
		f.ValueParameters = append(f.ValueParameters, &types.ValueParameterDescriptor{
			Name:            name.Name(fmt.Sprintf("p%d", i)),
			Index:           i,
			Type:            semanticType(args[i]),
			HasDefaultValue: true,
		})
	}
	if ret != descriptor.Void {
		f.ReturnType = semanticType(ret)
	} else {
		f.ReturnType = types.Unit
	}
	return f, nil
}

// syntheticCaller returns "static run()Object" calling site with every
// parameter defaulted. Function-typed parameters are not pushed; they are
// filled by the default lambdas once inlined.
func syntheticCaller(f *types.FunctionDescriptor, site *bytecode.MethodInsn) (*bytecode.MethodNode, error) {
	args, err := descriptor.ArgumentTypes(site.Desc)
	if err != nil {
		return nil, err
	}
	ret, err := descriptor.ReturnType(site.Desc)
	if err != nil {
		return nil, err
	}
	m := bytecode.NewMethodNode(classfile.AccPublic|classfile.AccStatic, "run", "()Ljava/lang/Object;")
	n := len(f.ValueParameters)
	for i := 0; i < n; i++ {
		if f.ValueParameters[i].Type.IsFunctionType() {
			continue
		}
		m.Add(zero(args[i]))
	}
	for k := 0; k < (n+31)/32; k++ {
		bits := n - 32*k
		mask := int32(-1)
		if bits < 32 {
			mask = int32(uint32(1)<<uint(bits) - 1)
		}
		m.Add(&bytecode.LdcInsn{Value: mask})
	}
	m.Add(&bytecode.Insn{Op: bytecode.OpAconstNull}, site)
	m.Add(codegen.Coerce(ret, descriptor.Object)...)
	m.Add(&bytecode.Insn{Op: bytecode.OpAreturn})
	return m, nil
}

func zero(t descriptor.Type) bytecode.Node {
	switch t.Sort() {
	case descriptor.SortLong:
		return &bytecode.Insn{Op: bytecode.OpLconst0}
	case descriptor.SortFloat:
		return &bytecode.Insn{Op: bytecode.OpFconst0}
	case descriptor.SortDouble:
		return &bytecode.Insn{Op: bytecode.OpDconst0}
	case descriptor.SortObject, descriptor.SortArray:
		return &bytecode.Insn{Op: bytecode.OpAconstNull}
	}
	return &bytecode.Insn{Op: bytecode.OpIconst0}
}
