// Package vm is a small bytecode interpreter used to run methods after
// inlining. It implements the instructions the inliner and the body
// generator emit plus the runtime pieces they call (boxing, Unit, println).
package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/classindex"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/native"
)

var log = commonlog.GetLogger("lambdainline.vm")

// maxFrameDepth is the maximum number of nested method calls.
const maxFrameDepth = 1024

// VM is the virtual machine that executes Java bytecode.
type VM struct {
	Classes classindex.Index
	Stdout  io.Writer

	loaded      map[string]*classfile.ClassFile
	initialized map[string]bool
	statics     map[string]Value
	frameDepth  int
}

// New creates a VM loading classes from idx.
func New(idx classindex.Index) *VM {
	return &VM{
		Classes:     idx,
		Stdout:      os.Stdout,
		loaded:      make(map[string]*classfile.ClassFile),
		initialized: make(map[string]bool),
		statics:     make(map[string]Value),
	}
}

// LoadClass returns the parsed class, loading it on first use.
func (vm *VM) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := vm.loaded[name]; ok {
		return cf, nil
	}
	cf, err := classindex.LoadClass(vm.Classes, name)
	if err != nil {
		return nil, err
	}
	vm.loaded[name] = cf
	return cf, nil
}

// Execute finds and executes the main method of the class.
func (vm *VM) Execute(className string) error {
	// main(String[] args): pass null for args
	_, err := vm.Invoke(className, "main", "([Ljava/lang/String;)V", NullValue())
	return err
}

// Invoke runs a method. args holds the receiver first for instance methods,
// then one Value per declared parameter.
func (vm *VM) Invoke(className, name, desc string, args ...Value) (Value, error) {
	cf, err := vm.LoadClass(className)
	if err != nil {
		return Value{}, err
	}
	if err := vm.initClass(className); err != nil {
		return Value{}, err
	}
	method := cf.FindMethod(name, desc)
	if method == nil {
		return Value{}, fmt.Errorf("method %s.%s%s not found", className, name, desc)
	}
	ret, err := vm.executeMethod(cf, method, args)
	var exc *JavaException
	if errors.As(err, &exc) {
		return Value{}, fmt.Errorf("uncaught exception in %s.%s: %w", className, name, err)
	}
	return ret, err
}

// initClass runs the static initializer of a class once.
func (vm *VM) initClass(className string) error {
	if vm.initialized[className] {
		return nil
	}
	vm.initialized[className] = true
	cf, err := vm.LoadClass(className)
	if err != nil {
		return err
	}
	clinit := cf.FindMethod("<clinit>", "()V")
	if clinit == nil {
		return nil
	}
	log.Debugf("initializing %s", className)
	_, err = vm.executeMethod(cf, clinit, nil)
	return err
}

// executeMethod executes a method with the given arguments and returns its return value.
func (vm *VM) executeMethod(cf *classfile.ClassFile, method *classfile.MethodInfo, args []Value) (Value, error) {
	if method.Code == nil {
		return Value{}, fmt.Errorf("method %s has no Code attribute", method.Name)
	}

	vm.frameDepth++
	if vm.frameDepth > maxFrameDepth {
		return Value{}, fmt.Errorf("stack overflow: frame depth exceeded %d", maxFrameDepth)
	}
	defer func() { vm.frameDepth-- }()

	frame := NewFrame(method.Code.MaxLocals, method.Code.MaxStack, method.Code.Code, cf)

	// Arguments go into consecutive slots; long and double take two.
	params, err := descriptor.ArgumentTypes(method.Descriptor)
	if err != nil {
		return Value{}, err
	}
	if method.AccessFlags&classfile.AccStatic == 0 {
		params = append([]descriptor.Type{descriptor.Object}, params...)
	}
	slot := 0
	for i, arg := range args {
		frame.SetLocal(slot, arg)
		if i < len(params) {
			slot += params[i].Size()
		} else {
			slot++
		}
	}

	// Execution loop
	for frame.PC < len(frame.Code) {
		pc := frame.PC
		opcode := frame.Code[frame.PC]
		frame.PC++

		retVal, hasReturn, err := vm.executeInstruction(frame, opcode)
		if err != nil {
			var exc *JavaException
			if !errors.As(err, &exc) {
				return Value{}, err
			}
			handler := vm.findHandler(frame, method.Code, pc, exc)
			if handler < 0 {
				return Value{}, err
			}
			frame.SP = 0
			frame.Push(RefValue(exc.Object))
			frame.PC = handler
			continue
		}
		if hasReturn {
			return retVal, nil
		}
	}

	// Fell off the end of the method (implicit return for void methods)
	return Value{}, nil
}

// executeLdc handles the ldc family of instructions.
func (vm *VM) executeLdc(frame *Frame, index uint16) (Value, bool, error) {
	c, err := classfile.ResolveLoadable(frame.Class.ConstantPool, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("ldc: %w", err)
	}
	switch c := c.(type) {
	case int32:
		frame.Push(IntValue(c))
	case float32:
		frame.Push(FloatValue(c))
	case int64:
		frame.Push(LongValue(c))
	case float64:
		frame.Push(DoubleValue(c))
	case string:
		frame.Push(RefValue(c))
	case classfile.ClassConstant:
		frame.Push(RefValue(c))
	}
	return Value{}, false, nil
}

func (vm *VM) resolveMember(frame *Frame, insn string) (*classfile.MemberRef, error) {
	ref, err := classfile.ResolveMemberRef(frame.Class.ConstantPool, frame.ReadU16())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", insn, err)
	}
	return ref, nil
}

// executeGetstatic handles the getstatic instruction.
func (vm *VM) executeGetstatic(frame *Frame) (Value, bool, error) {
	ref, err := vm.resolveMember(frame, "getstatic")
	if err != nil {
		return Value{}, false, err
	}

	switch {
	case ref.Owner == "java/lang/System" && ref.Name == "out":
		frame.Push(RefValue(&native.PrintStream{Writer: vm.Stdout}))
		return Value{}, false, nil
	case ref.Owner == "kotlin/Unit" && ref.Name == "INSTANCE":
		frame.Push(RefValue(native.Unit))
		return Value{}, false, nil
	}

	if err := vm.initClass(ref.Owner); err != nil {
		return Value{}, false, fmt.Errorf("getstatic: %w", err)
	}
	val, ok := vm.statics[ref.Owner+"."+ref.Name]
	if !ok {
		val = zeroValue(ref.Descriptor)
	}
	frame.Push(val)
	return Value{}, false, nil
}

// executePutstatic handles the putstatic instruction.
func (vm *VM) executePutstatic(frame *Frame) (Value, bool, error) {
	ref, err := vm.resolveMember(frame, "putstatic")
	if err != nil {
		return Value{}, false, err
	}
	vm.statics[ref.Owner+"."+ref.Name] = frame.Pop()
	return Value{}, false, nil
}

// executeGetfield handles the getfield instruction.
func (vm *VM) executeGetfield(frame *Frame) (Value, bool, error) {
	ref, err := vm.resolveMember(frame, "getfield")
	if err != nil {
		return Value{}, false, err
	}

	objectRef := frame.Pop()
	if objectRef.IsNull() {
		return Value{}, false, NewJavaException("java/lang/NullPointerException")
	}
	obj, ok := objectRef.Ref.(*JObject)
	if !ok {
		return Value{}, false, fmt.Errorf("getfield: receiver is not a JObject")
	}

	val, exists := obj.Fields[ref.Name]
	if !exists {
		val = zeroValue(ref.Descriptor)
	}
	frame.Push(val)
	return Value{}, false, nil
}

// executePutfield handles the putfield instruction.
func (vm *VM) executePutfield(frame *Frame) (Value, bool, error) {
	ref, err := vm.resolveMember(frame, "putfield")
	if err != nil {
		return Value{}, false, err
	}

	value := frame.Pop()
	objectRef := frame.Pop()
	if objectRef.IsNull() {
		return Value{}, false, NewJavaException("java/lang/NullPointerException")
	}
	obj, ok := objectRef.Ref.(*JObject)
	if !ok {
		return Value{}, false, fmt.Errorf("putfield: receiver is not a JObject")
	}

	obj.Fields[ref.Name] = value
	return Value{}, false, nil
}

func popArgs(frame *Frame, desc string) ([]Value, error) {
	params, err := descriptor.ArgumentTypes(desc)
	if err != nil {
		return nil, err
	}
	args := make([]Value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		args[i] = frame.Pop()
	}
	return args, nil
}

// executeInvoke handles invokevirtual, invokeinterface and invokespecial.
func (vm *VM) executeInvoke(frame *Frame, insn string, virtual bool) (Value, bool, error) {
	ref, err := vm.resolveMember(frame, insn)
	if err != nil {
		return Value{}, false, err
	}
	if insn == "invokeinterface" {
		frame.PC += 2 // count, 0
	}
	args, err := popArgs(frame, ref.Descriptor)
	if err != nil {
		return Value{}, false, fmt.Errorf("%s: %w", insn, err)
	}
	objectRef := frame.Pop()

	if handled, err := vm.invokeNative(frame, ref, objectRef, args); handled || err != nil {
		return Value{}, false, err
	}
	if objectRef.IsNull() {
		return Value{}, false, NewJavaException("java/lang/NullPointerException")
	}

	// User-defined method, dispatched on the receiver's class
	start := ref.Owner
	if obj, ok := objectRef.Ref.(*JObject); ok && virtual {
		start = obj.ClassName
	}
	cf, method, err := vm.findMethod(start, ref.Name, ref.Descriptor)
	if err != nil {
		return Value{}, false, fmt.Errorf("%s: %w", insn, err)
	}
	retVal, err := vm.executeMethod(cf, method, append([]Value{objectRef}, args...))
	if err != nil {
		return Value{}, false, err
	}
	if !isVoidReturn(ref.Descriptor) {
		frame.Push(retVal)
	}
	return Value{}, false, nil
}

// executeInvokestatic handles the invokestatic instruction.
func (vm *VM) executeInvokestatic(frame *Frame) (Value, bool, error) {
	ref, err := vm.resolveMember(frame, "invokestatic")
	if err != nil {
		return Value{}, false, err
	}
	args, err := popArgs(frame, ref.Descriptor)
	if err != nil {
		return Value{}, false, fmt.Errorf("invokestatic: %w", err)
	}

	// Native static methods
	if native.IsWrapperClass(ref.Owner) && ref.Name == "valueOf" && len(args) == 1 {
		frame.Push(RefValue(native.ValueOf(ref.Owner, unboxedValue(args[0]))))
		return Value{}, false, nil
	}
	if ref.Owner == "kotlin/jvm/internal/Intrinsics" && strings.HasPrefix(ref.Name, "check") {
		return Value{}, false, nil
	}

	cf, err := vm.LoadClass(ref.Owner)
	if err != nil {
		return Value{}, false, fmt.Errorf("invokestatic: %w", err)
	}
	if err := vm.initClass(ref.Owner); err != nil {
		return Value{}, false, err
	}
	method := cf.FindMethod(ref.Name, ref.Descriptor)
	if method == nil {
		return Value{}, false, fmt.Errorf("invokestatic: method %s:%s not found in class %s", ref.Name, ref.Descriptor, ref.Owner)
	}

	retVal, err := vm.executeMethod(cf, method, args)
	if err != nil {
		return Value{}, false, err
	}
	if !isVoidReturn(ref.Descriptor) {
		frame.Push(retVal)
	}
	return Value{}, false, nil
}

// invokeNative runs the runtime methods the VM implements in Go.
func (vm *VM) invokeNative(frame *Frame, ref *classfile.MemberRef, objectRef Value, args []Value) (bool, error) {
	switch {
	case ref.Name == "<init>" && (ref.Owner == "java/lang/Object" || ref.Owner == "kotlin/jvm/internal/Lambda"):
		return true, nil

	case ref.Owner == "java/io/PrintStream" && ref.Name == "println":
		ps, ok := objectRef.Ref.(*native.PrintStream)
		if !ok {
			return true, fmt.Errorf("invokevirtual: println receiver is not a PrintStream")
		}
		if len(args) == 0 {
			ps.Println()
		} else {
			ps.Println(args[0].String())
		}
		return true, nil

	case native.IsWrapperClass(ref.Owner) && strings.HasSuffix(ref.Name, "Value"):
		b, ok := objectRef.Ref.(*native.Box)
		if !ok {
			return true, NewJavaException("java/lang/ClassCastException")
		}
		frame.Push(boxedValue(b))
		return true, nil

	case ref.Name == "toString" && ref.Descriptor == "()Ljava/lang/String;":
		if _, ok := objectRef.Ref.(*JObject); ok {
			return false, nil
		}
		frame.Push(RefValue(objectRef.String()))
		return true, nil

	case ref.Owner == "java/lang/String" && ref.Name == "length":
		s, _ := objectRef.Ref.(string)
		frame.Push(IntValue(int32(len([]rune(s)))))
		return true, nil
	}
	return false, nil
}

// findMethod looks a method up in class and its superclasses.
func (vm *VM) findMethod(class, name, desc string) (*classfile.ClassFile, *classfile.MethodInfo, error) {
	for c := class; c != ""; {
		cf, err := vm.LoadClass(c)
		if err != nil {
			return nil, nil, err
		}
		if m := cf.FindMethod(name, desc); m != nil {
			return cf, m, nil
		}
		c = cf.SuperClassName()
	}
	return nil, nil, fmt.Errorf("method %s.%s%s not found", class, name, desc)
}

// executeNew handles the new instruction.
func (vm *VM) executeNew(frame *Frame) (Value, bool, error) {
	className, err := classfile.GetClassName(frame.Class.ConstantPool, frame.ReadU16())
	if err != nil {
		return Value{}, false, fmt.Errorf("new: %w", err)
	}
	if err := vm.initClass(className); err != nil && !errors.Is(err, classindex.ErrClassNotFound) {
		return Value{}, false, err
	}
	frame.Push(RefValue(&JObject{ClassName: className, Fields: make(map[string]Value)}))
	return Value{}, false, nil
}

// isInstanceOf reports whether v can be cast to className.
func (vm *VM) isInstanceOf(v Value, className string) bool {
	if className == "java/lang/Object" {
		return true
	}
	switch r := v.Ref.(type) {
	case *JObject:
		return vm.isSubclass(r.ClassName, className)
	case string:
		return className == "java/lang/String" || className == "java/lang/CharSequence" || className == "java/lang/Comparable"
	case *native.Box:
		return className == r.Class || className == "java/lang/Number" && r.Class != "java/lang/Boolean" && r.Class != "java/lang/Character"
	case *native.UnitValue:
		return className == "kotlin/Unit"
	case *JArray:
		return strings.HasPrefix(className, "[")
	}
	return false
}

// isSubclass walks the superclasses and interfaces of class. Classes missing
// from the index end the walk.
func (vm *VM) isSubclass(class, target string) bool {
	if class == target || target == "java/lang/Object" {
		return true
	}
	if strings.HasPrefix(class, "java/lang/") && strings.HasSuffix(class, "Exception") {
		return exceptionRoots[target]
	}
	cf, err := vm.LoadClass(class)
	if err != nil {
		return false
	}
	for _, idx := range cf.Interfaces {
		name, err := classfile.GetClassName(cf.ConstantPool, idx)
		if err == nil && vm.isSubclass(name, target) {
			return true
		}
	}
	if super := cf.SuperClassName(); super != "" {
		return vm.isSubclass(super, target)
	}
	return false
}

// exceptionRoots are the supertypes of the runtime exceptions the VM throws.
var exceptionRoots = map[string]bool{
	"java/lang/Throwable":        true,
	"java/lang/Exception":        true,
	"java/lang/RuntimeException": true,
}

func zeroValue(desc string) Value {
	switch desc[0] {
	case 'J':
		return LongValue(0)
	case 'F':
		return FloatValue(0)
	case 'D':
		return DoubleValue(0)
	case 'L', '[':
		return NullValue()
	}
	return IntValue(0)
}

func unboxedValue(v Value) interface{} {
	switch v.Type {
	case TypeLong:
		return v.Long
	case TypeFloat:
		return v.Float
	case TypeDouble:
		return v.Double
	}
	return v.Int
}

func boxedValue(b *native.Box) Value {
	switch x := b.Value.(type) {
	case int64:
		return LongValue(x)
	case float32:
		return FloatValue(x)
	case float64:
		return DoubleValue(x)
	case int32:
		return IntValue(x)
	}
	return IntValue(0)
}

// isVoidReturn checks if a method descriptor has void return type.
func isVoidReturn(desc string) bool {
	return strings.HasSuffix(desc, ")V")
}
