package codegen

import (
	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/typemap"
)

var unboxMethods = map[string]struct {
	name string
	t    descriptor.Type
}{
	"java/lang/Integer":   {"intValue", descriptor.Int},
	"java/lang/Long":      {"longValue", descriptor.Long},
	"java/lang/Boolean":   {"booleanValue", descriptor.Boolean},
	"java/lang/Double":    {"doubleValue", descriptor.Double},
	"java/lang/Float":     {"floatValue", descriptor.Float},
	"java/lang/Character": {"charValue", descriptor.Char},
	"java/lang/Byte":      {"byteValue", descriptor.Byte},
	"java/lang/Short":     {"shortValue", descriptor.Short},
}

// Coerce returns the instructions converting a value of type from on top of
// the stack into a value of type to: boxing, unboxing, checkcast, popping a
// discarded value or pushing Unit for a missing one.
func Coerce(from, to descriptor.Type) []bytecode.Node {
	if from == to {
		return nil
	}
	if to == descriptor.Void {
		return Pop(from)
	}
	if from == descriptor.Void {
		unit := []bytecode.Node{&bytecode.FieldInsn{Op: bytecode.OpGetstatic, Owner: "kotlin/Unit", Name: "INSTANCE", Desc: "Lkotlin/Unit;"}}
		return append(unit, Coerce(descriptor.ObjectType("kotlin/Unit"), to)...)
	}
	switch {
	case !from.IsReference() && to.IsReference():
		boxed := typemap.BoxedType(from)
		out := []bytecode.Node{&bytecode.MethodInsn{
			Op:    bytecode.OpInvokestatic,
			Owner: boxed,
			Name:  "valueOf",
			Desc:  descriptor.MethodDescriptor(descriptor.ObjectType(boxed), from),
		}}
		return append(out, Coerce(descriptor.ObjectType(boxed), to)...)
	case from.IsReference() && !to.IsReference():
		boxed := typemap.BoxedType(to)
		u := unboxMethods[boxed]
		return []bytecode.Node{
			&bytecode.TypeInsn{Op: bytecode.OpCheckcast, Type: boxed},
			&bytecode.MethodInsn{Op: bytecode.OpInvokevirtual, Owner: boxed, Name: u.name, Desc: descriptor.MethodDescriptor(u.t)},
		}
	case from.IsReference() && to.IsReference():
		if to == descriptor.Object {
			return nil
		}
		return []bytecode.Node{&bytecode.TypeInsn{Op: bytecode.OpCheckcast, Type: to.InternalName()}}
	}
	return primitiveConversion(from, to)
}

func primitiveConversion(from, to descriptor.Type) []bytecode.Node {
	key := from.Descriptor() + to.Descriptor()
	if op, ok := conversions[key]; ok {
		return []bytecode.Node{&bytecode.Insn{Op: op}}
	}
	return nil
}

var conversions = map[string]byte{
	"IJ": bytecode.OpI2l, "IF": bytecode.OpI2f, "ID": bytecode.OpI2d,
	"JI": bytecode.OpL2i, "JF": bytecode.OpL2f, "JD": bytecode.OpL2d,
	"FI": bytecode.OpF2i, "FJ": bytecode.OpF2l, "FD": bytecode.OpF2d,
	"DI": bytecode.OpD2i, "DJ": bytecode.OpD2l, "DF": bytecode.OpD2f,
}

// Pop discards a value of type t.
func Pop(t descriptor.Type) []bytecode.Node {
	switch t.Size() {
	case 0:
		return nil
	case 2:
		return []bytecode.Node{&bytecode.Insn{Op: bytecode.OpPop2}}
	}
	return []bytecode.Node{&bytecode.Insn{Op: bytecode.OpPop}}
}

// ReturnOpcode returns the return instruction for values of type t.
func ReturnOpcode(t descriptor.Type) byte {
	switch t.Sort() {
	case descriptor.SortVoid:
		return bytecode.OpReturn
	case descriptor.SortLong:
		return bytecode.OpLreturn
	case descriptor.SortFloat:
		return bytecode.OpFreturn
	case descriptor.SortDouble:
		return bytecode.OpDreturn
	case descriptor.SortArray, descriptor.SortObject:
		return bytecode.OpAreturn
	}
	return bytecode.OpIreturn
}

// LoadOpcode returns the load instruction for locals of type t.
func LoadOpcode(t descriptor.Type) byte {
	switch t.Sort() {
	case descriptor.SortLong:
		return bytecode.OpLload
	case descriptor.SortFloat:
		return bytecode.OpFload
	case descriptor.SortDouble:
		return bytecode.OpDload
	case descriptor.SortArray, descriptor.SortObject:
		return bytecode.OpAload
	}
	return bytecode.OpIload
}

// StoreOpcode returns the store instruction for locals of type t.
func StoreOpcode(t descriptor.Type) byte {
	return LoadOpcode(t) - bytecode.OpIload + bytecode.OpIstore
}

// PushInt returns the shortest instruction pushing v.
func PushInt(v int32) bytecode.Node {
	switch {
	case v >= -1 && v <= 5:
		return &bytecode.Insn{Op: byte(int32(bytecode.OpIconst0) + v)}
	case v >= -128 && v <= 127:
		return &bytecode.IntInsn{Op: bytecode.OpBipush, Operand: int(v)}
	case v >= -32768 && v <= 32767:
		return &bytecode.IntInsn{Op: bytecode.OpSipush, Operand: int(v)}
	}
	return &bytecode.LdcInsn{Value: v}
}
