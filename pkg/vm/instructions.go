package vm

import (
	"fmt"
	"math"

	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/classfile"
)

// executeInstruction executes a single bytecode instruction.
// Returns (returnValue, hasReturn, error).
func (vm *VM) executeInstruction(frame *Frame, opcode byte) (Value, bool, error) {
	switch {
	// Short forms of loads and stores: iload_0..aload_3, istore_0..astore_3
	case opcode >= bytecode.OpIload0 && opcode <= bytecode.OpAload3:
		frame.Push(frame.GetLocal(int(opcode-bytecode.OpIload0) % 4))
		return Value{}, false, nil
	case opcode >= bytecode.OpIstore0 && opcode <= bytecode.OpAstore3:
		frame.SetLocal(int(opcode-bytecode.OpIstore0)%4, frame.Pop())
		return Value{}, false, nil
	case opcode >= bytecode.OpIload && opcode <= bytecode.OpAload:
		frame.Push(frame.GetLocal(int(frame.ReadU8())))
		return Value{}, false, nil
	case opcode >= bytecode.OpIstore && opcode <= bytecode.OpAstore:
		index := int(frame.ReadU8())
		frame.SetLocal(index, frame.Pop())
		return Value{}, false, nil
	case opcode >= bytecode.OpIconstM1 && opcode <= bytecode.OpIconst5:
		frame.Push(IntValue(int32(opcode) - bytecode.OpIconst0))
		return Value{}, false, nil
	case opcode >= bytecode.OpIfeq && opcode <= bytecode.OpIfle:
		return vm.executeBranchUnary(frame, unaryConditions[opcode-bytecode.OpIfeq])
	case opcode >= bytecode.OpIfIcmpeq && opcode <= bytecode.OpIfIcmple:
		return vm.executeBranchBinary(frame, binaryConditions[opcode-bytecode.OpIfIcmpeq])
	}

	switch opcode {
	case bytecode.OpNop:
		// do nothing

	// --- Constant load instructions ---
	case bytecode.OpAconstNull:
		frame.Push(NullValue())
	case bytecode.OpLconst0, bytecode.OpLconst1:
		frame.Push(LongValue(int64(opcode - bytecode.OpLconst0)))
	case bytecode.OpFconst0, bytecode.OpFconst1, bytecode.OpFconst2:
		frame.Push(FloatValue(float32(opcode - bytecode.OpFconst0)))
	case bytecode.OpDconst0, bytecode.OpDconst1:
		frame.Push(DoubleValue(float64(opcode - bytecode.OpDconst0)))
	case bytecode.OpBipush:
		frame.Push(IntValue(int32(frame.ReadI8())))
	case bytecode.OpSipush:
		frame.Push(IntValue(int32(frame.ReadI16())))
	case bytecode.OpLdc:
		return vm.executeLdc(frame, uint16(frame.ReadU8()))
	case bytecode.OpLdcW, bytecode.OpLdc2W:
		return vm.executeLdc(frame, frame.ReadU16())

	case bytecode.OpWide:
		return vm.executeWide(frame)

	// --- Arrays ---
	case bytecode.OpIaload, bytecode.OpLaload, bytecode.OpFaload, bytecode.OpDaload,
		bytecode.OpAaload, bytecode.OpBaload, bytecode.OpCaload, bytecode.OpSaload:
		index := frame.Pop().Int
		arr, err := popArray(frame)
		if err != nil {
			return Value{}, false, err
		}
		if index < 0 || int(index) >= len(arr.Elements) {
			return Value{}, false, NewJavaException("java/lang/ArrayIndexOutOfBoundsException")
		}
		frame.Push(arr.Elements[index])

	case bytecode.OpIastore, bytecode.OpLastore, bytecode.OpFastore, bytecode.OpDastore,
		bytecode.OpAastore, bytecode.OpBastore, bytecode.OpCastore, bytecode.OpSastore:
		value := frame.Pop()
		index := frame.Pop().Int
		arr, err := popArray(frame)
		if err != nil {
			return Value{}, false, err
		}
		if index < 0 || int(index) >= len(arr.Elements) {
			return Value{}, false, NewJavaException("java/lang/ArrayIndexOutOfBoundsException")
		}
		arr.Elements[index] = value

	case bytecode.OpNewarray, bytecode.OpAnewarray:
		zero := IntValue(0)
		if opcode == bytecode.OpAnewarray {
			frame.ReadU16() // element type
			zero = NullValue()
		} else {
			zero = newarrayZero(frame.ReadU8())
		}
		count := frame.Pop().Int
		if count < 0 {
			return Value{}, false, NewJavaException("java/lang/NegativeArraySizeException")
		}
		elements := make([]Value, count)
		for i := range elements {
			elements[i] = zero
		}
		frame.Push(RefValue(&JArray{Elements: elements}))

	case bytecode.OpArraylength:
		arr, err := popArray(frame)
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(IntValue(int32(len(arr.Elements))))

	// --- Stack manipulation ---
	case bytecode.OpPop:
		frame.Pop()
	case bytecode.OpPop2:
		if !frame.Pop().IsWide() {
			frame.Pop()
		}
	case bytecode.OpDup:
		frame.Push(frame.Peek())
	case bytecode.OpDupX1:
		v1 := frame.Pop()
		v2 := frame.Pop()
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)
	case bytecode.OpDupX2:
		v1 := frame.Pop()
		v2 := frame.Pop()
		v3 := frame.Pop()
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	case bytecode.OpDup2:
		v1 := frame.Pop()
		if v1.IsWide() {
			frame.Push(v1)
			frame.Push(v1)
			break
		}
		v2 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)
	case bytecode.OpSwap:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)

	// --- Arithmetic ---
	case bytecode.OpIadd, bytecode.OpIsub, bytecode.OpImul, bytecode.OpIdiv, bytecode.OpIrem,
		bytecode.OpIshl, bytecode.OpIshr, bytecode.OpIushr, bytecode.OpIand, bytecode.OpIor, bytecode.OpIxor:
		v2 := frame.Pop().Int
		v1 := frame.Pop().Int
		r, err := intOp(opcode, v1, v2)
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(IntValue(r))

	case bytecode.OpLadd, bytecode.OpLsub, bytecode.OpLmul, bytecode.OpLdiv, bytecode.OpLrem,
		bytecode.OpLand, bytecode.OpLor, bytecode.OpLxor:
		v2 := frame.Pop().Long
		v1 := frame.Pop().Long
		r, err := longOp(opcode, v1, v2)
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(LongValue(r))

	case bytecode.OpLshl, bytecode.OpLshr, bytecode.OpLushr:
		s := uint(frame.Pop().Int) & 0x3f
		v := frame.Pop().Long
		switch opcode {
		case bytecode.OpLshl:
			frame.Push(LongValue(v << s))
		case bytecode.OpLshr:
			frame.Push(LongValue(v >> s))
		default:
			frame.Push(LongValue(int64(uint64(v) >> s)))
		}

	case bytecode.OpFadd, bytecode.OpFsub, bytecode.OpFmul, bytecode.OpFdiv:
		v2 := float64(frame.Pop().Float)
		v1 := float64(frame.Pop().Float)
		frame.Push(FloatValue(float32(floatOp(opcode-bytecode.OpFadd, v1, v2))))

	case bytecode.OpDadd, bytecode.OpDsub, bytecode.OpDmul, bytecode.OpDdiv:
		v2 := frame.Pop().Double
		v1 := frame.Pop().Double
		frame.Push(DoubleValue(floatOp(opcode-bytecode.OpDadd, v1, v2)))

	case bytecode.OpIneg:
		frame.Push(IntValue(-frame.Pop().Int))
	case bytecode.OpLneg:
		frame.Push(LongValue(-frame.Pop().Long))
	case bytecode.OpFneg:
		frame.Push(FloatValue(-frame.Pop().Float))
	case bytecode.OpDneg:
		frame.Push(DoubleValue(-frame.Pop().Double))

	case bytecode.OpIinc:
		index := int(frame.ReadU8())
		delta := int32(frame.ReadI8())
		frame.SetLocal(index, IntValue(frame.GetLocal(index).Int+delta))

	// --- Type conversions ---
	case bytecode.OpI2l:
		frame.Push(LongValue(int64(frame.Pop().Int)))
	case bytecode.OpI2f:
		frame.Push(FloatValue(float32(frame.Pop().Int)))
	case bytecode.OpI2d:
		frame.Push(DoubleValue(float64(frame.Pop().Int)))
	case bytecode.OpL2i:
		frame.Push(IntValue(int32(frame.Pop().Long)))
	case bytecode.OpL2f:
		frame.Push(FloatValue(float32(frame.Pop().Long)))
	case bytecode.OpL2d:
		frame.Push(DoubleValue(float64(frame.Pop().Long)))
	case bytecode.OpF2i:
		frame.Push(IntValue(int32(toInt(float64(frame.Pop().Float), math.MinInt32, math.MaxInt32))))
	case bytecode.OpF2l:
		frame.Push(LongValue(toInt(float64(frame.Pop().Float), math.MinInt64, math.MaxInt64)))
	case bytecode.OpF2d:
		frame.Push(DoubleValue(float64(frame.Pop().Float)))
	case bytecode.OpD2i:
		frame.Push(IntValue(int32(toInt(frame.Pop().Double, math.MinInt32, math.MaxInt32))))
	case bytecode.OpD2l:
		frame.Push(LongValue(toInt(frame.Pop().Double, math.MinInt64, math.MaxInt64)))
	case bytecode.OpD2f:
		frame.Push(FloatValue(float32(frame.Pop().Double)))
	case bytecode.OpI2b:
		frame.Push(IntValue(int32(int8(frame.Pop().Int))))
	case bytecode.OpI2c:
		frame.Push(IntValue(int32(uint16(frame.Pop().Int))))
	case bytecode.OpI2s:
		frame.Push(IntValue(int32(int16(frame.Pop().Int))))

	// --- Comparisons ---
	case bytecode.OpLcmp:
		v2 := frame.Pop().Long
		v1 := frame.Pop().Long
		frame.Push(IntValue(compare(v1 > v2, v1 < v2)))
	case bytecode.OpFcmpl, bytecode.OpFcmpg:
		v2 := float64(frame.Pop().Float)
		v1 := float64(frame.Pop().Float)
		frame.Push(IntValue(floatCompare(v1, v2, opcode == bytecode.OpFcmpg)))
	case bytecode.OpDcmpl, bytecode.OpDcmpg:
		v2 := frame.Pop().Double
		v1 := frame.Pop().Double
		frame.Push(IntValue(floatCompare(v1, v2, opcode == bytecode.OpDcmpg)))

	// --- Branches ---
	case bytecode.OpIfAcmpeq, bytecode.OpIfAcmpne:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		v2 := frame.Pop()
		v1 := frame.Pop()
		if sameRef(v1, v2) == (opcode == bytecode.OpIfAcmpeq) {
			frame.PC = branchPC + int(offset)
		}

	case bytecode.OpIfnull, bytecode.OpIfnonnull:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		if frame.Pop().IsNull() == (opcode == bytecode.OpIfnull) {
			frame.PC = branchPC + int(offset)
		}

	case bytecode.OpGoto:
		branchPC := frame.PC - 1
		frame.PC = branchPC + int(frame.ReadI16())

	case bytecode.OpGotoW:
		branchPC := frame.PC - 1
		frame.PC = branchPC + int(frame.ReadI32())

	case bytecode.OpTableswitch:
		opcodePC := frame.PC - 1
		for frame.PC%4 != 0 {
			frame.PC++
		}
		defaultOffset := frame.ReadI32()
		low := frame.ReadI32()
		high := frame.ReadI32()
		offsets := make([]int32, int(high-low+1))
		for i := range offsets {
			offsets[i] = frame.ReadI32()
		}
		index := frame.Pop().Int
		if index >= low && index <= high {
			frame.PC = opcodePC + int(offsets[index-low])
		} else {
			frame.PC = opcodePC + int(defaultOffset)
		}

	case bytecode.OpLookupswitch:
		opcodePC := frame.PC - 1
		for frame.PC%4 != 0 {
			frame.PC++
		}
		target := opcodePC + int(frame.ReadI32())
		npairs := frame.ReadI32()
		key := frame.Pop().Int
		for i := int32(0); i < npairs; i++ {
			match := frame.ReadI32()
			offset := frame.ReadI32()
			if key == match {
				target = opcodePC + int(offset)
			}
		}
		frame.PC = target

	// --- Return ---
	case bytecode.OpIreturn, bytecode.OpLreturn, bytecode.OpFreturn, bytecode.OpDreturn, bytecode.OpAreturn:
		return frame.Pop(), true, nil
	case bytecode.OpReturn:
		return Value{}, true, nil

	// --- Method invocation and field access ---
	case bytecode.OpGetstatic:
		return vm.executeGetstatic(frame)
	case bytecode.OpPutstatic:
		return vm.executePutstatic(frame)
	case bytecode.OpGetfield:
		return vm.executeGetfield(frame)
	case bytecode.OpPutfield:
		return vm.executePutfield(frame)
	case bytecode.OpInvokevirtual:
		return vm.executeInvoke(frame, "invokevirtual", true)
	case bytecode.OpInvokeinterface:
		return vm.executeInvoke(frame, "invokeinterface", true)
	case bytecode.OpInvokespecial:
		return vm.executeInvoke(frame, "invokespecial", false)
	case bytecode.OpInvokestatic:
		return vm.executeInvokestatic(frame)
	case bytecode.OpNew:
		return vm.executeNew(frame)

	case bytecode.OpAthrow:
		excRef := frame.Pop()
		if excRef.IsNull() {
			return Value{}, false, NewJavaException("java/lang/NullPointerException")
		}
		if obj, ok := excRef.Ref.(*JObject); ok {
			return Value{}, false, &JavaException{Object: obj}
		}
		return Value{}, false, fmt.Errorf("athrow: non-object on stack")

	case bytecode.OpCheckcast:
		className, err := classfile.GetClassName(frame.Class.ConstantPool, frame.ReadU16())
		if err != nil {
			return Value{}, false, fmt.Errorf("checkcast: %w", err)
		}
		if val := frame.Peek(); !val.IsNull() && !vm.isInstanceOf(val, className) {
			return Value{}, false, NewJavaException("java/lang/ClassCastException")
		}

	case bytecode.OpInstanceof:
		className, err := classfile.GetClassName(frame.Class.ConstantPool, frame.ReadU16())
		if err != nil {
			return Value{}, false, fmt.Errorf("instanceof: %w", err)
		}
		ref := frame.Pop()
		frame.Push(IntValue(compare(!ref.IsNull() && vm.isInstanceOf(ref, className), false)))

	default:
		return Value{}, false, fmt.Errorf("unknown opcode: 0x%02X at PC=%d", opcode, frame.PC-1)
	}

	return Value{}, false, nil
}

// executeWide handles the wide prefix: a 16-bit local index, and a 16-bit
// increment for iinc.
func (vm *VM) executeWide(frame *Frame) (Value, bool, error) {
	op := frame.ReadU8()
	index := int(frame.ReadU16())
	switch {
	case op == bytecode.OpIinc:
		delta := int32(frame.ReadI16())
		frame.SetLocal(index, IntValue(frame.GetLocal(index).Int+delta))
	case op >= bytecode.OpIload && op <= bytecode.OpAload:
		frame.Push(frame.GetLocal(index))
	case op >= bytecode.OpIstore && op <= bytecode.OpAstore:
		frame.SetLocal(index, frame.Pop())
	default:
		return Value{}, false, fmt.Errorf("wide: unsupported opcode 0x%02X", op)
	}
	return Value{}, false, nil
}

var unaryConditions = [...]func(int32) bool{
	func(v int32) bool { return v == 0 },
	func(v int32) bool { return v != 0 },
	func(v int32) bool { return v < 0 },
	func(v int32) bool { return v >= 0 },
	func(v int32) bool { return v > 0 },
	func(v int32) bool { return v <= 0 },
}

var binaryConditions = [...]func(int32, int32) bool{
	func(v1, v2 int32) bool { return v1 == v2 },
	func(v1, v2 int32) bool { return v1 != v2 },
	func(v1, v2 int32) bool { return v1 < v2 },
	func(v1, v2 int32) bool { return v1 >= v2 },
	func(v1, v2 int32) bool { return v1 > v2 },
	func(v1, v2 int32) bool { return v1 <= v2 },
}

// executeBranchUnary handles unary branch instructions (ifeq, ifne, etc.)
func (vm *VM) executeBranchUnary(frame *Frame, cond func(int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1 // PC of the branch instruction
	offset := frame.ReadI16()
	val := frame.Pop()
	if cond(val.Int) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

// executeBranchBinary handles binary branch instructions (if_icmpeq, etc.)
func (vm *VM) executeBranchBinary(frame *Frame, cond func(int32, int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1 // PC of the branch instruction
	offset := frame.ReadI16()
	v2 := frame.Pop()
	v1 := frame.Pop()
	if cond(v1.Int, v2.Int) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

func intOp(op byte, v1, v2 int32) (int32, error) {
	switch op {
	case bytecode.OpIadd:
		return v1 + v2, nil
	case bytecode.OpIsub:
		return v1 - v2, nil
	case bytecode.OpImul:
		return v1 * v2, nil
	case bytecode.OpIdiv, bytecode.OpIrem:
		if v2 == 0 {
			return 0, NewJavaException("java/lang/ArithmeticException")
		}
		if v1 == math.MinInt32 && v2 == -1 {
			// Overflows in Go; the JVM defines the result.
			if op == bytecode.OpIdiv {
				return v1, nil
			}
			return 0, nil
		}
		if op == bytecode.OpIdiv {
			return v1 / v2, nil
		}
		return v1 % v2, nil
	case bytecode.OpIshl:
		return v1 << (uint(v2) & 0x1f), nil
	case bytecode.OpIshr:
		return v1 >> (uint(v2) & 0x1f), nil
	case bytecode.OpIushr:
		return int32(uint32(v1) >> (uint(v2) & 0x1f)), nil
	case bytecode.OpIand:
		return v1 & v2, nil
	case bytecode.OpIor:
		return v1 | v2, nil
	}
	return v1 ^ v2, nil
}

func longOp(op byte, v1, v2 int64) (int64, error) {
	switch op {
	case bytecode.OpLadd:
		return v1 + v2, nil
	case bytecode.OpLsub:
		return v1 - v2, nil
	case bytecode.OpLmul:
		return v1 * v2, nil
	case bytecode.OpLdiv, bytecode.OpLrem:
		if v2 == 0 {
			return 0, NewJavaException("java/lang/ArithmeticException")
		}
		if v1 == math.MinInt64 && v2 == -1 {
			if op == bytecode.OpLdiv {
				return v1, nil
			}
			return 0, nil
		}
		if op == bytecode.OpLdiv {
			return v1 / v2, nil
		}
		return v1 % v2, nil
	case bytecode.OpLand:
		return v1 & v2, nil
	case bytecode.OpLor:
		return v1 | v2, nil
	}
	return v1 ^ v2, nil
}

// floatOp applies add, sub, mul or div, in the order of the opcode table.
func floatOp(kind byte, v1, v2 float64) float64 {
	switch kind / 4 {
	case 0:
		return v1 + v2
	case 1:
		return v1 - v2
	case 2:
		return v1 * v2
	}
	return v1 / v2
}

func toInt(v float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return int64(v)
}

func compare(gt, lt bool) int32 {
	switch {
	case gt:
		return 1
	case lt:
		return -1
	}
	return 0
}

func floatCompare(v1, v2 float64, nanIsGreater bool) int32 {
	if math.IsNaN(v1) || math.IsNaN(v2) {
		if nanIsGreater {
			return 1
		}
		return -1
	}
	return compare(v1 > v2, v1 < v2)
}

func sameRef(v1, v2 Value) bool {
	if v1.IsNull() || v2.IsNull() {
		return v1.IsNull() && v2.IsNull()
	}
	return v1.Ref == v2.Ref
}

func popArray(frame *Frame) (*JArray, error) {
	ref := frame.Pop()
	if ref.IsNull() {
		return nil, NewJavaException("java/lang/NullPointerException")
	}
	arr, ok := ref.Ref.(*JArray)
	if !ok {
		return nil, fmt.Errorf("reference is not an array")
	}
	return arr, nil
}

// newarrayZero returns the initial element for a newarray type code.
func newarrayZero(atype uint8) Value {
	switch atype {
	case 6:
		return FloatValue(0)
	case 7:
		return DoubleValue(0)
	case 11:
		return LongValue(0)
	}
	return IntValue(0)
}
