package vm

import (
	"errors"
	"io"
	"math"
	"testing"
)

// execute creates a Frame with the given bytecodes and runs the execution
// loop until a return instruction. Optional locals are int32 values starting
// at index 0.
func execute(t *testing.T, code []byte, locals ...int32) (Value, error) {
	t.Helper()

	maxLocals := uint16(len(locals))
	if maxLocals < 4 {
		maxLocals = 4
	}

	frame := NewFrame(maxLocals, 10, code, nil)
	for i, val := range locals {
		frame.SetLocal(i, IntValue(val))
	}

	v := &VM{Stdout: io.Discard}

	for frame.PC < len(frame.Code) {
		opcode := frame.Code[frame.PC]
		frame.PC++
		retVal, hasReturn, err := v.executeInstruction(frame, opcode)
		if err != nil {
			return Value{}, err
		}
		if hasReturn {
			return retVal, nil
		}
	}

	t.Fatal("bytecode did not return a value")
	return Value{}, nil
}

func mustExecute(t *testing.T, code []byte, locals ...int32) Value {
	t.Helper()
	v, err := execute(t, code, locals...)
	if err != nil {
		t.Fatalf("execution error: %v", err)
	}
	return v
}

func TestIconst(t *testing.T) {
	tests := []struct {
		name   string
		opcode byte
		want   int32
	}{
		{"iconst_m1", 0x02, -1},
		{"iconst_0", 0x03, 0},
		{"iconst_3", 0x06, 3},
		{"iconst_5", 0x08, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := []byte{tt.opcode, 0xAC} // iconst_N, ireturn
			if got := mustExecute(t, code).Int; got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBipushSipush(t *testing.T) {
	if got := mustExecute(t, []byte{0x10, 0x80, 0xAC}).Int; got != -128 {
		t.Errorf("bipush: got %d, want -128", got)
	}
	if got := mustExecute(t, []byte{0x11, 0x01, 0x00, 0xAC}).Int; got != 256 {
		t.Errorf("sipush: got %d, want 256", got)
	}
}

func TestIntArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		a, b int32
		want int32
	}{
		{"iadd", 0x60, 7, 3, 10},
		{"isub", 0x64, 7, 3, 4},
		{"imul", 0x68, 7, 3, 21},
		{"idiv", 0x6C, 7, 3, 2},
		{"idiv negative", 0x6C, -7, 2, -3},
		{"idiv overflow", 0x6C, math.MinInt32, -1, math.MinInt32},
		{"irem", 0x70, 7, 3, 1},
		{"irem overflow", 0x70, math.MinInt32, -1, 0},
		{"ishl", 0x78, 7, 3, 56},
		{"ishl masks shift", 0x78, 1, 33, 2},
		{"ishr", 0x7A, -8, 1, -4},
		{"iushr", 0x7C, -8, 28, 15},
		{"iand", 0x7E, 7, 3, 3},
		{"ior", 0x80, 4, 3, 7},
		{"ixor", 0x82, 7, 3, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := []byte{0x1A, 0x1B, tt.op, 0xAC} // iload_0, iload_1, op, ireturn
			if got := mustExecute(t, code, tt.a, tt.b).Int; got != tt.want {
				t.Errorf("%d op %d: got %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	for _, op := range []byte{0x6C, 0x70} {
		_, err := execute(t, []byte{0x1A, 0x1B, op, 0xAC}, 1, 0)
		var exc *JavaException
		if !errors.As(err, &exc) {
			t.Fatalf("opcode 0x%02X: got %v, want a JavaException", op, err)
		}
		if exc.Object.ClassName != "java/lang/ArithmeticException" {
			t.Errorf("got %q, want %q", exc.Object.ClassName, "java/lang/ArithmeticException")
		}
	}
}

func TestLongArithmetic(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		a, b int32
		want int64
	}{
		// lconst_1, iload_0, i2l, ladd, lreturn
		{"ladd", []byte{0x0A, 0x1A, 0x85, 0x61, 0xAD}, 41, 0, 42},
		// iload_0, i2l, iload_1, lshl, lreturn
		{"lshl", []byte{0x1A, 0x85, 0x1B, 0x79, 0xAD}, 1, 40, 1 << 40},
		// iload_0, i2l, iload_1, i2l, lmul, lreturn
		{"lmul", []byte{0x1A, 0x85, 0x1B, 0x85, 0x69, 0xAD}, 1 << 20, 1 << 20, 1 << 40},
		// lconst_1, dup2, ladd, lreturn
		{"dup2 of a long", []byte{0x0A, 0x5C, 0x61, 0xAD}, 0, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustExecute(t, tt.code, tt.a, tt.b)
			if got.Type != TypeLong || got.Long != tt.want {
				t.Errorf("got %v, want long %d", got, tt.want)
			}
		})
	}
}

func TestLcmp(t *testing.T) {
	code := []byte{0x1A, 0x85, 0x1B, 0x85, 0x94, 0xAC} // iload_0, i2l, iload_1, i2l, lcmp, ireturn
	tests := []struct {
		a, b int32
		want int32
	}{
		{5, 3, 1},
		{3, 5, -1},
		{4, 4, 0},
	}
	for _, tt := range tests {
		if got := mustExecute(t, code, tt.a, tt.b).Int; got != tt.want {
			t.Errorf("lcmp(%d, %d): got %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDoubleArithmetic(t *testing.T) {
	// iload_0, i2d, dconst_1, dadd, dreturn
	got := mustExecute(t, []byte{0x1A, 0x87, 0x0F, 0x63, 0xAF}, 1)
	if got.Type != TypeDouble || got.Double != 2 {
		t.Errorf("dadd: got %v, want 2", got)
	}

	// iload_0, i2d, iload_1, i2d, ddiv, d2i, ireturn
	if got := mustExecute(t, []byte{0x1A, 0x87, 0x1B, 0x87, 0x6F, 0x8E, 0xAC}, 7, 2).Int; got != 3 {
		t.Errorf("d2i(7.0/2.0): got %d, want 3", got)
	}

	// dconst_0, dconst_0, ddiv (NaN), d2i, ireturn
	if got := mustExecute(t, []byte{0x0E, 0x0E, 0x6F, 0x8E, 0xAC}).Int; got != 0 {
		t.Errorf("d2i(NaN): got %d, want 0", got)
	}
}

func TestPop2(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"one long", []byte{0x08, 0x0A, 0x58, 0xAC}},             // iconst_5, lconst_1, pop2, ireturn
		{"two ints", []byte{0x08, 0x04, 0x05, 0x58, 0xAC}},       // iconst_5, iconst_1, iconst_2, pop2, ireturn
		{"one double", []byte{0x08, 0x0F, 0x58, 0xAC}},           // iconst_5, dconst_1, pop2, ireturn
		{"swap then pop", []byte{0x08, 0x03, 0x5F, 0x57, 0xAC}}, // iconst_5, iconst_0, swap, pop, ireturn
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustExecute(t, tt.code).Int; got != 5 {
				t.Errorf("got %d, want 5", got)
			}
		})
	}
}

func TestIinc(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		{"positive", []byte{0x84, 0x00, 0x05, 0x1A, 0xAC}, 15},
		{"negative", []byte{0x84, 0x00, 0xFF, 0x1A, 0xAC}, 9},
		{"wide", []byte{0xC4, 0x84, 0x00, 0x00, 0x01, 0x00, 0x1A, 0xAC}, 266},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustExecute(t, tt.code, 10).Int; got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWideLoadStore(t *testing.T) {
	// bipush 9, wide istore 2, wide iload 2, ireturn
	code := []byte{0x10, 0x09, 0xC4, 0x36, 0x00, 0x02, 0xC4, 0x15, 0x00, 0x02, 0xAC}
	if got := mustExecute(t, code).Int; got != 9 {
		t.Errorf("got %d, want 9", got)
	}
}

func TestBranches(t *testing.T) {
	// iload_0, ifeq +5, iconst_1, ireturn, iconst_0, ireturn
	ifeq := []byte{0x1A, 0x99, 0x00, 0x05, 0x04, 0xAC, 0x03, 0xAC}
	// iload_0, iload_1, if_icmplt +5, iload_0, ireturn, iload_1, ireturn
	maxOf := []byte{0x1A, 0x1B, 0xA1, 0x00, 0x05, 0x1A, 0xAC, 0x1B, 0xAC}
	// aconst_null, ifnull +5, iconst_1, ireturn, iconst_0, ireturn
	ifnull := []byte{0x01, 0xC6, 0x00, 0x05, 0x04, 0xAC, 0x03, 0xAC}
	// iconst_0, goto +4, iconst_1, ireturn
	jump := []byte{0x03, 0xA7, 0x00, 0x04, 0x04, 0xAC}

	tests := []struct {
		name   string
		code   []byte
		locals []int32
		want   int32
	}{
		{"ifeq taken", ifeq, []int32{0}, 0},
		{"ifeq not taken", ifeq, []int32{3}, 1},
		{"max first", maxOf, []int32{9, 4}, 9},
		{"max second", maxOf, []int32{4, 9}, 9},
		{"ifnull", ifnull, nil, 0},
		{"goto", jump, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustExecute(t, tt.code, tt.locals...).Int; got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTableswitch(t *testing.T) {
	code := []byte{
		0x1A,                   // pc0 iload_0
		0xAA, 0x00, 0x00,       // pc1 tableswitch, padded to pc4
		0x00, 0x00, 0x00, 0x1B, // default -> pc28
		0x00, 0x00, 0x00, 0x00, // low 0
		0x00, 0x00, 0x00, 0x01, // high 1
		0x00, 0x00, 0x00, 0x17, // 0 -> pc24
		0x00, 0x00, 0x00, 0x19, // 1 -> pc26
		0x04, 0xAC, // pc24 iconst_1, ireturn
		0x05, 0xAC, // pc26 iconst_2, ireturn
		0x02, 0xAC, // pc28 iconst_m1, ireturn
	}

	tests := []struct {
		key  int32
		want int32
	}{
		{0, 1},
		{1, 2},
		{7, -1},
		{-1, -1},
	}
	for _, tt := range tests {
		if got := mustExecute(t, code, tt.key).Int; got != tt.want {
			t.Errorf("key %d: got %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestFramePushPop(t *testing.T) {
	frame := NewFrame(0, 10, nil, nil)

	frame.Push(IntValue(10))
	frame.Push(LongValue(20))
	frame.Push(NullValue())

	if v := frame.Pop(); !v.IsNull() {
		t.Errorf("first Pop: got %v, want null", v)
	}
	if v := frame.Peek(); v.Long != 20 || !v.IsWide() {
		t.Errorf("Peek: got %v, want long 20", v)
	}
	frame.Pop()
	if v := frame.Pop(); v.Int != 10 {
		t.Errorf("third Pop: got %d, want 10", v.Int)
	}
}

func TestFrameReadOperands(t *testing.T) {
	frame := NewFrame(0, 0, []byte{0xFF, 0x80, 0x00, 0xFF, 0xFF, 0xFF, 0xFE}, nil)
	if got := frame.ReadI8(); got != -1 {
		t.Errorf("ReadI8: got %d, want -1", got)
	}
	if got := frame.ReadI16(); got != -32768 {
		t.Errorf("ReadI16: got %d, want -32768", got)
	}
	if got := frame.ReadI32(); got != -2 {
		t.Errorf("ReadI32: got %d, want -2", got)
	}
	if frame.PC != 7 {
		t.Errorf("PC: got %d, want 7", frame.PC)
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{IntValue(-3), "-3"},
		{LongValue(1 << 40), "1099511627776"},
		{DoubleValue(1.5), "1.5"},
		{NullValue(), "null"},
		{RefValue(nil), "null"},
		{RefValue("OK"), "OK"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
