package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/daimatz/lambdainline/pkg/classfile"
)

type decoder struct {
	code   []byte
	pool   []classfile.ConstantPoolEntry
	labels map[int]*Label
}

func (d *decoder) labelAt(off int) *Label {
	if l, ok := d.labels[off]; ok {
		return l
	}
	l := &Label{}
	d.labels[off] = l
	return l
}

func (d *decoder) u8(pc int) int { return int(d.code[pc]) }
func (d *decoder) i8(pc int) int { return int(int8(d.code[pc])) }
func (d *decoder) u16(pc int) int { return int(binary.BigEndian.Uint16(d.code[pc:])) }
func (d *decoder) i16(pc int) int { return int(int16(binary.BigEndian.Uint16(d.code[pc:]))) }
func (d *decoder) i32(pc int) int32 { return int32(binary.BigEndian.Uint32(d.code[pc:])) }

// Decode turns a method's Code attribute into a MethodNode. The method must
// have been parsed without SkipCode.
func Decode(m *classfile.MethodInfo, pool []classfile.ConstantPoolEntry) (*MethodNode, error) {
	if m.Code == nil {
		return nil, fmt.Errorf("method %s%s has no Code attribute", m.Name, m.Descriptor)
	}
	node := NewMethodNode(m.AccessFlags, m.Name, m.Descriptor)
	node.MaxStack = int(m.Code.MaxStack)
	node.MaxLocals = int(m.Code.MaxLocals)

	d := &decoder{code: m.Code.Code, pool: pool, labels: make(map[int]*Label)}

	type located struct {
		pc   int
		node Node
	}
	var insns []located
	starts := make(map[int]bool)
	for pc := 0; pc < len(d.code); {
		n, size, err := d.decodeAt(pc)
		if err != nil {
			return nil, fmt.Errorf("decoding %s%s at pc %d: %w", m.Name, m.Descriptor, pc, err)
		}
		insns = append(insns, located{pc, n})
		starts[pc] = true
		pc += size
	}
	starts[len(d.code)] = true

	lines := make(map[int][]int)
	for _, ln := range m.Code.LineNumbers {
		pc := int(ln.StartPC)
		d.labelAt(pc)
		lines[pc] = append(lines[pc], int(ln.Line))
	}
	for _, eh := range m.Code.ExceptionHandlers {
		tc := TryCatchBlock{
			Start:   d.labelAt(int(eh.StartPC)),
			End:     d.labelAt(int(eh.EndPC)),
			Handler: d.labelAt(int(eh.HandlerPC)),
		}
		if eh.CatchType != 0 {
			name, err := classfile.GetClassName(pool, eh.CatchType)
			if err != nil {
				return nil, fmt.Errorf("resolving catch type: %w", err)
			}
			tc.Type = name
		}
		node.TryCatchBlocks = append(node.TryCatchBlocks, tc)
	}
	for _, lv := range m.Code.LocalVariables {
		node.LocalVariables = append(node.LocalVariables, LocalVariable{
			Name:  lv.Name,
			Desc:  lv.Descriptor,
			Start: d.labelAt(int(lv.StartPC)),
			End:   d.labelAt(int(lv.StartPC) + int(lv.Length)),
			Index: int(lv.Index),
		})
	}

	for off := range d.labels {
		if !starts[off] {
			return nil, fmt.Errorf("label at pc %d is not an instruction boundary in %s%s", off, m.Name, m.Descriptor)
		}
	}

	emitLabel := func(pc int) {
		l, ok := d.labels[pc]
		if !ok {
			return
		}
		node.Add(l)
		for _, line := range lines[pc] {
			node.Add(&LineNumber{Line: line, Start: l})
		}
	}
	for _, in := range insns {
		emitLabel(in.pc)
		node.Add(in.node)
	}
	emitLabel(len(d.code))
	return node, nil
}

func (d *decoder) decodeAt(pc int) (Node, int, error) {
	op := d.code[pc]
	need := func(n int) error {
		if pc+n > len(d.code) {
			return fmt.Errorf("truncated %s", OpName(op))
		}
		return nil
	}

	switch {
	case op <= OpDconst1,
		op >= OpIaload && op <= OpSaload,
		op >= OpIastore && op <= OpLxor,
		op >= OpI2l && op <= OpDcmpg,
		op >= OpIreturn && op <= OpReturn,
		op == OpArraylength, op == OpAthrow, op == OpMonitorenter, op == OpMonitorexit:
		return &Insn{Op: op}, 1, nil

	case op == OpBipush:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return &IntInsn{Op: op, Operand: d.i8(pc + 1)}, 2, nil
	case op == OpSipush:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		return &IntInsn{Op: op, Operand: d.i16(pc + 1)}, 3, nil
	case op == OpNewarray:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return &IntInsn{Op: op, Operand: d.u8(pc + 1)}, 2, nil

	case op == OpLdc, op == OpLdcW, op == OpLdc2W:
		size := 3
		if op == OpLdc {
			size = 2
		}
		if err := need(size); err != nil {
			return nil, 0, err
		}
		idx := d.u8(pc + 1)
		if op != OpLdc {
			idx = d.u16(pc + 1)
		}
		v, err := classfile.ResolveLoadable(d.pool, uint16(idx))
		if err != nil {
			return nil, 0, err
		}
		return &LdcInsn{Value: v}, size, nil

	case (op >= OpIload && op <= OpAload) || (op >= OpIstore && op <= OpAstore) || op == OpRet:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return &VarInsn{Op: op, Var: d.u8(pc + 1)}, 2, nil
	case op >= OpIload0 && op <= OpAload3:
		k := int(op - OpIload0)
		return &VarInsn{Op: OpIload + byte(k/4), Var: k % 4}, 1, nil
	case op >= OpIstore0 && op <= OpAstore3:
		k := int(op - OpIstore0)
		return &VarInsn{Op: OpIstore + byte(k/4), Var: k % 4}, 1, nil

	case op == OpIinc:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		return &IincInsn{Var: d.u8(pc + 1), Incr: d.i8(pc + 2)}, 3, nil

	case (op >= OpIfeq && op <= OpJsr) || op == OpIfnull || op == OpIfnonnull:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		return &JumpInsn{Op: op, Target: d.labelAt(pc + d.i16(pc+1))}, 3, nil
	case op == OpGotoW, op == OpJsrW:
		if err := need(5); err != nil {
			return nil, 0, err
		}
		target := OpGoto
		if op == OpJsrW {
			target = OpJsr
		}
		return &JumpInsn{Op: byte(target), Target: d.labelAt(pc + int(d.i32(pc+1)))}, 5, nil

	case op == OpTableswitch:
		base := pc + 1 + padding(pc)
		if err := need(base - pc + 12); err != nil {
			return nil, 0, err
		}
		sw := &TableSwitchInsn{
			Default: d.labelAt(pc + int(d.i32(base))),
			Min:     d.i32(base + 4),
			Max:     d.i32(base + 8),
		}
		n := int(sw.Max-sw.Min) + 1
		if n < 0 {
			return nil, 0, fmt.Errorf("tableswitch with low %d > high %d", sw.Min, sw.Max)
		}
		if err := need(base - pc + 12 + 4*n); err != nil {
			return nil, 0, err
		}
		for i := 0; i < n; i++ {
			sw.Labels = append(sw.Labels, d.labelAt(pc+int(d.i32(base+12+4*i))))
		}
		return sw, base - pc + 12 + 4*n, nil
	case op == OpLookupswitch:
		base := pc + 1 + padding(pc)
		if err := need(base - pc + 8); err != nil {
			return nil, 0, err
		}
		sw := &LookupSwitchInsn{Default: d.labelAt(pc + int(d.i32(base)))}
		n := int(d.i32(base + 4))
		if n < 0 {
			return nil, 0, fmt.Errorf("lookupswitch with %d pairs", n)
		}
		if err := need(base - pc + 8 + 8*n); err != nil {
			return nil, 0, err
		}
		for i := 0; i < n; i++ {
			sw.Keys = append(sw.Keys, d.i32(base+8+8*i))
			sw.Labels = append(sw.Labels, d.labelAt(pc+int(d.i32(base+12+8*i))))
		}
		return sw, base - pc + 8 + 8*n, nil

	case op >= OpGetstatic && op <= OpPutfield:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		ref, err := classfile.ResolveMemberRef(d.pool, uint16(d.u16(pc+1)))
		if err != nil {
			return nil, 0, err
		}
		return &FieldInsn{Op: op, Owner: ref.Owner, Name: ref.Name, Desc: ref.Descriptor}, 3, nil

	case op >= OpInvokevirtual && op <= OpInvokeinterface:
		size := 3
		if op == OpInvokeinterface {
			size = 5
		}
		if err := need(size); err != nil {
			return nil, 0, err
		}
		ref, err := classfile.ResolveMemberRef(d.pool, uint16(d.u16(pc+1)))
		if err != nil {
			return nil, 0, err
		}
		return &MethodInsn{Op: op, Owner: ref.Owner, Name: ref.Name, Desc: ref.Descriptor, Itf: ref.Interface}, size, nil

	case op == OpInvokedynamic:
		return nil, 0, fmt.Errorf("invokedynamic is not supported")

	case op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		name, err := classfile.GetClassName(d.pool, uint16(d.u16(pc+1)))
		if err != nil {
			return nil, 0, err
		}
		return &TypeInsn{Op: op, Type: name}, 3, nil

	case op == OpMultianewarray:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		name, err := classfile.GetClassName(d.pool, uint16(d.u16(pc+1)))
		if err != nil {
			return nil, 0, err
		}
		return &MultiANewArrayInsn{Desc: name, Dims: d.u8(pc + 3)}, 4, nil

	case op == OpWide:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		inner := d.code[pc+1]
		if inner == OpIinc {
			if err := need(6); err != nil {
				return nil, 0, err
			}
			return &IincInsn{Var: d.u16(pc + 2), Incr: d.i16(pc + 4)}, 6, nil
		}
		if !IsLoad(inner) && !IsStore(inner) && inner != OpRet {
			return nil, 0, fmt.Errorf("invalid wide opcode %s", OpName(inner))
		}
		return &VarInsn{Op: inner, Var: d.u16(pc + 2)}, 4, nil
	}
	return nil, 0, fmt.Errorf("unknown opcode 0x%02X", op)
}

// padding returns the number of bytes between a switch opcode at pc and its
// 4-byte aligned operands.
func padding(pc int) int {
	return (4 - (pc+1)%4) % 4
}
