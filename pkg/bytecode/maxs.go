package bytecode

import (
	"fmt"

	"github.com/daimatz/lambdainline/pkg/classfile"
	"github.com/daimatz/lambdainline/pkg/descriptor"
)

// fixedEffect is the stack delta, in slots, of every operand-less instruction.
var fixedEffect = map[byte]int{
	OpNop: 0, OpAconstNull: 1,
	OpIconstM1: 1, OpIconst0: 1, OpIconst1: 1, OpIconst2: 1, OpIconst3: 1, OpIconst4: 1, OpIconst5: 1,
	OpLconst0: 2, OpLconst1: 2, OpFconst0: 1, OpFconst1: 1, OpFconst2: 1, OpDconst0: 2, OpDconst1: 2,
	OpIaload: -1, OpLaload: 0, OpFaload: -1, OpDaload: 0, OpAaload: -1, OpBaload: -1, OpCaload: -1, OpSaload: -1,
	OpIastore: -3, OpLastore: -4, OpFastore: -3, OpDastore: -4, OpAastore: -3, OpBastore: -3, OpCastore: -3, OpSastore: -3,
	OpPop: -1, OpPop2: -2, OpDup: 1, OpDupX1: 1, OpDupX2: 1, OpDup2: 2, OpDup2X1: 2, OpDup2X2: 2, OpSwap: 0,
	OpIadd: -1, OpLadd: -2, OpFadd: -1, OpDadd: -2,
	OpIsub: -1, OpLsub: -2, OpFsub: -1, OpDsub: -2,
	OpImul: -1, OpLmul: -2, OpFmul: -1, OpDmul: -2,
	OpIdiv: -1, OpLdiv: -2, OpFdiv: -1, OpDdiv: -2,
	OpIrem: -1, OpLrem: -2, OpFrem: -1, OpDrem: -2,
	OpIneg: 0, OpLneg: 0, OpFneg: 0, OpDneg: 0,
	OpIshl: -1, OpLshl: -1, OpIshr: -1, OpLshr: -1, OpIushr: -1, OpLushr: -1,
	OpIand: -1, OpLand: -2, OpIor: -1, OpLor: -2, OpIxor: -1, OpLxor: -2,
	OpI2l: 1, OpI2f: 0, OpI2d: 1, OpL2i: -1, OpL2f: -1, OpL2d: 0,
	OpF2i: 0, OpF2l: 1, OpF2d: 1, OpD2i: -1, OpD2l: 0, OpD2f: -1,
	OpI2b: 0, OpI2c: 0, OpI2s: 0,
	OpLcmp: -3, OpFcmpl: -1, OpFcmpg: -1, OpDcmpl: -3, OpDcmpg: -3,
	OpIreturn: -1, OpLreturn: -2, OpFreturn: -1, OpDreturn: -2, OpAreturn: -1, OpReturn: 0,
	OpArraylength: 0, OpAthrow: -1, OpMonitorenter: -1, OpMonitorexit: -1,
}

func descriptorArgSlots(desc string) (int, error) {
	return descriptor.ArgumentsSize(desc)
}

func typeSize(desc string) int {
	if desc == "" {
		return 0
	}
	switch desc[0] {
	case 'J', 'D':
		return 2
	case 'V':
		return 0
	}
	return 1
}

// StackEffect returns the change in operand stack depth, in slots, caused by
// executing n. Pseudo-nodes have no effect.
func StackEffect(n Node) (int, error) {
	switch n := n.(type) {
	case *Label, *LineNumber, *IincInsn:
		return 0, nil
	case *Insn:
		eff, ok := fixedEffect[n.Op]
		if !ok {
			return 0, fmt.Errorf("no stack effect for %s", OpName(n.Op))
		}
		return eff, nil
	case *IntInsn:
		if n.Op == OpNewarray {
			return 0, nil
		}
		return 1, nil
	case *VarInsn:
		switch {
		case n.Op == OpRet:
			return 0, nil
		case n.Op == OpLload || n.Op == OpDload:
			return 2, nil
		case IsLoad(n.Op):
			return 1, nil
		case n.Op == OpLstore || n.Op == OpDstore:
			return -2, nil
		}
		return -1, nil
	case *LdcInsn:
		if isWide(n.Value) {
			return 2, nil
		}
		return 1, nil
	case *FieldInsn:
		size := typeSize(n.Desc)
		switch n.Op {
		case OpGetstatic:
			return size, nil
		case OpPutstatic:
			return -size, nil
		case OpGetfield:
			return size - 1, nil
		}
		return -size - 1, nil
	case *MethodInsn:
		args, err := descriptor.ArgumentsSize(n.Desc)
		if err != nil {
			return 0, err
		}
		ret, err := descriptor.ReturnType(n.Desc)
		if err != nil {
			return 0, err
		}
		eff := ret.Size() - args
		if n.Op != OpInvokestatic {
			eff--
		}
		return eff, nil
	case *TypeInsn:
		if n.Op == OpNew {
			return 1, nil
		}
		return 0, nil
	case *JumpInsn:
		switch {
		case n.Op == OpGoto:
			return 0, nil
		case n.Op == OpJsr:
			return 1, nil
		case n.Op >= OpIfIcmpeq && n.Op <= OpIfAcmpne:
			return -2, nil
		}
		return -1, nil
	case *TableSwitchInsn, *LookupSwitchInsn:
		return -1, nil
	case *MultiANewArrayInsn:
		return 1 - n.Dims, nil
	}
	return 0, fmt.Errorf("no stack effect for %T", n)
}

// LocalsSize returns the number of local slots m uses: its arguments, every
// slot touched by a load, store or iinc, and the LocalVariableTable.
func LocalsSize(m *MethodNode) (int, error) {
	argSlots, err := descriptor.ArgumentsSize(m.Desc)
	if err != nil {
		return 0, fmt.Errorf("locals of %s%s: %w", m.Name, m.Desc, err)
	}
	size := argSlots
	if m.Access&classfile.AccStatic == 0 {
		size++
	}
	for _, n := range m.Instructions {
		switch n := n.(type) {
		case *VarInsn:
			width := 1
			if n.Op == OpLload || n.Op == OpDload || n.Op == OpLstore || n.Op == OpDstore {
				width = 2
			}
			size = max(size, n.Var+width)
		case *IincInsn:
			size = max(size, n.Var+1)
		}
	}
	for _, lv := range m.LocalVariables {
		size = max(size, lv.Index+typeSize(lv.Desc))
	}
	return size, nil
}

// ComputeMaxs recomputes MaxStack and MaxLocals from the instruction list.
// m is left unchanged on error.
func ComputeMaxs(m *MethodNode) error {
	maxLocals, err := LocalsSize(m)
	if err != nil {
		return err
	}
	_, maxStack, err := analyzeStack(m)
	if err != nil {
		return err
	}
	m.MaxStack = maxStack
	m.MaxLocals = maxLocals
	return nil
}

// StackDepths returns the operand stack depth, in slots, before each node of
// m. Unreachable nodes get -1.
func StackDepths(m *MethodNode) ([]int, error) {
	depths, _, err := analyzeStack(m)
	return depths, err
}

// analyzeStack walks every reachable path with a worklist. Conflicting depths
// at a join point are reported as errors.
func analyzeStack(m *MethodNode) ([]int, int, error) {
	index := make(map[*Label]int)
	for i, n := range m.Instructions {
		if l, ok := n.(*Label); ok {
			index[l] = i
		}
	}
	target := func(l *Label) (int, error) {
		i, ok := index[l]
		if !ok {
			return 0, fmt.Errorf("branch to a label outside %s%s", m.Name, m.Desc)
		}
		return i, nil
	}

	depths := make([]int, len(m.Instructions))
	for i := range depths {
		depths[i] = -1
	}
	type workItem struct {
		pos   int
		depth int
	}
	worklist := []workItem{{0, 0}}
	for _, tc := range m.TryCatchBlocks {
		h, err := target(tc.Handler)
		if err != nil {
			return nil, 0, err
		}
		worklist = append(worklist, workItem{h, 1})
	}

	maxStack := 0
	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		pos, depth := item.pos, item.depth

		for pos < len(m.Instructions) {
			if depths[pos] >= 0 {
				if depths[pos] != depth {
					return nil, 0, fmt.Errorf("inconsistent stack depth in %s%s at node %d: %d and %d", m.Name, m.Desc, pos, depths[pos], depth)
				}
				break
			}
			depths[pos] = depth

			n := m.Instructions[pos]
			eff, err := StackEffect(n)
			if err != nil {
				return nil, 0, fmt.Errorf("computing maxs of %s%s: %w", m.Name, m.Desc, err)
			}
			depth += eff
			if depth < 0 {
				return nil, 0, fmt.Errorf("stack underflow in %s%s at node %d (%s)", m.Name, m.Desc, pos, Format(n, nil))
			}
			maxStack = max(maxStack, depth)

			next := pos + 1
			switch n := n.(type) {
			case *JumpInsn:
				t, err := target(n.Target)
				if err != nil {
					return nil, 0, err
				}
				worklist = append(worklist, workItem{t, depth})
				if n.Op == OpGoto {
					next = len(m.Instructions)
				}
			case *TableSwitchInsn:
				for _, l := range append([]*Label{n.Default}, n.Labels...) {
					t, err := target(l)
					if err != nil {
						return nil, 0, err
					}
					worklist = append(worklist, workItem{t, depth})
				}
				next = len(m.Instructions)
			case *LookupSwitchInsn:
				for _, l := range append([]*Label{n.Default}, n.Labels...) {
					t, err := target(l)
					if err != nil {
						return nil, 0, err
					}
					worklist = append(worklist, workItem{t, depth})
				}
				next = len(m.Instructions)
			case *Insn:
				if IsReturn(n.Op) || n.Op == OpAthrow {
					next = len(m.Instructions)
				}
			case *VarInsn:
				if n.Op == OpRet {
					next = len(m.Instructions)
				}
			}
			pos = next
		}
	}

	return depths, maxStack, nil
}
