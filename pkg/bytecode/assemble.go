package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/daimatz/lambdainline/pkg/classfile"
)

// Assemble encodes m into a Code attribute, adding the constants it needs to
// w. MaxStack and MaxLocals are taken from m as is; call ComputeMaxs first
// when the body was rewritten.
func Assemble(m *MethodNode, w *classfile.Writer) (*classfile.CodeAttribute, error) {
	offsets := make(map[*Label]int)
	poolRefs := make([]uint16, len(m.Instructions))

	// pass 1: constant pool indices, instruction sizes, label offsets
	pc := 0
	for i, n := range m.Instructions {
		if l, ok := n.(*Label); ok {
			if _, dup := offsets[l]; dup {
				return nil, fmt.Errorf("label placed twice in %s%s", m.Name, m.Desc)
			}
			offsets[l] = pc
			continue
		}
		idx, err := poolRef(n, w)
		if err != nil {
			return nil, fmt.Errorf("assembling %s%s: %w", m.Name, m.Desc, err)
		}
		poolRefs[i] = idx
		pc += encodedSize(n, pc, idx)
	}
	if pc > math.MaxUint16 {
		return nil, fmt.Errorf("method %s%s too large: %d bytes", m.Name, m.Desc, pc)
	}

	labelOffset := func(l *Label) (int, error) {
		off, ok := offsets[l]
		if !ok {
			return 0, fmt.Errorf("label %s is not placed in %s%s", Format(l, nil), m.Name, m.Desc)
		}
		return off, nil
	}

	// pass 2: emit
	code := make([]byte, 0, pc)
	attr := &classfile.CodeAttribute{
		MaxStack:  uint16(m.MaxStack),
		MaxLocals: uint16(m.MaxLocals),
	}
	for i, n := range m.Instructions {
		at := len(code)
		var err error
		switch n := n.(type) {
		case *Label:
		case *LineNumber:
			var off int
			if off, err = labelOffset(n.Start); err == nil {
				attr.LineNumbers = append(attr.LineNumbers, classfile.LineNumberEntry{StartPC: uint16(off), Line: uint16(n.Line)})
			}
		case *JumpInsn:
			var target int
			if target, err = labelOffset(n.Target); err == nil {
				rel := target - at
				if rel < math.MinInt16 || rel > math.MaxInt16 {
					err = fmt.Errorf("branch offset %d out of range", rel)
					break
				}
				code = append(code, n.Op)
				code = binary.BigEndian.AppendUint16(code, uint16(int16(rel)))
			}
		case *TableSwitchInsn:
			code = append(code, OpTableswitch)
			code = append(code, make([]byte, padding(at))...)
			var def int
			if def, err = labelOffset(n.Default); err != nil {
				break
			}
			code = binary.BigEndian.AppendUint32(code, uint32(int32(def-at)))
			code = binary.BigEndian.AppendUint32(code, uint32(n.Min))
			code = binary.BigEndian.AppendUint32(code, uint32(n.Max))
			for _, l := range n.Labels {
				var off int
				if off, err = labelOffset(l); err != nil {
					break
				}
				code = binary.BigEndian.AppendUint32(code, uint32(int32(off-at)))
			}
		case *LookupSwitchInsn:
			code = append(code, OpLookupswitch)
			code = append(code, make([]byte, padding(at))...)
			var def int
			if def, err = labelOffset(n.Default); err != nil {
				break
			}
			code = binary.BigEndian.AppendUint32(code, uint32(int32(def-at)))
			code = binary.BigEndian.AppendUint32(code, uint32(len(n.Keys)))
			for k, l := range n.Labels {
				var off int
				if off, err = labelOffset(l); err != nil {
					break
				}
				code = binary.BigEndian.AppendUint32(code, uint32(n.Keys[k]))
				code = binary.BigEndian.AppendUint32(code, uint32(int32(off-at)))
			}
		default:
			code = appendSimple(code, n, poolRefs[i])
		}
		if err != nil {
			return nil, fmt.Errorf("assembling %s%s: %w", m.Name, m.Desc, err)
		}
	}
	attr.Code = code

	for _, tc := range m.TryCatchBlocks {
		start, err := labelOffset(tc.Start)
		if err != nil {
			return nil, err
		}
		end, err := labelOffset(tc.End)
		if err != nil {
			return nil, err
		}
		handler, err := labelOffset(tc.Handler)
		if err != nil {
			return nil, err
		}
		eh := classfile.ExceptionHandler{StartPC: uint16(start), EndPC: uint16(end), HandlerPC: uint16(handler)}
		if tc.Type != "" {
			eh.CatchType = w.Class(tc.Type)
		}
		attr.ExceptionHandlers = append(attr.ExceptionHandlers, eh)
	}
	for _, lv := range m.LocalVariables {
		start, err := labelOffset(lv.Start)
		if err != nil {
			return nil, err
		}
		end, err := labelOffset(lv.End)
		if err != nil {
			return nil, err
		}
		attr.LocalVariables = append(attr.LocalVariables, classfile.LocalVariableEntry{
			StartPC:    uint16(start),
			Length:     uint16(end - start),
			Name:       lv.Name,
			Descriptor: lv.Desc,
			Index:      uint16(lv.Index),
		})
	}
	return attr, nil
}

func poolRef(n Node, w *classfile.Writer) (uint16, error) {
	switch n := n.(type) {
	case *LdcInsn:
		switch v := n.Value.(type) {
		case int32:
			return w.Integer(v), nil
		case float32:
			return w.Float(v), nil
		case int64:
			return w.Long(v), nil
		case float64:
			return w.Double(v), nil
		case string:
			return w.String(v), nil
		case classfile.ClassConstant:
			return w.Class(string(v)), nil
		}
		return 0, fmt.Errorf("unsupported ldc value %T", n.Value)
	case *FieldInsn:
		return w.Fieldref(n.Owner, n.Name, n.Desc), nil
	case *MethodInsn:
		return w.Methodref(n.Owner, n.Name, n.Desc, n.Itf), nil
	case *TypeInsn:
		return w.Class(n.Type), nil
	case *MultiANewArrayInsn:
		return w.Class(n.Desc), nil
	}
	return 0, nil
}

func encodedSize(n Node, pc int, idx uint16) int {
	switch n := n.(type) {
	case *LineNumber:
		return 0
	case *Insn:
		return 1
	case *IntInsn:
		if n.Op == OpSipush {
			return 3
		}
		return 2
	case *VarInsn:
		switch {
		case n.Var <= 3 && n.Op != OpRet:
			return 1
		case n.Var <= math.MaxUint8:
			return 2
		}
		return 4
	case *IincInsn:
		if n.Var <= math.MaxUint8 && n.Incr >= math.MinInt8 && n.Incr <= math.MaxInt8 {
			return 3
		}
		return 6
	case *LdcInsn:
		if isWide(n.Value) || idx > math.MaxUint8 {
			return 3
		}
		return 2
	case *FieldInsn, *TypeInsn, *JumpInsn:
		return 3
	case *MethodInsn:
		if n.Op == OpInvokeinterface {
			return 5
		}
		return 3
	case *MultiANewArrayInsn:
		return 4
	case *TableSwitchInsn:
		return 1 + padding(pc) + 12 + 4*len(n.Labels)
	case *LookupSwitchInsn:
		return 1 + padding(pc) + 8 + 8*len(n.Labels)
	}
	return 0
}

func isWide(v interface{}) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

func appendSimple(code []byte, n Node, idx uint16) []byte {
	switch n := n.(type) {
	case *Insn:
		return append(code, n.Op)
	case *IntInsn:
		if n.Op == OpSipush {
			return binary.BigEndian.AppendUint16(append(code, n.Op), uint16(int16(n.Operand)))
		}
		return append(code, n.Op, byte(n.Operand))
	case *VarInsn:
		switch {
		case n.Var <= 3 && n.Op != OpRet:
			if IsLoad(n.Op) {
				return append(code, OpIload0+(n.Op-OpIload)*4+byte(n.Var))
			}
			return append(code, OpIstore0+(n.Op-OpIstore)*4+byte(n.Var))
		case n.Var <= math.MaxUint8:
			return append(code, n.Op, byte(n.Var))
		}
		return binary.BigEndian.AppendUint16(append(code, OpWide, n.Op), uint16(n.Var))
	case *IincInsn:
		if n.Var <= math.MaxUint8 && n.Incr >= math.MinInt8 && n.Incr <= math.MaxInt8 {
			return append(code, OpIinc, byte(n.Var), byte(int8(n.Incr)))
		}
		code = binary.BigEndian.AppendUint16(append(code, OpWide, OpIinc), uint16(n.Var))
		return binary.BigEndian.AppendUint16(code, uint16(int16(n.Incr)))
	case *LdcInsn:
		switch {
		case isWide(n.Value):
			return binary.BigEndian.AppendUint16(append(code, OpLdc2W), idx)
		case idx > math.MaxUint8:
			return binary.BigEndian.AppendUint16(append(code, OpLdcW), idx)
		}
		return append(code, OpLdc, byte(idx))
	case *FieldInsn:
		return binary.BigEndian.AppendUint16(append(code, n.Op), idx)
	case *MethodInsn:
		code = binary.BigEndian.AppendUint16(append(code, n.Op), idx)
		if n.Op == OpInvokeinterface {
			size, _ := descriptorArgSlots(n.Desc)
			code = append(code, byte(size+1), 0)
		}
		return code
	case *TypeInsn:
		return binary.BigEndian.AppendUint16(append(code, n.Op), idx)
	case *MultiANewArrayInsn:
		return append(binary.BigEndian.AppendUint16(append(code, OpMultianewarray), idx), byte(n.Dims))
	}
	return code
}
