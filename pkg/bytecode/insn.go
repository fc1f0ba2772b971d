package bytecode

import (
	"fmt"
	"strings"
)

// Node is one element of a method's instruction list. Besides real
// instructions the list holds Label and LineNumber pseudo-nodes.
type Node interface {
	// Opcode returns the JVM opcode, or -1 for pseudo-nodes.
	Opcode() int
}

// Label marks a position in an instruction list. Labels are compared by
// identity; a Label must appear at most once in a list.
type Label struct {
	// Name is optional and only used when printing.
	Name string
}

func (*Label) Opcode() int { return -1 }

// LineNumber attaches a source line to the instructions following Start.
type LineNumber struct {
	Line  int
	Start *Label
}

func (*LineNumber) Opcode() int { return -1 }

// Insn is an instruction without operands.
type Insn struct{ Op byte }

func (n *Insn) Opcode() int { return int(n.Op) }

// IntInsn is bipush, sipush or newarray.
type IntInsn struct {
	Op      byte
	Operand int
}

func (n *IntInsn) Opcode() int { return int(n.Op) }

// VarInsn is a local variable load or store, always in canonical form
// (OpIload..OpAload, OpIstore..OpAstore, OpRet). The short encodings
// (aload_0 etc.) are chosen by the assembler.
type VarInsn struct {
	Op  byte
	Var int
}

func (n *VarInsn) Opcode() int { return int(n.Op) }

// IincInsn increments an int local.
type IincInsn struct {
	Var  int
	Incr int
}

func (*IincInsn) Opcode() int { return OpIinc }

// LdcInsn loads a constant. Value is int32, float32, int64, float64, string
// or classfile.ClassConstant.
type LdcInsn struct {
	Value interface{}
}

func (*LdcInsn) Opcode() int { return OpLdc }

// FieldInsn is getfield, putfield, getstatic or putstatic.
type FieldInsn struct {
	Op    byte
	Owner string
	Name  string
	Desc  string
}

func (n *FieldInsn) Opcode() int { return int(n.Op) }

// MethodInsn is one of the invoke instructions other than invokedynamic.
type MethodInsn struct {
	Op    byte
	Owner string
	Name  string
	Desc  string
	Itf   bool
}

func (n *MethodInsn) Opcode() int { return int(n.Op) }

// TypeInsn is new, anewarray, checkcast or instanceof.
type TypeInsn struct {
	Op   byte
	Type string
}

func (n *TypeInsn) Opcode() int { return int(n.Op) }

// JumpInsn is a conditional or unconditional branch.
type JumpInsn struct {
	Op     byte
	Target *Label
}

func (n *JumpInsn) Opcode() int { return int(n.Op) }

// TableSwitchInsn is a tableswitch.
type TableSwitchInsn struct {
	Min, Max int32
	Default  *Label
	Labels   []*Label
}

func (*TableSwitchInsn) Opcode() int { return OpTableswitch }

// LookupSwitchInsn is a lookupswitch.
type LookupSwitchInsn struct {
	Default *Label
	Keys    []int32
	Labels  []*Label
}

func (*LookupSwitchInsn) Opcode() int { return OpLookupswitch }

// MultiANewArrayInsn creates a multi-dimensional array.
type MultiANewArrayInsn struct {
	Desc string
	Dims int
}

func (*MultiANewArrayInsn) Opcode() int { return OpMultianewarray }

// TryCatchBlock is one exception table entry. Type is "" for finally blocks.
type TryCatchBlock struct {
	Start, End, Handler *Label
	Type                string
}

// LocalVariable is one LocalVariableTable entry over a label range.
type LocalVariable struct {
	Name  string
	Desc  string
	Start *Label
	End   *Label
	Index int
}

// MethodNode is a method with a decoded body.
type MethodNode struct {
	Access         uint16
	Name           string
	Desc           string
	Instructions   []Node
	TryCatchBlocks []TryCatchBlock
	LocalVariables []LocalVariable
	MaxStack       int
	MaxLocals      int
}

// NewMethodNode returns an empty method shell.
func NewMethodNode(access uint16, name, desc string) *MethodNode {
	return &MethodNode{Access: access, Name: name, Desc: desc}
}

// Add appends nodes to the instruction list.
func (m *MethodNode) Add(nodes ...Node) {
	m.Instructions = append(m.Instructions, nodes...)
}

// RealInstructions returns the instructions without labels and line numbers.
func (m *MethodNode) RealInstructions() []Node {
	var out []Node
	for _, n := range m.Instructions {
		if n.Opcode() >= 0 {
			out = append(out, n)
		}
	}
	return out
}

// LineRange returns the smallest and largest line number in the body, or
// (0, 0) when the body has no line information.
func (m *MethodNode) LineRange() (int, int) {
	lo, hi := 0, 0
	for _, n := range m.Instructions {
		ln, ok := n.(*LineNumber)
		if !ok {
			continue
		}
		if lo == 0 || ln.Line < lo {
			lo = ln.Line
		}
		if ln.Line > hi {
			hi = ln.Line
		}
	}
	return lo, hi
}

// Clone returns a deep copy of m with fresh labels.
func (m *MethodNode) Clone() *MethodNode {
	labels := make(map[*Label]*Label)
	mapLabel := func(l *Label) *Label {
		if l == nil {
			return nil
		}
		if c, ok := labels[l]; ok {
			return c
		}
		c := &Label{Name: l.Name}
		labels[l] = c
		return c
	}

	out := &MethodNode{
		Access:    m.Access,
		Name:      m.Name,
		Desc:      m.Desc,
		MaxStack:  m.MaxStack,
		MaxLocals: m.MaxLocals,
	}
	for _, n := range m.Instructions {
		out.Instructions = append(out.Instructions, CloneNode(n, mapLabel))
	}
	for _, tc := range m.TryCatchBlocks {
		out.TryCatchBlocks = append(out.TryCatchBlocks, TryCatchBlock{
			Start: mapLabel(tc.Start), End: mapLabel(tc.End), Handler: mapLabel(tc.Handler), Type: tc.Type,
		})
	}
	for _, lv := range m.LocalVariables {
		lv.Start, lv.End = mapLabel(lv.Start), mapLabel(lv.End)
		out.LocalVariables = append(out.LocalVariables, lv)
	}
	return out
}

// CloneNode copies n, translating every label it refers to through mapLabel.
func CloneNode(n Node, mapLabel func(*Label) *Label) Node {
	switch n := n.(type) {
	case *Label:
		return mapLabel(n)
	case *LineNumber:
		return &LineNumber{Line: n.Line, Start: mapLabel(n.Start)}
	case *JumpInsn:
		return &JumpInsn{Op: n.Op, Target: mapLabel(n.Target)}
	case *TableSwitchInsn:
		c := &TableSwitchInsn{Min: n.Min, Max: n.Max, Default: mapLabel(n.Default)}
		for _, l := range n.Labels {
			c.Labels = append(c.Labels, mapLabel(l))
		}
		return c
	case *LookupSwitchInsn:
		c := &LookupSwitchInsn{Default: mapLabel(n.Default), Keys: append([]int32(nil), n.Keys...)}
		for _, l := range n.Labels {
			c.Labels = append(c.Labels, mapLabel(l))
		}
		return c
	case *Insn:
		c := *n
		return &c
	case *IntInsn:
		c := *n
		return &c
	case *VarInsn:
		c := *n
		return &c
	case *IincInsn:
		c := *n
		return &c
	case *LdcInsn:
		c := *n
		return &c
	case *FieldInsn:
		c := *n
		return &c
	case *MethodInsn:
		c := *n
		return &c
	case *TypeInsn:
		c := *n
		return &c
	case *MultiANewArrayInsn:
		c := *n
		return &c
	}
	panic(fmt.Sprintf("bytecode: cannot clone %T", n))
}

// Format renders a node in javap-like form. Labels are named by the names map
// when present.
func Format(n Node, names map[*Label]string) string {
	label := func(l *Label) string {
		if s, ok := names[l]; ok {
			return s
		}
		if l.Name != "" {
			return l.Name
		}
		return fmt.Sprintf("L%p", l)
	}
	switch n := n.(type) {
	case *Label:
		return label(n) + ":"
	case *LineNumber:
		return fmt.Sprintf("  LINE %d %s", n.Line, label(n.Start))
	case *Insn:
		return "  " + OpName(n.Op)
	case *IntInsn:
		return fmt.Sprintf("  %s %d", OpName(n.Op), n.Operand)
	case *VarInsn:
		return fmt.Sprintf("  %s %d", OpName(n.Op), n.Var)
	case *IincInsn:
		return fmt.Sprintf("  iinc %d %d", n.Var, n.Incr)
	case *LdcInsn:
		if s, ok := n.Value.(string); ok {
			return fmt.Sprintf("  ldc %q", s)
		}
		return fmt.Sprintf("  ldc %v", n.Value)
	case *FieldInsn:
		return fmt.Sprintf("  %s %s.%s : %s", OpName(n.Op), n.Owner, n.Name, n.Desc)
	case *MethodInsn:
		return fmt.Sprintf("  %s %s.%s%s", OpName(n.Op), n.Owner, n.Name, n.Desc)
	case *TypeInsn:
		return fmt.Sprintf("  %s %s", OpName(n.Op), n.Type)
	case *JumpInsn:
		return fmt.Sprintf("  %s %s", OpName(n.Op), label(n.Target))
	case *TableSwitchInsn:
		parts := make([]string, len(n.Labels))
		for i, l := range n.Labels {
			parts[i] = fmt.Sprintf("%d: %s", n.Min+int32(i), label(l))
		}
		return fmt.Sprintf("  tableswitch {%s; default: %s}", strings.Join(parts, ", "), label(n.Default))
	case *LookupSwitchInsn:
		parts := make([]string, len(n.Labels))
		for i, l := range n.Labels {
			parts[i] = fmt.Sprintf("%d: %s", n.Keys[i], label(l))
		}
		return fmt.Sprintf("  lookupswitch {%s; default: %s}", strings.Join(parts, ", "), label(n.Default))
	case *MultiANewArrayInsn:
		return fmt.Sprintf("  multianewarray %s %d", n.Desc, n.Dims)
	}
	return fmt.Sprintf("  <%T>", n)
}

// Disassemble renders the whole method body, one node per line.
func (m *MethodNode) Disassemble() string {
	names := make(map[*Label]string)
	for _, n := range m.Instructions {
		if l, ok := n.(*Label); ok {
			names[l] = fmt.Sprintf("L%d", len(names))
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s\n", m.Name, m.Desc)
	for _, n := range m.Instructions {
		sb.WriteString(Format(n, names))
		sb.WriteByte('\n')
	}
	return sb.String()
}
