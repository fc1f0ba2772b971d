package inline

import (
	"fmt"

	"github.com/daimatz/lambdainline/pkg/bytecode"
	"github.com/daimatz/lambdainline/pkg/codegen"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/smap"
)

// Fragment is a piece of code ready to be inserted into a caller.
type Fragment struct {
	Instructions   []bytecode.Node
	TryCatchBlocks []bytecode.TryCatchBlock
	LocalVariables []bytecode.LocalVariable
}

func (f *Fragment) add(nodes ...bytecode.Node) {
	f.Instructions = append(f.Instructions, nodes...)
}

// Splicer rewrites the invoke body of a lambda so that it runs in the frame
// of the caller. The caller's frame is occupied up to Base; the lambda's own
// locals (without its receiver) start there.
type Splicer struct {
	Base int
	// Mapper remaps line numbers of the lambda into the caller's source map.
	// With a nil Mapper the lambda's line numbers are dropped.
	Mapper *smap.SourceMapper
}

// Splice returns the lambda body as a fragment. The fragment expects the
// erased invoke arguments (objects) on the operand stack and leaves the
// result, boxed, in their place.
func (s *Splicer) Splice(l LambdaInfo, params *Parameters) (*Fragment, error) {
	node := l.Node()
	if node == nil {
		return nil, internalErrorf("body of lambda %s is not generated", l.LambdaClassType())
	}
	ret, err := l.InvokeMethod().ReturnType()
	if err != nil {
		return nil, fmt.Errorf("return type of %s: %w", l.LambdaClassType(), err)
	}
	owner := l.LambdaClassType().InternalName()

	captured := make(map[fieldKey]*CapturedParamInfo, len(params.Captured))
	for _, c := range params.Captured {
		captured[c.Captured.Desc.key()] = c.Captured
	}
	slot := func(v int) (int, error) {
		if v == 0 {
			return 0, internalErrorf("lambda %s uses its receiver outside of a captured field read", owner)
		}
		return s.Base + v - 1, nil
	}

	body := node.Node.Clone()
	frag := &Fragment{}
	end := &bytecode.Label{}

	// The arguments arrive as objects; unbox and store them last to first.
	args := params.Real
	for i := len(args) - 1; i >= 0; i-- {
		p := args[i]
		if p.Skipped {
			continue
		}
		v, err := slot(p.Index)
		if err != nil {
			return nil, err
		}
		frag.add(codegen.Coerce(descriptor.Object, p.Type)...)
		frag.add(&bytecode.VarInsn{Op: codegen.StoreOpcode(p.Type), Var: v})
	}

	insns := body.Instructions
	last := lastReal(insns)
	for i := 0; i < len(insns); i++ {
		switch n := insns[i].(type) {
		case *bytecode.LineNumber:
			if line := s.mapLine(n.Line, node.SMAP); line > 0 {
				frag.add(&bytecode.LineNumber{Line: line, Start: n.Start})
			}
		case *bytecode.VarInsn:
			if n.Op == bytecode.OpAload && n.Var == 0 {
				j := nextReal(insns, i)
				f, ok := fieldRead(insns, j)
				if !ok {
					return nil, internalErrorf("lambda %s uses its receiver outside of a captured field read", owner)
				}
				info := captured[fieldKey{f.Owner, f.Name}]
				if info == nil {
					return nil, &CapturedFieldNotFoundError{Owner: f.Owner, Field: f.Name}
				}
				for k := i + 1; k < j; k++ {
					switch p := insns[k].(type) {
					case *bytecode.Label:
						frag.add(p)
					case *bytecode.LineNumber:
						if line := s.mapLine(p.Line, node.SMAP); line > 0 {
							frag.add(&bytecode.LineNumber{Line: line, Start: p.Start})
						}
					}
				}
				t := info.Desc.FieldType
				frag.add(&bytecode.VarInsn{Op: codegen.LoadOpcode(t), Var: info.Slot})
				i = j
				continue
			}
			v, err := slot(n.Var)
			if err != nil {
				return nil, err
			}
			n.Var = v
			frag.add(n)
		case *bytecode.IincInsn:
			v, err := slot(n.Var)
			if err != nil {
				return nil, err
			}
			n.Var = v
			frag.add(n)
		case *bytecode.Insn:
			if !bytecode.IsReturn(n.Op) {
				frag.add(n)
				continue
			}
			frag.add(codegen.Coerce(ret, descriptor.Object)...)
			if i != last {
				frag.add(&bytecode.JumpInsn{Op: bytecode.OpGoto, Target: end})
			}
		default:
			frag.add(n)
		}
	}
	frag.add(end)

	frag.TryCatchBlocks = append(frag.TryCatchBlocks, body.TryCatchBlocks...)
	for _, lv := range body.LocalVariables {
		if lv.Index == 0 {
			continue
		}
		lv.Index = s.Base + lv.Index - 1
		frag.LocalVariables = append(frag.LocalVariables, lv)
	}
	return frag, nil
}

func (s *Splicer) mapLine(line int, from *smap.SMAP) int {
	if s.Mapper == nil {
		return -1
	}
	return s.Mapper.MapLineNumber(line, from)
}

// lastReal returns the index of the last real instruction, -1 if none.
func lastReal(insns []bytecode.Node) int {
	for i := len(insns) - 1; i >= 0; i-- {
		if insns[i].Opcode() >= 0 {
			return i
		}
	}
	return -1
}

// nextReal returns the index of the first real instruction after i, or
// len(insns).
func nextReal(insns []bytecode.Node, i int) int {
	for i++; i < len(insns); i++ {
		if insns[i].Opcode() >= 0 {
			return i
		}
	}
	return i
}

func fieldRead(insns []bytecode.Node, i int) (*bytecode.FieldInsn, bool) {
	if i >= len(insns) {
		return nil, false
	}
	f, ok := insns[i].(*bytecode.FieldInsn)
	if !ok || f.Op != bytecode.OpGetfield {
		return nil, false
	}
	return f, true
}
