package inline

import (
	"fmt"

	"github.com/daimatz/lambdainline/pkg/descriptor"
)

// CapturedParamInfo is a captured field together with the caller slot that
// holds its value at the inline site.
type CapturedParamInfo struct {
	Desc CapturedParamDesc
	Slot int
}

// FieldRemapper maps captured fields onto slots of the inlining frame.
type FieldRemapper interface {
	// FindField returns nil when the field is unknown.
	FindField(owner, field string) *CapturedParamInfo
}

// CapturedFieldRemapper is a FieldRemapper backed by a table. Lookups that
// miss fall through to the parent, the remapper of the enclosing inline site.
type CapturedFieldRemapper struct {
	parent FieldRemapper
	fields map[fieldKey]*CapturedParamInfo
}

func NewCapturedFieldRemapper(parent FieldRemapper) *CapturedFieldRemapper {
	return &CapturedFieldRemapper{parent: parent, fields: make(map[fieldKey]*CapturedParamInfo)}
}

// Add maps the field of desc to slot.
func (r *CapturedFieldRemapper) Add(desc CapturedParamDesc, slot int) {
	r.fields[desc.key()] = &CapturedParamInfo{Desc: desc, Slot: slot}
}

func (r *CapturedFieldRemapper) FindField(owner, field string) *CapturedParamInfo {
	if info, ok := r.fields[fieldKey{owner, field}]; ok {
		return info
	}
	if r.parent != nil {
		return r.parent.FindField(owner, field)
	}
	return nil
}

// ParameterInfo is one slot group of an inlined lambda frame.
type ParameterInfo struct {
	Type descriptor.Type
	// Index is the local slot in the lambda's invoke method.
	Index int
	// Skipped is set for the lambda instance itself, which does not exist
	// once inlined.
	Skipped bool
	// Captured is set for captured fields.
	Captured *CapturedParamInfo
}

// Parameters is the frame layout of an inlined lambda: the receiver, the
// declared parameters in order, then the captured fields.
type Parameters struct {
	Real     []ParameterInfo
	Captured []ParameterInfo
}

// All returns the real parameters followed by the captured ones.
func (p *Parameters) All() []ParameterInfo {
	return append(append([]ParameterInfo(nil), p.Real...), p.Captured...)
}

// ArgsSize returns the number of slots of the declared parameters, which the
// caller pushes on the operand stack.
func (p *Parameters) ArgsSize() int {
	n := 0
	for _, r := range p.Real {
		if !r.Skipped {
			n += r.Type.Size()
		}
	}
	return n
}

// Size is the total number of slots.
func (p *Parameters) Size() int {
	n := 0
	for _, a := range p.All() {
		n += a.Type.Size()
	}
	return n
}

type parametersBuilder struct {
	params   Parameters
	nextSlot int
}

func (b *parametersBuilder) addThis(t descriptor.Type) {
	b.params.Real = append(b.params.Real, ParameterInfo{Type: t, Index: b.nextSlot, Skipped: true})
	b.nextSlot += t.Size()
}

func (b *parametersBuilder) addNext(t descriptor.Type) {
	b.params.Real = append(b.params.Real, ParameterInfo{Type: t, Index: b.nextSlot})
	b.nextSlot += t.Size()
}

func (b *parametersBuilder) addCaptured(info *CapturedParamInfo) {
	t := info.Desc.FieldType
	b.params.Captured = append(b.params.Captured, ParameterInfo{Type: t, Index: b.nextSlot, Captured: info})
	b.nextSlot += t.Size()
}

// AddAllParameters builds the frame layout of l. Every captured field must be
// known to remapper.
func AddAllParameters(l LambdaInfo, remapper FieldRemapper) (*Parameters, error) {
	invoke := l.InvokeMethod()
	if invoke.IsZero() {
		return nil, internalErrorf("invoke method of %s is not known before its body is generated", l.LambdaClassType())
	}
	args, err := invoke.ArgumentTypes()
	if err != nil {
		return nil, fmt.Errorf("parameters of %s: %w", l.LambdaClassType(), err)
	}

	b := &parametersBuilder{}
	b.addThis(descriptor.Object)
	for _, a := range args {
		b.addNext(a)
	}
	for _, c := range l.CapturedVars() {
		info := remapper.FindField(c.ContainingLambdaName, c.FieldName)
		if info == nil {
			return nil, &CapturedFieldNotFoundError{Owner: c.ContainingLambdaName, Field: c.FieldName}
		}
		b.addCaptured(info)
	}
	return &b.params, nil
}
