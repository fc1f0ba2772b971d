package binding

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/types"
)

// EnclosedValue is a variable captured by a closure and the field that holds
// it in the generated class.
type EnclosedValue struct {
	Variable  types.Variable
	FieldName string
	Type      descriptor.Type
}

// Closure describes what a lambda or callable reference captures from its
// enclosing scope. Captured variables keep the order in which they were
// recorded.
type Closure struct {
	// CaptureThis is the enclosing class whose instance is captured, or nil.
	CaptureThis *types.ClassDescriptor
	// CaptureReceiverType is the type of the captured extension or bound
	// receiver, or nil.
	CaptureReceiverType *types.Type

	vars *linkedhashmap.Map
}

func NewClosure() *Closure {
	return &Closure{vars: linkedhashmap.New()}
}

// CaptureVariable records that v is captured into field fieldName. Capturing
// the same variable again replaces the field but keeps its position.
func (c *Closure) CaptureVariable(v types.Variable, fieldName string, t descriptor.Type) {
	c.vars.Put(v, EnclosedValue{Variable: v, FieldName: fieldName, Type: t})
}

// CapturedVariable returns the enclosed value of v.
func (c *Closure) CapturedVariable(v types.Variable) (EnclosedValue, bool) {
	ev, ok := c.vars.Get(v)
	if !ok {
		return EnclosedValue{}, false
	}
	return ev.(EnclosedValue), true
}

// CaptureVariables returns the captured variables in capture order.
func (c *Closure) CaptureVariables() []EnclosedValue {
	values := c.vars.Values()
	out := make([]EnclosedValue, len(values))
	for i, v := range values {
		out[i] = v.(EnclosedValue)
	}
	return out
}

// IsEmpty reports whether the closure captures nothing.
func (c *Closure) IsEmpty() bool {
	return c.CaptureThis == nil && c.CaptureReceiverType == nil && c.vars.Size() == 0
}
