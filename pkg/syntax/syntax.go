// Package syntax is the expression tree the front end passes to the
// backend for lambda literals and callable references.
package syntax

// Pos is a source position. Only lines are tracked.
type Pos struct {
	Line int
}

func (p Pos) Position() Pos { return p }

// Expr is any expression node. Nodes are compared by identity and are used
// as keys of the binding tables.
type Expr interface {
	Position() Pos
}

// Param is a lambda parameter.
type Param struct {
	Pos
	Name string
}

// Lambda is a lambda literal "{ a, b -> body }". The value of the last body
// expression is the result.
type Lambda struct {
	Pos
	Params []*Param
	Body   []Expr
	// End is the line of the closing brace.
	End int

	// Labels holds the names of enclosing labeled expressions ("l@ { }"),
	// innermost first.
	Labels []string
	// Callee is the name of the call this literal is an argument of.
	Callee string
	// IsDefaultValue is set for literals written as a parameter default.
	IsDefaultValue bool
}

// CallableReference is "recv::name", "Type::name" or "::name". Receiver is set
// only for bound references.
type CallableReference struct {
	Pos
	Receiver Expr
	Callee   string
}

// Labeled is "label@ expr".
type Labeled struct {
	Pos
	Label string
	Expr  Expr
}

// StringLit is a string literal without templates.
type StringLit struct {
	Pos
	Value string
}

// IntLit is an integer literal.
type IntLit struct {
	Pos
	Value int32
}

// NameRef is a reference to a local, parameter or captured variable.
type NameRef struct {
	Pos
	Name string
}

// ThisRef is "this" of the enclosing class.
type ThisRef struct {
	Pos
}

// Call is a call of a resolved function. Receiver is nil for top-level
// functions.
type Call struct {
	Pos
	Callee   string
	Receiver Expr
	Args     []Expr
}

// Label wraps e in a labeled expression. A lambda literal also records the
// label so that it can be found from the literal itself.
func Label(label string, e Expr) *Labeled {
	if l, ok := Unlabel(e).(*Lambda); ok {
		l.Labels = append(l.Labels, label)
	}
	return &Labeled{Pos: e.Position(), Label: label, Expr: e}
}

// NewCall builds a call and records the callee name on lambda arguments,
// looking through labels.
func NewCall(line int, callee string, receiver Expr, args ...Expr) *Call {
	for _, a := range args {
		if lambda, ok := Unlabel(a).(*Lambda); ok {
			lambda.Callee = callee
		}
	}
	return &Call{Pos: Pos{line}, Callee: callee, Receiver: receiver, Args: args}
}

// Unlabel strips labeled-expression wrappers.
func Unlabel(e Expr) Expr {
	for {
		l, ok := e.(*Labeled)
		if !ok {
			return e
		}
		e = l.Expr
	}
}

// LabelNames returns the names a non-local "return@name" may use to target
// the lambda: the explicit labels or, when there are none, the name of the
// call it is passed to.
func LabelNames(l *Lambda) []string {
	if len(l.Labels) > 0 {
		return append([]string(nil), l.Labels...)
	}
	if l.Callee != "" {
		return []string{l.Callee}
	}
	return nil
}

// Inspect walks the tree rooted at e in depth-first order, calling f for each
// node. If f returns false the children of the node are skipped.
func Inspect(e Expr, f func(Expr) bool) {
	if e == nil || !f(e) {
		return
	}
	switch n := e.(type) {
	case *Lambda:
		for _, b := range n.Body {
			Inspect(b, f)
		}
	case *CallableReference:
		Inspect(n.Receiver, f)
	case *Labeled:
		Inspect(n.Expr, f)
	case *Call:
		Inspect(n.Receiver, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	}
}
