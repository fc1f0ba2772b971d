// Package inline prepares lambdas passed to inline functions and splices
// their bodies into the caller.
package inline

import (
	"github.com/tliron/commonlog"

	"github.com/daimatz/lambdainline/pkg/binding"
	"github.com/daimatz/lambdainline/pkg/classindex"
	"github.com/daimatz/lambdainline/pkg/codegen"
	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/smap"
	"github.com/daimatz/lambdainline/pkg/typemap"
	"github.com/daimatz/lambdainline/pkg/types"
)

var log = commonlog.GetLogger("lambdainline.inline")

const invokeName = "invoke"

// State is the generation state of a lambda.
type State int

const (
	Pending State = iota
	Generated
)

func (s State) String() string {
	if s == Generated {
		return "generated"
	}
	return "pending"
}

// LambdaInfo is a lambda argument of an inline call.
type LambdaInfo interface {
	// LambdaClassType is the class generated for the lambda.
	LambdaClassType() descriptor.Type
	// InvokeMethod is the specialized invoke method. For a DefaultLambda it
	// is known only after GenerateLambdaBody.
	InvokeMethod() descriptor.Method
	// ErasedInvokeMethodDescriptor is the generic invoke of the function
	// interface the lambda implements.
	ErasedInvokeMethodDescriptor() *types.FunctionDescriptor
	// CapturedVars lists the captured fields in constructor order.
	CapturedVars() []CapturedParamDesc

	IsCrossInline() bool
	IsBoundCallableReference() bool
	// IsMyLabel reports whether "return@name" targets this lambda.
	IsMyLabel(name string) bool

	// Node is the body produced by GenerateLambdaBody, nil before.
	Node() *smap.SMAPAndMethodNode
	State() State
	GenerateLambdaBody(env *Env) error
}

// Env is what lambdas need from the surrounding compilation.
type Env struct {
	Classes  classindex.Index
	Bindings *binding.Context
	Types    *typemap.Mapper
	Codegen  codegen.BodyGenerator
	// Context is the code generation context of the inline call site.
	Context *codegen.Context
}

type lambdaState struct {
	crossInline bool
	bound       bool
	state       State
	node        *smap.SMAPAndMethodNode
}

func (s *lambdaState) IsCrossInline() bool { return s.crossInline }
func (s *lambdaState) IsBoundCallableReference() bool { return s.bound }
func (s *lambdaState) Node() *smap.SMAPAndMethodNode { return s.node }
func (s *lambdaState) State() State { return s.state }

func (s *lambdaState) checkPending() error {
	if s.state == Generated {
		return ErrAlreadyGenerated
	}
	return nil
}

func (s *lambdaState) generated(node *smap.SMAPAndMethodNode) {
	s.node = node
	s.state = Generated
}
