package inline

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAlreadyGenerated is returned by a second GenerateLambdaBody call.
var ErrAlreadyGenerated = errors.New("lambda body already generated")

// InternalError reports an inconsistency between the front end, the class
// index and the inliner. It carries the stack of the point of detection.
type InternalError struct {
	err error
}

func internalErrorf(format string, args ...interface{}) error {
	return &InternalError{err: errors.Errorf(format, args...)}
}

func wrapInternal(err error, format string, args ...interface{}) error {
	return &InternalError{err: errors.Wrapf(err, format, args...)}
}

func (e *InternalError) Error() string { return "internal error: " + e.err.Error() }

func (e *InternalError) Unwrap() error { return e.err }

// StackTrace returns the stack recorded when the error was created.
func (e *InternalError) StackTrace() errors.StackTrace {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	if st, ok := e.err.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

// Format prints the stack trace with %+v.
func (e *InternalError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "internal error: %+v", e.err)
		return
	}
	fmt.Fprint(s, e.Error())
}

// CapturedFieldNotFoundError means a captured field of a lambda has no slot
// in the inlining frame.
type CapturedFieldNotFoundError struct {
	Owner string
	Field string
}

func (e *CapturedFieldNotFoundError) Error() string {
	return fmt.Sprintf("captured field not found: %s.%s", e.Owner, e.Field)
}
