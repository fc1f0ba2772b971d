package vm

import (
	"fmt"

	"github.com/daimatz/lambdainline/pkg/classfile"
)

// JavaException represents a JVM exception being thrown.
type JavaException struct {
	Object *JObject
}

func (e *JavaException) Error() string {
	return fmt.Sprintf("JavaException: %s", e.Object.ClassName)
}

func NewJavaException(className string) *JavaException {
	return &JavaException{
		Object: &JObject{
			ClassName: className,
			Fields:    make(map[string]Value),
		},
	}
}

// findHandler returns the handler pc for an exception thrown at pc, or -1.
func (vm *VM) findHandler(frame *Frame, code *classfile.CodeAttribute, pc int, exc *JavaException) int {
	for _, h := range code.ExceptionHandlers {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC)
		}
		name, err := classfile.GetClassName(frame.Class.ConstantPool, h.CatchType)
		if err != nil {
			continue
		}
		if vm.isSubclass(exc.Object.ClassName, name) {
			return int(h.HandlerPC)
		}
	}
	return -1
}
