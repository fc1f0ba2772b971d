package native

import (
	"fmt"
	"io"
)

// PrintStream represents a java.io.PrintStream.
type PrintStream struct {
	Writer io.Writer
}

// Println prints a value followed by a newline.
func (ps *PrintStream) Println(args ...interface{}) {
	if len(args) == 0 {
		fmt.Fprintln(ps.Writer)
		return
	}
	fmt.Fprintln(ps.Writer, args[0])
}

// UnitValue is the type of kotlin/Unit.INSTANCE.
type UnitValue struct{}

func (*UnitValue) String() string { return "kotlin.Unit" }

// Unit is the single kotlin/Unit instance.
var Unit = &UnitValue{}
