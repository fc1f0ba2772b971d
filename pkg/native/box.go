package native

import "fmt"

// Box is an instance of a java/lang wrapper class. Value is an int32 for
// Integer, Short, Byte, Character and Boolean, an int64 for Long, a float32
// for Float and a float64 for Double.
type Box struct {
	Class string
	Value interface{}
}

// ValueOf boxes v into an instance of class (boxing).
func ValueOf(class string, v interface{}) *Box {
	return &Box{Class: class, Value: v}
}

func (b *Box) String() string {
	if b.Class == "java/lang/Boolean" {
		return fmt.Sprint(b.Value != int32(0))
	}
	if b.Class == "java/lang/Character" {
		return string(rune(b.Value.(int32)))
	}
	return fmt.Sprint(b.Value)
}

// Equals compares two boxes by class and value.
func (b *Box) Equals(o *Box) bool {
	return o != nil && b.Class == o.Class && b.Value == o.Value
}

// IsWrapperClass reports whether class is one of the java/lang wrappers.
func IsWrapperClass(class string) bool {
	switch class {
	case "java/lang/Integer", "java/lang/Long", "java/lang/Boolean", "java/lang/Double",
		"java/lang/Float", "java/lang/Character", "java/lang/Byte", "java/lang/Short":
		return true
	}
	return false
}
