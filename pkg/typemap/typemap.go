// Package typemap maps semantic types and declarations to JVM types and
// method signatures.
package typemap

import (
	"fmt"
	"strings"

	"github.com/daimatz/lambdainline/pkg/descriptor"
	"github.com/daimatz/lambdainline/pkg/name"
	"github.com/daimatz/lambdainline/pkg/types"
)

var primitives = map[name.FqName]struct {
	unboxed descriptor.Type
	boxed   string
}{
	types.IntName:     {descriptor.Int, "java/lang/Integer"},
	types.LongName:    {descriptor.Long, "java/lang/Long"},
	types.BooleanName: {descriptor.Boolean, "java/lang/Boolean"},
	types.DoubleName:  {descriptor.Double, "java/lang/Double"},
	types.FloatName:   {descriptor.Float, "java/lang/Float"},
	types.CharName:    {descriptor.Char, "java/lang/Character"},
	types.ByteName:    {descriptor.Byte, "java/lang/Byte"},
	types.ShortName:   {descriptor.Short, "java/lang/Short"},
}

var builtinClasses = map[name.FqName]string{
	types.AnyName:         "java/lang/Object",
	types.StringName:      "java/lang/String",
	types.UnitName:        "kotlin/Unit",
	types.NothingName:     "java/lang/Void",
	"kotlin.Number":       "java/lang/Number",
	"kotlin.Throwable":    "java/lang/Throwable",
	"kotlin.CharSequence": "java/lang/CharSequence",
}

// Signature is the JVM view of a function: the method plus the JVM type of
// every parameter slot, extension receiver first.
type Signature struct {
	Method     descriptor.Method
	Parameters []descriptor.Type
	ReturnType descriptor.Type
}

// Mapper maps front-end descriptors to JVM names. Classes registered with
// Register take precedence over the default fq-name mapping.
type Mapper struct {
	classes map[name.FqName]string
}

func NewMapper() *Mapper {
	return &Mapper{classes: make(map[name.FqName]string)}
}

// Register binds a classifier to a JVM internal name.
func (m *Mapper) Register(fq name.FqName, internalName string) {
	m.classes[fq] = internalName
}

// MapType returns the JVM type used to store a value of type t.
func (m *Mapper) MapType(t *types.Type) descriptor.Type {
	if t == nil || t.TypeParameter {
		return descriptor.Object
	}
	if p, ok := primitives[t.Classifier]; ok {
		if t.Nullable {
			return descriptor.ObjectType(p.boxed)
		}
		return p.unboxed
	}
	if t.Classifier == "kotlin.Array" && len(t.Arguments) == 1 {
		return descriptor.ArrayOf(m.MapType(t.Arguments[0].MakeNullable()))
	}
	return descriptor.ObjectType(m.internalName(t))
}

// MapReturnType is MapType except that a non-null Unit becomes void.
func (m *Mapper) MapReturnType(t *types.Type) descriptor.Type {
	if t != nil && !t.TypeParameter && !t.Nullable && t.Classifier == types.UnitName {
		return descriptor.Void
	}
	return m.MapType(t)
}

// MapClass returns the object type of a class.
func (m *Mapper) MapClass(c *types.ClassDescriptor) descriptor.Type {
	if c.InternalName != "" {
		return descriptor.ObjectType(c.InternalName)
	}
	return descriptor.ObjectType(m.internalName(types.Simple(c.FqName)))
}

func (m *Mapper) internalName(t *types.Type) string {
	if in, ok := m.classes[t.Classifier]; ok {
		return in
	}
	if in, ok := builtinClasses[t.Classifier]; ok {
		return in
	}
	if t.IsFunctionType() {
		return "kotlin/jvm/functions/" + string(t.Classifier.ShortName())
	}
	return strings.ReplaceAll(string(t.Classifier), ".", "/")
}

// MethodName returns the JVM name of f. Lambda literals compile to invoke.
func MethodName(f *types.FunctionDescriptor) string {
	if f.IsAnonymous() {
		return "invoke"
	}
	return string(f.Name)
}

// MapSignatureSkipGeneric maps f to its JVM signature, ignoring generic
// signature information.
func (m *Mapper) MapSignatureSkipGeneric(f *types.FunctionDescriptor) Signature {
	var params []descriptor.Type
	if f.ExtensionReceiver != nil {
		params = append(params, m.MapType(f.ExtensionReceiver))
	}
	for _, p := range f.ValueParameters {
		params = append(params, m.MapType(p.Type))
	}
	ret := m.MapReturnType(f.ReturnType)
	return Signature{
		Method:     descriptor.Method{Name: MethodName(f), Descriptor: descriptor.MethodDescriptor(ret, params...)},
		Parameters: params,
		ReturnType: ret,
	}
}

// MapAsmMethod returns the JVM method of f.
func (m *Mapper) MapAsmMethod(f *types.FunctionDescriptor) descriptor.Method {
	return m.MapSignatureSkipGeneric(f).Method
}

// ErasedInvokeFunction returns the bridge shape of f: every parameter, the
// extension receiver included, and the return type become "Any?".
func ErasedInvokeFunction(f *types.FunctionDescriptor) *types.FunctionDescriptor {
	erased := &types.FunctionDescriptor{
		Name:       name.Name(MethodName(f)),
		Owner:      f.Owner,
		Facade:     f.Facade,
		ReturnType: types.NullableAny,
	}
	n := len(f.ValueParameters)
	if f.ExtensionReceiver != nil {
		n++
	}
	for i := 0; i < n; i++ {
		erased.ValueParameters = append(erased.ValueParameters, &types.ValueParameterDescriptor{
			Name:  name.Name(fmt.Sprintf("p%d", i)),
			Index: i,
			Type:  types.NullableAny,
		})
	}
	return erased
}

// InvokeOf returns the invoke member of a kotlin.FunctionN type. Its
// parameters are generic so the mapped descriptor is fully erased.
func InvokeOf(fn *types.Type) *types.FunctionDescriptor {
	arity := fn.FunctionArity()
	if arity < 0 {
		return nil
	}
	f := &types.FunctionDescriptor{
		Name:       "invoke",
		Owner:      &types.ClassDescriptor{FqName: fn.Classifier},
		ReturnType: types.Param("R"),
	}
	for i := 0; i < arity; i++ {
		f.ValueParameters = append(f.ValueParameters, &types.ValueParameterDescriptor{
			Name:  name.Name(fmt.Sprintf("p%d", i+1)),
			Index: i,
			Type:  types.Param("P"),
		})
	}
	return f
}

// BoxedType returns the wrapper class of a primitive JVM type, or "" for
// reference types.
func BoxedType(t descriptor.Type) string {
	for _, p := range primitives {
		if p.unboxed == t {
			return p.boxed
		}
	}
	return ""
}
