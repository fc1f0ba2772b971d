package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Class file version written by Writer (Java 8).
const (
	WriterMajorVersion = 52
	WriterMinorVersion = 0
)

// Writer assembles a class file. Constant pool entries are deduplicated via
// a string-keyed index so that callers can ask for the same reference many
// times and always get the same slot.
type Writer struct {
	pool    []ConstantPoolEntry // 1-indexed; pool[0] is nil
	cpIndex map[string]uint16

	access     uint16
	thisClass  uint16
	superClass uint16
	interfaces []uint16
	fields     []writtenMember
	methods    []writtenMember

	sourceFile string
	debugExt   string
}

type writtenMember struct {
	access uint16
	name   uint16
	desc   uint16
	attrs  []writtenAttr
}

type writtenAttr struct {
	name uint16
	data []byte
}

// NewWriter starts a class with the given internal name and super class.
func NewWriter(access uint16, className, superName string) *Writer {
	w := &Writer{
		pool:    []ConstantPoolEntry{nil},
		cpIndex: make(map[string]uint16),
		access:  access,
	}
	w.thisClass = w.Class(className)
	if superName != "" {
		w.superClass = w.Class(superName)
	}
	return w
}

// AddInterface records an implemented interface.
func (w *Writer) AddInterface(name string) {
	w.interfaces = append(w.interfaces, w.Class(name))
}

// SetSourceFile sets the SourceFile attribute.
func (w *Writer) SetSourceFile(name string) { w.sourceFile = name }

// SetSourceDebugExtension sets the SourceDebugExtension attribute (SMAP text).
func (w *Writer) SetSourceDebugExtension(smap string) { w.debugExt = smap }

// AddField declares a field.
func (w *Writer) AddField(access uint16, name, desc string) {
	w.fields = append(w.fields, writtenMember{access: access, name: w.Utf8(name), desc: w.Utf8(desc)})
}

// AddMethod declares a method. code may be nil for abstract methods.
func (w *Writer) AddMethod(access uint16, name, desc string, code *CodeAttribute) {
	m := writtenMember{access: access, name: w.Utf8(name), desc: w.Utf8(desc)}
	if code != nil {
		m.attrs = append(m.attrs, writtenAttr{name: w.Utf8("Code"), data: w.encodeCode(code)})
	}
	w.methods = append(w.methods, m)
}

func (w *Writer) add(key string, e ConstantPoolEntry) uint16 {
	if idx, ok := w.cpIndex[key]; ok {
		return idx
	}
	w.pool = append(w.pool, e)
	idx := uint16(len(w.pool) - 1)
	if e.Tag() == TagLong || e.Tag() == TagDouble {
		w.pool = append(w.pool, nil)
	}
	w.cpIndex[key] = idx
	return idx
}

// Utf8 returns the index of a CONSTANT_Utf8 entry.
func (w *Writer) Utf8(value string) uint16 {
	return w.add("utf8:"+value, &ConstantUtf8{Value: value})
}

// Class returns the index of a CONSTANT_Class entry.
func (w *Writer) Class(name string) uint16 {
	key := "class:" + name
	if idx, ok := w.cpIndex[key]; ok {
		return idx
	}
	return w.add(key, &ConstantClass{NameIndex: w.Utf8(name)})
}

// String returns the index of a CONSTANT_String entry.
func (w *Writer) String(value string) uint16 {
	key := "string:" + value
	if idx, ok := w.cpIndex[key]; ok {
		return idx
	}
	return w.add(key, &ConstantString{StringIndex: w.Utf8(value)})
}

// Integer returns the index of a CONSTANT_Integer entry.
func (w *Writer) Integer(v int32) uint16 {
	return w.add(fmt.Sprintf("int:%d", v), &ConstantInteger{Value: v})
}

// Float returns the index of a CONSTANT_Float entry.
func (w *Writer) Float(v float32) uint16 {
	return w.add(fmt.Sprintf("float:%08x", math.Float32bits(v)), &ConstantFloat{Value: v})
}

// Long returns the index of a CONSTANT_Long entry.
func (w *Writer) Long(v int64) uint16 {
	return w.add(fmt.Sprintf("long:%d", v), &ConstantLong{Value: v})
}

// Double returns the index of a CONSTANT_Double entry.
func (w *Writer) Double(v float64) uint16 {
	return w.add(fmt.Sprintf("double:%016x", math.Float64bits(v)), &ConstantDouble{Value: v})
}

// NameAndType returns the index of a CONSTANT_NameAndType entry.
func (w *Writer) NameAndType(name, desc string) uint16 {
	key := "nameandtype:" + name + ":" + desc
	if idx, ok := w.cpIndex[key]; ok {
		return idx
	}
	return w.add(key, &ConstantNameAndType{NameIndex: w.Utf8(name), DescriptorIndex: w.Utf8(desc)})
}

// Fieldref returns the index of a CONSTANT_Fieldref entry.
func (w *Writer) Fieldref(owner, name, desc string) uint16 {
	key := "fieldref:" + owner + "." + name + ":" + desc
	if idx, ok := w.cpIndex[key]; ok {
		return idx
	}
	return w.add(key, &ConstantFieldref{ClassIndex: w.Class(owner), NameAndTypeIndex: w.NameAndType(name, desc)})
}

// Methodref returns the index of a CONSTANT_Methodref or
// CONSTANT_InterfaceMethodref entry.
func (w *Writer) Methodref(owner, name, desc string, itf bool) uint16 {
	prefix := "methodref:"
	if itf {
		prefix = "imethodref:"
	}
	key := prefix + owner + "." + name + ":" + desc
	if idx, ok := w.cpIndex[key]; ok {
		return idx
	}
	class, nat := w.Class(owner), w.NameAndType(name, desc)
	if itf {
		return w.add(key, &ConstantInterfaceMethodref{ClassIndex: class, NameAndTypeIndex: nat})
	}
	return w.add(key, &ConstantMethodref{ClassIndex: class, NameAndTypeIndex: nat})
}

func (w *Writer) encodeCode(code *CodeAttribute) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, code.MaxStack)
	binary.Write(&buf, binary.BigEndian, code.MaxLocals)
	binary.Write(&buf, binary.BigEndian, uint32(len(code.Code)))
	buf.Write(code.Code)
	binary.Write(&buf, binary.BigEndian, uint16(len(code.ExceptionHandlers)))
	binary.Write(&buf, binary.BigEndian, code.ExceptionHandlers)

	var subs []writtenAttr
	if len(code.LineNumbers) > 0 {
		var lnt bytes.Buffer
		binary.Write(&lnt, binary.BigEndian, uint16(len(code.LineNumbers)))
		binary.Write(&lnt, binary.BigEndian, code.LineNumbers)
		subs = append(subs, writtenAttr{name: w.Utf8("LineNumberTable"), data: lnt.Bytes()})
	}
	if len(code.LocalVariables) > 0 {
		var lvt bytes.Buffer
		binary.Write(&lvt, binary.BigEndian, uint16(len(code.LocalVariables)))
		for _, lv := range code.LocalVariables {
			binary.Write(&lvt, binary.BigEndian, []uint16{lv.StartPC, lv.Length, w.Utf8(lv.Name), w.Utf8(lv.Descriptor), lv.Index})
		}
		subs = append(subs, writtenAttr{name: w.Utf8("LocalVariableTable"), data: lvt.Bytes()})
	}
	binary.Write(&buf, binary.BigEndian, uint16(len(subs)))
	for _, a := range subs {
		writeAttr(&buf, a)
	}
	return buf.Bytes()
}

// Bytes serializes the class.
func (w *Writer) Bytes() ([]byte, error) {
	var classAttrs []writtenAttr
	if w.sourceFile != "" {
		var data [2]byte
		binary.BigEndian.PutUint16(data[:], w.Utf8(w.sourceFile))
		classAttrs = append(classAttrs, writtenAttr{name: w.Utf8("SourceFile"), data: data[:]})
	}
	if w.debugExt != "" {
		classAttrs = append(classAttrs, writtenAttr{name: w.Utf8("SourceDebugExtension"), data: []byte(w.debugExt)})
	}
	if len(w.pool) > math.MaxUint16 {
		return nil, fmt.Errorf("constant pool too large: %d entries", len(w.pool))
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(classMagic))
	binary.Write(&buf, binary.BigEndian, uint16(WriterMinorVersion))
	binary.Write(&buf, binary.BigEndian, uint16(WriterMajorVersion))
	binary.Write(&buf, binary.BigEndian, uint16(len(w.pool)))
	for _, e := range w.pool[1:] {
		if e == nil {
			continue // second slot of a long/double
		}
		if err := writeConstant(&buf, e); err != nil {
			return nil, err
		}
	}
	binary.Write(&buf, binary.BigEndian, []uint16{w.access, w.thisClass, w.superClass, uint16(len(w.interfaces))})
	binary.Write(&buf, binary.BigEndian, w.interfaces)
	for _, members := range [][]writtenMember{w.fields, w.methods} {
		binary.Write(&buf, binary.BigEndian, uint16(len(members)))
		for _, m := range members {
			binary.Write(&buf, binary.BigEndian, []uint16{m.access, m.name, m.desc, uint16(len(m.attrs))})
			for _, a := range m.attrs {
				writeAttr(&buf, a)
			}
		}
	}
	binary.Write(&buf, binary.BigEndian, uint16(len(classAttrs)))
	for _, a := range classAttrs {
		writeAttr(&buf, a)
	}
	return buf.Bytes(), nil
}

func writeAttr(w io.Writer, a writtenAttr) {
	binary.Write(w, binary.BigEndian, a.name)
	binary.Write(w, binary.BigEndian, uint32(len(a.data)))
	w.Write(a.data)
}

func writeConstant(w io.Writer, e ConstantPoolEntry) error {
	binary.Write(w, binary.BigEndian, e.Tag())
	switch c := e.(type) {
	case *ConstantUtf8:
		binary.Write(w, binary.BigEndian, uint16(len(c.Value)))
		_, err := io.WriteString(w, c.Value)
		return err
	case *ConstantInteger:
		return binary.Write(w, binary.BigEndian, c.Value)
	case *ConstantFloat:
		return binary.Write(w, binary.BigEndian, math.Float32bits(c.Value))
	case *ConstantLong:
		return binary.Write(w, binary.BigEndian, c.Value)
	case *ConstantDouble:
		return binary.Write(w, binary.BigEndian, math.Float64bits(c.Value))
	case *ConstantClass:
		return binary.Write(w, binary.BigEndian, c.NameIndex)
	case *ConstantString:
		return binary.Write(w, binary.BigEndian, c.StringIndex)
	case *ConstantFieldref:
		return binary.Write(w, binary.BigEndian, c)
	case *ConstantMethodref:
		return binary.Write(w, binary.BigEndian, c)
	case *ConstantInterfaceMethodref:
		return binary.Write(w, binary.BigEndian, c)
	case *ConstantNameAndType:
		return binary.Write(w, binary.BigEndian, c)
	}
	return fmt.Errorf("cannot write constant with tag %d", e.Tag())
}
