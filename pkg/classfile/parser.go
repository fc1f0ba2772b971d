package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// Option tweaks how much of a class file Parse decodes.
type Option func(*parseOptions)

type parseOptions struct {
	skipCode  bool
	skipDebug bool
}

// SkipCode leaves MethodInfo.Code nil. Useful for structural scans that only
// need member signatures.
func SkipCode() Option {
	return func(o *parseOptions) { o.skipCode = true }
}

// SkipDebug drops LineNumberTable and LocalVariableTable from Code attributes.
func SkipDebug() Option {
	return func(o *parseOptions) { o.skipDebug = true }
}

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string, opts ...Option) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, opts...)
}

// ParseBytes parses an in-memory class file.
func ParseBytes(b []byte, opts ...Option) (*ClassFile, error) {
	return Parse(bytes.NewReader(b), opts...)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader, opts ...Option) (*ClassFile, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	header := []*uint16{&cf.AccessFlags, &cf.ThisClass, &cf.SuperClass}
	for _, field := range header {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return nil, fmt.Errorf("reading class header: %w", err)
		}
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	if err := binary.Read(r, binary.BigEndian, cf.Interfaces); err != nil {
		return nil, fmt.Errorf("reading interfaces: %w", err)
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	for i := uint16(0); i < fieldsCount; i++ {
		access, name, desc, attrs, err := parseMember(r, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d: %w", i, err)
		}
		cf.Fields = append(cf.Fields, FieldInfo{AccessFlags: access, Name: name, Descriptor: desc, Attributes: attrs})
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	for i := uint16(0); i < methodsCount; i++ {
		access, name, desc, attrs, err := parseMember(r, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d: %w", i, err)
		}
		m := MethodInfo{AccessFlags: access, Name: name, Descriptor: desc, Attributes: attrs}
		if !o.skipCode {
			for _, attr := range attrs {
				if attr.Name == "Code" {
					if m.Code, err = parseCodeAttribute(attr.Data, pool, o.skipDebug); err != nil {
						return nil, fmt.Errorf("parsing Code attribute for method %s%s: %w", name, desc, err)
					}
					break
				}
			}
		}
		cf.Methods = append(cf.Methods, m)
	}

	if err := cf.parseClassAttributes(r); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return cf, nil
}

// parseMember reads the common field_info / method_info layout.
func parseMember(r io.Reader, pool []ConstantPoolEntry) (uint16, string, string, []AttributeInfo, error) {
	var hdr struct {
		AccessFlags, NameIndex, DescIndex, AttrCount uint16
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return 0, "", "", nil, fmt.Errorf("reading member header: %w", err)
	}
	name, err := GetUtf8(pool, hdr.NameIndex)
	if err != nil {
		return 0, "", "", nil, fmt.Errorf("resolving name: %w", err)
	}
	desc, err := GetUtf8(pool, hdr.DescIndex)
	if err != nil {
		return 0, "", "", nil, fmt.Errorf("resolving descriptor: %w", err)
	}
	attrs, err := parseAttributeInfos(r, pool, hdr.AttrCount)
	if err != nil {
		return 0, "", "", nil, fmt.Errorf("parsing attributes of %s: %w", name, err)
	}
	return hdr.AccessFlags, name, desc, attrs, nil
}

func parseAttributeInfos(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}

		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte, pool []ConstantPoolEntry, skipDebug bool) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	attr := &CodeAttribute{
		MaxStack:  maxStack,
		MaxLocals: maxLocals,
		Code:      code,
	}

	r := bytes.NewReader(data[8+codeLength:])
	var exTableLen uint16
	if err := binary.Read(r, binary.BigEndian, &exTableLen); err != nil {
		return attr, nil
	}
	attr.ExceptionHandlers = make([]ExceptionHandler, exTableLen)
	if err := binary.Read(r, binary.BigEndian, attr.ExceptionHandlers); err != nil {
		return nil, fmt.Errorf("reading exception table: %w", err)
	}

	var attrCount uint16
	if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
		return attr, nil
	}
	subAttrs, err := parseAttributeInfos(r, pool, attrCount)
	if err != nil {
		return nil, fmt.Errorf("parsing Code sub-attributes: %w", err)
	}
	if skipDebug {
		return attr, nil
	}
	for _, sub := range subAttrs {
		switch sub.Name {
		case "LineNumberTable":
			if attr.LineNumbers, err = parseLineNumberTable(sub.Data); err != nil {
				return nil, err
			}
		case "LocalVariableTable":
			if attr.LocalVariables, err = parseLocalVariableTable(sub.Data, pool); err != nil {
				return nil, err
			}
		}
	}
	return attr, nil
}

func parseLineNumberTable(data []byte) ([]LineNumberEntry, error) {
	r := bytes.NewReader(data)
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("reading LineNumberTable length: %w", err)
	}
	entries := make([]LineNumberEntry, n)
	if err := binary.Read(r, binary.BigEndian, entries); err != nil {
		return nil, fmt.Errorf("reading LineNumberTable: %w", err)
	}
	return entries, nil
}

func parseLocalVariableTable(data []byte, pool []ConstantPoolEntry) ([]LocalVariableEntry, error) {
	r := bytes.NewReader(data)
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("reading LocalVariableTable length: %w", err)
	}
	raw := make([]struct {
		StartPC, Length, NameIndex, DescIndex, Index uint16
	}, n)
	if err := binary.Read(r, binary.BigEndian, raw); err != nil {
		return nil, fmt.Errorf("reading LocalVariableTable: %w", err)
	}
	entries := make([]LocalVariableEntry, n)
	for i, e := range raw {
		name, err := GetUtf8(pool, e.NameIndex)
		if err != nil {
			return nil, fmt.Errorf("local variable %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, e.DescIndex)
		if err != nil {
			return nil, fmt.Errorf("local variable %d descriptor: %w", i, err)
		}
		entries[i] = LocalVariableEntry{StartPC: e.StartPC, Length: e.Length, Name: name, Descriptor: desc, Index: e.Index}
	}
	return entries, nil
}

func (cf *ClassFile) parseClassAttributes(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	attrs, err := parseAttributeInfos(r, cf.ConstantPool, count)
	if err != nil {
		return err
	}
	for _, attr := range attrs {
		switch attr.Name {
		case "SourceFile":
			if len(attr.Data) != 2 {
				return fmt.Errorf("SourceFile attribute has length %d", len(attr.Data))
			}
			if cf.SourceFile, err = GetUtf8(cf.ConstantPool, binary.BigEndian.Uint16(attr.Data)); err != nil {
				return fmt.Errorf("resolving SourceFile: %w", err)
			}
		case "SourceDebugExtension":
			cf.SourceDebugExtension = string(attr.Data)
		case "BootstrapMethods":
			if cf.BootstrapMethods, err = parseBootstrapMethods(attr.Data); err != nil {
				return fmt.Errorf("parsing BootstrapMethods: %w", err)
			}
		}
	}
	return nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("BootstrapMethods data too short")
	}
	numMethods := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	methods := make([]BootstrapMethod, numMethods)
	for i := uint16(0); i < numMethods; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("BootstrapMethods truncated at method %d", i)
		}
		methodRef := binary.BigEndian.Uint16(data[offset : offset+2])
		numArgs := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
		if offset+2*int(numArgs) > len(data) {
			return nil, fmt.Errorf("BootstrapMethods truncated in arguments of method %d", i)
		}
		args := make([]uint16, numArgs)
		for j := range args {
			args[j] = binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
		}
		methods[i] = BootstrapMethod{MethodRef: methodRef, BootstrapArguments: args}
	}
	return methods, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// MethodsNamed returns every method with the given name, in declaration order.
func (cf *ClassFile) MethodsNamed(name string) []*MethodInfo {
	var out []*MethodInfo
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			out = append(out, &cf.Methods[i])
		}
	}
	return out
}

// FindField finds a field by name.
func (cf *ClassFile) FindField(name string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name {
			return &cf.Fields[i]
		}
	}
	return nil
}
