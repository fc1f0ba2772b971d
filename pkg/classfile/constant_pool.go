package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

// parseConstantPool reads constant_pool_count-1 entries from the reader.
// The returned slice is 1-indexed: index 0 is nil.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}

		var err error
		switch tag {
		case TagUtf8:
			var length uint16
			if err = binary.Read(r, binary.BigEndian, &length); err == nil {
				bytes := make([]byte, length)
				_, err = io.ReadFull(r, bytes)
				pool[i] = &ConstantUtf8{Value: string(bytes)}
			}

		case TagInteger:
			var val int32
			err = binary.Read(r, binary.BigEndian, &val)
			pool[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			err = binary.Read(r, binary.BigEndian, &bits)
			pool[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong:
			var val int64
			err = binary.Read(r, binary.BigEndian, &val)
			pool[i] = &ConstantLong{Value: val}
			i++ // long takes 2 slots

		case TagDouble:
			var bits uint64
			err = binary.Read(r, binary.BigEndian, &bits)
			pool[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			i++ // double takes 2 slots

		case TagClass:
			c := &ConstantClass{}
			err = binary.Read(r, binary.BigEndian, &c.NameIndex)
			pool[i] = c

		case TagString:
			c := &ConstantString{}
			err = binary.Read(r, binary.BigEndian, &c.StringIndex)
			pool[i] = c

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			var refs [2]uint16
			err = binary.Read(r, binary.BigEndian, &refs)
			switch tag {
			case TagFieldref:
				pool[i] = &ConstantFieldref{ClassIndex: refs[0], NameAndTypeIndex: refs[1]}
			case TagMethodref:
				pool[i] = &ConstantMethodref{ClassIndex: refs[0], NameAndTypeIndex: refs[1]}
			default:
				pool[i] = &ConstantInterfaceMethodref{ClassIndex: refs[0], NameAndTypeIndex: refs[1]}
			}

		case TagNameAndType:
			c := &ConstantNameAndType{}
			err = binary.Read(r, binary.BigEndian, c)
			pool[i] = c

		case TagMethodHandle, TagMethodType, TagDynamic, TagInvokeDynamic:
			// MethodHandle: kind(u1)+ref(u2); MethodType: desc(u2); (Invoke)Dynamic: bsm(u2)+nat(u2)
			size := map[uint8]int{TagMethodHandle: 3, TagMethodType: 2, TagDynamic: 4, TagInvokeDynamic: 4}[tag]
			_, err = io.ReadFull(r, make([]byte, size))
			pool[i] = &constantPlaceholder{tag: tag}

		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		if err != nil {
			return nil, fmt.Errorf("reading constant (tag=%d) at index %d: %w", tag, i, err)
		}
	}

	return pool, nil
}

// constantPlaceholder is used for constant pool entries we don't fully parse.
type constantPlaceholder struct {
	tag uint8
}

func (c *constantPlaceholder) Tag() uint8 { return c.tag }

func entryAt(pool []ConstantPoolEntry, index uint16) (ConstantPoolEntry, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return pool[index], nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return "", err
	}
	utf8, ok := entry.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, entry.Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	entry, err := entryAt(pool, classIndex)
	if err != nil {
		return "", err
	}
	class, ok := entry.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// MemberRef is a resolved field, method or interface method reference.
type MemberRef struct {
	Owner      string
	Name       string
	Descriptor string
	Interface  bool
}

// ResolveMemberRef resolves a Fieldref, Methodref or InterfaceMethodref entry.
func ResolveMemberRef(pool []ConstantPoolEntry, index uint16) (*MemberRef, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return nil, err
	}

	var classIndex, natIndex uint16
	ref := &MemberRef{}
	switch e := entry.(type) {
	case *ConstantFieldref:
		classIndex, natIndex = e.ClassIndex, e.NameAndTypeIndex
	case *ConstantMethodref:
		classIndex, natIndex = e.ClassIndex, e.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		classIndex, natIndex = e.ClassIndex, e.NameAndTypeIndex
		ref.Interface = true
	default:
		return nil, fmt.Errorf("constant pool index %d is not a member reference (tag=%d)", index, entry.Tag())
	}

	if ref.Owner, err = GetClassName(pool, classIndex); err != nil {
		return nil, fmt.Errorf("resolving member owner: %w", err)
	}
	natEntry, err := entryAt(pool, natIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving NameAndType: %w", err)
	}
	nat, ok := natEntry.(*ConstantNameAndType)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not NameAndType", natIndex)
	}
	if ref.Name, err = GetUtf8(pool, nat.NameIndex); err != nil {
		return nil, fmt.Errorf("resolving member name: %w", err)
	}
	if ref.Descriptor, err = GetUtf8(pool, nat.DescriptorIndex); err != nil {
		return nil, fmt.Errorf("resolving member descriptor: %w", err)
	}
	return ref, nil
}

// ResolveLoadable resolves an ldc operand into a Go value: int32, float32,
// int64, float64, string (for CONSTANT_String), or ClassConstant.
func ResolveLoadable(pool []ConstantPoolEntry, index uint16) (interface{}, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return nil, err
	}
	switch c := entry.(type) {
	case *ConstantInteger:
		return c.Value, nil
	case *ConstantFloat:
		return c.Value, nil
	case *ConstantLong:
		return c.Value, nil
	case *ConstantDouble:
		return c.Value, nil
	case *ConstantString:
		return GetUtf8(pool, c.StringIndex)
	case *ConstantClass:
		name, err := GetUtf8(pool, c.NameIndex)
		if err != nil {
			return nil, err
		}
		return ClassConstant(name), nil
	}
	return nil, fmt.Errorf("unsupported loadable constant at index %d (tag=%d)", index, entry.Tag())
}

// ClassConstant is the value of an ldc of a CONSTANT_Class entry.
type ClassConstant string
