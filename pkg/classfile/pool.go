package classfile

import "fmt"

// GetUtf8 returns the string value of a CONSTANT_Utf8 entry at idx.
func GetUtf8(pool []ConstantPoolEntry, idx uint16) (string, error) {
	if int(idx) >= len(pool) {
		return "", fmt.Errorf("constant pool index %d out of range", idx)
	}
	u, ok := pool[idx].(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8", idx)
	}
	return u.Value, nil
}

// GetClassName resolves a CONSTANT_Class entry at idx to its internal name.
func GetClassName(pool []ConstantPoolEntry, idx uint16) (string, error) {
	if int(idx) >= len(pool) {
		return "", fmt.Errorf("constant pool index %d out of range", idx)
	}
	c, ok := pool[idx].(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", idx)
	}
	return GetUtf8(pool, c.NameIndex)
}

// NameAndType resolves a CONSTANT_NameAndType entry at idx.
func NameAndType(pool []ConstantPoolEntry, idx uint16) (name, descriptor string, err error) {
	if int(idx) >= len(pool) {
		return "", "", fmt.Errorf("constant pool index %d out of range", idx)
	}
	nt, ok := pool[idx].(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType", idx)
	}
	name, err = GetUtf8(pool, nt.NameIndex)
	if err != nil {
		return "", "", err
	}
	descriptor, err = GetUtf8(pool, nt.DescriptorIndex)
	return name, descriptor, err
}

// RefTarget resolves a Fieldref/Methodref/InterfaceMethodref to its owning
// class name plus member name and descriptor.
func RefTarget(pool []ConstantPoolEntry, idx uint16) (class, name, descriptor string, err error) {
	if int(idx) >= len(pool) {
		return "", "", "", fmt.Errorf("constant pool index %d out of range", idx)
	}
	var classIdx, natIdx uint16
	switch e := pool[idx].(type) {
	case *ConstantFieldref:
		classIdx, natIdx = e.ClassIndex, e.NameAndTypeIndex
	case *ConstantMethodref:
		classIdx, natIdx = e.ClassIndex, e.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		classIdx, natIdx = e.ClassIndex, e.NameAndTypeIndex
	default:
		return "", "", "", fmt.Errorf("constant pool index %d is not a ref", idx)
	}
	class, err = GetClassName(pool, classIdx)
	if err != nil {
		return "", "", "", err
	}
	name, descriptor, err = NameAndType(pool, natIdx)
	return class, name, descriptor, err
}

// IsInterfaceMethodref reports whether idx refers to an InterfaceMethodref
// (relevant for invokeinterface vs invokevirtual resolution ambiguity).
func IsInterfaceMethodref(pool []ConstantPoolEntry, idx uint16) bool {
	if int(idx) >= len(pool) {
		return false
	}
	_, ok := pool[idx].(*ConstantInterfaceMethodref)
	return ok
}

// LoadableConstant resolves an Ldc/Ldc2w target (int, float, long, double,
// string, or class literal) to a Go value; class literals are returned as
// their internal name wrapped in ClassLiteral.
type ClassLiteral struct{ Name string }

func LoadableConstant(pool []ConstantPoolEntry, idx uint16) (any, error) {
	if int(idx) >= len(pool) {
		return nil, fmt.Errorf("constant pool index %d out of range", idx)
	}
	switch e := pool[idx].(type) {
	case *ConstantInteger:
		return e.Value, nil
	case *ConstantFloat:
		return e.Value, nil
	case *ConstantLong:
		return e.Value, nil
	case *ConstantDouble:
		return e.Value, nil
	case *ConstantString:
		return GetUtf8(pool, e.StringIndex)
	case *ConstantClass:
		name, err := GetUtf8(pool, e.NameIndex)
		if err != nil {
			return nil, err
		}
		return ClassLiteral{Name: name}, nil
	default:
		return nil, fmt.Errorf("constant pool index %d is not loadable", idx)
	}
}
