package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const magic = 0xCAFEBABE

// reader is a small cursor over a class-file byte stream. Kept private:
// callers only ever see the decoded ClassFile.
type reader struct {
	r   io.Reader
	err error
}

func (rd *reader) u1() uint8 {
	var b [1]byte
	rd.read(b[:])
	return b[0]
}

func (rd *reader) u2() uint16 {
	var b [2]byte
	rd.read(b[:])
	return binary.BigEndian.Uint16(b[:])
}

func (rd *reader) u4() uint32 {
	var b [4]byte
	rd.read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func (rd *reader) u8() uint64 {
	var b [8]byte
	rd.read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

func (rd *reader) bytes(n int) []byte {
	buf := make([]byte, n)
	rd.read(buf)
	return buf
}

func (rd *reader) read(buf []byte) {
	if rd.err != nil {
		return
	}
	_, rd.err = io.ReadFull(rd.r, buf)
}

// Parse decodes the subset of the .class file format the system needs:
// header, constant pool, access flags, this/super/interfaces, fields, and
// methods (with their Code and LineNumberTable attributes). All other
// attributes are skipped by length, unparsed.
func Parse(r io.Reader) (*ClassFile, error) {
	rd := &reader{r: r}

	if got := rd.u4(); got != magic && rd.err == nil {
		return nil, fmt.Errorf("not a class file: bad magic %#x", got)
	}
	cf := &ClassFile{}
	cf.MinorVersion = rd.u2()
	cf.MajorVersion = rd.u2()

	pool, err := parseConstantPool(rd)
	if err != nil {
		return nil, err
	}
	cf.ConstantPool = pool

	cf.AccessFlags = rd.u2()
	cf.ThisClass = rd.u2()
	cf.SuperClass = rd.u2()

	ifaceCount := rd.u2()
	cf.Interfaces = make([]uint16, ifaceCount)
	for i := range cf.Interfaces {
		cf.Interfaces[i] = rd.u2()
	}

	fieldCount := rd.u2()
	cf.Fields = make([]FieldInfo, fieldCount)
	for i := range cf.Fields {
		fi, err := parseFieldInfo(rd, pool)
		if err != nil {
			return nil, err
		}
		cf.Fields[i] = fi
	}

	methodCount := rd.u2()
	cf.Methods = make([]MethodInfo, methodCount)
	for i := range cf.Methods {
		mi, err := parseMethodInfo(rd, pool)
		if err != nil {
			return nil, err
		}
		cf.Methods[i] = mi
	}

	// Class-level attributes are not needed by any downstream component; skip them.
	attrCount := rd.u2()
	for i := uint16(0); i < attrCount; i++ {
		skipAttribute(rd)
	}

	if rd.err != nil {
		return nil, fmt.Errorf("parse class file: %w", rd.err)
	}
	return cf, nil
}

func parseConstantPool(rd *reader) ([]ConstantPoolEntry, error) {
	count := rd.u2()
	pool := make([]ConstantPoolEntry, count) // index 0 unused
	for i := 1; i < int(count); i++ {
		tag := rd.u1()
		switch tag {
		case TagUtf8:
			n := rd.u2()
			pool[i] = &ConstantUtf8{Value: string(rd.bytes(int(n)))}
		case TagInteger:
			pool[i] = &ConstantInteger{Value: int32(rd.u4())}
		case TagFloat:
			pool[i] = &ConstantFloat{Value: math.Float32frombits(rd.u4())}
		case TagLong:
			pool[i] = &ConstantLong{Value: int64(rd.u8())}
			i++ // longs/doubles occupy two pool slots, JVMS §4.4.5
		case TagDouble:
			pool[i] = &ConstantDouble{Value: math.Float64frombits(rd.u8())}
			i++
		case TagClass:
			pool[i] = &ConstantClass{NameIndex: rd.u2()}
		case TagString:
			pool[i] = &ConstantString{StringIndex: rd.u2()}
		case TagFieldref:
			pool[i] = &ConstantFieldref{ClassIndex: rd.u2(), NameAndTypeIndex: rd.u2()}
		case TagMethodref:
			pool[i] = &ConstantMethodref{ClassIndex: rd.u2(), NameAndTypeIndex: rd.u2()}
		case TagInterfaceMethodref:
			pool[i] = &ConstantInterfaceMethodref{ClassIndex: rd.u2(), NameAndTypeIndex: rd.u2()}
		case TagNameAndType:
			pool[i] = &ConstantNameAndType{NameIndex: rd.u2(), DescriptorIndex: rd.u2()}
		case TagMethodHandle:
			rd.u1()
			rd.u2()
		case TagMethodType:
			rd.u2()
		case TagInvokeDynamic:
			rd.u2()
			rd.u2()
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		if rd.err != nil {
			return nil, rd.err
		}
	}
	return pool, nil
}

func parseFieldInfo(rd *reader, pool []ConstantPoolEntry) (FieldInfo, error) {
	fi := FieldInfo{}
	fi.AccessFlags = rd.u2()
	nameIdx := rd.u2()
	descIdx := rd.u2()
	var err error
	fi.Name, err = GetUtf8(pool, nameIdx)
	if err != nil {
		return fi, err
	}
	fi.Descriptor, err = GetUtf8(pool, descIdx)
	if err != nil {
		return fi, err
	}
	attrCount := rd.u2()
	for i := uint16(0); i < attrCount; i++ {
		skipAttribute(rd)
	}
	return fi, rd.err
}

func parseMethodInfo(rd *reader, pool []ConstantPoolEntry) (MethodInfo, error) {
	mi := MethodInfo{}
	mi.AccessFlags = rd.u2()
	nameIdx := rd.u2()
	descIdx := rd.u2()
	var err error
	mi.Name, err = GetUtf8(pool, nameIdx)
	if err != nil {
		return mi, err
	}
	mi.Descriptor, err = GetUtf8(pool, descIdx)
	if err != nil {
		return mi, err
	}

	attrCount := rd.u2()
	for i := uint16(0); i < attrCount; i++ {
		nameIdx := rd.u2()
		length := rd.u4()
		name, _ := GetUtf8(pool, nameIdx)
		if name == "Code" {
			code, err := parseCodeAttribute(rd, pool)
			if err != nil {
				return mi, err
			}
			mi.Code = code
			continue
		}
		rd.bytes(int(length))
	}
	return mi, rd.err
}

func parseCodeAttribute(rd *reader, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	ca := &CodeAttribute{}
	ca.MaxStack = rd.u2()
	ca.MaxLocals = rd.u2()
	codeLen := rd.u4()
	ca.Code = rd.bytes(int(codeLen))

	excCount := rd.u2()
	ca.ExceptionHandlers = make([]ExceptionHandler, excCount)
	for i := range ca.ExceptionHandlers {
		ca.ExceptionHandlers[i] = ExceptionHandler{
			StartPC:   rd.u2(),
			EndPC:     rd.u2(),
			HandlerPC: rd.u2(),
			CatchType: rd.u2(),
		}
	}

	attrCount := rd.u2()
	for i := uint16(0); i < attrCount; i++ {
		nameIdx := rd.u2()
		length := rd.u4()
		name, _ := GetUtf8(pool, nameIdx)
		if name == "LineNumberTable" {
			n := rd.u2()
			ca.LineNumbers = make([]LineNumberEntry, n)
			for j := range ca.LineNumbers {
				ca.LineNumbers[j] = LineNumberEntry{StartPC: rd.u2(), Line: rd.u2()}
			}
			continue
		}
		rd.bytes(int(length))
	}
	return ca, rd.err
}

func skipAttribute(rd *reader) {
	rd.u2() // name index
	length := rd.u4()
	rd.bytes(int(length))
}
