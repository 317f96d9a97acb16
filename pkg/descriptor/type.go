// Package descriptor parses JVM field and method descriptors (JVMS §4.3)
// into an interned internal Type representation shared across the program.
package descriptor

import "fmt"

// Kind discriminates the sum making up Type.
type Kind int

const (
	KindPrimitive Kind = iota
	KindObject
	KindArray
	KindVoid
)

// Primitive enumerates the eight JVM primitive types.
type Primitive int

const (
	Boolean Primitive = iota
	Byte
	Char
	Short
	Int
	Long
	Float
	Double
)

func (p Primitive) String() string {
	switch p {
	case Boolean:
		return "boolean"
	case Byte:
		return "byte"
	case Char:
		return "char"
	case Short:
		return "short"
	case Int:
		return "int"
	case Long:
		return "long"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return "?"
	}
}

// Category2 reports whether this primitive occupies two stack slots / two
// local variable slots (long, double), per JVMS §2.6.1-2.6.2.
func (p Primitive) Category2() bool { return p == Long || p == Double }

// Type is an interned, immutable JVM type. Two descriptors denoting the
// same type always resolve to the same *Type pointer (see Interner), so
// Type values may be compared with ==.
type Type struct {
	Kind      Kind
	Primitive Primitive // valid when Kind == KindPrimitive
	ClassName string    // valid when Kind == KindObject; internal (slash) form
	Elem      *Type     // valid when Kind == KindArray
	descr     string    // canonical descriptor string, cached for String()
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.descr
}

// IsReference reports whether t is an object or array type.
func (t *Type) IsReference() bool { return t.Kind == KindObject || t.Kind == KindArray }

// Category2 reports whether t occupies two local/stack slots.
func (t *Type) Category2() bool { return t.Kind == KindPrimitive && t.Primitive.Category2() }

var (
	typeVoid    = &Type{Kind: KindVoid, descr: "V"}
	primitiveByDescr = map[byte]Primitive{
		'Z': Boolean, 'B': Byte, 'C': Char, 'S': Short,
		'I': Int, 'J': Long, 'F': Float, 'D': Double,
	}
	descrByPrimitive = map[Primitive]byte{
		Boolean: 'Z', Byte: 'B', Char: 'C', Short: 'S',
		Int: 'I', Long: 'J', Float: 'F', Double: 'D',
	}
)

// MethodSig is a parsed method descriptor: parameter types in order plus
// the return type (KindVoid for a void return).
type MethodSig struct {
	Params  []*Type
	Return  *Type
	descr   string
}

func (m *MethodSig) String() string { return m.descr }

var errMalformed = func(s string) error { return fmt.Errorf("malformed descriptor %q", s) }
