package descriptor

import "github.com/puzpuzpuz/xsync/v4"

// Interner caches parsed Type and MethodSig values by their descriptor
// string so structurally identical descriptors across different classes
// resolve to the same pointer. This is the JVM-domain analogue of the
// typeutil.Map interning the teacher used for go/types.Type: there, the
// key was a type's structural fingerprint; here it's the descriptor string
// itself, which is already a canonical structural encoding.
type Interner struct {
	types   *xsync.Map[string, *Type]
	methods *xsync.Map[string, *MethodSig]
}

// NewInterner creates an empty, concurrency-safe Interner. A Program owns
// exactly one Interner and shares it across every loaded class.
func NewInterner() *Interner {
	return &Interner{
		types:   xsync.NewMap[string, *Type](),
		methods: xsync.NewMap[string, *MethodSig](),
	}
}

// Field parses a field descriptor (e.g. "I", "Ljava/lang/String;", "[[I")
// and returns the interned Type for it.
func (in *Interner) Field(descr string) (*Type, error) {
	if t, ok := in.types.Load(descr); ok {
		return t, nil
	}
	t, rest, err := in.parseFieldType(descr)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, errMalformed(descr)
	}
	t.descr = descr
	actual, _ := in.types.LoadOrStore(descr, t)
	return actual, nil
}

// Method parses a method descriptor (e.g. "(ILjava/lang/String;)V") into
// an interned MethodSig.
func (in *Interner) Method(descr string) (*MethodSig, error) {
	if m, ok := in.methods.Load(descr); ok {
		return m, nil
	}
	if len(descr) == 0 || descr[0] != '(' {
		return nil, errMalformed(descr)
	}
	rest := descr[1:]
	var params []*Type
	for len(rest) > 0 && rest[0] != ')' {
		t, tail, err := in.parseFieldType(rest)
		if err != nil {
			return nil, err
		}
		params = append(params, t)
		rest = tail
	}
	if len(rest) == 0 {
		return nil, errMalformed(descr)
	}
	rest = rest[1:] // consume ')'

	var ret *Type
	if rest == "V" {
		ret = typeVoid
	} else {
		t, tail, err := in.parseFieldType(rest)
		if err != nil {
			return nil, err
		}
		if tail != "" {
			return nil, errMalformed(descr)
		}
		ret = t
	}

	sig := &MethodSig{Params: params, Return: ret, descr: descr}
	actual, _ := in.methods.LoadOrStore(descr, sig)
	return actual, nil
}

// parseFieldType parses one field type off the front of s, returning the
// interned Type and the unconsumed remainder of s.
func (in *Interner) parseFieldType(s string) (*Type, string, error) {
	if len(s) == 0 {
		return nil, "", errMalformed(s)
	}
	switch c := s[0]; {
	case c == 'L':
		end := indexByte(s, ';')
		if end < 0 {
			return nil, "", errMalformed(s)
		}
		name := s[1:end]
		descr := s[:end+1]
		if t, ok := in.types.Load(descr); ok {
			return t, s[end+1:], nil
		}
		t := &Type{Kind: KindObject, ClassName: name, descr: descr}
		actual, _ := in.types.LoadOrStore(descr, t)
		return actual, s[end+1:], nil
	case c == '[':
		elem, rest, err := in.parseFieldType(s[1:])
		if err != nil {
			return nil, "", err
		}
		descr := "[" + elem.descr
		if t, ok := in.types.Load(descr); ok {
			return t, rest, nil
		}
		t := &Type{Kind: KindArray, Elem: elem, descr: descr}
		actual, _ := in.types.LoadOrStore(descr, t)
		return actual, rest, nil
	default:
		p, ok := primitiveByDescr[c]
		if !ok {
			return nil, "", errMalformed(s)
		}
		descr := string(c)
		if t, ok := in.types.Load(descr); ok {
			return t, s[1:], nil
		}
		t := &Type{Kind: KindPrimitive, Primitive: p, descr: descr}
		actual, _ := in.types.LoadOrStore(descr, t)
		return actual, s[1:], nil
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// ArrayOf returns the interned array type with element type elem.
func (in *Interner) ArrayOf(elem *Type) *Type {
	descr := "[" + elem.descr
	if t, ok := in.types.Load(descr); ok {
		return t
	}
	t := &Type{Kind: KindArray, Elem: elem, descr: descr}
	actual, _ := in.types.LoadOrStore(descr, t)
	return actual
}

// ObjectType returns the interned object type for an internal class name
// (slash-separated, no "L"/";" wrapping, e.g. "java/lang/String").
func (in *Interner) ObjectType(className string) *Type {
	descr := "L" + className + ";"
	if t, ok := in.types.Load(descr); ok {
		return t
	}
	t := &Type{Kind: KindObject, ClassName: className, descr: descr}
	actual, _ := in.types.LoadOrStore(descr, t)
	return actual
}

// PrimitiveType returns the interned Type for a Primitive.
func (in *Interner) PrimitiveType(p Primitive) *Type {
	descr := string(descrByPrimitive[p])
	if t, ok := in.types.Load(descr); ok {
		return t
	}
	t := &Type{Kind: KindPrimitive, Primitive: p, descr: descr}
	actual, _ := in.types.LoadOrStore(descr, t)
	return actual
}

// Void returns the shared void pseudo-type, used only as a MethodSig.Return value.
func Void() *Type { return typeVoid }
