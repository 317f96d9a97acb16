// Package ir defines the stackless, three-address intermediate
// representation that pkg/transform produces from raw bytecode and
// pkg/ssaform converts to SSA form.
package ir

import "github.com/vantage-dev/jvmrta/pkg/descriptor"

// OriginKind discriminates what a Variable's index was minted for.
type OriginKind int

const (
	OriginLocal OriginKind = iota
	OriginTemp
	OriginCatch
	OriginBranch
	OriginBranch2
	OriginSSA
)

// Origin identifies why a Variable was created; two equal Origins always
// intern to the same Variable within a method (see Method.Vars).
type Origin struct {
	Kind      OriginKind
	LocalSlot int    // valid for OriginLocal; base Variable index for OriginSSA
	DebugName string // valid for OriginLocal, may be ""
	K         int    // valid for OriginTemp/OriginCatch/OriginBranch/OriginBranch2; version number for OriginSSA
	PC        int    // valid for OriginBranch/OriginBranch2 (bytecode pc of the branch)
}

// Variable is a stable integer index plus the Origin it was minted for.
// Equality is index equality.
type Variable struct {
	Index  int
	Origin Origin
}

// ConstKind discriminates Constant's tagged union.
type ConstKind int

const (
	ConstNull ConstKind = iota
	ConstByte
	ConstShort
	ConstInt
	ConstLong
	ConstFloat
	ConstDouble
	ConstString
	ConstClass // class literal, an ObjectType
)

// Constant is a compile-time value usable as a BasicExpr operand.
type Constant struct {
	Kind   ConstKind
	Byte   int8
	Short  int16
	Int    int32
	Long   int64
	Float  float32
	Double float64
	String string
	Class  *descriptor.Type // valid for ConstClass
}

// BasicExpr is the syntactic subset of Expr the transformer guarantees
// every emitted instruction operand reduces to: either a Constant or a
// reference to a Variable carrying its static type.
type BasicExpr struct {
	IsConst bool
	Const   Constant
	Type    *descriptor.Type // type of Var, or of Const for convenience
	Var     Variable
}

func ConstExpr(c Constant, t *descriptor.Type) BasicExpr {
	return BasicExpr{IsConst: true, Const: c, Type: t}
}

func VarExpr(t *descriptor.Type, v Variable) BasicExpr {
	return BasicExpr{IsConst: false, Type: t, Var: v}
}

// UnOp and BinOp enumerate the arithmetic/logical/conversion operators
// that appear in Unop/Binop expressions.
type UnOp int

const (
	OpNeg UnOp = iota
	OpI2L
	OpI2F
	OpI2D
	OpL2I
	OpL2F
	OpL2D
	OpF2I
	OpF2L
	OpF2D
	OpD2I
	OpD2L
	OpD2F
	OpI2B
	OpI2C
	OpI2S
	OpArrayLength
	OpInstanceOf
)

type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpShl
	OpShr
	OpUshr
	OpAnd
	OpOr
	OpXor
	OpCmp   // lcmp
	OpCmpl  // fcmpl/dcmpl
	OpCmpg  // fcmpg/dcmpg
)

// ExprKind discriminates Expr's tagged union.
type ExprKind int

const (
	ExprBasic ExprKind = iota
	ExprUnop
	ExprBinop
	ExprField
	ExprStaticField
)

// Expr reads memory but performs no writes and raises no exceptions of
// its own; anything that may fault is represented as a separate Check
// instruction preceding the Expr's use.
type Expr struct {
	Kind ExprKind

	Basic BasicExpr // ExprBasic

	UnOp  UnOp      // ExprUnop
	UnArg BasicExpr // ExprUnop

	BinOp  BinOp     // ExprBinop
	BinL   BasicExpr // ExprBinop
	BinR   BasicExpr // ExprBinop

	FieldObj   BasicExpr // ExprField
	FieldClass string    // ExprField, ExprStaticField
	FieldName  string    // ExprField, ExprStaticField
	FieldType  *descriptor.Type

	// ExprStaticField reuses FieldClass/FieldName/FieldType with FieldObj unset.
}

func BasicOf(b BasicExpr) Expr { return Expr{Kind: ExprBasic, Basic: b} }

// CmpOp enumerates the comparison operators usable in Ifd.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpGe
	CmpGt
	CmpLe
)

// DispatchKind discriminates an InvokeVirtual site's static resolution shape.
type DispatchKind int

const (
	DispatchObjectType DispatchKind = iota // Virtual(objectType)
	DispatchInterface                      // Interface(className)
)

// InstrKind discriminates Instr's tagged union.
type InstrKind int

const (
	INop InstrKind = iota
	IAffectVar
	IAffectArray
	IAffectField
	IAffectStaticField
	IGoto
	IIfd
	IThrow
	IReturn
	INew
	INewArray
	IInvokeStatic
	IInvokeVirtual
	IInvokeNonVirtual
	IMonitorEnter
	IMonitorExit
	IMayInit
	ICheck
)

// Instr is one three-address IR instruction.
type Instr struct {
	Kind InstrKind

	// IAffectVar
	AVar  Variable
	AExpr Expr

	// IAffectArray
	ArrArr, ArrIdx, ArrVal BasicExpr

	// IAffectField
	FObj   BasicExpr
	FClass string
	FName  string
	FVal   BasicExpr

	// IAffectStaticField
	SFClass string
	SFName  string
	SFExpr  Expr

	// IGoto / IIfd branch target, IR pc
	Target int

	// IIfd
	Cmp  CmpOp
	Arg1 BasicExpr
	Arg2 BasicExpr

	// IThrow
	ThrowArg BasicExpr

	// IReturn
	HasReturnValue bool
	ReturnValue    BasicExpr

	// INew
	NewVar      Variable
	NewClass    string
	NewArgTypes []*descriptor.Type
	NewArgs     []BasicExpr

	// INewArray
	NAVar    Variable
	NAElem   *descriptor.Type
	NADims   []BasicExpr

	// Invoke* (static/virtual/non-virtual)
	InvokeResult   *Variable // nil if the call's return value is unused
	InvokeClass    string
	InvokeName     string
	InvokeDesc     *descriptor.MethodSig
	InvokeArgs     []BasicExpr
	InvokeReceiver BasicExpr // zero value for IInvokeStatic
	Dispatch       DispatchKind
	DispatchType   *descriptor.Type // valid when Dispatch == DispatchObjectType
	DispatchIface  string           // valid when Dispatch == DispatchInterface

	// IMonitorEnter / IMonitorExit
	MonitorArg BasicExpr

	// IMayInit
	MayInitClass string

	// ICheck
	Check Check
}

// CheckKind discriminates Check's tagged union, JVM exception guards
// materialised explicitly into the IR.
type CheckKind int

const (
	CheckNullPointer CheckKind = iota
	CheckArrayBound
	CheckArrayStore
	CheckNegativeArraySize
	CheckCast
	CheckArithmetic
	CheckLink
)

// Check is an explicit runtime guard emitted in JVM exception order.
type Check struct {
	Kind CheckKind

	// CheckNullPointer, CheckArithmetic(divisor)
	Arg BasicExpr

	// CheckArrayBound
	ArrArg, IdxArg BasicExpr

	// CheckArrayStore
	ValArg BasicExpr

	// CheckNegativeArraySize
	SizeArg BasicExpr

	// CheckCast
	CastType *descriptor.Type

	// CheckLink
	LinkOpcode string // mnemonic of the opcode that may trigger classload
}

// Handler is one entry in a method's exception table.
type Handler struct {
	EStart, EEnd, EHandler int // IR pcs
	ECatchType             string // "" denotes a finally-equivalent catch-all
	ECatchVar              Variable
}

// Method is the transformer's output for one concrete method: a dense IR
// instruction array plus the maps back to the originating bytecode.
type Method struct {
	Vars   []Variable
	Params []Param
	Code   []Instr
	ExcTbl []Handler

	LineNumberTable []LineEntry

	// PCBc2Ir maps a bytecode pc to the first IR pc emitted for it.
	PCBc2Ir map[int]int
	// PCIr2Bc maps an IR pc back to its originating bytecode pc.
	PCIr2Bc []int
	// JumpTarget[pc] is set iff pc is targeted by a Goto, Ifd, or handler entry.
	JumpTarget []bool

	// SSA-only fields, nil/empty until ssaform.Convert runs.
	Preds    [][]int
	PhiNodes map[int][]Phi
}

type Param struct {
	Type *descriptor.Type
	Var  Variable
}

type LineEntry struct {
	IRPc int
	Line int
}

// Phi is a join-point assignment whose value is selected by the incoming edge.
type Phi struct {
	Def Variable
	Use []Variable // use[k] is the value from preds[pc][k]
}

// NumInstrs returns the method's IR instruction count.
func (m *Method) NumInstrs() int { return len(m.Code) }
