package transform

import "github.com/vantage-dev/jvmrta/pkg/classfile"

// instrWidth returns the total byte width (opcode plus operand) of the
// instruction at pc, including the two variable-length forms the static
// opcode table can't size on its own.
func (t *tstate) instrWidth(pc int) (int, error) {
	op := t.code.Code[pc]
	info, ok := classfile.Lookup(op)
	if !ok {
		return 0, fail(BadStack, pc, "unknown opcode in width table")
	}

	switch info.Operand {
	case classfile.OperandSwitch:
		return t.switchWidth(pc), nil
	case classfile.OperandWide:
		return t.wideWidth(pc), nil
	default:
		w := classfile.OperandWidth(info.Operand)
		if w < 0 {
			return 0, fail(BadStack, pc, "operand width not statically known")
		}
		return 1 + w, nil
	}
}

// switchWidth sizes a tableswitch/lookupswitch: opcode, then 0-3 padding
// bytes up to the next 4-byte boundary from pc, then the fixed header and
// table body.
func (t *tstate) switchWidth(pc int) int {
	padded := pc + 1
	for padded%4 != 0 {
		padded++
	}
	code := t.code.Code
	if code[pc] == classfile.OpTableswitch {
		low := int32(beInt32(code, padded+4))
		high := int32(beInt32(code, padded+8))
		n := int(high-low) + 1
		return (padded - pc) + 12 + n*4
	}
	npairs := int(beInt32(code, padded+4))
	return (padded - pc) + 8 + npairs*8
}

// wideWidth sizes a wide-prefixed instruction: the wide byte, the
// prefixed opcode byte, and that opcode's (now two-byte) operand —
// iinc additionally doubles its increment operand to two bytes.
func (t *tstate) wideWidth(pc int) int {
	inner := t.code.Code[pc+1]
	if inner == classfile.OpIinc {
		return 6
	}
	return 4
}

func beInt32(b []byte, off int) int32 {
	return int32(uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3]))
}
