package chip8

// Op identifies one instruction form. Every 16-bit word classifies to
// exactly one tag; words matching no known pattern classify to
// OpUnknown, which executes as a no-op.
type Op uint8

const (
	OpUnknown Op = iota
	OpCls        // 00E0
	OpRet        // 00EE
	OpJp         // 1NNN
	OpCall       // 2NNN
	OpSeByte     // 3XNN
	OpSneByte    // 4XNN
	OpSeReg      // 5XY0
	OpLdByte     // 6XNN
	OpAddByte    // 7XNN
	OpLdReg      // 8XY0
	OpOr         // 8XY1
	OpAnd        // 8XY2
	OpXor        // 8XY3
	OpAddReg     // 8XY4
	OpSub        // 8XY5
	OpShr        // 8XY6
	OpSubn       // 8XY7
	OpShl        // 8XYE
	OpSneReg     // 9XY0
	OpLdI        // ANNN
	OpJpV0       // BNNN
	OpRnd        // CXNN
	OpDrw        // DXYN
	OpSkp        // EX9E
	OpSknp       // EXA1
	OpLdVxDt     // FX07
	OpLdKey      // FX0A
	OpLdDtVx     // FX15
	OpLdStVx     // FX18
	OpAddI       // FX1E
	OpLdFont     // FX29
	OpLdBcd      // FX33
	OpLdMemVx    // FX55
	OpLdVxMem    // FX65
)

// Decoded is one instruction word exploded into every field an
// instruction can carry. It is recomputed from memory on each step and
// never persisted.
type Decoded struct {
	Word uint16
	Op   Op
	NNN  uint16 // low 12 bits: jump, call and index addresses
	NN   uint8  // low 8 bits: immediates
	N    uint8  // low 4 bits: sprite height
	X    uint8  // bits 8..11: first register selector
	Y    uint8  // bits 4..7: second register selector
}

// Decode explodes the big-endian instruction word formed by two
// sequential memory bytes. Pure function, no failure mode: unrecognized
// words still carry their fields under the OpUnknown tag.
func Decode(hi, lo byte) Decoded {
	w := uint16(hi)<<8 | uint16(lo)
	return Decoded{
		Word: w,
		Op:   classify(w),
		NNN:  w & 0x0FFF,
		NN:   lo,
		N:    lo & 0x0F,
		X:    hi & 0x0F,
		Y:    lo >> 4,
	}
}

func classify(w uint16) Op {
	switch w >> 12 {
	case 0x0:
		switch w {
		case 0x00E0:
			return OpCls
		case 0x00EE:
			return OpRet
		}
	case 0x1:
		return OpJp
	case 0x2:
		return OpCall
	case 0x3:
		return OpSeByte
	case 0x4:
		return OpSneByte
	case 0x5:
		if w&0x000F == 0 {
			return OpSeReg
		}
	case 0x6:
		return OpLdByte
	case 0x7:
		return OpAddByte
	case 0x8:
		switch w & 0x000F {
		case 0x0:
			return OpLdReg
		case 0x1:
			return OpOr
		case 0x2:
			return OpAnd
		case 0x3:
			return OpXor
		case 0x4:
			return OpAddReg
		case 0x5:
			return OpSub
		case 0x6:
			return OpShr
		case 0x7:
			return OpSubn
		case 0xE:
			return OpShl
		}
	case 0x9:
		if w&0x000F == 0 {
			return OpSneReg
		}
	case 0xA:
		return OpLdI
	case 0xB:
		return OpJpV0
	case 0xC:
		return OpRnd
	case 0xD:
		return OpDrw
	case 0xE:
		switch w & 0x00FF {
		case 0x9E:
			return OpSkp
		case 0xA1:
			return OpSknp
		}
	case 0xF:
		switch w & 0x00FF {
		case 0x07:
			return OpLdVxDt
		case 0x0A:
			return OpLdKey
		case 0x15:
			return OpLdDtVx
		case 0x18:
			return OpLdStVx
		case 0x1E:
			return OpAddI
		case 0x29:
			return OpLdFont
		case 0x33:
			return OpLdBcd
		case 0x55:
			return OpLdMemVx
		case 0x65:
			return OpLdVxMem
		}
	}
	return OpUnknown
}
