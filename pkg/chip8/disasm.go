package chip8

import (
	"fmt"
	"strings"

	"github.com/retroenv/retrogolib/arch/cpu/chip8"
)

// Disassemble renders one instruction word as assembly text using the
// conventional CHIP-8 mnemonics. Words outside the instruction set
// render as a raw .WORD directive so listings and traces stay aligned.
func Disassemble(w uint16) string {
	op := lookupOpcode(w)
	if op.Instruction == nil {
		return fmt.Sprintf(".WORD $%04X", w)
	}
	name := op.Instruction.Name
	if params := formatParams(name, w); params != "" {
		return strings.ToUpper(name) + " " + params
	}
	return strings.ToUpper(name)
}

// Listing renders a whole program image as an address-annotated
// listing, starting at the program origin.
func Listing(image []byte) []string {
	lines := make([]string, 0, (len(image)+1)/2)
	for i := 0; i+1 < len(image); i += 2 {
		w := uint16(image[i])<<8 | uint16(image[i+1])
		lines = append(lines, fmt.Sprintf("$%03X: %04X  %s", ProgramStart+i, w, Disassemble(w)))
	}
	if len(image)%2 == 1 {
		b := image[len(image)-1]
		lines = append(lines, fmt.Sprintf("$%03X: %02X    .BYTE $%02X", ProgramStart+len(image)-1, b, b))
	}
	return lines
}

func lookupOpcode(w uint16) chip8.Opcode {
	for _, op := range chip8.Opcodes[int(w>>12)] {
		if op.Info.Mask&w == op.Info.Value {
			return op
		}
	}
	return chip8.Opcode{}
}

// formatParams renders the operand list for an instruction word. The
// empty string means the mnemonic stands alone.
func formatParams(name string, w uint16) string {
	x := (w & 0x0F00) >> 8
	y := (w & 0x00F0) >> 4

	switch name {
	case chip8.Jp.Name:
		if w&0xF000 == 0xB000 {
			return fmt.Sprintf("V0, $%03X", w&0x0FFF)
		}
		return fmt.Sprintf("$%03X", w&0x0FFF)
	case chip8.Call.Name:
		return fmt.Sprintf("$%03X", w&0x0FFF)
	case chip8.Se.Name, chip8.Sne.Name:
		if w&0xF000 == 0x3000 || w&0xF000 == 0x4000 {
			return fmt.Sprintf("V%X, $%02X", x, w&0x00FF)
		}
		return fmt.Sprintf("V%X, V%X", x, y)
	case chip8.Ld.Name:
		return formatLoadParams(w)
	case chip8.Add.Name:
		switch w & 0xF000 {
		case 0x7000:
			return fmt.Sprintf("V%X, $%02X", x, w&0x00FF)
		case 0x8000:
			return fmt.Sprintf("V%X, V%X", x, y)
		default:
			return fmt.Sprintf("I, V%X", x)
		}
	case chip8.Or.Name, chip8.And.Name, chip8.Xor.Name, chip8.Sub.Name, chip8.Subn.Name:
		return fmt.Sprintf("V%X, V%X", x, y)
	case chip8.Shr.Name, chip8.Shl.Name, chip8.Skp.Name, chip8.Sknp.Name:
		return fmt.Sprintf("V%X", x)
	case chip8.Rnd.Name:
		return fmt.Sprintf("V%X, $%02X", x, w&0x00FF)
	case chip8.Drw.Name:
		return fmt.Sprintf("V%X, V%X, $%X", x, y, w&0x000F)
	}

	// SYS and anything else with a plain address payload.
	if w&0xF000 == 0x0000 && w != 0x00E0 && w != 0x00EE {
		return fmt.Sprintf("$%03X", w&0x0FFF)
	}
	return ""
}

func formatLoadParams(w uint16) string {
	x := (w & 0x0F00) >> 8
	y := (w & 0x00F0) >> 4

	switch w & 0xF000 {
	case 0x6000:
		return fmt.Sprintf("V%X, $%02X", x, w&0x00FF)
	case 0x8000:
		return fmt.Sprintf("V%X, V%X", x, y)
	case 0xA000:
		return fmt.Sprintf("I, $%03X", w&0x0FFF)
	}

	switch w & 0x00FF {
	case 0x07:
		return fmt.Sprintf("V%X, DT", x)
	case 0x0A:
		return fmt.Sprintf("V%X, K", x)
	case 0x15:
		return fmt.Sprintf("DT, V%X", x)
	case 0x18:
		return fmt.Sprintf("ST, V%X", x)
	case 0x29:
		return fmt.Sprintf("F, V%X", x)
	case 0x33:
		return fmt.Sprintf("B, V%X", x)
	case 0x55:
		return fmt.Sprintf("[I], V%X", x)
	case 0x65:
		return fmt.Sprintf("V%X, [I]", x)
	}
	return ""
}
