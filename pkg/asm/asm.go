package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"gochip8/pkg/chip8"
)

// Instructions occupy two bytes each, emitted big-endian. The image
// starts at the program origin, so label addresses are absolute.

var zeroOperandOps = map[string]uint16{
	"CLS": 0x00E0,
	"RET": 0x00EE,
}

// regRegOps covers the 8XY_ arithmetic family with two register
// operands and a fixed sub-nibble.
var regRegOps = map[string]uint16{
	"OR":   0x8001,
	"AND":  0x8002,
	"XOR":  0x8003,
	"SUB":  0x8005,
	"SUBN": 0x8007,
}

var oneRegOps = map[string]uint16{
	"SHR":  0x8006,
	"SHL":  0x800E,
	"SKP":  0xE09E,
	"SKNP": 0xE0A1,
}

var addrOps = map[string]uint16{
	"SYS":  0x0000,
	"CALL": 0x2000,
}

type Assembler struct {
	labels map[string]uint16
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]uint16),
	}
}

// Assemble is the convenience entry point for one-shot assembly.
func Assemble(code string) ([]byte, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

// Assemble translates source text into a raw program image for loading
// at the program origin. The second return value maps image offsets to
// source line numbers.
func (a *Assembler) Assemble(code string) ([]byte, map[uint16]int, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, nil, err
	}

	return a.pass2(lines)
}

func (a *Assembler) pass1(lines []string) error {
	address := uint32(chip8.ProgramStart)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			if address > 0xFFF {
				return fmt.Errorf("label '%s' on line %d points past addressable memory", lbl, lineNo)
			}
			key := normalizeLabel(lbl)
			if _, exists := a.labels[key]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[key] = uint16(address)
		}

		if p.mnemonic == "" {
			continue
		}

		size, err := a.sizeOf(p)
		if err != nil {
			return err
		}

		if p.mnemonic == ".ORG" {
			target, err := parseNumber(p.operands[0])
			if err != nil {
				return fmt.Errorf("invalid .ORG value on line %d: %s", lineNo, p.operands[0])
			}
			if target > 0xFFF {
				return fmt.Errorf(".ORG out of range on line %d: %s", lineNo, p.operands[0])
			}
			if target < address {
				return fmt.Errorf("cannot move origin backward on line %d", lineNo)
			}
			address = target
			continue
		}

		if address+size > chip8.MemorySize {
			return fmt.Errorf("program too large near line %d", lineNo)
		}
		address += size
	}

	return nil
}

// sizeOf reports the byte length a parsed line contributes to the
// image. Directive operand counts are validated here so both passes
// agree.
func (a *Assembler) sizeOf(p parsedLine) (uint32, error) {
	switch p.mnemonic {
	case ".ORG":
		if len(p.operands) != 1 {
			return 0, fmt.Errorf(".ORG expects exactly one operand on line %d", p.lineNo)
		}
		return 0, nil
	case ".BYTE":
		if len(p.operands) == 0 {
			return 0, fmt.Errorf(".BYTE expects at least one operand on line %d", p.lineNo)
		}
		return uint32(len(p.operands)), nil
	case ".WORD":
		if len(p.operands) == 0 {
			return 0, fmt.Errorf(".WORD expects at least one operand on line %d", p.lineNo)
		}
		return uint32(len(p.operands)) * 2, nil
	}

	if !knownMnemonic(p.mnemonic) {
		return 0, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}
	return 2, nil
}

func (a *Assembler) pass2(lines []string) ([]byte, map[uint16]int, error) {
	program := make([]byte, 0)
	sourceMap := make(map[uint16]int)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, nil, err
		}

		if p.mnemonic == "" {
			continue
		}

		sourceMap[uint16(len(program))] = lineNo

		switch p.mnemonic {
		case ".ORG":
			target, err := parseNumber(p.operands[0])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid .ORG value on line %d: %s", lineNo, p.operands[0])
			}
			padding := int(target) - chip8.ProgramStart - len(program)
			if padding < 0 {
				return nil, nil, fmt.Errorf("cannot move origin backward on line %d", lineNo)
			}
			if padding > 0 {
				program = append(program, make([]byte, padding)...)
			}
			continue

		case ".BYTE":
			for _, op := range p.operands {
				val, err := a.parseImmediate(op, lineNo)
				if err != nil {
					return nil, nil, err
				}
				if val > 0xFF {
					return nil, nil, fmt.Errorf("byte value out of range on line %d: %s", lineNo, op)
				}
				program = append(program, byte(val))
			}
			continue

		case ".WORD":
			for _, op := range p.operands {
				val, err := a.parseImmediate(op, lineNo)
				if err != nil {
					return nil, nil, err
				}
				program = append(program, byte(val>>8), byte(val&0xFF))
			}
			continue
		}

		word, err := a.encodeInstruction(p)
		if err != nil {
			return nil, nil, err
		}
		program = append(program, byte(word>>8), byte(word&0xFF))
	}

	return program, sourceMap, nil
}

// encodeInstruction turns one parsed instruction into its 16-bit word.
func (a *Assembler) encodeInstruction(p parsedLine) (uint16, error) {
	mnemonic := p.mnemonic
	ops := p.operands
	lineNo := p.lineNo

	if opcode, ok := zeroOperandOps[mnemonic]; ok {
		if len(ops) != 0 {
			return 0, fmt.Errorf("%s expects 0 operands on line %d", mnemonic, lineNo)
		}
		return opcode, nil
	}

	if opcode, ok := regRegOps[mnemonic]; ok {
		if len(ops) != 2 {
			return 0, fmt.Errorf("%s expects 2 operands on line %d", mnemonic, lineNo)
		}
		x, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return 0, err
		}
		y, err := parseRegister(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return opcode | uint16(x)<<8 | uint16(y)<<4, nil
	}

	if opcode, ok := oneRegOps[mnemonic]; ok {
		// SHR and SHL tolerate the historical second register operand.
		if len(ops) == 2 && (mnemonic == "SHR" || mnemonic == "SHL") {
			x, err := parseRegister(ops[0], lineNo)
			if err != nil {
				return 0, err
			}
			y, err := parseRegister(ops[1], lineNo)
			if err != nil {
				return 0, err
			}
			return opcode | uint16(x)<<8 | uint16(y)<<4, nil
		}
		if len(ops) != 1 {
			return 0, fmt.Errorf("%s expects 1 operand on line %d", mnemonic, lineNo)
		}
		x, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return 0, err
		}
		return opcode | uint16(x)<<8, nil
	}

	if opcode, ok := addrOps[mnemonic]; ok {
		if len(ops) != 1 {
			return 0, fmt.Errorf("%s expects 1 operand on line %d", mnemonic, lineNo)
		}
		addr, err := a.parseAddress(ops[0], lineNo)
		if err != nil {
			return 0, err
		}
		return opcode | addr, nil
	}

	switch mnemonic {
	case "JP":
		return a.encodeJump(ops, lineNo)
	case "SE":
		return a.encodeCompare(0x5000, 0x3000, ops, lineNo)
	case "SNE":
		return a.encodeCompare(0x9000, 0x4000, ops, lineNo)
	case "LD":
		return a.encodeLoad(ops, lineNo)
	case "ADD":
		return a.encodeAdd(ops, lineNo)
	case "RND":
		if len(ops) != 2 {
			return 0, fmt.Errorf("RND expects 2 operands on line %d", lineNo)
		}
		x, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return 0, err
		}
		nn, err := a.parseByte(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xC000 | uint16(x)<<8 | uint16(nn), nil
	case "DRW":
		if len(ops) != 3 {
			return 0, fmt.Errorf("DRW expects 3 operands on line %d", lineNo)
		}
		x, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return 0, err
		}
		y, err := parseRegister(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		n, err := a.parseImmediate(ops[2], lineNo)
		if err != nil {
			return 0, err
		}
		if n > 0xF {
			return 0, fmt.Errorf("sprite height out of range on line %d: %s", lineNo, ops[2])
		}
		return 0xD000 | uint16(x)<<8 | uint16(y)<<4 | n, nil
	}

	return 0, fmt.Errorf("unknown instruction on line %d: %s", lineNo, mnemonic)
}

func (a *Assembler) encodeJump(ops []string, lineNo int) (uint16, error) {
	if len(ops) == 2 {
		if !strings.EqualFold(ops[0], "V0") {
			return 0, fmt.Errorf("JP with 2 operands expects V0 first on line %d", lineNo)
		}
		addr, err := a.parseAddress(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xB000 | addr, nil
	}
	if len(ops) != 1 {
		return 0, fmt.Errorf("JP expects 1 or 2 operands on line %d", lineNo)
	}
	addr, err := a.parseAddress(ops[0], lineNo)
	if err != nil {
		return 0, err
	}
	return 0x1000 | addr, nil
}

func (a *Assembler) encodeCompare(regForm, byteForm uint16, ops []string, lineNo int) (uint16, error) {
	if len(ops) != 2 {
		return 0, fmt.Errorf("SE/SNE expects 2 operands on line %d", lineNo)
	}
	x, err := parseRegister(ops[0], lineNo)
	if err != nil {
		return 0, err
	}
	if isRegister(ops[1]) {
		y, _ := parseRegister(ops[1], lineNo)
		return regForm | uint16(x)<<8 | uint16(y)<<4, nil
	}
	nn, err := a.parseByte(ops[1], lineNo)
	if err != nil {
		return 0, err
	}
	return byteForm | uint16(x)<<8 | uint16(nn), nil
}

func (a *Assembler) encodeLoad(ops []string, lineNo int) (uint16, error) {
	if len(ops) != 2 {
		return 0, fmt.Errorf("LD expects 2 operands on line %d", lineNo)
	}

	switch strings.ToUpper(ops[0]) {
	case "I":
		addr, err := a.parseAddress(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xA000 | addr, nil
	case "DT":
		x, err := parseRegister(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xF015 | uint16(x)<<8, nil
	case "ST":
		x, err := parseRegister(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xF018 | uint16(x)<<8, nil
	case "F":
		x, err := parseRegister(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xF029 | uint16(x)<<8, nil
	case "B":
		x, err := parseRegister(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xF033 | uint16(x)<<8, nil
	case "[I]":
		x, err := parseRegister(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xF055 | uint16(x)<<8, nil
	}

	x, err := parseRegister(ops[0], lineNo)
	if err != nil {
		return 0, err
	}

	switch strings.ToUpper(ops[1]) {
	case "DT":
		return 0xF007 | uint16(x)<<8, nil
	case "K":
		return 0xF00A | uint16(x)<<8, nil
	case "[I]":
		return 0xF065 | uint16(x)<<8, nil
	}

	if isRegister(ops[1]) {
		y, _ := parseRegister(ops[1], lineNo)
		return 0x8000 | uint16(x)<<8 | uint16(y)<<4, nil
	}

	nn, err := a.parseByte(ops[1], lineNo)
	if err != nil {
		return 0, err
	}
	return 0x6000 | uint16(x)<<8 | uint16(nn), nil
}

func (a *Assembler) encodeAdd(ops []string, lineNo int) (uint16, error) {
	if len(ops) != 2 {
		return 0, fmt.Errorf("ADD expects 2 operands on line %d", lineNo)
	}

	if strings.EqualFold(ops[0], "I") {
		x, err := parseRegister(ops[1], lineNo)
		if err != nil {
			return 0, err
		}
		return 0xF01E | uint16(x)<<8, nil
	}

	x, err := parseRegister(ops[0], lineNo)
	if err != nil {
		return 0, err
	}
	if isRegister(ops[1]) {
		y, _ := parseRegister(ops[1], lineNo)
		return 0x8004 | uint16(x)<<8 | uint16(y)<<4, nil
	}
	nn, err := a.parseByte(ops[1], lineNo)
	if err != nil {
		return 0, err
	}
	return 0x7000 | uint16(x)<<8 | uint16(nn), nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(raw)
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if beforeColon == "" {
			return p, fmt.Errorf("invalid label on line %d", lineNo)
		}

		if strings.ContainsAny(beforeColon, " \t") {
			break
		}

		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	line = stripComments(line)
	line = strings.TrimSpace(line)
	if line == "" {
		return p, nil
	}

	// Commas separate operands; brackets survive so [I] stays a token.
	line = strings.ReplaceAll(line, ",", " ")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return p, nil
	}

	p.mnemonic = strings.ToUpper(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}

	return p, nil
}

func stripComments(line string) string {
	semicolon := strings.Index(line, ";")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if semicolon >= 0 {
		cut = semicolon
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func knownMnemonic(mnemonic string) bool {
	if _, ok := zeroOperandOps[mnemonic]; ok {
		return true
	}
	if _, ok := regRegOps[mnemonic]; ok {
		return true
	}
	if _, ok := oneRegOps[mnemonic]; ok {
		return true
	}
	if _, ok := addrOps[mnemonic]; ok {
		return true
	}
	switch mnemonic {
	case "JP", "SE", "SNE", "LD", "ADD", "RND", "DRW":
		return true
	}
	return false
}

// isRegister reports whether the token names one of V0..VF.
func isRegister(token string) bool {
	if len(token) != 2 {
		return false
	}
	upper := strings.ToUpper(token)
	if upper[0] != 'V' {
		return false
	}
	c := upper[1]
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'F'
}

func parseRegister(token string, lineNo int) (uint8, error) {
	if !isRegister(token) {
		return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
	}
	c := strings.ToUpper(token)[1]
	if c >= '0' && c <= '9' {
		return c - '0', nil
	}
	return c - 'A' + 10, nil
}

// parseNumber handles bare numeric literals: 0x.., $.., octal, decimal.
func parseNumber(token string) (uint32, error) {
	if strings.HasPrefix(token, "$") {
		value, err := strconv.ParseUint(token[1:], 16, 32)
		return uint32(value), err
	}
	value, err := strconv.ParseUint(token, 0, 32)
	return uint32(value), err
}

func (a *Assembler) parseImmediate(token string, lineNo int) (uint16, error) {
	if value, err := parseNumber(token); err == nil {
		if value > 0xFFFF {
			return 0, fmt.Errorf("immediate out of range on line %d: %s", lineNo, token)
		}
		return uint16(value), nil
	}

	label := normalizeLabel(token)
	if addr, ok := a.labels[label]; ok {
		return addr, nil
	}

	if isIdentifier(token) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", token, lineNo)
	}

	return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

func (a *Assembler) parseByte(token string, lineNo int) (uint8, error) {
	val, err := a.parseImmediate(token, lineNo)
	if err != nil {
		return 0, err
	}
	if val > 0xFF {
		return 0, fmt.Errorf("byte value out of range on line %d: %s", lineNo, token)
	}
	return uint8(val), nil
}

func (a *Assembler) parseAddress(token string, lineNo int) (uint16, error) {
	val, err := a.parseImmediate(token, lineNo)
	if err != nil {
		return 0, err
	}
	if val > 0xFFF {
		return 0, fmt.Errorf("address out of range on line %d: %s", lineNo, token)
	}
	return val, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func normalizeLabel(label string) string {
	return strings.ToUpper(label)
}
