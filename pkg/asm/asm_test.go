package asm

import (
	"reflect"
	"testing"

	"gochip8/pkg/chip8"
)

// encodeWords converts instruction words to the big-endian byte layout
// of a program image.
func encodeWords(words ...uint16) []byte {
	out := make([]byte, len(words)*2)
	for i, w := range words {
		out[i*2] = byte(w >> 8)
		out[i*2+1] = byte(w & 0xFF)
	}
	return out
}

func TestHelperFunctions(t *testing.T) {
	// Test isIdentifier
	tests := []struct {
		input string
		want  bool
	}{
		{"abc", true},
		{"_abc", true},
		{"abc1", true},
		{"1abc", false},
		{"", false},
		{"ab-c", false},
	}
	for _, tc := range tests {
		if got := isIdentifier(tc.input); got != tc.want {
			t.Errorf("isIdentifier(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}

	// Test normalizeLabel
	if got := normalizeLabel("label"); got != "LABEL" {
		t.Errorf("normalizeLabel(\"label\") = %q; want \"LABEL\"", got)
	}

	// Test isRegister
	regTests := []struct {
		input string
		want  bool
	}{
		{"V0", true},
		{"VF", true},
		{"va", true},
		{"V", false},
		{"VG", false},
		{"V10", false},
		{"R0", false},
	}
	for _, tc := range regTests {
		if got := isRegister(tc.input); got != tc.want {
			t.Errorf("isRegister(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}

	// Test parseRegister
	if got, err := parseRegister("VA", 1); err != nil || got != 0xA {
		t.Errorf("parseRegister(\"VA\") = %d, %v; want 10, nil", got, err)
	}
	if got, err := parseRegister("v3", 1); err != nil || got != 3 {
		t.Errorf("parseRegister(\"v3\") = %d, %v; want 3, nil", got, err)
	}
	if _, err := parseRegister("VZ", 1); err == nil {
		t.Error("parseRegister(\"VZ\") succeeded; want error")
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    parsedLine
		wantErr bool
	}{
		{
			"LD V0, 5",
			parsedLine{lineNo: 1, mnemonic: "LD", operands: []string{"V0", "5"}},
			false,
		},
		{
			"  ADD V0, V1  ; comment",
			parsedLine{lineNo: 1, mnemonic: "ADD", operands: []string{"V0", "V1"}},
			false,
		},
		{
			"START: CLS",
			parsedLine{lineNo: 1, labels: []string{"START"}, mnemonic: "CLS", operands: nil},
			false,
		},
		{
			"LABEL1: LABEL2: RET",
			parsedLine{lineNo: 1, labels: []string{"LABEL1", "LABEL2"}, mnemonic: "RET", operands: nil},
			false,
		},
		{
			".ORG 0x300",
			parsedLine{lineNo: 1, mnemonic: ".ORG", operands: []string{"0x300"}},
			false,
		},
		{
			"LD [I], V3",
			parsedLine{lineNo: 1, mnemonic: "LD", operands: []string{"[I]", "V3"}},
			false,
		},
		{
			"draw: DRW V0, V1, 5",
			parsedLine{lineNo: 1, labels: []string{"draw"}, mnemonic: "DRW", operands: []string{"V0", "V1", "5"}},
			false,
		},
		// Invalid cases
		{
			"1LABEL: CLS",
			parsedLine{lineNo: 1},
			true,
		},
	}

	for _, tc := range tests {
		got, err := parseLine(tc.line, 1)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseLine(%q) error = %v, wantErr %v", tc.line, err, tc.wantErr)
			continue
		}
		if !tc.wantErr {
			if got.lineNo != tc.want.lineNo {
				t.Errorf("parseLine(%q) lineNo = %d, want %d", tc.line, got.lineNo, tc.want.lineNo)
			}
			if got.mnemonic != tc.want.mnemonic {
				t.Errorf("parseLine(%q) mnemonic = %q, want %q", tc.line, got.mnemonic, tc.want.mnemonic)
			}
			if !reflect.DeepEqual(got.labels, tc.want.labels) && !(len(got.labels) == 0 && len(tc.want.labels) == 0) {
				t.Errorf("parseLine(%q) labels = %v, want %v", tc.line, got.labels, tc.want.labels)
			}
			if !reflect.DeepEqual(got.operands, tc.want.operands) && !(len(got.operands) == 0 && len(tc.want.operands) == 0) {
				t.Errorf("parseLine(%q) operands = %v, want %v", tc.line, got.operands, tc.want.operands)
			}
		}
	}
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    []byte
		wantErr bool
	}{
		{
			"Basic Instructions",
			`
			LD V0, 0x05
			ADD V0, 0x03
			`,
			encodeWords(0x6005, 0x7003),
			false,
		},
		{
			"Register Arithmetic",
			`
			LD VA, VB
			OR VA, VB
			AND VA, VB
			XOR VA, VB
			ADD VA, VB
			SUB VA, VB
			SUBN VA, VB
			`,
			encodeWords(0x8AB0, 0x8AB1, 0x8AB2, 0x8AB3, 0x8AB4, 0x8AB5, 0x8AB7),
			false,
		},
		{
			"Shifts",
			`
			SHR V5
			SHL V5
			`,
			encodeWords(0x8506, 0x850E),
			false,
		},
		{
			"Shifts with source register",
			`
			SHR V2, V3
			SHL V2, V3
			`,
			encodeWords(0x8236, 0x823E),
			false,
		},
		{
			"Labels and Jumps",
			// LD V0, 5    -> $200
			// LOOP:       -> $202
			// ADD V0, 1   -> $202
			// SE V0, 10   -> $204
			// JP LOOP     -> $206, target $202
			// JP DONE     -> $208, target $20A
			// DONE:       -> $20A
			`
			LD V0, 5
			LOOP:
			ADD V0, 1
			SE V0, 10
			JP LOOP
			JP DONE
			DONE:
			CLS
			`,
			encodeWords(0x6005, 0x7001, 0x300A, 0x1202, 0x120A, 0x00E0),
			false,
		},
		{
			"Jump with offset",
			`JP V0, 0x300`,
			encodeWords(0xB300),
			false,
		},
		{
			"Subroutine call and return",
			// CALL BEEP -> $200, target $204
			// JP $200   -> $202
			// BEEP:     -> $204
			`
			CALL BEEP
			JP 0x200
			BEEP:
			LD ST, V0
			RET
			`,
			encodeWords(0x2204, 0x1200, 0xF018, 0x00EE),
			false,
		},
		{
			"Skips",
			`
			SE V1, 0x20
			SE V1, V2
			SNE V1, 0x20
			SNE V1, V2
			SKP V4
			SKNP V4
			`,
			encodeWords(0x3120, 0x5120, 0x4120, 0x9120, 0xE49E, 0xE4A1),
			false,
		},
		{
			"Timer and Key Loads",
			`
			LD V1, DT
			LD V1, K
			LD DT, V1
			LD ST, V1
			`,
			encodeWords(0xF107, 0xF10A, 0xF115, 0xF118),
			false,
		},
		{
			"Index Font and Memory",
			`
			LD I, 0x2EA
			ADD I, V4
			LD F, V3
			LD B, V3
			LD [I], V3
			LD V3, [I]
			`,
			encodeWords(0xA2EA, 0xF41E, 0xF329, 0xF333, 0xF355, 0xF365),
			false,
		},
		{
			"Random and Draw",
			`
			RND V2, 0x0F
			DRW V0, V1, 5
			`,
			encodeWords(0xC20F, 0xD015),
			false,
		},
		{
			"Sys Address",
			`SYS 0x123`,
			encodeWords(0x0123),
			false,
		},
		{
			"Data Directives",
			// LD I and DRW read two sprite rows stored at SPRITE.
			`
			LD I, SPRITE
			DRW V0, V1, 2
			SPRITE:
			.BYTE 0xF0, 0x90
			.WORD 0x1234
			`,
			append(encodeWords(0xA204, 0xD012), 0xF0, 0x90, 0x12, 0x34),
			false,
		},
		{
			".ORG",
			`
			.ORG 0x204
			CLS
			`,
			// 4 bytes padding + CLS
			append([]byte{0, 0, 0, 0}, encodeWords(0x00E0)...),
			false,
		},
		{
			"Dollar Hex Immediates",
			`
			LD V0, $7F
			JP $234
			`,
			encodeWords(0x607F, 0x1234),
			false,
		},
		{
			"Comments",
			`
			; Comment
			LD V0, 1 // Comment
			`,
			encodeWords(0x6001),
			false,
		},
		{
			"Lowercase Source",
			`
			ld v0, 0x05
			add v0, 0x03
			`,
			encodeWords(0x6005, 0x7003),
			false,
		},
		{
			"Label only line",
			`
			START:
			LD V0, 1
			`,
			encodeWords(0x6001),
			false,
		},
		// Errors
		{
			"Unknown Instruction",
			`FOOBAR V0`,
			nil,
			true,
		},
		{
			"Duplicate Label",
			`
			L: CLS
			L: RET
			`,
			nil,
			true,
		},
		{
			"Invalid Register",
			`SHR VG`,
			nil,
			true,
		},
		{
			"Invalid Operand Count",
			`ADD V0`,
			nil,
			true,
		},
		{
			"Undefined Label",
			`JP NOWHERE`,
			nil,
			true,
		},
		{
			".ORG Backward",
			`
			CLS
			.ORG 0x200
			`,
			nil,
			true,
		},
		{
			".ORG Out of Range",
			`.ORG 0x1000`,
			nil,
			true,
		},
		{
			"Program Too Large",
			`
			.ORG 0xFFF
			CLS
			`,
			nil,
			true,
		},
		{
			"Byte Value Out of Range",
			`LD V0, 0x100`,
			nil,
			true,
		},
		{
			"Address Out of Range",
			`JP 0x1234`,
			nil,
			true,
		},
		{
			"Sprite Height Out of Range",
			`DRW V0, V1, 16`,
			nil,
			true,
		},
		{
			"JP Pair Without V0",
			`JP V1, 0x300`,
			nil,
			true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := Assemble(tc.code)
			if (err != nil) != tc.wantErr {
				t.Errorf("Assemble() error = %v, wantErr %v", err, tc.wantErr)
				return
			}
			if !tc.wantErr && !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Assemble() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"LD V0, 1", "LD V0, 1"},
		{"LD V0, 1 ; comment", "LD V0, 1 "},
		{"LD V0, 1 // comment", "LD V0, 1 "},
		{"// comment", ""},
		{"; comment", ""},
		{"LD V0, 1 ; first // second", "LD V0, 1 "},
	}
	for _, tc := range tests {
		if got := stripComments(tc.input); got != tc.want {
			t.Errorf("stripComments(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// TestDisassembleRoundTrip feeds canonical disassembly back through the
// assembler and expects the original words. Shift words keep a zero Y
// nibble because the disassembler prints the one-operand form.
func TestDisassembleRoundTrip(t *testing.T) {
	words := []uint16{
		0x00E0, 0x00EE, 0x0123,
		0x1234, 0x2345,
		0x3122, 0x4122, 0x5120, 0x9120,
		0x6A7F, 0x7A01,
		0x8AB0, 0x8AB1, 0x8AB2, 0x8AB3, 0x8AB4, 0x8AB5, 0x8AB7,
		0x8A06, 0x8A0E,
		0xA2EA, 0xB234, 0xC20F, 0xD125,
		0xE19E, 0xE1A1,
		0xF107, 0xF10A, 0xF115, 0xF118, 0xF11E, 0xF129, 0xF133, 0xF155, 0xF165,
		0xFFFF,
	}

	source := ""
	for _, w := range words {
		source += chip8.Disassemble(w) + "\n"
	}

	got, _, err := Assemble(source)
	if err != nil {
		t.Fatalf("Assemble failed: %v\nsource:\n%s", err, source)
	}
	if want := encodeWords(words...); !reflect.DeepEqual(got, want) {
		t.Errorf("round trip = % X, want % X\nsource:\n%s", got, want, source)
	}
}

// TestAssembleRunsOnMachine assembles a small program and executes it.
func TestAssembleRunsOnMachine(t *testing.T) {
	program, _, err := Assemble(`
		LD V0, 0x05
		ADD V0, 0x03
	`)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	m := chip8.NewMachine(chip8.DefaultConfig())
	if err := m.LoadProgram(program); err != nil {
		t.Fatalf("LoadProgram failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := m.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
	}

	if m.V[0] != 8 {
		t.Errorf("V0: expected 8, got %d", m.V[0])
	}
	if m.PC != 0x204 {
		t.Errorf("PC: expected 0x204, got 0x%03X", m.PC)
	}
}
