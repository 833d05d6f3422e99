package main

import (
	"testing"

	"gochip8/pkg/asm"
	"gochip8/pkg/chip8"
)

// assembleAndLoad builds a fresh machine from assembly source, failing
// the test on any stage.
func assembleAndLoad(t *testing.T, source string) *chip8.Machine {
	t.Helper()

	// 1. Assemble
	program, _, err := asm.Assemble(source)
	if err != nil {
		t.Fatalf("Assembly failed: %v", err)
	}

	// 2. Instantiate the machine and load the image
	vm := chip8.NewMachine(chip8.DefaultConfig())
	if err := vm.LoadProgram(program); err != nil {
		t.Fatalf("Loading failed: %v", err)
	}

	return vm
}

func TestAssembleAndRunAddition(t *testing.T) {
	vm := assembleAndLoad(t, `
LD V0, 0x05
ADD V0, 0x03
`)

	// The image must be the canonical two-word form.
	if vm.Memory[0x200] != 0x60 || vm.Memory[0x201] != 0x05 ||
		vm.Memory[0x202] != 0x70 || vm.Memory[0x203] != 0x03 {
		t.Fatalf("Unexpected image: % X", vm.Memory[0x200:0x204])
	}

	for i := 0; i < 2; i++ {
		if err := vm.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
	}

	if vm.V[0] != 8 {
		t.Errorf("Expected V0 to be 8, got %d", vm.V[0])
	}
	if vm.PC != 0x204 {
		t.Errorf("Expected PC to be 0x204, got 0x%03X", vm.PC)
	}
}

func TestCountdownLoop(t *testing.T) {
	vm := assembleAndLoad(t, `
	LD V0, 5
	LD V1, 0
loop:
	ADD V1, 2
	ADD V0, 0xFF ; subtract one by wrapping
	SE V0, 0
	JP loop
done:
	JP done
`)

	if _, err := vm.Run(1000); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if vm.V[0] != 0 {
		t.Errorf("Expected V0 to be 0, got %d", vm.V[0])
	}
	if vm.V[1] != 10 {
		t.Errorf("Expected V1 to be 10, got %d", vm.V[1])
	}
	// The program parks on the done spin.
	if vm.PC != 0x20C {
		t.Errorf("Expected PC to be 0x20C, got 0x%03X", vm.PC)
	}
	if vm.State != chip8.Running {
		t.Errorf("Expected machine to stay running, got %s", vm.State)
	}
}

func TestSubroutineDrawsGlyph(t *testing.T) {
	vm := assembleAndLoad(t, `
	LD V0, 0
	LD V1, 0
	LD V2, 4
	CALL draw_glyph
stop:
	JP stop

draw_glyph:
	LD F, V2
	DRW V0, V1, 5
	RET
`)

	if _, err := vm.Run(50); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// LD F, V2 points I at the glyph for hex digit 4.
	if vm.I != 4*chip8.FontGlyphSize {
		t.Errorf("Expected I to be %d, got %d", 4*chip8.FontGlyphSize, vm.I)
	}

	// Glyph rows are 0x90 0x90 0xF0 0x10 0x10: both verticals on row
	// 0, the full crossbar on row 2.
	if !vm.Pixel(0, 0) || vm.Pixel(1, 0) || vm.Pixel(2, 0) || !vm.Pixel(3, 0) {
		t.Errorf("Row 0 does not match the glyph verticals")
	}
	for x := 0; x < 4; x++ {
		if !vm.Pixel(x, 2) {
			t.Errorf("Expected pixel (%d,2) lit by the crossbar", x)
		}
	}

	if vm.V[0xF] != 0 {
		t.Errorf("Expected VF to be 0 on an empty screen, got %d", vm.V[0xF])
	}
	// RET must unwind the call completely.
	if vm.SP != 0 {
		t.Errorf("Expected SP to be 0 after RET, got %d", vm.SP)
	}
	if vm.PC != 0x208 {
		t.Errorf("Expected PC parked at 0x208, got 0x%03X", vm.PC)
	}
}

func TestKeyWaitResolves(t *testing.T) {
	vm := assembleAndLoad(t, `
	LD V5, K
	LD V1, 0xAA
stop:
	JP stop
`)

	// Without a key the wait consumes steps and rewinds.
	for i := 0; i < 3; i++ {
		if err := vm.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	if vm.State != chip8.AwaitingKey {
		t.Fatalf("Expected awaiting key, got %s", vm.State)
	}
	if vm.PC != 0x200 {
		t.Errorf("Expected PC rewound to 0x200, got 0x%03X", vm.PC)
	}

	// A pressed key resolves the wait on the next step.
	vm.SetKey(0x7, true)
	if err := vm.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if vm.State != chip8.Running {
		t.Errorf("Expected running after key press, got %s", vm.State)
	}
	if vm.V[5] != 0x7 {
		t.Errorf("Expected V5 to be 7, got %d", vm.V[5])
	}
	if vm.PC != 0x202 {
		t.Errorf("Expected PC to be 0x202, got 0x%03X", vm.PC)
	}

	// Execution continues normally afterwards.
	if err := vm.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if vm.V[1] != 0xAA {
		t.Errorf("Expected V1 to be 0xAA, got 0x%02X", vm.V[1])
	}
}

func TestBcdStoreLoadRoundTrip(t *testing.T) {
	vm := assembleAndLoad(t, `
	LD V0, 217
	LD I, 0x300
	LD B, V0
	LD V2, [I]
stop:
	JP stop
`)

	if _, err := vm.Run(50); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// BCD of 217 lands at I..I+2.
	if vm.Memory[0x300] != 2 || vm.Memory[0x301] != 1 || vm.Memory[0x302] != 7 {
		t.Errorf("Expected BCD 2 1 7, got % X", vm.Memory[0x300:0x303])
	}

	// The bulk load pulls the digits back into V0..V2.
	if vm.V[0] != 2 || vm.V[1] != 1 || vm.V[2] != 7 {
		t.Errorf("Expected V0..V2 = 2 1 7, got %d %d %d", vm.V[0], vm.V[1], vm.V[2])
	}

	// Neither FX33 nor FX65 moves I.
	if vm.I != 0x300 {
		t.Errorf("Expected I to stay 0x300, got 0x%03X", vm.I)
	}
}

func TestSpriteCollision(t *testing.T) {
	vm := assembleAndLoad(t, `
	LD V0, 3
	LD F, V0
	LD V1, 0
	LD V2, 0
	DRW V1, V2, 5
	DRW V1, V2, 5
stop:
	JP stop
`)

	if _, err := vm.Run(50); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The second draw erases the first and reports the collision.
	if vm.V[0xF] != 1 {
		t.Errorf("Expected VF to be 1 after overdraw, got %d", vm.V[0xF])
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 8; x++ {
			if vm.Pixel(x, y) {
				t.Errorf("Expected pixel (%d,%d) cleared by overdraw", x, y)
			}
		}
	}
}
