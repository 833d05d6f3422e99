package chip8

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// machineState is the JSON-serializable snapshot of machine control
// state. Memory and display content travel as separate binary entries.
type machineState struct {
	V                   [NumRegisters]uint8 `json:"v"`
	I                   uint16              `json:"i"`
	PC                  uint16              `json:"pc"`
	Stack               [StackDepth]uint16  `json:"stack"`
	SP                  uint8               `json:"sp"`
	Delay               uint8               `json:"delay"`
	Sound               uint8               `json:"sound"`
	Keys                [NumKeys]bool       `json:"keys"`
	State               State               `json:"state"`
	WaitReg             uint8               `json:"wait_reg"`
	Width               int                 `json:"width"`
	Height              int                 `json:"height"`
	InstructionsPerTick int                 `json:"instructions_per_tick"`
	Permissive          bool                `json:"permissive"`
	TickSteps           int                 `json:"tick_steps"`
}

// HibernateToBytes serialises the complete machine state into an
// in-memory ZIP archive and returns the raw bytes. The random source is
// not part of the archive.
func (m *Machine) HibernateToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	// ── 1. machine_state.json ──────────────────────────────────────────────
	state := machineState{
		V:                   m.V,
		I:                   m.I,
		PC:                  m.PC,
		Stack:               m.Stack,
		SP:                  m.SP,
		Delay:               m.Delay,
		Sound:               m.Sound,
		Keys:                m.Keys,
		State:               m.State,
		WaitReg:             m.WaitReg,
		Width:               m.Width,
		Height:              m.Height,
		InstructionsPerTick: m.InstructionsPerTick,
		Permissive:          m.Permissive,
		TickSteps:           m.tickSteps,
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal machine_state: %w", err)
	}
	if err := writeZipEntry(zw, "machine_state.json", jsonData); err != nil {
		return nil, err
	}

	// ── 2. ram.bin ─────────────────────────────────────────────────────────
	if err := writeZipEntry(zw, "ram.bin", m.Memory[:]); err != nil {
		return nil, err
	}

	// ── 3. display.bin (one byte per cell) ─────────────────────────────────
	if err := writeZipEntry(zw, "display.bin", boolSliceToBytes(m.Display)); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes deserialises a ZIP archive produced by
// HibernateToBytes and applies the saved state to the machine,
// including a machine hibernated mid-wait on FX0A. Entry sizes and
// control fields are validated before anything is overwritten, so a
// corrupt archive leaves the machine untouched.
func (m *Machine) RestoreFromBytes(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	// ── 1. machine_state.json ──────────────────────────────────────────────
	jsonData, err := readZipEntry(fileMap, "machine_state.json")
	if err != nil {
		return err
	}
	var state machineState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return fmt.Errorf("unmarshal machine_state: %w", err)
	}
	if state.Width <= 0 || state.Height <= 0 {
		return fmt.Errorf("bad resolution %dx%d in machine_state", state.Width, state.Height)
	}
	if int(state.SP) > StackDepth {
		return fmt.Errorf("bad stack pointer %d in machine_state, depth is %d", state.SP, StackDepth)
	}
	if state.State > Halted {
		return fmt.Errorf("bad state %d in machine_state", uint8(state.State))
	}

	// ── 2. ram.bin ─────────────────────────────────────────────────────────
	ram, err := readZipEntry(fileMap, "ram.bin")
	if err != nil {
		return err
	}
	if len(ram) != MemorySize {
		return fmt.Errorf("ram.bin holds %d bytes, want %d", len(ram), MemorySize)
	}

	// ── 3. display.bin ─────────────────────────────────────────────────────
	disp, err := readZipEntry(fileMap, "display.bin")
	if err != nil {
		return err
	}
	if len(disp) != state.Width*state.Height {
		return fmt.Errorf("display.bin holds %d cells, want %d", len(disp), state.Width*state.Height)
	}

	m.V = state.V
	m.I = state.I
	m.PC = state.PC
	m.Stack = state.Stack
	m.SP = state.SP
	m.Delay = state.Delay
	m.Sound = state.Sound
	m.Keys = state.Keys
	m.State = state.State
	m.WaitReg = state.WaitReg
	m.Width = state.Width
	m.Height = state.Height
	m.InstructionsPerTick = state.InstructionsPerTick
	m.Permissive = state.Permissive
	m.tickSteps = state.TickSteps
	if m.rand == nil {
		m.rand = randomByte
	}

	copy(m.Memory[:], ram)
	m.Display = make([]bool, m.Width*m.Height)
	bytesToBoolSlice(disp, m.Display)

	return nil
}

// HibernateToFile writes the hibernation archive to the given file path.
func (m *Machine) HibernateToFile(path string) error {
	data, err := m.HibernateToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a hibernation archive from the given file path
// and restores the machine state.
func (m *Machine) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.RestoreFromBytes(data)
}

// ── helpers ────────────────────────────────────────────────────────────────

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func boolSliceToBytes(src []bool) []byte {
	out := make([]byte, len(src))
	for i, v := range src {
		if v {
			out[i] = 1
		}
	}
	return out
}

func bytesToBoolSlice(src []byte, dst []bool) {
	for i := range dst {
		if i < len(src) {
			dst[i] = src[i] != 0
		}
	}
}
