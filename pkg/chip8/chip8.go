package chip8

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	MemorySize   = 4096
	ProgramStart = 0x200

	// MaxProgramSize is what fits between the program origin and the
	// end of memory.
	MaxProgramSize = MemorySize - ProgramStart

	NumRegisters = 16
	NumKeys      = 16
	StackDepth   = 12

	DefaultWidth  = 64
	DefaultHeight = 32

	addrMask = MemorySize - 1
)

var (
	ErrEmptyProgram    = errors.New("empty program image")
	ErrProgramTooLarge = errors.New("program image exceeds available memory")
	ErrStackOverflow   = errors.New("call stack overflow")
	ErrStackUnderflow  = errors.New("return with empty call stack")
)

// State is the coarse execution state. Running, AwaitingKey and Halted
// are driven by the interpreter itself; Paused belongs to the host
// loop.
type State uint8

const (
	Running State = iota
	Paused
	AwaitingKey
	Halted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case AwaitingKey:
		return "awaiting key"
	case Halted:
		return "halted"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Config carries the knobs that cross into interpreter semantics.
// Width and Height participate directly in draw arithmetic, which is
// why they belong to the machine and not to a frontend.
type Config struct {
	Width  int
	Height int

	// InstructionsPerTick is the batch size between 60 Hz timer ticks.
	// Step ticks the timers once per that many instructions, so
	// running one batch per displayed frame paces both clocks. Zero
	// disables the embedded cadence; the host then calls TickTimers
	// itself.
	InstructionsPerTick int

	// Permissive downgrades the stack faults: an overflowing call
	// jumps without pushing a return address and a return on an empty
	// stack does nothing. The default is to halt with an error.
	Permissive bool

	// Rand supplies the byte consumed by CXNN. Nil selects math/rand.
	Rand func() byte
}

// DefaultConfig is the standard 64x32 machine at roughly 600
// instructions per second when driven at 60 frames per second.
func DefaultConfig() Config {
	return Config{
		Width:               DefaultWidth,
		Height:              DefaultHeight,
		InstructionsPerTick: 10,
	}
}

// Machine is the complete interpreter state. Fields are exported so
// frontends and tests can read them directly; mutation goes through
// Step, TickTimers, SetKey and the loaders.
type Machine struct {
	Memory [MemorySize]byte

	V  [NumRegisters]uint8
	I  uint16
	PC uint16

	Stack [StackDepth]uint16
	SP    uint8

	Delay uint8
	Sound uint8

	Keys [NumKeys]bool

	// Display holds Width*Height cells in row-major order. Only 00E0
	// and DXYN write it; frontends read it every frame.
	Display []bool
	Width   int
	Height  int

	State State

	// WaitReg is the register FX0A will fill once a key arrives. Only
	// meaningful while State is AwaitingKey.
	WaitReg uint8

	InstructionsPerTick int
	Permissive          bool

	rand      func() byte
	tickSteps int
}

// NewMachine builds a zeroed machine with the font table in low memory,
// PC at the program origin and an empty call stack. A zero Config is
// usable: the resolution defaults to 64x32 and the embedded timer
// cadence stays off.
func NewMachine(cfg Config) *Machine {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Rand == nil {
		cfg.Rand = randomByte
	}
	m := &Machine{
		Width:               cfg.Width,
		Height:              cfg.Height,
		InstructionsPerTick: cfg.InstructionsPerTick,
		Permissive:          cfg.Permissive,
		rand:                cfg.Rand,
	}
	m.Display = make([]bool, m.Width*m.Height)
	copy(m.Memory[:], Font[:])
	m.PC = ProgramStart
	m.State = Running
	return m
}

func randomByte() byte {
	return byte(rand.IntN(256))
}

// LoadProgram copies a raw program image to the program origin. Load
// failures are reported before any execution; nothing is copied on
// error.
func (m *Machine) LoadProgram(image []byte) error {
	if len(image) == 0 {
		return ErrEmptyProgram
	}
	if len(image) > MaxProgramSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrProgramTooLarge, len(image), MaxProgramSize)
	}
	copy(m.Memory[ProgramStart:], image)
	return nil
}

// Reset returns the machine to its power-on state, keeping only the
// configuration. The program image is erased too; load it again before
// stepping.
func (m *Machine) Reset() {
	m.Memory = [MemorySize]byte{}
	copy(m.Memory[:], Font[:])
	m.V = [NumRegisters]uint8{}
	m.I = 0
	m.PC = ProgramStart
	m.Stack = [StackDepth]uint16{}
	m.SP = 0
	m.Delay = 0
	m.Sound = 0
	m.Keys = [NumKeys]bool{}
	for i := range m.Display {
		m.Display[i] = false
	}
	m.State = Running
	m.WaitReg = 0
	m.tickSteps = 0
}

// SetKey records keypad state from the input collaborator. The index is
// masked to the low nibble, so callers may pass raw register values.
func (m *Machine) SetKey(key uint8, pressed bool) {
	m.Keys[key&0x0F] = pressed
}

// Pixel reports the display cell at (x, y) in logical coordinates.
// Coordinates off the grid read as unlit.
func (m *Machine) Pixel(x, y int) bool {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return false
	}
	return m.Display[y*m.Width+x]
}

// SoundActive reports whether the sound timer is running. The audio
// collaborator plays a tone exactly while this is true.
func (m *Machine) SoundActive() bool {
	return m.Sound > 0
}

// Pause suspends execution until Resume. Pausing during an FX0A wait is
// fine: the rewound PC re-enters the wait on resume.
func (m *Machine) Pause() {
	if m.State == Running || m.State == AwaitingKey {
		m.State = Paused
	}
}

// Resume undoes Pause. A halted machine stays halted.
func (m *Machine) Resume() {
	if m.State == Paused {
		m.State = Running
	}
}

// TickTimers performs one 60 Hz timer tick. Hosts that own the cadence
// call this directly; with Config.InstructionsPerTick set, Step calls
// it at the configured rate instead. Timers freeze while the machine is
// paused or halted.
func (m *Machine) TickTimers() {
	if m.State == Paused || m.State == Halted {
		return
	}
	if m.Delay > 0 {
		m.Delay--
	}
	if m.Sound > 0 {
		m.Sound--
	}
}

// Step executes exactly one instruction: fetch two bytes at PC, advance
// PC by 2, decode, dispatch. Control transfers overwrite the advanced
// PC. While paused or halted, Step does nothing. A stack fault halts
// the machine and is returned, unless running permissive.
func (m *Machine) Step() error {
	if m.State == Paused || m.State == Halted {
		return nil
	}

	hi := m.Memory[m.PC&addrMask]
	lo := m.Memory[(m.PC+1)&addrMask]
	m.PC = (m.PC + 2) & addrMask

	if err := m.exec(Decode(hi, lo)); err != nil {
		m.State = Halted
		return err
	}

	if m.InstructionsPerTick > 0 {
		m.tickSteps++
		if m.tickSteps >= m.InstructionsPerTick {
			m.tickSteps = 0
			m.TickTimers()
		}
	}
	return nil
}

// Run steps the machine until it halts or maxSteps instructions have
// executed, and reports how many ran. A machine waiting on FX0A keeps
// consuming steps, exactly as it would against a live host.
func (m *Machine) Run(maxSteps int) (int, error) {
	for i := 0; i < maxSteps; i++ {
		if m.State == Halted {
			return i, nil
		}
		if err := m.Step(); err != nil {
			return i + 1, err
		}
	}
	return maxSteps, nil
}

// RunFrame executes one frame's batch of instructions. With
// InstructionsPerTick set, the embedded cadence yields exactly one
// timer tick per call, so invoking this at 60 Hz paces both clocks.
func (m *Machine) RunFrame() error {
	n := m.InstructionsPerTick
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if m.State == Paused || m.State == Halted {
			return nil
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) exec(d Decoded) error {
	switch d.Op {
	case OpCls:
		for i := range m.Display {
			m.Display[i] = false
		}

	case OpRet:
		if m.SP == 0 {
			if m.Permissive {
				return nil
			}
			return ErrStackUnderflow
		}
		m.SP--
		m.PC = m.Stack[m.SP]

	case OpJp:
		m.PC = d.NNN

	case OpCall:
		if int(m.SP) >= StackDepth {
			if !m.Permissive {
				return ErrStackOverflow
			}
			// The deepest return address is lost; the jump still
			// happens.
			m.PC = d.NNN
			return nil
		}
		m.Stack[m.SP] = m.PC
		m.SP++
		m.PC = d.NNN

	case OpSeByte:
		if m.V[d.X] == d.NN {
			m.skip()
		}

	case OpSneByte:
		if m.V[d.X] != d.NN {
			m.skip()
		}

	case OpSeReg:
		if m.V[d.X] == m.V[d.Y] {
			m.skip()
		}

	case OpSneReg:
		if m.V[d.X] != m.V[d.Y] {
			m.skip()
		}

	case OpLdByte:
		m.V[d.X] = d.NN

	case OpAddByte:
		m.V[d.X] += d.NN

	case OpLdReg:
		m.V[d.X] = m.V[d.Y]

	case OpOr:
		m.V[d.X] |= m.V[d.Y]

	case OpAnd:
		m.V[d.X] &= m.V[d.Y]

	case OpXor:
		m.V[d.X] ^= m.V[d.Y]

	case OpAddReg:
		sum := uint16(m.V[d.X]) + uint16(m.V[d.Y])
		flag := uint8(0)
		if sum > 0xFF {
			flag = 1
		}
		m.V[d.X] = uint8(sum)
		m.V[0xF] = flag

	case OpSub:
		flag := uint8(0)
		if m.V[d.X] >= m.V[d.Y] {
			flag = 1
		}
		m.V[d.X] -= m.V[d.Y]
		m.V[0xF] = flag

	case OpShr:
		flag := m.V[d.X] & 1
		m.V[d.X] >>= 1
		m.V[0xF] = flag

	case OpSubn:
		flag := uint8(0)
		if m.V[d.Y] >= m.V[d.X] {
			flag = 1
		}
		m.V[d.X] = m.V[d.Y] - m.V[d.X]
		m.V[0xF] = flag

	case OpShl:
		flag := m.V[d.X] >> 7
		m.V[d.X] <<= 1
		m.V[0xF] = flag

	case OpLdI:
		m.I = d.NNN

	case OpJpV0:
		m.PC = (d.NNN + uint16(m.V[0])) & addrMask

	case OpRnd:
		m.V[d.X] = m.rand() & d.NN

	case OpDrw:
		m.draw(d.X, d.Y, d.N)

	case OpSkp:
		if m.Keys[m.V[d.X]&0x0F] {
			m.skip()
		}

	case OpSknp:
		if !m.Keys[m.V[d.X]&0x0F] {
			m.skip()
		}

	case OpLdVxDt:
		m.V[d.X] = m.Delay

	case OpLdKey:
		m.waitKey(d.X)

	case OpLdDtVx:
		m.Delay = m.V[d.X]

	case OpLdStVx:
		m.Sound = m.V[d.X]

	case OpAddI:
		m.I += uint16(m.V[d.X])

	case OpLdFont:
		m.I = uint16(m.V[d.X]) * FontGlyphSize

	case OpLdBcd:
		v := m.V[d.X]
		m.writeMem(m.I, v/100)
		m.writeMem(m.I+1, v/10%10)
		m.writeMem(m.I+2, v%10)

	case OpLdMemVx:
		for i := uint8(0); i <= d.X; i++ {
			m.writeMem(m.I+uint16(i), m.V[i])
		}

	case OpLdVxMem:
		for i := uint8(0); i <= d.X; i++ {
			m.V[i] = m.readMem(m.I + uint16(i))
		}

	case OpUnknown:
		// Unrecognized words execute as no-ops; PC has already moved
		// past them.
	}
	return nil
}

// waitKey implements the FX0A cooperative wait: scan the keypad
// ascending from index 0. With no key down, rewind PC so the same
// instruction re-executes next step and flag the wait so hosts can
// idle.
func (m *Machine) waitKey(x uint8) {
	for k := uint8(0); k < NumKeys; k++ {
		if m.Keys[k] {
			m.V[x] = k
			m.State = Running
			return
		}
	}
	m.PC = (m.PC - 2) & addrMask
	m.State = AwaitingKey
	m.WaitReg = x
}

// draw XOR-composites an N-row sprite from memory at I onto the display
// at (VX, VY). Start coordinates wrap to the logical resolution; the
// sprite body clips at the right and bottom edges. VF reports whether
// any lit cell was cleared.
func (m *Machine) draw(x, y, n uint8) {
	x0 := int(m.V[x]) % m.Width
	y0 := int(m.V[y]) % m.Height
	m.V[0xF] = 0
	for row := 0; row < int(n); row++ {
		py := y0 + row
		if py >= m.Height {
			break
		}
		sprite := m.readMem(m.I + uint16(row))
		for col := 0; col < 8; col++ {
			px := x0 + col
			if px >= m.Width {
				break
			}
			if sprite&(0x80>>col) == 0 {
				continue
			}
			cell := py*m.Width + px
			if m.Display[cell] {
				m.V[0xF] = 1
			}
			m.Display[cell] = !m.Display[cell]
		}
	}
}

func (m *Machine) skip() {
	m.PC = (m.PC + 2) & addrMask
}

func (m *Machine) readMem(addr uint16) byte {
	return m.Memory[addr&addrMask]
}

func (m *Machine) writeMem(addr uint16, v byte) {
	m.Memory[addr&addrMask] = v
}
