package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/veandco/go-sdl2/sdl"

	"gochip8/pkg/asm"
	"gochip8/pkg/chip8"
	"gochip8/pkg/grid"
)

const (
	screenColor = 0x000000
	spriteColor = 0xFFFFFF
)

// IO is the input/output abstraction layer for the VM.
type IO struct {
	window  *sdl.Window
	surface *sdl.Surface

	vm        *chip8.Machine
	pixelSize int32
}

func NewIO(vm *chip8.Machine, pixelSize int) *IO {
	return &IO{
		vm:        vm,
		pixelSize: int32(pixelSize),
	}
}

// SetupWindow initialises and sets up the main SDL window.
func (io *IO) SetupWindow(title string) error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return fmt.Errorf("initialising SDL: %w", err)
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(io.vm.Width)*io.pixelSize, int32(io.vm.Height)*io.pixelSize, sdl.WINDOW_SHOWN)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	io.window = window

	io.surface, err = window.GetSurface()
	if err != nil {
		return fmt.Errorf("getting window surface: %w", err)
	}
	io.surface.FillRect(nil, screenColor)
	return nil
}

// Destroy should be called before quitting the application.
func (io *IO) Destroy() {
	if io.window != nil {
		io.window.Destroy()
	}
	sdl.Quit()
}

// Loop is the main application loop. Each pass is one 60Hz frame: poll
// input, run a frame of instructions, repaint.
func (io *IO) Loop() error {
	running := true
	for running {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch t := event.(type) {
			case *sdl.KeyboardEvent:
				code := t.Keysym.Scancode
				switch t.GetType() {
				case sdl.KEYDOWN:
					if code == sdl.SCANCODE_ESCAPE {
						running = false
						break
					}
					if code == sdl.SCANCODE_SPACE {
						io.togglePause()
						break
					}
					io.setKey(code, true)
				case sdl.KEYUP:
					io.setKey(code, false)
				}
			case *sdl.QuitEvent:
				running = false
			}
		}

		if err := io.vm.RunFrame(); err != nil {
			return err
		}

		io.draw()
		sdl.Delay(16)
	}
	return nil
}

func (io *IO) togglePause() {
	if io.vm.State == chip8.Paused {
		io.vm.Resume()
	} else {
		io.vm.Pause()
	}
}

// draw repaints the whole display surface.
func (io *IO) draw() {
	io.surface.FillRect(nil, screenColor)
	for i, lit := range io.vm.Display {
		if !lit {
			continue
		}
		x, y := grid.GetGridCoords(i, io.vm.Width)
		rect := &sdl.Rect{int32(x) * io.pixelSize, int32(y) * io.pixelSize, io.pixelSize, io.pixelSize}
		io.surface.FillRect(rect, spriteColor)
	}
	io.window.UpdateSurface()
}

// Maps keys from a QWERTY keyboard to the keypad used by CHIP-8:
// +--------+--------+--------+--------+
// | 1 -> 1 | 2 -> 2 | 3 -> 3 | 4 -> C |
// +--------+--------+--------+--------+
// | Q -> 4 | W -> 5 | E -> 6 | R -> D |
// +--------+--------+--------+--------+
// | A -> 7 | S -> 8 | D -> 9 | F -> E |
// +--------+--------+--------+--------+
// | Z -> A | X -> 0 | C -> B | V -> F |
// +--------+--------+--------+--------+
func keymap(code sdl.Scancode) int8 {
	switch code {
	case sdl.SCANCODE_1:
		return 0x1
	case sdl.SCANCODE_2:
		return 0x2
	case sdl.SCANCODE_3:
		return 0x3
	case sdl.SCANCODE_4:
		return 0xC
	case sdl.SCANCODE_Q:
		return 0x4
	case sdl.SCANCODE_W:
		return 0x5
	case sdl.SCANCODE_E:
		return 0x6
	case sdl.SCANCODE_R:
		return 0xD
	case sdl.SCANCODE_A:
		return 0x7
	case sdl.SCANCODE_S:
		return 0x8
	case sdl.SCANCODE_D:
		return 0x9
	case sdl.SCANCODE_F:
		return 0xE
	case sdl.SCANCODE_Z:
		return 0xA
	case sdl.SCANCODE_X:
		return 0x0
	case sdl.SCANCODE_C:
		return 0xB
	case sdl.SCANCODE_V:
		return 0xF
	default:
		return -1
	}
}

func (io *IO) setKey(code sdl.Scancode, pressed bool) {
	if pad := keymap(code); pad != -1 {
		io.vm.SetKey(uint8(pad), pressed)
	}
}

// loadProgram reads a ROM image, assembling it first when the path
// looks like assembly source.
func loadProgram(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".c8asm") || strings.HasSuffix(lower, ".asm") || strings.HasSuffix(lower, ".s") {
		program, _, err := asm.Assemble(string(data))
		if err != nil {
			return nil, err
		}
		return program, nil
	}
	return data, nil
}

func main() {
	scale := flag.Int("scale", 20, "pixels per cell")
	cycles := flag.Int("cycles", chip8.DefaultConfig().InstructionsPerTick, "instructions per 60Hz frame")
	permissive := flag.Bool("permissive", false, "treat call stack faults as no-ops instead of halting")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sdl [flags] <rom>")
		flag.Usage()
		os.Exit(2)
	}

	program, err := loadProgram(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg := chip8.DefaultConfig()
	cfg.InstructionsPerTick = *cycles
	cfg.Permissive = *permissive

	vm := chip8.NewMachine(cfg)
	if err := vm.LoadProgram(program); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	io := NewIO(vm, *scale)
	defer io.Destroy()
	if err := io.SetupWindow("GoCHIP-8 | SDL"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := io.Loop(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
