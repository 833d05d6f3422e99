// Package main implements a terminal frontend: the display renders as
// ANSI half-block cells and the keypad reads from cbreak-mode stdin.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"

	"gochip8/pkg/asm"
	"gochip8/pkg/chip8"
	"gochip8/pkg/utils"
)

// ASCII codes delivered by cbreak mode.
const (
	keyCtrlC = 3
	keyEsc   = 27
)

// keyHoldFrames is how long a mapped key stays pressed after its byte
// arrives. Terminals report presses, never releases, so each press is
// held for a short while and decays.
const keyHoldFrames = 6

const (
	ansiHome       = "\x1b[H"
	ansiClear      = "\x1b[2J"
	ansiClearLine  = "\x1b[K"
	ansiHideCursor = "\x1b[?25l"
	ansiShowCursor = "\x1b[?25h"
)

// keymap mirrors the desktop frontend: the left-hand block of a QWERTY
// keyboard laid over the hex pad.
var keymap = map[byte]uint8{
	'1': 0x1, '2': 0x2, '3': 0x3, '4': 0xC,
	'q': 0x4, 'w': 0x5, 'e': 0x6, 'r': 0xD,
	'a': 0x7, 's': 0x8, 'd': 0x9, 'f': 0xE,
	'z': 0xA, 'x': 0x0, 'c': 0xB, 'v': 0xF,
}

// Terminal switches the controlling terminal between canonical and
// cbreak modes via termios.
type Terminal struct {
	input  *os.File
	output *os.File

	canAttr    unix.Termios
	cbreakAttr unix.Termios
}

func NewTerminal(input, output *os.File) (*Terminal, error) {
	t := &Terminal{input: input, output: output}
	if err := termios.Tcgetattr(input.Fd(), &t.canAttr); err != nil {
		return nil, fmt.Errorf("reading terminal attributes: %w", err)
	}
	t.cbreakAttr = t.canAttr
	termios.Cfmakecbreak(&t.cbreakAttr)
	return t, nil
}

// CBreakMode delivers keys as they are typed, without echo.
func (t *Terminal) CBreakMode() error {
	return termios.Tcsetattr(t.input.Fd(), termios.TCIFLUSH, &t.cbreakAttr)
}

// CanonicalMode restores normal line-buffered input.
func (t *Terminal) CanonicalMode() error {
	return termios.Tcsetattr(t.input.Fd(), termios.TCIFLUSH, &t.canAttr)
}

// readKeys forwards single bytes from the terminal and closes the
// channel when the input does.
func readKeys(input *os.File, keys chan<- byte) {
	buf := make([]byte, 1)
	for {
		n, err := input.Read(buf)
		if err != nil {
			close(keys)
			return
		}
		if n == 1 {
			keys <- buf[0]
		}
	}
}

type app struct {
	vm   *chip8.Machine
	term *Terminal
	held [chip8.NumKeys]int
}

// loop runs the machine at 60Hz until the program quits or the
// terminal goes away.
func (a *app) loop(keys <-chan byte) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			return nil
		case b, ok := <-keys:
			if !ok {
				return nil
			}
			if !a.handleKey(b) {
				return nil
			}
		case <-ticker.C:
			a.decayKeys()
			if err := a.vm.RunFrame(); err != nil {
				return err
			}
			a.paint()
		}
	}
}

// handleKey reacts to one input byte, reporting false on a quit key.
func (a *app) handleKey(b byte) bool {
	switch b {
	case keyCtrlC, keyEsc:
		return false
	case ' ':
		if a.vm.State == chip8.Paused {
			a.vm.Resume()
		} else {
			a.vm.Pause()
		}
		return true
	}
	if pad, ok := keymap[lowerByte(b)]; ok {
		a.held[pad] = keyHoldFrames
	}
	return true
}

// decayKeys counts held keys down one frame and releases expired ones.
func (a *app) decayKeys() {
	for pad := range a.held {
		if a.held[pad] > 0 {
			a.held[pad]--
		}
		a.vm.SetKey(uint8(pad), a.held[pad] > 0)
	}
}

// lowerByte folds ASCII A-Z onto a-z.
func lowerByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// renderDisplay folds the framebuffer into text rows, two pixel rows
// per line using half-block glyphs.
func renderDisplay(m *chip8.Machine) []string {
	rows := make([]string, 0, (m.Height+1)/2)
	var sb strings.Builder
	for y := 0; y < m.Height; y += 2 {
		sb.Reset()
		for x := 0; x < m.Width; x++ {
			top := m.Pixel(x, y)
			bottom := y+1 < m.Height && m.Pixel(x, y+1)
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteByte(' ')
			}
		}
		rows = append(rows, sb.String())
	}
	return rows
}

// statusLine is the footer under the display.
func statusLine(m *chip8.Machine) string {
	parts := []string{m.State.String()}
	if m.SoundActive() {
		parts = append(parts, "beep")
	}
	parts = append(parts, "space pauses, esc quits")
	return strings.Join(parts, " | ")
}

func (a *app) paint() {
	var sb strings.Builder
	sb.WriteString(ansiHome)
	for _, row := range renderDisplay(a.vm) {
		sb.WriteString(row)
		sb.WriteString("\r\n")
	}
	sb.WriteString(statusLine(a.vm))
	sb.WriteString(ansiClearLine)
	a.term.output.WriteString(sb.String())
}

// loadProgram reads a ROM image, assembling it first when the path
// looks like assembly source.
func loadProgram(path string) ([]byte, error) {
	fullPath, _, err := utils.GetPathInfo(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(fullPath)
	if strings.HasSuffix(ext, ".c8asm") || strings.HasSuffix(ext, ".asm") || strings.HasSuffix(ext, ".s") {
		program, _, err := asm.Assemble(string(data))
		if err != nil {
			return nil, err
		}
		return program, nil
	}
	return data, nil
}

func run(romPath string, cfg chip8.Config) error {
	program, err := loadProgram(romPath)
	if err != nil {
		return err
	}

	vm := chip8.NewMachine(cfg)
	if err := vm.LoadProgram(program); err != nil {
		return err
	}

	term, err := NewTerminal(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if err := term.CBreakMode(); err != nil {
		return err
	}
	defer term.CanonicalMode()

	term.output.WriteString(ansiClear + ansiHideCursor)
	defer term.output.WriteString(ansiShowCursor + "\r\n")

	a := &app{vm: vm, term: term}
	keys := make(chan byte, 8)
	go readKeys(term.input, keys)

	return a.loop(keys)
}

func main() {
	cycles := flag.Int("cycles", chip8.DefaultConfig().InstructionsPerTick, "instructions per 60Hz frame")
	permissive := flag.Bool("permissive", false, "treat call stack faults as no-ops instead of halting")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: term [flags] <rom>")
		flag.Usage()
		os.Exit(2)
	}

	cfg := chip8.DefaultConfig()
	cfg.InstructionsPerTick = *cycles
	cfg.Permissive = *permissive

	if err := run(flag.Arg(0), cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
