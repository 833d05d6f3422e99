package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"gochip8/pkg/asm"
	"gochip8/pkg/beep"
	"gochip8/pkg/chip8"
	"gochip8/pkg/utils"
)

// keymap lays the hex pad over the left-hand block of a QWERTY
// keyboard:
//
//	1 2 3 4        1 2 3 C
//	Q W E R   ->   4 5 6 D
//	A S D F        7 8 9 E
//	Z X C V        A 0 B F
var keymap = map[ebiten.Key]uint8{
	ebiten.Key1: 0x1, ebiten.Key2: 0x2, ebiten.Key3: 0x3, ebiten.Key4: 0xC,
	ebiten.KeyQ: 0x4, ebiten.KeyW: 0x5, ebiten.KeyE: 0x6, ebiten.KeyR: 0xD,
	ebiten.KeyA: 0x7, ebiten.KeyS: 0x8, ebiten.KeyD: 0x9, ebiten.KeyF: 0xE,
	ebiten.KeyZ: 0xA, ebiten.KeyX: 0x0, ebiten.KeyC: 0xB, ebiten.KeyV: 0xF,
}

type Game struct {
	vm       *chip8.Machine
	rec      *beep.Recorder
	savePath string
	scale    int
	fg, bg   color.RGBA

	canvas *ebiten.Image // reused Width×Height bitmap canvas
	pixels []byte
	status string
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		if g.vm.State == chip8.Paused {
			g.vm.Resume()
		} else {
			g.vm.Pause()
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := g.vm.HibernateToFile(g.savePath); err != nil {
			g.status = fmt.Sprintf("save failed: %v", err)
		} else {
			g.status = "saved " + g.savePath
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if err := g.vm.RestoreFromFile(g.savePath); err != nil {
			g.status = fmt.Sprintf("restore failed: %v", err)
		} else {
			g.status = "restored " + g.savePath
		}
	}

	for key, pad := range keymap {
		g.vm.SetKey(pad, ebiten.IsKeyPressed(key))
	}

	// One call per 60Hz update keeps the timers honest; the batch
	// breaks early if the program halts or parks on a key wait.
	if err := g.vm.RunFrame(); err != nil {
		g.status = err.Error()
	}

	if g.rec != nil {
		g.rec.Tick(g.vm.SoundActive())
	}

	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.canvas == nil {
		g.canvas = ebiten.NewImage(g.vm.Width, g.vm.Height)
		g.pixels = make([]byte, 4*g.vm.Width*g.vm.Height)
	}

	for y := 0; y < g.vm.Height; y++ {
		for x := 0; x < g.vm.Width; x++ {
			c := g.bg
			if g.vm.Pixel(x, y) {
				c = g.fg
			}
			i := 4 * (y*g.vm.Width + x)
			g.pixels[i] = c.R
			g.pixels[i+1] = c.G
			g.pixels[i+2] = c.B
			g.pixels[i+3] = 0xFF
		}
	}
	g.canvas.WritePixels(g.pixels)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.scale), float64(g.scale))
	screen.DrawImage(g.canvas, op)

	if overlay := g.overlayText(); overlay != "" {
		text.Draw(screen, overlay, basicfont.Face7x13, 4, g.vm.Height*g.scale-4, color.White)
	}
}

// overlayText is the one-line status footer. Empty while the machine
// is running quietly.
func (g *Game) overlayText() string {
	parts := make([]string, 0, 3)
	if g.vm.State != chip8.Running {
		parts = append(parts, g.vm.State.String())
	}
	if g.vm.SoundActive() {
		parts = append(parts, "beep")
	}
	if g.status != "" {
		parts = append(parts, g.status)
	}
	return strings.Join(parts, " | ")
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.vm.Width * g.scale, g.vm.Height * g.scale
}

// parseColor reads an RRGGBB hex string.
func parseColor(s string) (color.RGBA, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil || len(strings.TrimPrefix(s, "#")) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q, want RRGGBB", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
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

func main() {
	scale := flag.Int("scale", 10, "pixels per cell")
	fgHex := flag.String("fg", "FFFFFF", "foreground color (RRGGBB)")
	bgHex := flag.String("bg", "000000", "background color (RRGGBB)")
	cycles := flag.Int("cycles", chip8.DefaultConfig().InstructionsPerTick, "instructions per 60Hz frame")
	savePath := flag.String("save", "", "savestate path for F5/F9 (default: ROM with .save extension)")
	wavPath := flag.String("wav", "", "capture the sound timer to a WAV file")
	permissive := flag.Bool("permissive", false, "treat call stack faults as no-ops instead of halting")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: desktop [flags] <rom>")
		flag.Usage()
		os.Exit(2)
	}
	romPath := flag.Arg(0)

	fg, err := parseColor(*fgHex)
	if err != nil {
		log.Fatalf("Bad -fg: %v", err)
	}
	bg, err := parseColor(*bgHex)
	if err != nil {
		log.Fatalf("Bad -bg: %v", err)
	}

	program, err := loadProgram(romPath)
	if err != nil {
		log.Fatalf("Failed to load %q: %v", romPath, err)
	}

	cfg := chip8.DefaultConfig()
	cfg.InstructionsPerTick = *cycles
	cfg.Permissive = *permissive

	vm := chip8.NewMachine(cfg)
	if err := vm.LoadProgram(program); err != nil {
		log.Fatalf("Failed to load program: %v", err)
	}

	save := *savePath
	if save == "" {
		save = utils.ReplaceExt(romPath, ".save")
	}

	game := &Game{
		vm:       vm,
		savePath: save,
		scale:    *scale,
		fg:       fg,
		bg:       bg,
	}
	if *wavPath != "" {
		game.rec = beep.NewRecorder(*wavPath, beep.DefaultSampleRate, beep.DefaultToneHz)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(vm.Width*game.scale, vm.Height*game.scale)
	ebiten.SetWindowTitle("GoCHIP-8")

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
	if game.rec != nil {
		if err := game.rec.Close(); err != nil {
			log.Fatalf("Writing sound capture: %v", err)
		}
	}
}
