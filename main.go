// Package main implements the gochip8 command line: assemble CHIP-8
// source, run images headless, dump listings, and resume savestates.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gochip8/pkg/asm"
	"gochip8/pkg/beep"
	"gochip8/pkg/chip8"
	"gochip8/pkg/utils"

	"github.com/retroenv/retrogolib/log"
)

type options struct {
	in      string
	out     string
	run     string
	disasm  string
	restore string

	steps      int
	cycles     int
	trace      bool
	permissive bool
	wav        string
	save       string

	debug bool
	quiet bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.in, "in", "", "assembly source to assemble")
	flag.StringVar(&opts.out, "out", "", "assembled output path (default: input with .ch8 extension)")
	flag.StringVar(&opts.run, "run", "", "program image to run headless (source files are assembled first)")
	flag.StringVar(&opts.disasm, "disasm", "", "program image to disassemble to stdout")
	flag.StringVar(&opts.restore, "restore", "", "savestate archive to resume headless")
	flag.IntVar(&opts.steps, "steps", 500000, "instruction budget for headless runs")
	flag.IntVar(&opts.cycles, "cycles", chip8.DefaultConfig().InstructionsPerTick, "instructions per 60Hz frame")
	flag.BoolVar(&opts.trace, "trace", false, "disassemble every executed instruction")
	flag.BoolVar(&opts.permissive, "permissive", false, "treat call stack faults as no-ops instead of halting")
	flag.StringVar(&opts.wav, "wav", "", "record the sound timer of a headless run to a WAV file")
	flag.StringVar(&opts.save, "save", "", "hibernate the machine to this path when the run ends")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.BoolVar(&opts.quiet, "quiet", false, "only log errors")
	flag.Parse()
	return opts
}

func newLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

func main() {
	opts := parseFlags()
	logger := newLogger(opts.debug, opts.quiet)

	if opts.run != "" && opts.restore != "" {
		fmt.Fprintln(os.Stderr, "use either -run or -restore, not both")
		os.Exit(2)
	}
	if opts.in == "" && opts.run == "" && opts.disasm == "" && opts.restore == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in to assemble, -run <image> for a headless run, -disasm <image> for a listing, or -restore <state> to resume a savestate")
		flag.Usage()
		os.Exit(2)
	}

	if opts.in != "" {
		if err := assembleFile(logger, opts.in, opts.out); err != nil {
			logger.Fatal(err.Error())
		}
	}

	var err error
	switch {
	case opts.run != "":
		err = runFile(logger, opts)
	case opts.restore != "":
		err = restoreAndRun(logger, opts)
	case opts.disasm != "":
		err = disasmFile(opts.disasm)
	}
	if err != nil {
		logger.Fatal(err.Error())
	}
}

// assembleFile assembles a source file and writes the image next to it
// unless -out overrides the destination.
func assembleFile(logger *log.Logger, in, out string) error {
	source, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("reading %q: %w", in, err)
	}
	code, _, err := asm.Assemble(string(source))
	if err != nil {
		return fmt.Errorf("assembling %q: %w", in, err)
	}
	if out == "" {
		out = utils.ReplaceExt(in, ".ch8")
	}
	if err := os.WriteFile(out, code, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", out, err)
	}
	logger.Info("Assembled program",
		log.String("in", in),
		log.String("out", out),
		log.Int("bytes", len(code)))
	return nil
}

// disasmFile prints a listing of a program image to stdout.
func disasmFile(path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(image) > chip8.MaxProgramSize {
		return fmt.Errorf("%q is %d bytes, limit %d", path, len(image), chip8.MaxProgramSize)
	}
	for _, line := range chip8.Listing(image) {
		fmt.Println(line)
	}
	return nil
}

// loadImage reads a program image, assembling it first when the path
// looks like assembly source.
func loadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".c8asm") || strings.HasSuffix(lower, ".asm") || strings.HasSuffix(lower, ".s") {
		code, _, err := asm.Assemble(string(data))
		if err != nil {
			return nil, err
		}
		return code, nil
	}
	return data, nil
}

// runFile loads a program image and executes it headless.
func runFile(logger *log.Logger, opts options) error {
	image, err := loadImage(opts.run)
	if err != nil {
		return err
	}

	cfg := chip8.DefaultConfig()
	cfg.InstructionsPerTick = opts.cycles
	cfg.Permissive = opts.permissive
	m := chip8.NewMachine(cfg)
	if err := m.LoadProgram(image); err != nil {
		return err
	}

	logger.Info("Running program",
		log.String("file", opts.run),
		log.Int("bytes", len(image)),
		log.Int("budget", opts.steps))

	return runMachine(logger, m, opts)
}

// restoreAndRun resumes a hibernated machine headless. The archive
// carries resolution and pacing, so flags only set the budget and the
// capture paths.
func restoreAndRun(logger *log.Logger, opts options) error {
	m := chip8.NewMachine(chip8.DefaultConfig())
	if err := m.RestoreFromFile(opts.restore); err != nil {
		return err
	}
	// A state saved from a paused frontend continues running here.
	m.Resume()

	logger.Info("Restored machine",
		log.String("file", opts.restore),
		log.Hex("pc", m.PC),
		log.Stringer("state", m.State))

	return runMachine(logger, m, opts)
}

// runMachine drives a loaded machine at the frontend cadence, one batch
// of instructions per 60Hz frame, with optional tracing and sound
// capture. The final register file is printed unless -quiet.
func runMachine(logger *log.Logger, m *chip8.Machine, opts options) error {
	var rec *beep.Recorder
	if opts.wav != "" {
		rec = beep.NewRecorder(opts.wav, beep.DefaultSampleRate, beep.DefaultToneHz)
	}

	perFrame := m.InstructionsPerTick
	if perFrame < 1 {
		perFrame = 1
	}

	var runErr error
	executed := 0
loop:
	for executed < opts.steps {
		for i := 0; i < perFrame && executed < opts.steps; i++ {
			if m.State == chip8.Halted {
				break loop
			}
			if m.State == chip8.AwaitingKey {
				// No key will ever arrive headless.
				logger.Info("Machine is waiting for a key, stopping", log.Hex("pc", m.PC))
				break loop
			}
			if opts.trace {
				traceStep(logger, m)
			}
			executed++
			if err := m.Step(); err != nil {
				runErr = err
				break loop
			}
		}
		if rec != nil {
			rec.Tick(m.SoundActive())
		}
	}

	if rec != nil {
		if err := rec.Close(); err != nil {
			if runErr == nil {
				runErr = err
			}
		} else {
			logger.Info("Sound capture written",
				log.String("file", opts.wav),
				log.Int("frames", rec.Frames()))
		}
	}

	logger.Info("Run finished",
		log.Int("executed", executed),
		log.Stringer("state", m.State),
		log.Hex("pc", m.PC))

	if opts.save != "" {
		// Hibernate even after a fault so the state can be inspected.
		if err := m.HibernateToFile(opts.save); err != nil {
			if runErr == nil {
				runErr = err
			}
		} else {
			logger.Info("Machine hibernated", log.String("file", opts.save))
		}
	}

	if !opts.quiet {
		printFinalState(m)
	}
	return runErr
}

// traceStep logs the instruction the next Step will execute.
func traceStep(logger *log.Logger, m *chip8.Machine) {
	hi := m.Memory[int(m.PC)%chip8.MemorySize]
	lo := m.Memory[int(m.PC+1)%chip8.MemorySize]
	w := uint16(hi)<<8 | uint16(lo)
	logger.Info("Trace",
		log.Hex("pc", m.PC),
		log.Hex("word", w),
		log.String("text", chip8.Disassemble(w)))
}

// printFinalState dumps the register file the way a debugger would:
// control registers on one line, the V file on two.
func printFinalState(m *chip8.Machine) {
	fmt.Printf("PC=0x%03X I=0x%03X SP=%d DT=%d ST=%d state=%s\n",
		m.PC, m.I, m.SP, m.Delay, m.Sound, m.State)
	for i := 0; i < len(m.V); i += 8 {
		for j := i; j < i+8; j++ {
			fmt.Printf("V%X=0x%02X ", j, m.V[j])
		}
		fmt.Println()
	}
}
