// Sprig CLI - compiles, disassembles and runs Sprig programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/sprig/bytecode"
	"github.com/chazu/sprig/compiler"
	"github.com/chazu/sprig/manifest"
	"github.com/chazu/sprig/vm"
)

var log = commonlog.GetLogger("sprig.cli")

var (
	errorLabel   = color.New(color.FgRed, color.Bold)
	warningLabel = color.New(color.FgYellow)
	noteLabel    = color.New(color.FgCyan)
)

type options struct {
	output        string
	format        string
	disasm        bool
	run           bool
	heap          int
	seed          int64
	autoCollect   bool
	legacyTernary bool
	init          bool
	set           map[string]bool
}

func main() {
	var opts options
	verbose := flag.Int("v", 0, "Log verbosity (1 = info, 2 = debug)")
	noColor := flag.Bool("no-color", false, "Disable colored diagnostics")
	flag.StringVar(&opts.output, "o", "", "Write compiled bytecode to this file")
	flag.StringVar(&opts.format, "format", manifest.FormatJSON, "Bytecode format: json or cbor")
	flag.BoolVar(&opts.disasm, "disasm", false, "Print a disassembly of the program")
	flag.BoolVar(&opts.run, "run", false, "Execute the program after loading it")
	flag.IntVar(&opts.heap, "heap", vm.DefaultMaxHeap, "Heap budget in bytes")
	flag.Int64Var(&opts.seed, "seed", 0, "Seed for random()")
	flag.BoolVar(&opts.autoCollect, "auto-collect", true, "Collect garbage when an allocation would not fit")
	flag.BoolVar(&opts.legacyTernary, "legacy-ternary", false, "Use the historical ternary lowering")
	flag.BoolVar(&opts.init, "init", false, "Write a default sprig.toml in the current directory")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sprig [options] [file.sp | file.json | file.sbc]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles Sprig source to bytecode, or loads compiled bytecode, and optionally runs it.\n")
		fmt.Fprintf(os.Stderr, "Without a file the entry of the nearest sprig.toml is used.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sprig -init                    # Create sprig.toml\n")
		fmt.Fprintf(os.Stderr, "  sprig main.sp                  # Compile to main.json\n")
		fmt.Fprintf(os.Stderr, "  sprig -run main.sp             # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  sprig -format cbor -o a.sbc main.sp\n")
		fmt.Fprintf(os.Stderr, "  sprig -disasm a.sbc            # Inspect a compiled image\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)
	if *noColor {
		color.NoColor = true
	}
	opts.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if opts.init {
		if err := writeDefaultManifest(); err != nil {
			fail(err)
		}
		return
	}

	code, err := execute(opts, flag.Args(), os.Stdout, os.Stderr)
	if err != nil {
		fail(err)
	}
	os.Exit(code)
}

func fail(err error) {
	errorLabel.Fprint(os.Stderr, "error: ")
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func writeDefaultManifest() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(cwd, manifest.FileName)); err == nil {
		return fmt.Errorf("%s already exists", manifest.FileName)
	}
	m := manifest.Default()
	m.Project.Name = filepath.Base(cwd)
	m.Project.Version = "0.1.0"
	if err := manifest.Write(cwd, m); err != nil {
		return err
	}
	noteLabel.Printf("created %s\n", manifest.FileName)
	return nil
}

// loadConfig finds the project manifest and applies flags that were set
// explicitly on top of it.
func loadConfig(opts options) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
		if m.Dir, err = os.Getwd(); err != nil {
			return nil, err
		}
	} else {
		log.Infof("using %s", filepath.Join(m.Dir, manifest.FileName))
	}

	if opts.set["format"] {
		m.Build.Format = opts.format
	}
	if opts.set["o"] {
		m.Build.Output = opts.output
	}
	if opts.set["legacy-ternary"] {
		m.Build.LegacyTernary = opts.legacyTernary
	}
	if opts.set["heap"] {
		m.Runtime.MaxHeap = opts.heap
	}
	if opts.set["auto-collect"] {
		m.Runtime.AutoCollect = opts.autoCollect
	}
	if opts.set["seed"] {
		seed := opts.seed
		m.Runtime.Seed = &seed
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	return m, nil
}

// execute performs one CLI invocation and returns the process exit code.
func execute(opts options, args []string, stdout, stderr io.Writer) (int, error) {
	m, err := loadConfig(opts)
	if err != nil {
		return 1, err
	}

	input := m.EntryPath()
	if len(args) > 0 {
		input = args[0]
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return 1, err
	}

	var prog *bytecode.Program
	fromSource := !isBytecodeFile(input)
	if fromSource {
		prog, err = compileSource(input, string(data), m, stderr)
		if err != nil {
			return 1, err
		}
	} else if prog, err = bytecode.Unmarshal(data); err != nil {
		return 1, fmt.Errorf("%s: %w", input, err)
	}

	if sum, err := bytecode.Fingerprint(prog); err == nil {
		log.Debugf("program fingerprint %x", sum[:8])
	}
	if opts.disasm {
		fmt.Fprint(stdout, bytecode.Disassemble(prog))
	}

	// Source input is compiled to a file unless the user only asked to
	// inspect or run it.
	if opts.set["o"] || (fromSource && !opts.disasm && !opts.run) {
		out := m.OutputPath()
		if opts.set["o"] {
			out = opts.output
		} else if len(args) > 0 {
			out = strings.TrimSuffix(input, filepath.Ext(input)) + manifest.Extension(m.Build.Format)
		}
		if err := writeProgram(out, prog, m.Build.Format); err != nil {
			return 1, err
		}
		log.Infof("wrote %s", out)
	}

	if !opts.run {
		return 0, nil
	}
	return runProgram(prog, m, stdout)
}

func isBytecodeFile(path string) bool {
	switch filepath.Ext(path) {
	case ".json", ".sbc":
		return true
	}
	return false
}

// compileSource parses, lints and generates bytecode, printing every
// diagnostic with its position.
func compileSource(path, source string, m *manifest.Manifest, stderr io.Writer) (*bytecode.Program, error) {
	ast, err := compiler.Parse(source)
	if err != nil {
		printDiagnostics(stderr, path, err)
		return nil, errors.New("compilation failed")
	}
	for _, w := range compiler.Analyze(ast) {
		fmt.Fprintf(stderr, "%s:%d:%d: ", path, w.Pos.Line, w.Pos.Column)
		warningLabel.Fprint(stderr, "warning: ")
		fmt.Fprintln(stderr, w.Msg)
	}
	prog, err := compiler.Generate(ast, m.CompilerOptions()...)
	if err != nil {
		printDiagnostics(stderr, path, err)
		return nil, errors.New("compilation failed")
	}
	log.Infof("compiled %s: %d functions, %d classes, %d constants",
		path, len(prog.Functions), len(prog.Classes), len(prog.Constants))
	return prog, nil
}

func printDiagnostics(w io.Writer, path string, err error) {
	for _, d := range compiler.Diagnostics(err) {
		if d.Pos.Line > 0 {
			fmt.Fprintf(w, "%s:%d:%d: ", path, d.Pos.Line, d.Pos.Column)
		} else {
			fmt.Fprintf(w, "%s: ", path)
		}
		errorLabel.Fprint(w, "error: ")
		fmt.Fprintln(w, d.Msg)
	}
}

func writeProgram(path string, prog *bytecode.Program, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case manifest.FormatCBOR:
		data, err = bytecode.MarshalCBOR(prog)
	default:
		data, err = bytecode.MarshalJSON(prog)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// runProgram executes prog. An int returned by main becomes the exit code.
func runProgram(prog *bytecode.Program, m *manifest.Manifest, stdout io.Writer) (int, error) {
	rt := vm.NewRuntime(append(m.RuntimeOptions(), vm.WithStdout(stdout))...)
	interp, err := vm.NewInterpreter(prog, rt, m.InterpreterOptions()...)
	if err != nil {
		return 1, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := interp.RunContext(ctx)
	if err != nil {
		return 1, err
	}
	gc := rt.GC()
	log.Infof("runtime %s: %d steps, %d collections, %d bytes live",
		rt.ID(), interp.Steps(), gc.Collections(), rt.Heap().AllocatedBytes())

	if result.Kind == vm.KindInt32 {
		return int(result.AsInt32()), nil
	}
	return 0, nil
}
