// Package manifest handles sprig.toml project configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/sprig/compiler"
	"github.com/chazu/sprig/vm"
)

// FileName is the manifest file looked up in project directories.
const FileName = "sprig.toml"

// Output formats.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Manifest represents a sprig.toml project configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	Source  Source        `toml:"source"`
	Build   BuildConfig   `toml:"build"`
	Runtime RuntimeConfig `toml:"runtime"`

	// Dir is the directory containing the sprig.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures the program entry file.
type Source struct {
	Entry string `toml:"entry"`
}

// BuildConfig configures compilation output.
type BuildConfig struct {
	Output        string `toml:"output"`
	Format        string `toml:"format"`
	LegacyTernary bool   `toml:"legacy-ternary"`
}

// RuntimeConfig configures the heap and interpreter.
type RuntimeConfig struct {
	MaxHeap            int    `toml:"max-heap"`
	AutoCollect        bool   `toml:"auto-collect"`
	TraceArrayElements bool   `toml:"trace-array-elements"`
	Seed               *int64 `toml:"seed,omitempty"`
}

// Default returns the configuration used for absent fields.
func Default() *Manifest {
	return &Manifest{
		Source: Source{Entry: "main.sp"},
		Build:  BuildConfig{Format: FormatJSON},
		Runtime: RuntimeConfig{
			MaxHeap:     vm.DefaultMaxHeap,
			AutoCollect: true,
		},
	}
}

// Load parses a sprig.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text over the defaults and checks it.
func Parse(data []byte) (*Manifest, error) {
	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	return m, nil
}

// Check reports the first invalid setting.
func (m *Manifest) Check() error {
	switch m.Build.Format {
	case FormatJSON, FormatCBOR:
	default:
		return fmt.Errorf("build.format must be %q or %q, not %q", FormatJSON, FormatCBOR, m.Build.Format)
	}
	if m.Runtime.MaxHeap <= 0 {
		return fmt.Errorf("runtime.max-heap must be positive, not %d", m.Runtime.MaxHeap)
	}
	if m.Source.Entry == "" {
		return fmt.Errorf("source.entry must not be empty")
	}
	return nil
}

// FindAndLoad walks up from startDir to find a sprig.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Write encodes m into dir/sprig.toml.
func Write(dir string, m *Manifest) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.Source.Entry)
}

// OutputPath returns where compiled bytecode is written. Without an
// explicit output it is the entry file with the format's extension.
func (m *Manifest) OutputPath() string {
	if m.Build.Output != "" {
		return filepath.Join(m.Dir, m.Build.Output)
	}
	base := strings.TrimSuffix(m.Source.Entry, filepath.Ext(m.Source.Entry))
	return filepath.Join(m.Dir, base+Extension(m.Build.Format))
}

// Extension returns the file extension for an output format.
func Extension(format string) string {
	if format == FormatCBOR {
		return ".sbc"
	}
	return ".json"
}

// CompilerOptions translates [build] settings.
func (m *Manifest) CompilerOptions() []compiler.Option {
	return []compiler.Option{compiler.WithLegacyTernary(m.Build.LegacyTernary)}
}

// RuntimeOptions translates [runtime] heap settings.
func (m *Manifest) RuntimeOptions() []vm.RuntimeOption {
	opts := []vm.RuntimeOption{
		vm.WithMaxHeap(m.Runtime.MaxHeap),
		vm.WithArrayElementTracing(m.Runtime.TraceArrayElements),
	}
	if m.Runtime.Seed != nil {
		opts = append(opts, vm.WithSeed(uint64(*m.Runtime.Seed)))
	}
	return opts
}

// InterpreterOptions translates [runtime] interpreter settings.
func (m *Manifest) InterpreterOptions() []vm.InterpreterOption {
	return []vm.InterpreterOption{vm.WithAutoCollect(m.Runtime.AutoCollect)}
}
