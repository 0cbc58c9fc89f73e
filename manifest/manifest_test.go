package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/sprig/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"

[source]
entry = "src/app.sp"

[build]
output = "out/app.sbc"
format = "cbor"
legacy-ternary = true

[runtime]
max-heap = 4096
auto-collect = false
trace-array-elements = true
seed = 42
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Source.Entry != "src/app.sp" {
		t.Errorf("source entry = %q, want src/app.sp", m.Source.Entry)
	}
	if m.Build.Format != FormatCBOR || !m.Build.LegacyTernary {
		t.Errorf("build = %+v", m.Build)
	}
	if m.Runtime.MaxHeap != 4096 || m.Runtime.AutoCollect || !m.Runtime.TraceArrayElements {
		t.Errorf("runtime = %+v", m.Runtime)
	}
	if m.Runtime.Seed == nil || *m.Runtime.Seed != 42 {
		t.Errorf("runtime seed = %v, want 42", m.Runtime.Seed)
	}
	if want := filepath.Join(m.Dir, "out", "app.sbc"); m.OutputPath() != want {
		t.Errorf("OutputPath() = %q, want %q", m.OutputPath(), want)
	}
	if want := filepath.Join(m.Dir, "src", "app.sp"); m.EntryPath() != want {
		t.Errorf("EntryPath() = %q, want %q", m.EntryPath(), want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Source.Entry != "main.sp" {
		t.Errorf("default entry = %q, want main.sp", m.Source.Entry)
	}
	if m.Build.Format != FormatJSON {
		t.Errorf("default format = %q, want json", m.Build.Format)
	}
	if m.Runtime.MaxHeap != vm.DefaultMaxHeap || !m.Runtime.AutoCollect {
		t.Errorf("default runtime = %+v", m.Runtime)
	}
	if m.Runtime.Seed != nil {
		t.Errorf("default seed = %d, want unset", *m.Runtime.Seed)
	}
	if want := filepath.Join(m.Dir, "main.json"); m.OutputPath() != want {
		t.Errorf("OutputPath() = %q, want %q", m.OutputPath(), want)
	}
}

func TestParseRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"format", "[build]\nformat = \"yaml\"\n", "build.format"},
		{"heap", "[runtime]\nmax-heap = 0\n", "max-heap"},
		{"entry", "[source]\nentry = \"\"\n", "source.entry"},
		{"unknown key", "[runtime]\nmax-heep = 10\n", "runtime.max-heep"},
		{"syntax", "[project\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no sprig.toml exists")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	seed := int64(9)
	m := Default()
	m.Project = Project{Name: "written", Version: "1.2.3"}
	m.Build.Format = FormatCBOR
	m.Runtime.Seed = &seed

	if err := Write(dir, m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Project != m.Project || loaded.Build != m.Build {
		t.Errorf("loaded %+v %+v, want %+v %+v", loaded.Project, loaded.Build, m.Project, m.Build)
	}
	if loaded.Runtime.Seed == nil || *loaded.Runtime.Seed != 9 {
		t.Errorf("seed did not survive: %v", loaded.Runtime.Seed)
	}
}

func TestOptions(t *testing.T) {
	m := Default()
	m.Runtime.MaxHeap = 128
	rt := vm.NewRuntime(m.RuntimeOptions()...)
	if rt.Heap().MaxSize() != 128 {
		t.Errorf("heap budget = %d, want 128", rt.Heap().MaxSize())
	}
	if len(m.CompilerOptions()) != 1 || len(m.InterpreterOptions()) != 1 {
		t.Errorf("unexpected option counts")
	}
}
