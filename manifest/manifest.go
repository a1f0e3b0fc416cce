// Package manifest handles frospy.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/frospy/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "frospy.toml"

// Manifest represents a frospy.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Trace   Trace   `toml:"trace"`
	Run     Run     `toml:"run"`
	Build   Build   `toml:"build"`

	// Dir is the directory containing the frospy.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// Trace selects the diagnostic output of run and compile.
type Trace struct {
	All          bool `toml:"all"`
	Exec         bool `toml:"exec"`
	Env          bool `toml:"env"`
	Instructions bool `toml:"instructions"`
	Stack        bool `toml:"stack"`
}

// Run configures the trampoline.
type Run struct {
	MaxSteps uint64 `toml:"max-steps"`
	Cache    bool   `toml:"cache"`
}

// Build configures compile and build outputs.
type Build struct {
	Output string `toml:"output"` // generated Go program
	Image  string `toml:"image"`  // CBOR image
}

// Load parses a frospy.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Project.Entry == "" {
		m.Project.Entry = "main.fy"
	}
	if !md.IsDefined("run", "cache") {
		m.Run.Cache = true
	}
	if m.Build.Output == "" {
		m.Build.Output = "main.go"
	}
	if m.Build.Image == "" {
		m.Build.Image = "main.fspi"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a frospy.toml file,
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

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	return m.path(m.Project.Entry)
}

// OutputPath returns the absolute path of the generated Go program.
func (m *Manifest) OutputPath() string {
	return m.path(m.Build.Output)
}

// ImagePath returns the absolute path of the built image.
func (m *Manifest) ImagePath() string {
	return m.path(m.Build.Image)
}

func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// TraceOptions converts the [trace] table to runtime options.
func (m *Manifest) TraceOptions() vm.TraceOptions {
	if m.Trace.All {
		return vm.TraceAll()
	}
	return vm.TraceOptions{
		Exec:         m.Trace.Exec,
		Env:          m.Trace.Env,
		Instructions: m.Trace.Instructions,
		Stack:        m.Trace.Stack,
	}
}
