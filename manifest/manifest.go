// Package manifest handles noodle.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up in project directories.
const FileName = "noodle.toml"

// Defaults applied by Load.
const (
	DefaultSource    = "main.nasm"
	DefaultEntry     = "main"
	DefaultStorePath = ".noodle/programs.db"
)

// Manifest represents a noodle.toml project configuration.
type Manifest struct {
	Project Project   `toml:"project"`
	Program Program   `toml:"program"`
	VM      VMConfig  `toml:"vm"`
	Store   Store     `toml:"store"`
	Log     LogConfig `toml:"log"`

	// Dir is the directory containing the noodle.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Program lists the assembler sources that make up the program.
// Sources may be glob patterns and are assembled in order.
type Program struct {
	Sources []string `toml:"sources"`
	Entry   string   `toml:"entry"`
}

// VMConfig configures the interpreter.
type VMConfig struct {
	Trace        bool  `toml:"trace"`
	Echo         *bool `toml:"echo"`
	MaxCallDepth int   `toml:"max-call-depth"`
}

// Store configures the SQLite program store.
type Store struct {
	Path string `toml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the manifest used when a directory has no noodle.toml.
func Default(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m := &Manifest{Dir: abs}
	m.applyDefaults()
	return m, nil
}

// Load parses a noodle.toml file from the given directory.
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
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.VM.MaxCallDepth < 0 {
		return nil, fmt.Errorf("%s: vm.max-call-depth must not be negative", path)
	}

	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if len(m.Program.Sources) == 0 {
		m.Program.Sources = []string{DefaultSource}
	}
	if m.Program.Entry == "" {
		m.Program.Entry = DefaultEntry
	}
	if m.Store.Path == "" {
		m.Store.Path = DefaultStorePath
	}
}

// FindAndLoad walks up from startDir to find a noodle.toml file,
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

// EchoOutput reports whether PRINT should also write to stdout. Defaults to true.
func (m *Manifest) EchoOutput() bool {
	return m.VM.Echo == nil || *m.VM.Echo
}

// StorePath returns the absolute path of the program store database.
func (m *Manifest) StorePath() string {
	return m.resolve(m.Store.Path)
}

// LogFile returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
