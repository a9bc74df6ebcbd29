package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/noodle/pkg/bytecode"
)

// ImageExt marks binary program images; anything else is assembler source.
const ImageExt = ".nbc"

// loadProgram resolves the program a command works on. A stored program
// name wins, then file arguments, then the manifest's sources.
func (a *app) loadProgram(args []string, stored string) (*bytecode.Program, error) {
	if stored != "" {
		s, err := a.openStore()
		if err != nil {
			return nil, err
		}
		defer s.Close()

		p, rec, err := s.Get(stored)
		if err != nil {
			return nil, err
		}
		a.log.Infof("loaded %s revision %s from store", rec.Name, rec.Revision)
		return p, nil
	}

	paths := args
	fromManifest := len(paths) == 0
	if fromManifest {
		var err error
		if paths, err = a.manifest.SourcePaths(); err != nil {
			return nil, err
		}
	}

	p, err := loadFiles(paths)
	if err != nil {
		return nil, err
	}
	if fromManifest {
		p.Entry = a.manifest.Program.Entry
	}
	a.log.Debugf("loaded %d functions from %d files", len(p.Functions), len(paths))
	return p, nil
}

// loadFiles reads each file and merges them into one program. The first
// file decides the entry point.
func loadFiles(paths []string) (*bytecode.Program, error) {
	var prog *bytecode.Program
	for _, path := range paths {
		p, err := readProgramFile(path)
		if err != nil {
			return nil, err
		}
		if prog == nil {
			prog = p
			continue
		}
		if err := prog.Merge(p); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if prog == nil {
		return nil, fmt.Errorf("no program files given")
	}
	return prog, nil
}

func readProgramFile(path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p *bytecode.Program
	if strings.EqualFold(filepath.Ext(path), ImageExt) {
		p, err = bytecode.UnmarshalImage(data)
	} else {
		p, err = bytecode.Assemble(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// imagePath derives the output image path for a source file.
func imagePath(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + ImageExt
}
