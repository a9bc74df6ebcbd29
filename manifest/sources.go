package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SourcePaths expands the configured sources into absolute file paths in
// assembly order. Each glob pattern's matches are sorted; a file matched
// by several patterns is listed once, at its first position. A pattern that
// matches nothing is an error.
func (m *Manifest) SourcePaths() ([]string, error) {
	var paths []string
	seen := make(map[string]bool)

	for _, pattern := range m.Program.Sources {
		matches, err := filepath.Glob(m.resolve(pattern))
		if err != nil {
			return nil, fmt.Errorf("bad source pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("source %q matches no files in %s", pattern, m.Dir)
		}
		sort.Strings(matches)

		for _, p := range matches {
			info, err := os.Stat(p)
			if err != nil {
				return nil, err
			}
			if info.IsDir() || seen[p] {
				continue
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}

	return paths, nil
}
