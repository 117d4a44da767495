// Package finder locates the spec project root by searching upward for
// marker directories.
package finder

import (
	"fmt"
	"os"
	"path/filepath"
)

// Root is a discovered project root.
type Root struct {
	// Path is the absolute project root directory.
	Path string
	// Markers lists which marker directories were found, in the order
	// checked.
	Markers []string
}

// markerDirs identify a spec-driven project.
var markerDirs = []string{".specify", "specs"}

// Find searches from start upward through ancestor directories for a
// directory containing one of the marker directories.
func Find(start string) (Root, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return Root{}, fmt.Errorf("finder: resolve start: %w", err)
	}

	dir := abs
	for {
		var markers []string
		for _, m := range markerDirs {
			if info, statErr := os.Stat(filepath.Join(dir, m)); statErr == nil && info.IsDir() {
				markers = append(markers, m+"/")
			}
		}
		if len(markers) > 0 {
			return Root{Path: dir, Markers: markers}, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Root{}, fmt.Errorf("finder: no spec project found: searched from %s, no .specify/ or specs/ directory in any ancestor", abs)
		}
		dir = parent
	}
}
