// Package workspace locates the project a wrapper invocation belongs to.
package workspace

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultMarker is the file whose presence marks a project root.
const DefaultMarker = "Gemfile"

// ErrNotFound is returned when no ancestor of the start directory contains the marker.
var ErrNotFound = errors.New("project root not found")

// Resolve walks from startDir towards the filesystem root and returns the
// first directory containing marker. Only existence checks are performed,
// so it is safe on read-only and network filesystems.
func Resolve(startDir, marker string) (string, error) {
	dir := startDir
	for {
		if exists(filepath.Join(dir, marker)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// RootOrStart returns the project root for startDir, or startDir itself when
// no marker is found anywhere above it.
func RootOrStart(startDir, marker string) string {
	root, err := Resolve(startDir, marker)
	if err != nil {
		return startDir
	}
	return root
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
