// Package security validates user-supplied file paths before the CLI
// writes to them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateOutputPath checks that path may be created or overwritten as an
// output file. The extension must be one of exts (case-insensitive), the
// parent directory must exist, and path must not name a directory.
func ValidateOutputPath(path string, exts ...string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("output path is empty")
	}
	cleanPath := filepath.Clean(path)

	if len(exts) > 0 {
		ext := strings.ToLower(filepath.Ext(cleanPath))
		ok := false
		for _, want := range exts {
			if ext == strings.ToLower(want) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("output %s must have extension %s", path, strings.Join(exts, " or "))
		}
	}

	dir := filepath.Dir(cleanPath)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}

	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return fmt.Errorf("output %s is a directory", path)
	}
	return nil
}
