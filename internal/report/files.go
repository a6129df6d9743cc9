package report

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to path, creating the parent directory when needed
func WriteFile(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// SaveSummary writes the Markdown summary of a report into dir under its
// attachment name and returns the resulting path.
func SaveSummary(dir, summary, name string) (string, error) {
	path := filepath.Join(dir, name)
	if err := WriteFile(path, []byte(summary)); err != nil {
		return "", err
	}
	return path, nil
}
