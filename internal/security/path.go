package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateLocalPath validates that a locally materialized media or database
// path is safe to touch: non-empty, free of NUL bytes, and free of directory
// traversal once cleaned. Absolute paths are allowed — the storage layer
// hands out absolute on-device paths.
func ValidateLocalPath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("file path contains NUL byte")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}

	return nil
}

// ValidateLocalPathWithBase additionally requires that path resolves inside
// baseDir after cleaning.
func ValidateLocalPathWithBase(path, baseDir string) error {
	if err := ValidateLocalPath(path); err != nil {
		return err
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Clean(filepath.Join(baseDir, cleanPath))
	}
	cleanBase := filepath.Clean(baseDir)

	if cleanPath != cleanBase && !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}

	return nil
}
