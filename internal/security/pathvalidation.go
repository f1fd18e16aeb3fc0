// Package security guards file paths that come from flags or config before
// reports are written to disk.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside every permitted root.
var ErrOutsideRoot = errors.New("path escapes permitted directory")

// maxNameLen caps sanitized file names.
const maxNameLen = 96

// canonical resolves p to an absolute path with symlinks evaluated. When p
// does not exist yet, the nearest existing ancestor is resolved and the rest
// of the path appended, so a link in a parent directory cannot redirect a
// file that is about to be created.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", p, err)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
	}
}

// ValidatePathWithinDirectory returns an error wrapping ErrOutsideRoot when
// path, after resolving dot segments and symlinks, is not root or below it.
func ValidatePathWithinDirectory(path, root string) error {
	target, err := canonical(path)
	if err != nil {
		return err
	}
	base, err := canonical(root)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is not under %s", ErrOutsideRoot, path, root)
	}
	return nil
}

// ValidatePathWithinAllowedDirs accepts path if it lies within any of roots.
func ValidatePathWithinAllowedDirs(path string, roots []string) error {
	if len(roots) == 0 {
		return fmt.Errorf("%w: no directories permitted", ErrOutsideRoot)
	}
	for _, root := range roots {
		if ValidatePathWithinDirectory(path, root) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be under one of %v", ErrOutsideRoot, path, roots)
}

// ValidateExportPath accepts paths below the working directory or the
// system temp directory.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	return ValidatePathWithinAllowedDirs(path, []string{cwd, os.TempDir()})
}

// SanitizeFilename turns a free-form label into a file name made of ASCII
// letters, digits, dot, underscore and dash. Runs of anything else become a
// single underscore. An empty result becomes "unnamed".
func SanitizeFilename(label string) string {
	var b strings.Builder
	pending := false
	for _, r := range label {
		if b.Len() >= maxNameLen {
			break
		}
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		return "unnamed"
	}
	return name
}
