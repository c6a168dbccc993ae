package paths

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

func ValidateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("path contains null byte")
	}
	slashed := filepath.ToSlash(p)
	if path.IsAbs(slashed) || filepath.IsAbs(p) {
		return fmt.Errorf("absolute path not allowed: %s", p)
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return fmt.Errorf("path resolves to current directory")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf(
			"path escapes base directory: %s", p,
		)
	}
	return nil
}

func CleanRelPath(p string) string {
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	return p
}

func IsWithinDir(dir, full string) bool {
	rel, err := filepath.Rel(dir, full)
	if err != nil {
		return false
	}
	return rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator)) &&
		!filepath.IsAbs(rel)
}

// TrimSeparators strips every leading path separator from p. Both '/' and
// the platform separator are accepted.
func TrimSeparators(p string) string {
	return strings.TrimLeft(p, "/"+string(filepath.Separator))
}

// CanonicalRoot returns an absolute, cleaned form of root with symlinks
// resolved. Symlink resolution is best-effort: a root that cannot be
// resolved is returned absolute and cleaned so that the caller's tool can
// report the real failure.
func CanonicalRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

// IsDir reports whether p exists and is a directory.
func IsDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// SymlinkLoops reports whether the symlink at p resolves to a directory
// that contains p, so following it would never terminate.
func SymlinkLoops(p string) bool {
	target, err := filepath.EvalSymlinks(p)
	if err != nil {
		return false
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(p))
	if err != nil {
		return false
	}
	return IsWithinDir(target, parent)
}
