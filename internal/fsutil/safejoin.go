package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when rel is absolute or contains a ".."
// component, lexically, before any filesystem lookup happens.
var ErrPathTraversal = errors.New("fsutil: path traversal rejected")

// ErrSymlinkEscape is returned when a symlink encountered while resolving
// rel points outside root.
var ErrSymlinkEscape = errors.New("fsutil: symlink escapes root")

// SafeJoin resolves rel against root, refusing to return any path outside
// root. It rejects absolute inputs and ".." components lexically, then
// walks rel segment by segment: every existing path prefix that is itself
// a symbolic link must resolve (relative to its containing directory) to
// somewhere inside root's real path. Non-existent trailing segments are
// permitted — callers routinely probe paths that do not exist yet — as
// long as every segment that does exist on disk passes the symlink check.
func SafeJoin(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q is absolute", ErrPathTraversal, rel)
	}
	if hasDotDot(rel) {
		return "", fmt.Errorf("%w: %q contains ..", ErrPathTraversal, rel)
	}
	cleanedRel := filepath.Clean(rel)
	if hasDotDot(cleanedRel) {
		return "", fmt.Errorf("%w: %q normalizes to a .. escape", ErrPathTraversal, rel)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("fsutil: resolve root %s: %w", root, err)
	}

	segments := strings.Split(cleanedRel, string(filepath.Separator))
	current := realRoot
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		current = filepath.Join(current, seg)

		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				// Remaining segments (and this one) don't exist yet; the
				// lexical path built so far is already escape-free.
				break
			}
			return "", fmt.Errorf("fsutil: lstat %s: %w", current, err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(current)
			if err != nil {
				return "", fmt.Errorf("fsutil: resolve symlink %s: %w", current, err)
			}
			if !withinRoot(realRoot, target) {
				return "", fmt.Errorf("%w: %s -> %s", ErrSymlinkEscape, current, target)
			}
		}
	}

	return filepath.Join(realRoot, cleanedRel), nil
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func withinRoot(realRoot, candidate string) bool {
	rel, err := filepath.Rel(realRoot, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
