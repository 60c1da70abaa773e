// Package discover resolves a user target into the ordered list of test
// artifacts it names.
package discover

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RecursiveMarker is the suffix that turns a directory target into a
// recursive search.
const RecursiveMarker = "/..."

var (
	// ErrNotFound indicates the target path does not exist.
	ErrNotFound = errors.New("no such file or directory")

	// ErrNoMatches indicates the target exists but nothing matched the pattern.
	ErrNoMatches = errors.New("no files matching pattern")
)

// IsRecursive reports whether target ends in the recursive marker.
func IsRecursive(target string) bool {
	return target == "..." || strings.HasSuffix(target, RecursiveMarker)
}

// recursiveRoot returns the directory a recursive target searches. A bare
// "..." searches the current directory and "/..." the filesystem root.
func recursiveRoot(target string) string {
	if target == "..." {
		return "."
	}
	root := strings.TrimSuffix(target, RecursiveMarker)
	if root == "" {
		return "/"
	}
	return root
}

// Discover returns the artifacts named by target whose base name matches
// the glob pattern, in walk order. Duplicates are kept.
//
//   - "dir/..." searches dir and every subdirectory.
//   - an existing directory is searched one level deep.
//   - an existing file is returned when it matches.
func Discover(target, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var (
		files []string
		err   error
	)
	if IsRecursive(target) {
		files, err = walk(recursiveRoot(target), pattern)
	} else {
		files, err = shallow(target, pattern)
	}
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w %q in %s", ErrNoMatches, pattern, target)
	}
	return files, nil
}

// walk finds matching files under root at any depth.
func walk(root, pattern string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
		}
		return nil, err
	}

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, info.Name()); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

// shallow finds matching files directly inside target, or target itself
// when it is a file.
func shallow(target, pattern string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return nil, err
	}

	if !info.IsDir() {
		if ok, _ := filepath.Match(pattern, filepath.Base(target)); ok {
			return []string{target}, nil
		}
		return nil, nil
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}

	var files []string
	for _, entry := range entries {
		path := filepath.Join(target, entry.Name())
		if entry.IsDir() {
			continue
		}
		// Follow symlinks so a linked directory is not mistaken for a file.
		if entry.Type()&os.ModeSymlink != 0 {
			if fi, err := os.Stat(path); err != nil || fi.IsDir() {
				continue
			}
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); ok {
			files = append(files, path)
		}
	}
	return files, nil
}
