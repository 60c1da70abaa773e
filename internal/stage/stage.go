// Package stage finds the package an artifact belongs to and links it into
// the workspace so the interpreter loads it like an installed package.
package stage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/plugtest/internal/workspace"
)

// MarkerDirs are the subdirectory names that make a directory a loadable
// package root.
var MarkerDirs = []string{"autoload", "plugin", "ftplugin"}

var (
	// ErrNoPackageRoot indicates no ancestor of an artifact has a marker directory.
	ErrNoPackageRoot = errors.New("no package root found")

	// ErrMultiplePackages indicates the artifacts of one run belong to
	// different packages.
	ErrMultiplePackages = errors.New("artifacts belong to more than one package")
)

// UnresolvedError lists the artifacts for which no package root exists.
type UnresolvedError struct {
	Artifacts []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s for %s (looked for %s directories)",
		ErrNoPackageRoot, strings.Join(e.Artifacts, ", "), strings.Join(MarkerDirs, ", "))
}

func (e *UnresolvedError) Unwrap() error {
	return ErrNoPackageRoot
}

// PackageRoot is a resolved package and where it was linked.
type PackageRoot struct {
	Source string // absolute package directory
	Staged string // link inside the workspace start directory
}

// Name is the directory name the package is staged under.
func (p PackageRoot) Name() string {
	return filepath.Base(p.Source)
}

// ResolvePackageRoot walks from dir up to the filesystem root and returns
// the first directory containing a marker subdirectory.
func ResolvePackageRoot(dir string) (string, bool) {
	for {
		if hasMarker(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func hasMarker(dir string) bool {
	for _, name := range MarkerDirs {
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// Resolve returns the package root of a single artifact.
func Resolve(artifact string) (string, error) {
	dir, err := filepath.Abs(filepath.Dir(artifact))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", artifact, err)
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	root, ok := ResolvePackageRoot(dir)
	if !ok {
		return "", &UnresolvedError{Artifacts: []string{artifact}}
	}
	return root, nil
}

// Stage resolves the package root shared by all artifacts and links it
// into the workspace. Exactly one package per run is supported.
func Stage(ws *workspace.Workspace, artifacts []string) (PackageRoot, error) {
	if len(artifacts) == 0 {
		return PackageRoot{}, fmt.Errorf("%w: no artifacts", ErrNoPackageRoot)
	}

	var (
		root       string
		unresolved []string
	)
	for _, artifact := range artifacts {
		r, err := Resolve(artifact)
		if err != nil {
			var uerr *UnresolvedError
			if errors.As(err, &uerr) {
				unresolved = append(unresolved, artifact)
				continue
			}
			return PackageRoot{}, err
		}
		switch {
		case root == "":
			root = r
		case r != root:
			return PackageRoot{}, fmt.Errorf("%w: %s and %s", ErrMultiplePackages, root, r)
		}
	}
	if len(unresolved) > 0 {
		return PackageRoot{}, &UnresolvedError{Artifacts: unresolved}
	}

	pkg := PackageRoot{Source: root}
	pkg.Staged = filepath.Join(ws.StartDir(), pkg.Name())
	if err := link(ws.StartDir(), pkg); err != nil {
		return PackageRoot{}, err
	}
	return pkg, nil
}

// link creates the staging symlink. An existing link to the same source is
// left alone.
func link(startDir string, pkg PackageRoot) error {
	if err := os.MkdirAll(startDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	if existing, err := os.Readlink(pkg.Staged); err == nil {
		if existing == pkg.Source {
			return nil
		}
		return fmt.Errorf("%w: %s already links to %s", ErrMultiplePackages, pkg.Staged, existing)
	}

	if err := os.Symlink(pkg.Source, pkg.Staged); err != nil {
		return fmt.Errorf("failed to stage package %s: %w", pkg.Source, err)
	}
	return nil
}
