package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitgov-io/gitgov/pkg/config"
)

// Initializer is the environment-facing seam of project initialization.
// The adapter drives the ordered steps; the initializer owns the checks and
// side effects that depend on the host (working copy layout, VCS wiring)
// and the rollback that undoes a failed init.
type Initializer interface {
	ValidateEnvironment(ctx context.Context, paths config.Paths) error
	SetupVCS(ctx context.Context, paths config.Paths) error
	Rollback(ctx context.Context, paths config.Paths) error
}

// FSInitializer is the default Initializer for a plain filesystem working
// copy, optionally wired to a git checkout.
type FSInitializer struct{}

// ValidateEnvironment requires a writable project root without an existing
// state directory.
func (FSInitializer) ValidateEnvironment(ctx context.Context, paths config.Paths) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(paths.Root)
	if err != nil {
		return fmt.Errorf("project root %s: %w", paths.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", paths.Root)
	}
	if _, err := os.Stat(paths.Dir()); err == nil {
		return fmt.Errorf("%s already exists; refusing to re-initialize", paths.Dir())
	}
	return nil
}

// SetupVCS keeps private keys out of version control: inside a git checkout
// the key glob goes to .git/info/exclude, otherwise to a .gitignore inside
// the state directory.
func (FSInitializer) SetupVCS(ctx context.Context, paths config.Paths) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exclude := filepath.Join(paths.Root, ".git", "info", "exclude")
	if _, err := os.Stat(filepath.Join(paths.Root, ".git")); err == nil {
		f, err := os.OpenFile(exclude, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = fmt.Fprintf(f, "%s/actors/*.key\n", config.GitgovDirName)
		return err
	}
	return os.WriteFile(filepath.Join(paths.Dir(), ".gitignore"), []byte("actors/*.key\n"), 0o644)
}

// Rollback removes the whole state directory created during this init.
// ValidateEnvironment guaranteed it did not pre-exist, so removal cannot
// destroy prior state.
func (FSInitializer) Rollback(ctx context.Context, paths config.Paths) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.RemoveAll(paths.Dir())
}
