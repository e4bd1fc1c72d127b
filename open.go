package gitver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// applyDefaults fills zero-valued options the way every backend expects them
func applyDefaults(opts Options) Options {
	switch {
	case opts.NoTagPrefix:
		opts.TagPrefix = ""
	case opts.TagPrefix == "":
		opts.TagPrefix = DefaultTagPrefix
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner()
	}
	return opts
}

// canonicalize returns the absolute, symlink-free form of path. Paths that
// cannot be resolved (for example because they do not exist) are returned
// cleaned and absolute instead.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path of %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, nil
	}
	return resolved, nil
}

// hasGitDir reports whether dir directly contains a .git directory
func hasGitDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

// explicitHandle builds a handle for a caller-supplied path
func explicitHandle(path, tagPrefix string) (Handle, error) {
	root, err := canonicalize(path)
	if err != nil {
		return Handle{}, err
	}
	return newHandle(root, hasGitDir(path), tagPrefix), nil
}

// fallbackHandle builds the non-working-copy handle used when the
// environment probe finds no repository
func fallbackHandle(opts Options) (Handle, error) {
	dir := opts.FallbackRoot
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return Handle{}, fmt.Errorf("locating executable: %w", err)
		}
		dir = filepath.Dir(exe)
	}

	root, err := canonicalize(dir)
	if err != nil {
		return Handle{}, err
	}
	return newHandle(root, false, opts.TagPrefix), nil
}

// probeDir returns the directory the environment probe should run in
func probeDir(opts Options) (string, error) {
	if opts.WorkDir != "" {
		return opts.WorkDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return wd, nil
}
