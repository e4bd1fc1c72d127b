package gitver

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	msgNoNames        = "No names found"
	msgNoTagsDescribe = "No tags can describe"
)

// Repository resolves versions by running the git binary against a directory.
type Repository struct {
	Handle

	runner Runner
	logger *log.Logger
}

var _ Resolver = (*Repository)(nil)

// Open builds a Repository for opts.Path, or for the repository enclosing
// opts.WorkDir when no path is given. A directory that is not a working copy
// yields a handle with IsWorkingCopy false rather than an error.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	opts = applyDefaults(opts)

	repo := &Repository{
		runner: opts.Runner,
		logger: opts.Logger,
	}

	if opts.Path != "" {
		handle, err := explicitHandle(opts.Path, opts.TagPrefix)
		if err != nil {
			return nil, err
		}
		repo.Handle = handle
		return repo, nil
	}

	dir, err := probeDir(opts)
	if err != nil {
		return nil, err
	}

	toplevel, err := repo.git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		repo.logger.Debug("no enclosing repository", "dir", dir, "err", err)
		handle, err := fallbackHandle(opts)
		if err != nil {
			return nil, err
		}
		repo.Handle = handle
		return repo, nil
	}

	root, err := canonicalize(strings.TrimSpace(toplevel))
	if err != nil {
		return nil, err
	}
	repo.Handle = newHandle(root, true, opts.TagPrefix)
	return repo, nil
}

// Describe returns `git describe` for the working copy, or an empty string
// when the repository has no tags at all.
func (r *Repository) Describe(ctx context.Context) (string, error) {
	out, err := r.git(ctx, r.root, "describe")
	if err != nil {
		if exited(err) && strings.Contains(out, msgNoNames) {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// Version returns the long describe output against tags matching TagPattern,
// in the form <tag>-<commits since tag>-g<abbreviated id>. When no matching
// tag is reachable a fixed sentinel is returned instead.
func (r *Repository) Version(ctx context.Context) (string, error) {
	out, err := r.git(ctx, r.root, "describe", "--long", "--tags", "--match", r.tagPattern)
	if err != nil {
		if exited(err) && noMatchingTag(out) {
			return r.noVersion(ctx)
		}
		return "", err
	}
	return out, nil
}

func (r *Repository) noVersion(ctx context.Context) (string, error) {
	_, err := r.git(ctx, r.root, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if err != nil {
		if exited(err) {
			return NoCommitsVersion, nil
		}
		return "", err
	}
	return UntaggedVersion, nil
}

func (r *Repository) git(ctx context.Context, dir string, args ...string) (string, error) {
	r.logger.Debug("running git", "dir", dir, "args", args)
	out, err := r.runner.Run(ctx, dir, args...)
	return string(out), err
}

func noMatchingTag(output string) bool {
	return strings.Contains(output, msgNoNames) || strings.Contains(output, msgNoTagsDescribe)
}
