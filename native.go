// This file contains code adapted from pulumictl (https://github.com/pulumi/pulumictl)
// which is licensed under the Apache License 2.0. See NOTICE file for full attribution.

package gitver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/gobwas/glob"
)

const abbrevLength = 7

// NativeRepository resolves versions in-process with go-git. It produces the
// same descriptors as Repository and needs no git binary.
type NativeRepository struct {
	Handle

	repo   *git.Repository
	logger *log.Logger
}

var _ Resolver = (*NativeRepository)(nil)

// tagCandidate is a tag that may be used to describe a commit
type tagCandidate struct {
	name      string
	annotated bool
	when      time.Time
}

// OpenRepository opens the Git repository containing dir
func OpenRepository(dir string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// OpenNative builds a NativeRepository. Resolution follows the same order as
// Open: explicit path, then the repository enclosing opts.WorkDir, then
// opts.FallbackRoot.
func OpenNative(ctx context.Context, opts Options) (*NativeRepository, error) {
	opts = applyDefaults(opts)
	n := &NativeRepository{logger: opts.Logger}

	if opts.Path != "" {
		handle, err := explicitHandle(opts.Path, opts.TagPrefix)
		if err != nil {
			return nil, err
		}
		n.Handle = handle

		repo, err := OpenRepository(handle.root)
		if err != nil {
			n.logger.Debug("opening repository", "root", handle.root, "err", err)
		} else {
			n.repo = repo
		}
		return n, nil
	}

	dir, err := probeDir(opts)
	if err != nil {
		return nil, err
	}

	root, repo, err := toplevel(dir)
	if err != nil {
		n.logger.Debug("no enclosing repository", "dir", dir, "err", err)
		handle, err := fallbackHandle(opts)
		if err != nil {
			return nil, err
		}
		n.Handle = handle
		return n, nil
	}

	n.Handle = newHandle(root, true, opts.TagPrefix)
	n.repo = repo
	return n, nil
}

// toplevel finds the worktree root of the repository enclosing dir
func toplevel(dir string) (string, *git.Repository, error) {
	repo, err := OpenRepository(dir)
	if err != nil {
		return "", nil, err
	}

	workTree, err := repo.Worktree()
	if err != nil {
		return "", nil, fmt.Errorf("getting worktree: %w", err)
	}

	root, err := canonicalize(workTree.Filesystem.Root())
	if err != nil {
		return "", nil, err
	}
	return root, repo, nil
}

// Describe mirrors plain `git describe`: only annotated tags are considered,
// an exact match yields the bare tag name, and a repository without any tags
// yields an empty string.
func (n *NativeRepository) Describe(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n.repo == nil {
		return "", ErrNotWorkingCopy
	}

	candidates, total, err := collectTags(n.repo, func(c tagCandidate) bool {
		return c.annotated
	})
	if err != nil {
		return "", err
	}
	if total == 0 {
		return "", nil
	}

	head, err := n.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no annotated tags can describe %s", head.Hash())
	}

	desc, found, err := describeCommit(n.repo, head.Hash(), candidates)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no tags can describe %s", head.Hash())
	}

	if desc.Distance == 0 {
		return desc.Tag + "\n", nil
	}
	return desc.String() + "\n", nil
}

// Version mirrors `git describe --long --tags --match <TagPattern>`, falling
// back to the untagged sentinels when no matching tag is reachable.
func (n *NativeRepository) Version(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n.repo == nil {
		return "", ErrNotWorkingCopy
	}

	matcher, err := tagMatcher(n.tagPrefix)
	if err != nil {
		return "", err
	}
	candidates, _, err := collectTags(n.repo, func(c tagCandidate) bool {
		return matcher.Match(c.name)
	})
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return n.noVersion()
	}

	head, err := n.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return NoCommitsVersion, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}

	desc, found, err := describeCommit(n.repo, head.Hash(), candidates)
	if err != nil {
		return "", err
	}
	if !found {
		return n.noVersion()
	}
	return desc.String() + "\n", nil
}

// tagMatcher compiles the version glob for prefix the way `git describe
// --match` applies it: without path separators, so `*` also matches '/'.
func tagMatcher(prefix string) (glob.Glob, error) {
	g, err := glob.Compile(glob.QuoteMeta(prefix) + versionGlob)
	if err != nil {
		return nil, fmt.Errorf("compiling tag pattern for prefix %q: %w", prefix, err)
	}
	return g, nil
}

func (n *NativeRepository) noVersion() (string, error) {
	_, err := n.repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return NoCommitsVersion, nil
	case err != nil:
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return UntaggedVersion, nil
}

// collectTags indexes tags accepted by keep by the commit they point at. The
// second return value counts every tag in the repository, kept or not.
func collectTags(repo *git.Repository, keep func(tagCandidate) bool) (map[plumbing.Hash][]tagCandidate, int, error) {
	tags, err := repo.Tags()
	if err != nil {
		return nil, 0, fmt.Errorf("listing tags: %w", err)
	}

	total := 0
	candidates := make(map[plumbing.Hash][]tagCandidate)
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		total++

		candidate := tagCandidate{name: ref.Name().Short()}
		target := ref.Hash()

		obj, err := repo.TagObject(ref.Hash())
		switch err {
		case nil:
			// Annotated tag
			commit, err := obj.Commit()
			if err != nil {
				return nil
			}
			candidate.annotated = true
			candidate.when = obj.Tagger.When
			target = commit.Hash
		case plumbing.ErrObjectNotFound:
			// Lightweight tag
		default:
			return err
		}

		if keep(candidate) {
			candidates[target] = append(candidates[target], candidate)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("reading tags: %w", err)
	}

	return candidates, total, nil
}

// describeCommit finds the nearest tagged ancestor of hash and counts the
// commits reachable from hash that are not reachable from that tag.
func describeCommit(repo *git.Repository, hash plumbing.Hash,
	candidates map[plumbing.Hash][]tagCandidate) (*Descriptor, bool, error) {

	head, err := repo.CommitObject(hash)
	if err != nil {
		return nil, false, fmt.Errorf("getting commit object: %w", err)
	}

	var tagged *object.Commit
	var best tagCandidate
	walker := object.NewCommitIterBSF(head, nil, nil)
	err = walker.ForEach(func(commit *object.Commit) error {
		tags, ok := candidates[commit.Hash]
		if !ok {
			return nil
		}
		tagged = commit
		best = preferredTag(tags)
		return storer.ErrStop
	})
	if err != nil {
		return nil, false, fmt.Errorf("walking history: %w", err)
	}
	if tagged == nil {
		return nil, false, nil
	}

	distance, err := commitsSince(head, tagged)
	if err != nil {
		return nil, false, err
	}

	return &Descriptor{
		Tag:       best.name,
		Distance:  distance,
		ShortHash: hash.String()[:abbrevLength],
	}, true, nil
}

// commitsSince counts commits reachable from head but not from base
func commitsSince(head, base *object.Commit) (int, error) {
	excluded := make(map[plumbing.Hash]bool)
	err := object.NewCommitPreorderIter(base, nil, nil).ForEach(func(commit *object.Commit) error {
		excluded[commit.Hash] = true
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking tagged history: %w", err)
	}

	count := 0
	err = object.NewCommitPreorderIter(head, excluded, nil).ForEach(func(*object.Commit) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting commits: %w", err)
	}
	return count, nil
}

// preferredTag picks between tags on the same commit the way git does:
// annotated over lightweight, then the most recently tagged.
func preferredTag(tags []tagCandidate) tagCandidate {
	best := tags[0]
	for _, tag := range tags[1:] {
		switch {
		case tag.annotated != best.annotated:
			if tag.annotated {
				best = tag
			}
		case tag.when.After(best.when):
			best = tag
		case tag.when.Equal(best.when) && tag.name > best.name:
			best = tag
		}
	}
	return best
}
