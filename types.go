// Package gitver derives version descriptors for git working copies from
// tags matching a configurable prefix.
package gitver

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	// DefaultTagPrefix is used when Options.TagPrefix is empty and
	// Options.NoTagPrefix is unset
	DefaultTagPrefix = "v"

	// NoCommitsVersion is returned by Version when no tag matches and HEAD
	// does not resolve to a commit
	NoCommitsVersion = "0.0.0-0-g00000"

	// UntaggedVersion is returned by Version when no tag matches but the
	// repository has commits
	UntaggedVersion = "0.0.0-1-g00000"

	versionGlob = "[0-9].[0-9].[0-9]*"
)

// Resolver is implemented by every backend capable of describing a working copy.
type Resolver interface {
	Root() string
	IsWorkingCopy() bool
	TagPrefix() string
	TagPattern() string
	Describe(ctx context.Context) (string, error)
	Version(ctx context.Context) (string, error)
}

// Options configures how a repository handle is constructed
type Options struct {
	// Path is the directory to resolve (default: probe the environment)
	Path string

	// TagPrefix is the literal prefix of version tags (default: "v")
	TagPrefix string

	// NoTagPrefix matches bare version tags such as 1.2.3. TagPrefix is
	// ignored when set.
	NoTagPrefix bool

	// WorkDir is where the environment probe runs (default: process working directory)
	WorkDir string

	// FallbackRoot is used as the root when the probe finds no repository
	// (default: directory of the running executable)
	FallbackRoot string

	// Runner executes git for the CLI backend (default: git on PATH)
	Runner Runner

	// Logger receives debug output for each git invocation (default: discarded)
	Logger *log.Logger
}

// Handle is the immutable description of a directory being versioned.
type Handle struct {
	root          string
	isWorkingCopy bool
	tagPrefix     string
	tagPattern    string
}

func newHandle(root string, isWorkingCopy bool, tagPrefix string) Handle {
	return Handle{
		root:          root,
		isWorkingCopy: isWorkingCopy,
		tagPrefix:     tagPrefix,
		tagPattern:    TagPattern(tagPrefix),
	}
}

// Root returns the canonical absolute path of the handle.
func (h Handle) Root() string { return h.root }

// IsWorkingCopy reports whether Root is inside a git repository.
func (h Handle) IsWorkingCopy() bool { return h.isWorkingCopy }

// TagPrefix returns the version tag prefix.
func (h Handle) TagPrefix() string { return h.tagPrefix }

// TagPattern returns the glob passed to `git describe --match`.
func (h Handle) TagPattern() string { return h.tagPattern }

// TagPattern builds the describe glob for prefix: the prefix with glob
// metacharacters escaped, followed by a MAJOR.MINOR.PATCH numeric triple.
func TagPattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '\\', '*', '?', '[':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString(versionGlob)
	return b.String()
}
