package gitver

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

var testSignature = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  time.Now(),
}

// requireGit skips tests that need the git binary when it is not installed
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
}

// testRepoFSCreate initialises an empty repository with a .git directory in path
func testRepoFSCreate(t *testing.T, path string) *git.Repository {
	t.Helper()
	repo, err := git.PlainInit(path, false)
	require.NoError(t, err)
	return repo
}

// testRepoCommit writes a new file and commits it, returning the commit hash
func testRepoCommit(t *testing.T, repo *git.Repository) plumbing.Hash {
	t.Helper()
	workTree, err := repo.Worktree()
	require.NoError(t, err)

	filename := fmt.Sprintf("file_%d.txt", commitCount(t, repo))
	require.NoError(t, writeFile(workTree.Filesystem, filename, "Content for "+filename))

	_, err = workTree.Add(filename)
	require.NoError(t, err)

	hash, err := workTree.Commit("Commit "+filename, &git.CommitOptions{Author: testSignature})
	require.NoError(t, err)
	return hash
}

// testRepoTag tags HEAD, annotated or lightweight
func testRepoTag(t *testing.T, repo *git.Repository, name string, annotated bool) {
	t.Helper()
	head, err := repo.Head()
	require.NoError(t, err)

	var opts *git.CreateTagOptions
	if annotated {
		opts = &git.CreateTagOptions{Tagger: testSignature, Message: "test tag"}
	}
	_, err = repo.CreateTag(name, head.Hash(), opts)
	require.NoError(t, err)
}

func commitCount(t *testing.T, repo *git.Repository) int {
	t.Helper()
	head, err := repo.Head()
	if err != nil {
		return 0
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	require.NoError(t, err)

	count := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	}))
	return count
}

// canonicalTempDir returns t.TempDir with symlinks resolved
func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}

// exitStatus stands in for *exec.ExitError in fake runner responses
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func (e exitStatus) ExitCode() int { return int(e) }

type fakeResponse struct {
	output string
	err    error
}

func succeeded(output string) fakeResponse {
	return fakeResponse{output: output}
}

func failed(output string, code int) fakeResponse {
	return fakeResponse{
		output: output,
		err:    &ToolExecutionError{Output: output, Err: exitStatus(code)},
	}
}

// fakeRunner answers git invocations from a table keyed by joined args
type fakeRunner struct {
	responses map[string]fakeResponse
	calls     []string
	dirs      []string
}

func (f *fakeRunner) Run(_ context.Context, dir string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	f.dirs = append(f.dirs, dir)

	resp, ok := f.responses[key]
	if !ok {
		return nil, &ToolExecutionError{Args: args, Dir: dir, Err: exec.ErrNotFound}
	}
	return []byte(resp.output), resp.err
}
