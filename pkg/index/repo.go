// Package index reads the crates.io registry index from a local git clone.
//
// The index keeps one file per crate, each line being the JSON record of one
// published version, laid out in directories derived from the crate name. This
// package opens the clone with go-git, resolves the commit last fetched by
// cargo (or by Update) and reads crate files straight out of its tree; no
// worktree checkout is needed, so bare clones work too.
package index

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	// ErrNotExist is returned by Open when no repository exists at the path.
	ErrNotExist = errors.New("index repository does not exist")

	// ErrCorrupt is returned by Open when the repository exists but its refs
	// or objects cannot be read.
	ErrCorrupt = errors.New("git index is corrupted")

	// ErrCrateNotFound is returned by Repo.Crate when the index has no file
	// for the requested name.
	ErrCrateNotFound = errors.New("crate not found in index")

	// ErrInvalidName is returned for names that cannot be crate names.
	ErrInvalidName = errors.New("invalid crate name")
)

// headCandidates lists the refs that may point at the fetched index, in the
// order they are tried. Cargo fetches "+HEAD:refs/remotes/origin/HEAD" and
// leaves FETCH_HEAD behind; clones made by Update only have HEAD.
var headCandidates = []plumbing.ReferenceName{
	"refs/remotes/origin/HEAD",
	"FETCH_HEAD",
	"refs/remotes/origin/master",
	"refs/remotes/origin/main",
	plumbing.HEAD,
}

// Repo is an opened index clone pinned to one commit.
type Repo struct {
	Path   string
	Commit plumbing.Hash

	repo *git.Repository
	tree *object.Tree
}

// Open opens the index clone at path and resolves its head commit.
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open repo %s: %v", ErrCorrupt, path, err)
	}

	hash, err := resolveHead(repo, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get commit %s: %v", ErrCorrupt, hash, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tree of %s: %v", ErrCorrupt, hash, err)
	}

	return &Repo{
		Path:   path,
		Commit: hash,
		repo:   repo,
		tree:   tree,
	}, nil
}

// Crate returns every indexed version of name, in index order.
func (r *Repo) Crate(name string) (*Crate, error) {
	rel, err := CratePath(name)
	if err != nil {
		return nil, err
	}

	file, err := r.tree.File(rel)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCrateNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	return ParseCrate([]byte(contents))
}

// resolveHead walks headCandidates and returns the first commit that exists.
func resolveHead(repo *git.Repository, path string) (plumbing.Hash, error) {
	var lastErr error
	for _, name := range headCandidates {
		var hash plumbing.Hash
		if name == "FETCH_HEAD" {
			h, err := readFetchHead(path)
			if err != nil {
				lastErr = err
				continue
			}
			hash = h
		} else {
			ref, err := repo.Reference(name, true)
			if err != nil {
				lastErr = fmt.Errorf("failed to resolve %s: %w", name, err)
				continue
			}
			hash = ref.Hash()
		}

		if _, err := repo.CommitObject(hash); err != nil {
			lastErr = fmt.Errorf("failed to get commit %s for %s: %w", hash, name, err)
			continue
		}
		return hash, nil
	}
	return plumbing.ZeroHash, fmt.Errorf("no usable head in git repo %s: %w", path, lastErr)
}

// readFetchHead parses the first entry of FETCH_HEAD, which go-git does not
// expose as a reference.
func readFetchHead(path string) (plumbing.Hash, error) {
	gitDir := filepath.Join(path, ".git")
	if info, err := os.Stat(gitDir); err != nil || !info.IsDir() {
		gitDir = path
	}

	data, err := os.ReadFile(filepath.Join(gitDir, "FETCH_HEAD"))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to read FETCH_HEAD: %w", err)
	}

	line, _, _ := bytes.Cut(data, []byte("\n"))
	fields := strings.Fields(string(line))
	if len(fields) == 0 || !plumbing.IsHash(fields[0]) {
		return plumbing.ZeroHash, fmt.Errorf("malformed FETCH_HEAD in %s", gitDir)
	}
	return plumbing.NewHash(fields[0]), nil
}
