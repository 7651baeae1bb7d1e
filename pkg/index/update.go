package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// UpdateOptions configures Update.
type UpdateOptions struct {
	Path     string
	URL      string
	Branch   string
	Progress io.Writer
}

// Update brings the index clone at opts.Path up to date, cloning it first when
// it does not exist. Fetched commits land in refs/remotes/origin/HEAD, the ref
// Open tries first, so cargo-managed clones are refreshed in place.
func Update(ctx context.Context, opts UpdateOptions, logger *zap.Logger) (plumbing.Hash, error) {
	if opts.Branch == "" {
		opts.Branch = "master"
	}

	repo, cloned, err := openOrClone(ctx, opts, logger)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to open/clone index: %w", err)
	}

	if !cloned {
		// cargo fetches through an anonymous remote, so origin may be missing
		if _, err := repo.Remote("origin"); errors.Is(err, git.ErrRemoteNotFound) {
			_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{opts.URL}})
			if err != nil {
				return plumbing.ZeroHash, fmt.Errorf("failed to add origin remote: %w", err)
			}
		}

		refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/HEAD", opts.Branch))
		err = repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: "origin",
			RefSpecs:   []gitconfig.RefSpec{refSpec},
			Depth:      1,
			Force:      true,
			Progress:   opts.Progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return plumbing.ZeroHash, fmt.Errorf("failed to fetch: %w", err)
		}
	}

	idx, err := Open(opts.Path)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	logger.Info("index updated",
		zap.String("path", opts.Path),
		zap.String("commit", idx.Commit.String()),
		zap.Bool("cloned", cloned),
	)
	return idx.Commit, nil
}

// openOrClone opens an existing clone or makes a shallow bare one
func openOrClone(ctx context.Context, opts UpdateOptions, logger *zap.Logger) (*git.Repository, bool, error) {
	repo, err := git.PlainOpen(opts.Path)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, false, err
	}

	logger.Info("cloning index",
		zap.String("path", opts.Path),
		zap.String("url", opts.URL),
	)

	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, false, fmt.Errorf("failed to create directory: %w", err)
	}

	repo, err = git.PlainCloneContext(ctx, opts.Path, true, &git.CloneOptions{
		URL:           opts.URL,
		ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
		SingleBranch:  true,
		Depth:         1,
		Progress:      opts.Progress,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to clone: %w", err)
	}
	return repo, true, nil
}
