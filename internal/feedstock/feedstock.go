// Package feedstock checks out the git repositories holding conda recipes.
package feedstock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/vk/recipegrid/internal/ctxlog"
)

// Checkout makes the repository at url available in dir, at tag when one is
// given, and returns dir. An existing checkout in dir is reused after
// verifying that it is at the requested tag.
func Checkout(ctx context.Context, url, tag, dir string) (string, error) {
	logger := ctxlog.FromContext(ctx).With("repository", url, "tag", tag, "dir", dir)

	if _, err := os.Stat(filepath.Join(dir, git.GitDirName)); err == nil {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return "", fmt.Errorf("open feedstock %s: %w", dir, err)
		}
		if err := verifyTag(repo, tag); err != nil {
			return "", fmt.Errorf("feedstock %s: %w", dir, err)
		}
		logger.Debug("Reusing existing feedstock checkout.")
		return dir, nil
	}

	if url == "" {
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("recipe folder %s: %w", dir, err)
		}
		logger.Debug("Using local recipe folder.")
		return dir, nil
	}

	opts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if tag != "" {
		opts.ReferenceName = plumbing.NewTagReferenceName(tag)
	}

	logger.Info("Cloning feedstock.")
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		// Leave no half-written checkout behind to be reused by the next run.
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("clone %s into %s: %w", url, dir, err)
	}
	return dir, nil
}

func verifyTag(repo *git.Repository, tag string) error {
	if tag == "" {
		return nil
	}
	want, err := repo.ResolveRevision(plumbing.Revision(plumbing.NewTagReferenceName(tag)))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("tag %q not found in existing checkout", tag)
		}
		return fmt.Errorf("resolve tag %q: %w", tag, err)
	}
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("read HEAD: %w", err)
	}
	if head.Hash() != *want {
		return fmt.Errorf("existing checkout is at %s, not at tag %q (%s)", head.Hash(), tag, want)
	}
	return nil
}
