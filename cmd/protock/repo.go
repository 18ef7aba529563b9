package main

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// findRepoRoot locates the git repository containing path and returns its
// root directory plus path expressed relative to that root, the form
// internal/history.Walk expects (matching git log's own path semantics).
func findRepoRoot(path string) (root, relPath string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolving absolute path: %w", err)
	}

	repo, err := git.PlainOpenWithOptions(filepath.Dir(abs), &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", fmt.Errorf("opening git repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", "", fmt.Errorf("reading worktree: %w", err)
	}
	root = wt.Filesystem.Root()

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", "", fmt.Errorf("computing path relative to repository root: %w", err)
	}
	return root, filepath.ToSlash(rel), nil
}
