// Package history walks a git repository's commit log for one file,
// yielding each historical revision's bytes so the CLI can compare the
// current schema against every ancestor without the caller needing an
// explicit --old path. Stops as soon as a commit's tree no longer contains
// the file, since nothing older can meaningfully be a "prior version" of it.
package history

import (
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Revision is one historical snapshot of the target file.
type Revision struct {
	Label   string // commit hash (short) plus subject, for diagnostics
	Path    string
	Content []byte
}

// Walk opens the repository containing path, then yields one Revision per
// commit that touched path (most recent first), in the order git log -- path
// would report them. It stops without error at the first commit whose tree
// no longer has the file, since that is the file's creation boundary.
func Walk(repoPath, relPath string) ([]Revision, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", repoPath, err)
	}

	commits, err := repo.Log(&git.LogOptions{FileName: &relPath})
	if err != nil {
		return nil, fmt.Errorf("walking history of %s: %w", relPath, err)
	}

	var revisions []Revision
	err = commits.ForEach(func(c *object.Commit) error {
		tree, err := c.Tree()
		if err != nil {
			return fmt.Errorf("reading tree for commit %s: %w", c.Hash, err)
		}

		f, err := tree.File(relPath)
		if err != nil {
			// The file doesn't exist in this revision's tree: we've walked
			// past its creation. Nothing older is a meaningful prior version.
			return storer.ErrStop
		}

		content, err := readFile(f)
		if err != nil {
			return fmt.Errorf("reading %s at commit %s: %w", relPath, c.Hash, err)
		}

		revisions = append(revisions, Revision{
			Label:   fmt.Sprintf("%s (%s)", c.Hash.String()[:12], firstLine(c.Message)),
			Path:    relPath,
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return revisions, nil
}

func readFile(f *object.File) ([]byte, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func firstLine(msg string) string {
	for i, r := range msg {
		if r == '\n' {
			return msg[:i]
		}
	}
	return msg
}
