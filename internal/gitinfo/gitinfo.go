// Package gitinfo reads the current commit and branch of a workspace.
package gitinfo

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Head describes the checked out revision
type Head struct {
	Commit string
	Branch string // empty on a detached HEAD
}

// Describe returns the HEAD of the repository containing root. A workspace
// outside any repository, or a repository without commits, yields an empty
// Head and no error.
func Describe(root string) (Head, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Head{}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("opening repository: %w", err)
	}

	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return Head{}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("reading HEAD: %w", err)
	}

	head := Head{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		head.Branch = ref.Name().Short()
	}
	return head, nil
}
