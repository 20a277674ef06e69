package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNotRepository is returned when no repository encloses the given path.
var ErrNotRepository = errors.New("not a git repository")

// Revision describes the checked-out state of a working copy.
type Revision struct {
	Commit string
	Branch string // empty for a detached HEAD
	Tag    string // tag pointing exactly at HEAD, if any
	Dirty  bool
}

// Short returns the abbreviated commit hash.
func (r Revision) Short() string {
	if len(r.Commit) > 12 {
		return r.Commit[:12]
	}
	return r.Commit
}

// String renders the revision as recorded in manifests.
func (r Revision) String() string {
	if r.Commit == "" {
		return ""
	}
	if r.Dirty {
		return r.Commit + "-dirty"
	}
	return r.Commit
}

// Describe opens the repository enclosing path and reports its HEAD state.
func Describe(path string) (Revision, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Revision{}, ErrNotRepository
		}
		return Revision{}, fmt.Errorf("open repository at %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Freshly initialised repository without commits.
			return Revision{}, nil
		}
		return Revision{}, fmt.Errorf("resolve HEAD: %w", err)
	}

	rev := Revision{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}

	rev.Tag, err = tagAt(repo, head.Hash())
	if err != nil {
		return Revision{}, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return rev, nil
		}
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return Revision{}, fmt.Errorf("worktree status: %w", err)
	}
	rev.Dirty = !status.IsClean()
	return rev, nil
}

func tagAt(repo *git.Repository, hash plumbing.Hash) (string, error) {
	tags, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("list tags: %w", err)
	}
	defer tags.Close()

	var found string
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		// Annotated tags point at a tag object; peel to the commit.
		if obj, tagErr := repo.TagObject(target); tagErr == nil {
			target = obj.Target
		}
		if target == hash {
			found = ref.Name().Short()
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", fmt.Errorf("scan tags: %w", err)
	}
	return found, nil
}

var errStop = errors.New("stop")
