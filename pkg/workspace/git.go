// Package workspace prepares the per-task repository checkout the workers
// operate on.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"triad/pkg/logx"
)

// RepoDir is the local checkout directory of task index under reposDir.
func RepoDir(reposDir string, index int) string {
	return filepath.Join(reposDir, fmt.Sprintf("repo_%d", index))
}

// MountedRepoDir is the same checkout as seen by the grading harness, which
// mounts reposDir at mount.
func MountedRepoDir(mount string, index int) string {
	return path.Join(mount, fmt.Sprintf("repo_%d", index))
}

// Git manages checkouts with go-git; no git binary is required.
type Git struct {
	logger *logx.Logger
}

// NewGit returns a Git helper.
func NewGit() *Git {
	return &Git{logger: logx.NewLogger("workspace")}
}

// Prepare clones url into dir unless dir already exists, then checks out ref.
// ref may be a branch, tag or commit hash.
func (g *Git) Prepare(ctx context.Context, dir, url, ref string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		g.logger.Info("cloning %s into %s", url, dir)
		if _, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url}); err != nil {
			// Leave no half-cloned directory behind, or the next run would skip the clone.
			_ = os.RemoveAll(dir)
			return fmt.Errorf("failed to clone %s: %w", url, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	} else {
		g.logger.Info("repository %s already exists, skipping clone", dir)
	}

	return g.Checkout(dir, ref)
}

// Checkout checks out ref in the repository at dir. Local branches stay
// attached; anything else leaves HEAD detached at the resolved commit.
func (g *Git) Checkout(dir, ref string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	opts := &git.CheckoutOptions{}
	branch := plumbing.NewBranchReferenceName(ref)
	if _, err := repo.Reference(branch, false); err == nil {
		opts.Branch = branch
	} else {
		hash, err := resolve(repo, ref)
		if err != nil {
			return err
		}
		opts.Hash = *hash
	}

	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", ref, err)
	}
	g.logger.Info("checked out %s in %s", ref, dir)
	return nil
}

func resolve(repo *git.Repository, ref string) (*plumbing.Hash, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err == nil {
		return hash, nil
	}
	// A fresh clone only has the default branch locally.
	if remote, rerr := repo.ResolveRevision(plumbing.Revision("origin/" + ref)); rerr == nil {
		return remote, nil
	}
	return nil, fmt.Errorf("failed to resolve %s: %w", ref, err)
}

// StageAll stages every change in the worktree, including deletions.
func (g *Git) StageAll(_ context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	return nil
}

// ChangedFiles lists paths that differ from HEAD, sorted.
func (g *Git) ChangedFiles(dir string) ([]string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	files := make([]string, 0, len(status))
	for file, st := range status {
		if st.Staging != git.Unmodified || st.Worktree != git.Unmodified {
			files = append(files, file)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Head returns the commit HEAD points at.
func (g *Git) Head(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
