package patchgate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retrivo/core/internal/errors"
	"github.com/retrivo/core/internal/gitexec"
)

// WorktreeMode selects where the Patch Gate applies a diff.
type WorktreeMode int

const (
	// InPlace operates directly at the repository root.
	InPlace WorktreeMode = iota
	// EphemeralFromBaseRef creates a disposable worktree on a new branch
	// cut from BaseRef, so the apply never touches the caller's own
	// checkout until the caller merges it.
	EphemeralFromBaseRef
)

// WorktreePolicy selects a WorktreeMode and, for the ephemeral mode,
// carries the base ref and task id needed to create it.
type WorktreePolicy struct {
	Mode    WorktreeMode
	BaseRef string
	TaskID  string
}

// Worktree is a prepared working directory (either the repo itself, or
// an ephemeral worktree) that the apply pipeline runs against.
type Worktree struct {
	Path       string
	Runner     *gitexec.Runner
	ephemeral  bool
	repoRunner *gitexec.Runner
}

// PrepareWorktree enforces cleanliness and, for the ephemeral policy,
// creates the disposable worktree branch. allowDirty bypasses the
// cleanliness check (PATCHGATE_ALLOW_DIRTY).
func PrepareWorktree(ctx context.Context, repoPath string, policy WorktreePolicy, allowDirty bool) (*Worktree, error) {
	repoRunner := gitexec.New(repoPath)

	if !allowDirty {
		clean, err := repoRunner.IsClean(ctx)
		if err != nil {
			return nil, err
		}
		if !clean {
			return nil, errors.New(errors.ErrCodeWorktreeDirty, "repository worktree is not clean", nil)
		}
	}

	if policy.Mode == InPlace {
		return &Worktree{Path: repoPath, Runner: repoRunner, repoRunner: repoRunner}, nil
	}

	if err := repoRunner.FetchAllPrune(ctx); err != nil {
		return nil, err
	}

	branch := fmt.Sprintf("autopilot/%s", policy.TaskID)
	path := filepath.Join(repoPath, ".worktrees", "autopilot", policy.TaskID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.IOError("failed to create worktrees directory", err)
	}

	if err := repoRunner.WorktreeAdd(ctx, path, branch, policy.BaseRef); err != nil {
		return nil, err
	}

	wtRunner := gitexec.New(path)
	ok, err := wtRunner.MergeBaseIsAncestor(ctx, policy.BaseRef)
	if err != nil {
		_ = repoRunner.WorktreeRemove(ctx, path)
		return nil, err
	}
	if !ok {
		_ = repoRunner.WorktreeRemove(ctx, path)
		return nil, errors.New(errors.ErrCodeGitError, fmt.Sprintf("base ref %s is not an ancestor of the new worktree's HEAD", policy.BaseRef), nil)
	}

	return &Worktree{Path: path, Runner: wtRunner, ephemeral: true, repoRunner: repoRunner}, nil
}

// Rollback restores the worktree to its pre-apply state: a hard reset
// plus untracked cleanup in place, or full removal for an ephemeral
// worktree.
func (w *Worktree) Rollback(ctx context.Context) error {
	if w.ephemeral {
		return w.repoRunner.WorktreeRemove(ctx, w.Path)
	}
	if err := w.Runner.ResetHard(ctx); err != nil {
		return err
	}
	return w.Runner.CleanForceDirs(ctx)
}

// Cleanup removes an ephemeral worktree after a successful apply. It is
// a no-op for InPlace worktrees.
func (w *Worktree) Cleanup(ctx context.Context) error {
	if !w.ephemeral {
		return nil
	}
	return w.repoRunner.WorktreeRemove(ctx, w.Path)
}
