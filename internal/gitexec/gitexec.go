// Package gitexec isolates every Git invocation the Patch Gate makes
// behind a thin subprocess adapter. Nothing outside this package shells
// out to git directly; callers work with plain (stdout, stderr, error)
// results so the rest of the Patch Gate stays pure over strings.
package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/retrivo/core/internal/errors"
)

// Runner executes git subcommands against a fixed working directory.
type Runner struct {
	Dir string
}

// New returns a Runner scoped to dir (a repository or worktree path).
func New(dir string) *Runner {
	return &Runner{Dir: dir}
}

// Result carries the outcome of a single git invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes `git <args...>` in r.Dir and returns its captured output.
// A non-zero exit is reported as an *errors.CoreError with code
// ERR_702_GIT_ERROR carrying the command and stderr, not a bare error,
// so callers can inspect it uniformly.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		return res, errors.GitError(strings.Join(append([]string{"git"}, args...), " "), res.Stderr, err)
	}

	return res, nil
}

// Status returns the porcelain status output, used to confirm worktree
// cleanliness before the Patch Gate mutates anything.
func (r *Runner) Status(ctx context.Context) (string, error) {
	res, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// IsClean reports whether the worktree has no pending changes.
func (r *Runner) IsClean(ctx context.Context) (bool, error) {
	out, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

// ApplyCheck runs a dry-run apply, optionally with three-way merge.
func (r *Runner) ApplyCheck(ctx context.Context, patchFile string, threeWay bool, unidiffZero bool) error {
	args := []string{"apply", "--check", "--whitespace=nowarn"}
	if threeWay {
		args = append(args, "--3way", "--index")
	}
	if unidiffZero {
		args = append(args, "--unidiff-zero")
	}
	args = append(args, patchFile)

	_, err := r.Run(ctx, args...)
	return err
}

// Apply performs the real apply, optionally with three-way merge.
func (r *Runner) Apply(ctx context.Context, patchFile string, threeWay bool, unidiffZero bool) error {
	args := []string{"apply", "--whitespace=fix"}
	if threeWay {
		args = append(args, "--3way", "--index")
	}
	if unidiffZero {
		args = append(args, "--unidiff-zero")
	}
	args = append(args, patchFile)

	_, err := r.Run(ctx, args...)
	return err
}

// AddAll stages every change in the worktree.
func (r *Runner) AddAll(ctx context.Context) error {
	_, err := r.Run(ctx, "add", "-A")
	return err
}

// Commit creates a commit with the given message.
func (r *Runner) Commit(ctx context.Context, message string) error {
	_, err := r.Run(ctx, "commit", "-m", message)
	return err
}

// AmendMessage rewrites HEAD's message in place (used to append trailers
// without creating a second commit).
func (r *Runner) AmendMessage(ctx context.Context, message string) error {
	_, err := r.Run(ctx, "commit", "--amend", "-m", message)
	return err
}

// HeadSHA returns the current HEAD commit hash.
func (r *Runner) HeadSHA(ctx context.Context) (string, error) {
	res, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// DiffHead returns the worktree's diff against HEAD; empty means clean.
func (r *Runner) DiffHead(ctx context.Context) (string, error) {
	res, err := r.Run(ctx, "diff", "HEAD")
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// ResetHard discards all changes back to HEAD.
func (r *Runner) ResetHard(ctx context.Context) error {
	_, err := r.Run(ctx, "reset", "--hard")
	return err
}

// CleanForceDirs removes untracked files and directories, including
// those matched by .gitignore.
func (r *Runner) CleanForceDirs(ctx context.Context) error {
	_, err := r.Run(ctx, "clean", "-fdx")
	return err
}

// FetchAllPrune fetches every remote and prunes stale refs.
func (r *Runner) FetchAllPrune(ctx context.Context) error {
	_, err := r.Run(ctx, "fetch", "--all", "--prune")
	return err
}

// MergeBaseIsAncestor reports whether ancestor is reachable from HEAD.
func (r *Runner) MergeBaseIsAncestor(ctx context.Context, ancestor string) (bool, error) {
	_, err := r.Run(ctx, "merge-base", "--is-ancestor", ancestor, "HEAD")
	if err == nil {
		return true, nil
	}
	if ce, ok := err.(*errors.CoreError); ok && ce.Unwrap() != nil {
		if exitErr, ok := ce.Unwrap().(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
	}
	return false, err
}

// WorktreeAdd creates a new worktree at path on a new branch from ref.
func (r *Runner) WorktreeAdd(ctx context.Context, path, branch, ref string) error {
	_, err := r.Run(ctx, "worktree", "add", path, "-b", branch, ref)
	return err
}

// WorktreeRemove removes a worktree, forcing removal even with local changes.
func (r *Runner) WorktreeRemove(ctx context.Context, path string) error {
	_, err := r.Run(ctx, "worktree", "remove", "--force", path)
	return err
}

// RevParseShowTopLevel returns the repository's top-level directory.
func (r *Runner) RevParseShowTopLevel(ctx context.Context) (string, error) {
	res, err := r.Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ApplyWithFallback performs the dry-run-then-real apply sequence the
// Patch Gate's apply pipeline uses: try a strict apply, and if it fails,
// retry with three-way merge enabled. Returns which mode succeeded.
func (r *Runner) ApplyWithFallback(ctx context.Context, patchFile string, dryRun, unidiffZero bool) (threeWay bool, err error) {
	run := func(threeWay bool) error {
		if dryRun {
			return r.ApplyCheck(ctx, patchFile, threeWay, unidiffZero)
		}
		return r.Apply(ctx, patchFile, threeWay, unidiffZero)
	}

	if err := run(false); err == nil {
		return false, nil
	}
	if err := run(true); err == nil {
		return true, nil
	}
	return false, fmt.Errorf("git apply failed in both strict and 3-way mode")
}
