package patchgate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/retrivo/core/internal/errors"
	"github.com/retrivo/core/internal/gitexec"
)

// CIHook runs an out-of-band check (build, test suite, lint) against a
// prepared worktree. The Patch Gate treats it as an opaque collaborator:
// a non-nil error fails the pipeline and triggers rollback.
type CIHook func(ctx context.Context, worktreePath string) error

// Options configures a single verify-and-apply run.
type Options struct {
	RepoPath    string
	Contract    ChangeContract
	Policy      WorktreePolicy
	CheckOnly   bool
	AllowDirty  bool
	UnidiffZero bool

	// PreApplyCI runs before the real apply, only when Contract.RequireTests
	// is set. PostApplyCI runs after the real apply, whenever non-nil.
	PreApplyCI  CIHook
	PostApplyCI CIHook
}

// VerifyAndApplyPatch is the Patch Gate's single entry point: parse the
// envelope, evaluate the contract, and — unless check_only or a
// violation is found — drive the apply/commit pipeline under a
// task-scoped lock. It never panics; every failure mode is surfaced
// through the returned ApplyReport or error.
func VerifyAndApplyPatch(ctx context.Context, envelopeText string, opts Options) (*ApplyReport, error) {
	env, err := ParseEnvelope(envelopeText)
	if err != nil {
		return nil, err
	}
	if opts.Contract.TaskID == "" {
		opts.Contract.TaskID = env.TaskID
	}
	opts.Contract = MergeRepoConfig(opts.RepoPath, opts.Contract)

	stats := ComputeDiffStats(env.Diff)
	violations := Evaluate(opts.Contract, env.Diff, stats)

	report := &ApplyReport{
		TaskID:             env.TaskID,
		Stats:              stats,
		ContractViolations: violations,
	}

	if len(violations) > 0 {
		slog.Warn("contract violations", slog.String("task_id", env.TaskID), slog.Int("count", len(violations)))
		return report, nil
	}
	report.CheckedOK = true

	lock, err := AcquireTaskLock(opts.RepoPath, env.TaskID)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	allowDirty := opts.AllowDirty || os.Getenv("PATCHGATE_ALLOW_DIRTY") == "1"
	wt, err := PrepareWorktree(ctx, opts.RepoPath, opts.Policy, allowDirty)
	if err != nil {
		return nil, err
	}

	patchFile, err := writeTempPatch(env.Diff)
	if err != nil {
		return nil, err
	}
	defer os.Remove(patchFile)

	unidiffZero := opts.UnidiffZero || os.Getenv("PATCHGATE_GIT_UNIDIFF_ZERO") == "1"

	if _, err := wt.Runner.ApplyWithFallback(ctx, patchFile, true, unidiffZero); err != nil {
		_ = wt.Cleanup(ctx)
		return nil, errors.New(errors.ErrCodeGitError, "dry-run apply failed in both strict and 3-way mode", err)
	}

	if opts.Contract.RequireTests && opts.PreApplyCI != nil {
		if err := opts.PreApplyCI(ctx, wt.Path); err != nil {
			_ = wt.Cleanup(ctx)
			return nil, errors.New(errors.ErrCodeGitError, "pre-apply CI check failed", err)
		}
	}

	if opts.CheckOnly {
		slog.Info("check-only verification passed", slog.String("task_id", env.TaskID))
		_ = wt.Cleanup(ctx)
		return report, nil
	}

	threeWay, err := wt.Runner.ApplyWithFallback(ctx, patchFile, false, unidiffZero)
	if err != nil {
		if rbErr := wt.Rollback(ctx); rbErr != nil {
			report.Notes = append(report.Notes, "rollback after apply failure also failed: "+rbErr.Error())
		}
		slog.Error("apply failed, rolled back", slog.String("task_id", env.TaskID), slog.Any("err", err))
		return nil, errors.New(errors.ErrCodeGitError, "apply failed in both strict and 3-way mode", err)
	}
	if threeWay {
		report.Notes = append(report.Notes, "applied via 3-way merge fallback")
	}
	report.Applied = true
	slog.Info("patch applied", slog.String("task_id", env.TaskID), slog.Bool("three_way", threeWay))

	if opts.PostApplyCI != nil {
		if err := opts.PostApplyCI(ctx, wt.Path); err != nil {
			if rbErr := wt.Rollback(ctx); rbErr != nil {
				report.Notes = append(report.Notes, "rollback after CI failure also failed: "+rbErr.Error())
			}
			return nil, errors.New(errors.ErrCodeGitError, "post-apply CI check failed", err)
		}
	}

	if err := wt.Runner.AddAll(ctx); err != nil {
		_ = wt.Rollback(ctx)
		return nil, err
	}

	message := buildCommitMessage(opts.Contract, env)
	if err := wt.Runner.Commit(ctx, message); err != nil {
		_ = wt.Rollback(ctx)
		return nil, err
	}

	if err := appendTrailers(ctx, wt.Runner, opts.RepoPath, opts.Contract, env, message); err != nil {
		return nil, err
	}

	sha, err := wt.Runner.HeadSHA(ctx)
	if err != nil {
		return nil, err
	}
	report.Committed = true
	report.CommitSHA = sha
	slog.Info("patch committed", slog.String("task_id", env.TaskID), slog.String("commit_sha", sha))

	if _, err := recordArtifacts(opts.RepoPath, env, opts.Contract, *report, iso8601Z(time.Now())); err != nil {
		report.Notes = append(report.Notes, "failed to persist artifacts: "+err.Error())
	}

	if err := wt.Cleanup(ctx); err != nil {
		report.Notes = append(report.Notes, "failed to clean up ephemeral worktree: "+err.Error())
	}

	return report, nil
}

// writeTempPatch materialises a diff body to a temp file for `git
// apply`, which requires a file argument rather than stdin when it
// needs to seek during 3-way fallback detection.
func writeTempPatch(diff string) (string, error) {
	f, err := os.CreateTemp("", "patchgate-*.diff")
	if err != nil {
		return "", errors.IOError("failed to create temp patch file", err)
	}
	defer f.Close()
	if _, err := f.WriteString(diff); err != nil {
		return "", errors.IOError("failed to write temp patch file", err)
	}
	return f.Name(), nil
}

// buildCommitMessage renders the conventional commit message:
// "<prefix>(task): <subject> [<task_id>]" with an optional
// Signed-off-by line and rationale body.
func buildCommitMessage(contract ChangeContract, env *DiffEnvelope) string {
	subject := env.Rationale
	if subject == "" {
		subject = "automated change"
	}
	// Use only the first line of the rationale as the subject; the full
	// text (if multi-line) goes in the body below.
	subjectLine, rest, _ := strings.Cut(subject, "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "%s(task): %s [%s]\n", contract.CommitPrefix, subjectLine, env.TaskID)

	if contract.RequireSignoff {
		b.WriteString("\nSigned-off-by: Autopilot <autopilot@example>\n")
	}
	if rest != "" {
		fmt.Fprintf(&b, "\nRationale: %s\n", rest)
	} else if env.Rationale != "" {
		fmt.Fprintf(&b, "\nRationale: %s\n", env.Rationale)
	}

	return b.String()
}

// appendTrailers amends HEAD's message to append the PRD-Ref,
// Contract-Hash, Diff-Hash, and Task-Id trailers, each a SHA-256 of the
// respective artifact. Amending (rather than a second commit) keeps the
// atomic-commit invariant: exactly one new commit lands at HEAD.
func appendTrailers(ctx context.Context, runner *gitexec.Runner, repoPath string, contract ChangeContract, env *DiffEnvelope, baseMessage string) error {
	contractJSON, err := contractJSON(contract)
	if err != nil {
		return err
	}

	trailers := fmt.Sprintf(
		"\nPRD-Ref: %s\nContract-Hash: %s\nDiff-Hash: %s\nTask-Id: %s\n",
		prdRef(repoPath),
		sha256Hex(contractJSON),
		sha256Hex([]byte(env.Diff)),
		env.TaskID,
	)

	return runner.AmendMessage(ctx, strings.TrimRight(baseMessage, "\n")+"\n"+trailers)
}
