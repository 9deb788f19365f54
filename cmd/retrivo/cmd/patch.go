package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retrivo/core/internal/config"
	"github.com/retrivo/core/internal/logging"
	"github.com/retrivo/core/internal/output"
	"github.com/retrivo/core/internal/patchgate"
)

func newPatchCmd() *cobra.Command {
	var (
		envelopeFile string
		baseRefFlag  string
		checkOnly    bool
		ephemeral    bool
		allowDirty   bool
		jsonOutput   bool
		allowedPaths []string
		denyPaths    []string
		denyPresets  []string
		requireTests bool
	)

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Verify and apply a diff envelope under a change contract",
		Long: `Read a diff envelope (base_ref/task_id/rationale + unified diff), evaluate
it against a declarative change contract, and — unless --check-only or a
violation is found — apply and commit it.

The envelope is read from --file, or from stdin if --file is omitted:

  base_ref: main
  task_id: TASK-123
  rationale: "fix the thing"
  ---BEGIN DIFF---
  <unified diff>
  ---END DIFF---`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPatch(cmd, patchOptions{
				envelopeFile: envelopeFile,
				checkOnly:    checkOnly,
				ephemeral:    ephemeral,
				allowDirty:   allowDirty,
				jsonOutput:   jsonOutput,
				allowedPaths: allowedPaths,
				denyPaths:    denyPaths,
				denyPresets:  denyPresets,
				requireTests: requireTests,
			})
		},
	}

	cmd.Flags().StringVar(&envelopeFile, "file", "", "Path to the envelope file (default: stdin)")
	cmd.Flags().StringVar(&baseRefFlag, "base-ref", "", "Override the envelope's base_ref")
	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "Verify and dry-run apply without committing")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Apply in an ephemeral worktree instead of in-place")
	cmd.Flags().BoolVar(&allowDirty, "allow-dirty", false, "Bypass the worktree-cleanliness check")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the apply report as JSON")
	cmd.Flags().StringSliceVar(&allowedPaths, "allow-path", nil, "Glob of paths the diff may touch (repeatable; empty = allow all)")
	cmd.Flags().StringSliceVar(&denyPaths, "deny-path", nil, "Glob of paths the diff may not touch (repeatable)")
	cmd.Flags().StringSliceVar(&denyPresets, "deny-preset", nil, "Named vendored-path preset to deny (repeatable, e.g. node_modules)")
	cmd.Flags().BoolVar(&requireTests, "require-tests", false, "Run the pre-apply CI hook before applying")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runPatch(cmd, patchOptions{
			envelopeFile: envelopeFile,
			baseRef:      baseRefFlag,
			checkOnly:    checkOnly,
			ephemeral:    ephemeral,
			allowDirty:   allowDirty,
			jsonOutput:   jsonOutput,
			allowedPaths: allowedPaths,
			denyPaths:    denyPaths,
			denyPresets:  denyPresets,
			requireTests: requireTests,
		})
	}

	return cmd
}

type patchOptions struct {
	envelopeFile string
	baseRef      string
	checkOnly    bool
	ephemeral    bool
	allowDirty   bool
	jsonOutput   bool
	allowedPaths []string
	denyPaths    []string
	denyPresets  []string
	requireTests bool
}

func runPatch(cmd *cobra.Command, opts patchOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	patchLogCfg := logging.DefaultConfig()
	patchLogCfg.FilePath = logging.PatchLogPath()
	patchLogCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(patchLogCfg); err == nil {
		defer cleanup()
		slog.SetDefault(logger)
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	}

	var reader io.Reader = cmd.InOrStdin()
	if opts.envelopeFile != "" {
		f, err := os.Open(opts.envelopeFile)
		if err != nil {
			return fmt.Errorf("open envelope file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	text, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read envelope: %w", err)
	}

	env, err := patchgate.ParseEnvelope(string(text))
	if err != nil {
		return err
	}

	contract := patchgate.DefaultContract(env.TaskID)
	contract.AllowedPaths = opts.allowedPaths
	contract.DenyPaths = opts.denyPaths
	contract.DenyPresets = opts.denyPresets
	contract.RequireTests = opts.requireTests

	policy := patchgate.WorktreePolicy{Mode: patchgate.InPlace}
	if opts.ephemeral {
		policy = patchgate.WorktreePolicy{
			Mode:    patchgate.EphemeralFromBaseRef,
			BaseRef: env.BaseRef,
			TaskID:  env.TaskID,
		}
	}

	report, err := patchgate.VerifyAndApplyPatch(ctx, string(text), patchgate.Options{
		RepoPath:   root,
		Contract:   contract,
		Policy:     policy,
		CheckOnly:  opts.checkOnly,
		AllowDirty: opts.allowDirty,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := output.New(cmd.OutOrStdout())
	if len(report.ContractViolations) > 0 {
		out.Error(fmt.Sprintf("contract violations for task %s:", report.TaskID))
		for _, v := range report.ContractViolations {
			out.Status("  -", v)
		}
		return fmt.Errorf("patch rejected: %d contract violation(s)", len(report.ContractViolations))
	}

	if report.Committed {
		out.Successf("applied and committed %s (%s)", report.TaskID, report.CommitSHA)
	} else if report.Applied {
		out.Success("applied (not committed)")
	} else if report.CheckedOK {
		out.Success("check passed; no changes made (--check-only)")
	}
	for _, note := range report.Notes {
		out.Warning(note)
	}

	return nil
}
