package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/retrivo/core/configs"
	"github.com/retrivo/core/internal/config"
	"github.com/retrivo/core/internal/embed"
	"github.com/retrivo/core/internal/output"
	"github.com/retrivo/core/pkg/version"
)

func newInitCmd() *cobra.Command {
	var (
		force      bool
		offline    bool
		configOnly bool
		resume     bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize Retrivo for a project",
		Long: `Initialize Retrivo for the current project.

This command:
1. Generates .codex/retrieval.toml configuration template
2. Ensures the .retrivo index directory is ignored by git
3. Indexes the project with a progress bar (unless --config-only)
4. Verifies embedder availability (Ollama or static fallback)

Use --resume to continue from a previous interrupted indexing operation.`,
		Example: `  # Initialize in current project
  retrivo init

  # Force reinitialize (overwrite existing config)
  retrivo init --force

  # Fix config only (skip indexing)
  retrivo init --force --config-only

  # Use offline mode (static embeddings)
  retrivo init --offline

  # Resume interrupted indexing
  retrivo init --resume`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runInit(ctx, cmd, force, offline, configOnly, resume)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no Ollama required)")
	cmd.Flags().BoolVar(&configOnly, "config-only", false, "Write config only, skip indexing")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume from previous checkpoint if available")

	return cmd
}

// generateProjectConfig creates a template .codex/retrieval.toml if one
// doesn't already exist. The generated file is optional — Retrivo works
// with sensible defaults.
func generateProjectConfig(out *output.Writer, projectRoot string, force bool) error {
	configPath := config.ProjectConfigPath(projectRoot)

	if _, err := os.Stat(configPath); err == nil && !force {
		out.Status("ℹ️ ", "Existing .codex/retrieval.toml preserved")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create .codex directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write .codex/retrieval.toml: %w", err)
	}

	out.Statusf("📝", "Created .codex/retrieval.toml (optional project configuration)")
	return nil
}

// ensureDataDirIgnored adds the index data directory to .gitignore if not
// present. Returns (true, nil) if added, (false, nil) if already present.
func ensureDataDirIgnored(projectRoot string) (bool, error) {
	gitignorePath := filepath.Join(projectRoot, ".gitignore")
	entry := ".retrivo/"

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}

	for _, line := range splitLines(string(content)) {
		if trimmed(line) == entry || trimmed(line) == ".retrivo" ||
			trimmed(line) == "/.retrivo" || trimmed(line) == "/.retrivo/" {
			return false, nil
		}
	}

	lineEnding := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		lineEnding = "\r\n"
	}
	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, []byte(lineEnding)...)
	}

	var addition string
	if len(content) == 0 {
		addition = fmt.Sprintf("# Retrivo index data (auto-generated)%s%s%s", lineEnding, entry, lineEnding)
	} else {
		addition = fmt.Sprintf("%s# Retrivo index data (auto-generated)%s%s%s", lineEnding, lineEnding, entry, lineEnding)
	}
	content = append(content, []byte(addition)...)

	if err := os.WriteFile(gitignorePath, content, 0o644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}
	return true, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func trimmed(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

func runInit(ctx context.Context, cmd *cobra.Command, force, offline, configOnly, resume bool) error {
	out := output.New(cmd.OutOrStdout())

	out.Statusf("🚀", "Retrivo %s - Initializing...", version.Version)
	out.Newline()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		root = cwd
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	out.Statusf("📁", "Project: %s", absRoot)
	out.Newline()

	if err := generateProjectConfig(out, absRoot, force); err != nil {
		out.Warningf("Could not create .codex/retrieval.toml template: %v", err)
	}

	added, err := ensureDataDirIgnored(absRoot)
	if err != nil {
		out.Warningf("Could not update .gitignore: %v", err)
	} else if added {
		out.Status("📝", "Added .retrivo to .gitignore")
	}

	if configOnly {
		out.Newline()
		out.Status("⏭️ ", "Skipping indexing (--config-only)")
		out.Newline()
		out.Success("Configuration complete!")
		return nil
	}

	if !offline {
		out.Newline()
		out.Status("🧠", "Checking embedder availability...")

		shouldUseOffline := checkEmbedderAvailable(ctx, out)
		if shouldUseOffline {
			offline = true
			out.Status("ℹ️ ", "Using offline mode (BM25-only search)")
		}
	}

	out.Newline()
	if resume {
		out.Status("📊", "Resuming indexing from checkpoint...")
	} else {
		out.Status("📊", "Indexing project...")
	}

	startTime := time.Now()
	if err := runIndexWithResume(ctx, cmd, absRoot, offline, false, resume, force); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	duration := time.Since(startTime)

	out.Newline()
	out.Status("⏱️ ", fmt.Sprintf("Completed in %.1fs", duration.Seconds()))

	embedderType := "OllamaEmbedder"
	if offline {
		embedderType = "Static (offline)"
	}
	out.Statusf("🧠", "Embedder: %s", embedderType)

	out.Newline()
	out.Success("Initialization complete!")
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Run 'retrivo search <query>' to try it out")
	out.Status("", "  2. Run 'retrivo doctor' to verify setup")

	if !config.GlobalConfigExists() {
		out.Newline()
		out.Status("💡", "For machine-specific settings (Ollama host, cache size):")
		out.Status("", "   Run 'retrivo config init' to create a global config")
	}

	return nil
}

// checkEmbedderAvailable probes the configured embedding provider and
// reports whether callers should fall back to offline (BM25-only) mode.
// Unlike an interactive installer, this never blocks on user input — it
// is a single readiness check appropriate for both TTY and CI contexts.
func checkEmbedderAvailable(ctx context.Context, out *output.Writer) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	embedder, err := embed.NewEmbedder(checkCtx, embed.ProviderOllama, embed.DefaultModelName)
	if err != nil {
		out.Warningf("Embedder unavailable: %v", err)
		return true
	}
	defer embedder.Close()

	if !embedder.Available(checkCtx) {
		out.Warning("Ollama is not responding")
		out.Status("💡", "Start it with 'ollama serve', or use --offline for BM25-only search")
		return true
	}

	out.Success("Embedder ready")
	return false
}
