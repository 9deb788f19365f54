package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/retrivo/core/internal/config"
	"github.com/retrivo/core/internal/index"
	"github.com/retrivo/core/internal/repomap"
	"github.com/retrivo/core/internal/store"
)

func newRepomapCmd() *cobra.Command {
	var (
		maxFiles   int
		maxSymbols int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "repomap [path]",
		Short: "Print a ranked structural map of the indexed workspace",
		Long: `Repomap summarises the indexed workspace: its most symbol-dense
files, each with the top-level symbols it defines. The map is built from
the existing index, so run 'retrivo index' first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runRepomap(cmd.Context(), cmd, path, maxFiles, maxSymbols, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Maximum files to list (0 = config default)")
	cmd.Flags().IntVar(&maxSymbols, "max-symbols", 10, "Maximum symbols listed per file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRepomap(ctx context.Context, cmd *cobra.Command, path string, maxFiles, maxSymbols int, jsonOutput bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".retrivo")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s\nRun 'retrivo index %s' to create one", dataDir, path)
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer metadata.Close()

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	if maxFiles <= 0 {
		maxFiles = cfg.RepoMap.MaxFiles
	}

	result, err := repomap.NewService(metadata).Generate(ctx, index.ProjectIDForRoot(root), repomap.Request{
		MaxFiles:          maxFiles,
		MaxSymbolsPerFile: maxSymbols,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Repository map (%d files", result.TotalFiles)
	if result.Truncated {
		fmt.Fprintf(out, ", showing top %d", len(result.Files))
	}
	fmt.Fprintln(out, "):")
	fmt.Fprintln(out)

	for _, f := range result.Files {
		fmt.Fprintf(out, "%s", f.Path)
		if f.Language != "" {
			fmt.Fprintf(out, " (%s)", f.Language)
		}
		fmt.Fprintln(out)
		for _, sym := range f.Symbols {
			fmt.Fprintf(out, "  %-10s %s:%d\n", sym.Kind, sym.Name, sym.StartLine)
		}
		if f.SymbolCount > len(f.Symbols) {
			fmt.Fprintf(out, "  ... %d more symbols\n", f.SymbolCount-len(f.Symbols))
		}
	}

	return nil
}
