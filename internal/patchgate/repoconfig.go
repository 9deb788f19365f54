package patchgate

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// repoContractConfig mirrors the optional <repo>/.autopilot/config.toml,
// a repository's standing tightening of whatever contract a caller brings.
type repoContractConfig struct {
	DenyPresets    []string `toml:"deny_presets"`
	ForbidSecrets  *bool    `toml:"forbid_secrets"`
	ForbidMinified *bool    `toml:"forbid_minified"`
}

// MergeRepoConfig folds the repository's optional .autopilot/config.toml
// into contract: deny_presets is a union, forbid_secrets and
// forbid_minified override when present. A missing file leaves the
// contract unchanged; an unreadable or unparsable one is logged and
// ignored rather than blocking the gate.
func MergeRepoConfig(repoPath string, contract ChangeContract) ChangeContract {
	path := filepath.Join(repoPath, ".autopilot", "config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return contract
	}

	var cfg repoContractConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		slog.Warn("ignoring malformed repo contract config",
			slog.String("path", path), slog.String("error", err.Error()))
		return contract
	}

	seen := make(map[string]bool, len(contract.DenyPresets))
	for _, p := range contract.DenyPresets {
		seen[p] = true
	}
	for _, p := range cfg.DenyPresets {
		if !seen[p] {
			contract.DenyPresets = append(contract.DenyPresets, p)
			seen[p] = true
		}
	}

	if cfg.ForbidSecrets != nil {
		contract.ForbidSecrets = *cfg.ForbidSecrets
	}
	if cfg.ForbidMinified != nil {
		contract.ForbidMinified = *cfg.ForbidMinified
	}

	return contract
}
