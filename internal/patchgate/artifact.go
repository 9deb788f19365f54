package patchgate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/retrivo/core/internal/errors"
)

// ApplyReport is the terminal record of a single verify-and-apply run,
// returned to the caller and persisted to the artifact directory.
type ApplyReport struct {
	TaskID             string    `json:"task_id"`
	CheckedOK          bool      `json:"checked_ok"`
	Applied            bool      `json:"applied"`
	Committed          bool      `json:"committed"`
	CommitSHA          string    `json:"commit_sha,omitempty"`
	Stats              DiffStats `json:"stats"`
	ContractViolations []string  `json:"contract_violations,omitempty"`
	Notes              []string  `json:"notes,omitempty"`
}

// sha256Hex hashes b and returns its lowercase hex digest, used
// everywhere the Patch Gate needs content-addressed trailers: the diff
// body, the serialized contract, and (when present) PRD.md.
func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// prdRef hashes <repo>/PRD.md if present, else returns "NA" per the
// commit trailer format.
func prdRef(repoPath string) string {
	content, err := os.ReadFile(filepath.Join(repoPath, "PRD.md"))
	if err != nil {
		return "NA"
	}
	return sha256Hex(content)
}

// recordArtifacts persists the envelope, contract, and report as JSON
// under <repo>/.autopilot/rollouts/<task_id>/<ISO8601-Z>/, one file
// each. stamp is the ISO8601 UTC timestamp to use as the directory
// name; callers pass it in rather than calling time.Now() here so the
// layout stays a pure function of its inputs for testing.
func recordArtifacts(repoPath string, env *DiffEnvelope, contract ChangeContract, report ApplyReport, stamp string) (string, error) {
	dir := filepath.Join(repoPath, ".autopilot", "rollouts", env.TaskID, stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.IOError("failed to create artifact directory", err)
	}

	files := map[string]any{
		"envelope.json": env,
		"contract.json": contract,
		"report.json":   report,
	}
	for name, v := range files {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", errors.InternalError("failed to marshal artifact "+name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			return "", errors.IOError("failed to write artifact "+name, err)
		}
	}

	return dir, nil
}

// contractJSON serializes a contract deterministically for hashing and
// persistence; json.MarshalIndent with struct field order gives a
// stable byte representation across runs of the same contract value.
func contractJSON(contract ChangeContract) ([]byte, error) {
	b, err := json.Marshal(contract)
	if err != nil {
		return nil, errors.InternalError("failed to marshal contract", err)
	}
	return b, nil
}

// iso8601Z formats t as a compact UTC timestamp suitable for a path
// component: YYYYMMDDTHHMMSSZ.
func iso8601Z(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
