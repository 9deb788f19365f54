package patchgate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/retrivo/core/internal/pathglob"
)

const maxDiffBytes = 2 * 1024 * 1024 // 2 MiB

// ChangeContract is the declarative predicate set a diff must satisfy
// before the Patch Gate will apply it.
type ChangeContract struct {
	TaskID         string
	CommitPrefix   string
	RequireSignoff bool
	RequireTests   bool

	AllowedPaths []string
	DenyPaths    []string
	DenyPresets  []string

	AllowRenames bool
	AllowCopies  bool
	AllowDeletes bool

	ForbidBinary             bool
	ForbidSymlinks           bool
	ForbidExecModeChanges    bool
	ForbidPermissionsChanges bool
	ForbidSecrets            bool
	ForbidMinified           bool

	AllowedExtensions []string

	MaxFilesChanged      *int
	MaxLinesAdded        *int
	MaxLinesRemoved      *int
	MaxNewFiles          *int
	MaxLinesAddedPerFile *int
	MaxHunksPerFile      *int
	MaxBytesPerFile      *int
}

// DefaultContract returns a permissive baseline contract: a caller
// narrows it by setting AllowedPaths/DenyPaths/budgets for the task at
// hand. Renames, copies, and deletes are disallowed by default since an
// automated change that silently restructures or removes files is the
// riskiest failure mode to allow implicitly.
func DefaultContract(taskID string) ChangeContract {
	return ChangeContract{
		TaskID:                   taskID,
		CommitPrefix:             "fix",
		ForbidBinary:             true,
		ForbidSymlinks:           true,
		ForbidExecModeChanges:    true,
		ForbidPermissionsChanges: true,
		ForbidSecrets:            true,
		ForbidMinified:           true,
	}
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                                  // AWS access key
	regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`), // private key PEM
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`),                        // GitHub PAT
	regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),                            // Google API key
	regexp.MustCompile(`(?i)aws_secret_access_key\s*=\s*[A-Za-z0-9/+=]{40}`), // AWS secret key
}

// Evaluate runs every contract rule against the diff and its precomputed
// stats, returning every violation found rather than stopping at the
// first, so a caller sees the complete picture in one pass.
func Evaluate(contract ChangeContract, diff string, stats DiffStats) []string {
	var violations []string

	// 1. Sanity.
	if !strings.Contains(diff, "diff --git") {
		violations = append(violations, "diff does not contain a 'diff --git' header")
	}
	if len(diff) > maxDiffBytes {
		violations = append(violations, fmt.Sprintf("diff exceeds maximum size of %d bytes", maxDiffBytes))
	}
	if contract.ForbidBinary && strings.Contains(diff, "GIT binary patch") {
		violations = append(violations, "binary patches are forbidden by contract")
	}

	denyPatterns := append([]string{}, contract.DenyPaths...)
	for _, preset := range contract.DenyPresets {
		denyPatterns = append(denyPatterns, pathglob.ExpandPreset(preset)...)
	}

	for _, f := range stats.Files {
		for _, p := range []string{f.Path, f.OldPath} {
			if p == "" {
				continue
			}
			norm := strings.ReplaceAll(p, "\\", "/")
			if strings.Contains(norm, "..") {
				violations = append(violations, fmt.Sprintf("path traversal is forbidden: %s", p))
			}
			if strings.HasPrefix(norm, ".git/") || strings.Contains(norm, "/.git/") {
				violations = append(violations, fmt.Sprintf("path under .git/ is forbidden: %s", p))
			}
			if pathglob.MatchAny(denyPatterns, norm) {
				violations = append(violations, fmt.Sprintf("path matches a deny rule: %s", p))
			}
			if len(contract.AllowedPaths) > 0 && !pathglob.MatchAny(contract.AllowedPaths, norm) {
				violations = append(violations, fmt.Sprintf("path is not in the allowed set: %s", p))
			}
		}

		if f.IsRename && !contract.AllowRenames {
			violations = append(violations, fmt.Sprintf("rename is forbidden by contract: %s", f.Path))
		}
		if f.IsCopy && !contract.AllowCopies {
			violations = append(violations, fmt.Sprintf("copy is forbidden by contract: %s", f.Path))
		}
		if f.IsDeleted && !contract.AllowDeletes {
			violations = append(violations, fmt.Sprintf("delete is forbidden by contract: %s", f.Path))
		}
		if f.IsBinary && contract.ForbidBinary {
			violations = append(violations, fmt.Sprintf("binary file is forbidden by contract: %s", f.Path))
		}
		if f.IsSymlink && contract.ForbidSymlinks {
			violations = append(violations, fmt.Sprintf("symlink is forbidden by contract: %s", f.Path))
		}
		if f.ExecModeChanged && contract.ForbidExecModeChanges {
			violations = append(violations, fmt.Sprintf("executable mode change is forbidden by contract: %s", f.Path))
		}
		if f.PermsChanged && contract.ForbidPermissionsChanges {
			violations = append(violations, fmt.Sprintf("permissions change is forbidden by contract: %s", f.Path))
		}

		if len(contract.AllowedExtensions) > 0 && !hasAllowedExtension(f.Path, contract.AllowedExtensions) {
			violations = append(violations, fmt.Sprintf("extension is not allowed: %s", f.Path))
		}
		if contract.MaxLinesAddedPerFile != nil && f.LinesAdded > *contract.MaxLinesAddedPerFile {
			violations = append(violations, fmt.Sprintf("%s adds %d lines, exceeding per-file cap of %d", f.Path, f.LinesAdded, *contract.MaxLinesAddedPerFile))
		}
		if contract.MaxHunksPerFile != nil && f.Hunks > *contract.MaxHunksPerFile {
			violations = append(violations, fmt.Sprintf("%s has %d hunks, exceeding per-file cap of %d", f.Path, f.Hunks, *contract.MaxHunksPerFile))
		}
		if contract.MaxBytesPerFile != nil && f.BytesAdded > *contract.MaxBytesPerFile {
			violations = append(violations, fmt.Sprintf("%s adds %d bytes, exceeding per-file cap of %d", f.Path, f.BytesAdded, *contract.MaxBytesPerFile))
		}
	}

	if contract.MaxFilesChanged != nil && stats.FilesChanged > *contract.MaxFilesChanged {
		violations = append(violations, fmt.Sprintf("%d files changed, exceeding cap of %d", stats.FilesChanged, *contract.MaxFilesChanged))
	}
	if contract.MaxLinesAdded != nil && stats.LinesAdded > *contract.MaxLinesAdded {
		violations = append(violations, fmt.Sprintf("%d lines added, exceeding cap of %d", stats.LinesAdded, *contract.MaxLinesAdded))
	}
	if contract.MaxLinesRemoved != nil && stats.LinesRemoved > *contract.MaxLinesRemoved {
		violations = append(violations, fmt.Sprintf("%d lines removed, exceeding cap of %d", stats.LinesRemoved, *contract.MaxLinesRemoved))
	}
	if contract.MaxNewFiles != nil && stats.NewFiles > *contract.MaxNewFiles {
		violations = append(violations, fmt.Sprintf("%d new files, exceeding cap of %d", stats.NewFiles, *contract.MaxNewFiles))
	}

	if contract.ForbidSecrets {
		violations = append(violations, scanForSecrets(diff)...)
	}
	if contract.ForbidMinified {
		violations = append(violations, scanForMinified(diff)...)
	}

	return violations
}

func hasAllowedExtension(path string, exts []string) bool {
	for _, ext := range exts {
		ext = strings.TrimPrefix(ext, ".")
		if strings.HasSuffix(path, "."+ext) {
			return true
		}
	}
	return false
}

// scanForSecrets regex-scans only added lines (the content an automated
// change is actually introducing) for common credential shapes.
func scanForSecrets(diff string) []string {
	var violations []string
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		for _, re := range secretPatterns {
			if re.MatchString(line) {
				violations = append(violations, "added line appears to contain a secret: "+re.String())
				break
			}
		}
	}
	return violations
}

// scanForMinified flags added lines that look like minified/generated
// content rather than hand-authored source: very long lines, or long
// lines with too little whitespace to be prose or normal code.
func scanForMinified(diff string) []string {
	var violations []string
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		content := line[1:]
		if len(content) > 1000 {
			violations = append(violations, "added line looks minified (length > 1000 chars)")
			continue
		}
		if len(content) > 200 {
			ws := strings.Count(content, " ") + strings.Count(content, "\t")
			if float64(ws)/float64(len(content)) < 0.10 {
				violations = append(violations, "added line looks minified (long line, low whitespace ratio)")
			}
		}
	}
	return violations
}
