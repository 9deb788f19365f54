package patchgate

import "strings"

// PerFileStats accumulates the counters the contract evaluator needs for
// a single file touched by a diff.
type PerFileStats struct {
	Path            string
	OldPath         string
	LinesAdded      int
	LinesRemoved    int
	Hunks           int
	BytesAdded      int
	IsNewFile       bool
	IsDeleted       bool
	IsRename        bool
	IsCopy          bool
	IsBinary        bool
	IsSymlink       bool
	ExecModeChanged bool
	PermsChanged    bool
}

// DiffStats is the aggregate over every PerFileStats record in a diff.
type DiffStats struct {
	FilesChanged int
	LinesAdded   int
	LinesRemoved int
	NewFiles     int
	Deletes      int
	Renames      int
	Copies       int
	Files        []PerFileStats
}

// ComputeDiffStats scans a unified diff line by line, splitting it into
// per-file records on every "diff --git" header and classifying each
// file's metadata lines (renames, copies, mode changes, binary patches).
func ComputeDiffStats(diff string) DiffStats {
	var stats DiffStats
	var current *PerFileStats

	flush := func() {
		if current != nil {
			stats.Files = append(stats.Files, *current)
			stats.FilesChanged++
			stats.LinesAdded += current.LinesAdded
			stats.LinesRemoved += current.LinesRemoved
			if current.IsNewFile {
				stats.NewFiles++
			}
			if current.IsDeleted {
				stats.Deletes++
			}
			if current.IsRename {
				stats.Renames++
			}
			if current.IsCopy {
				stats.Copies++
			}
		}
	}

	lines := strings.Split(diff, "\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			path := pathFromDiffGitLine(line)
			current = &PerFileStats{Path: path}
		case current == nil:
			continue
		case strings.HasPrefix(line, "rename from "):
			current.IsRename = true
			current.OldPath = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			current.Path = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "copy from "):
			current.IsCopy = true
			current.OldPath = strings.TrimPrefix(line, "copy from ")
		case strings.HasPrefix(line, "copy to "):
			current.Path = strings.TrimPrefix(line, "copy to ")
		case strings.HasPrefix(line, "deleted file mode"):
			current.IsDeleted = true
			if strings.Contains(line, "120000") {
				current.IsSymlink = true
			}
		case strings.HasPrefix(line, "new file mode"):
			current.IsNewFile = true
			if strings.Contains(line, "120000") {
				current.IsSymlink = true
			}
			if strings.Contains(line, "100755") {
				current.ExecModeChanged = true
			}
		case strings.HasPrefix(line, "old mode"), strings.HasPrefix(line, "new mode"):
			current.PermsChanged = true
			if strings.Contains(line, "100755") {
				current.ExecModeChanged = true
			}
		case strings.HasPrefix(line, "GIT binary patch"), strings.HasPrefix(line, "Binary files "):
			current.IsBinary = true
		case strings.HasPrefix(line, "@@ "):
			current.Hunks++
		case strings.HasPrefix(line, "+++ "), strings.HasPrefix(line, "--- "):
			// file markers, not content lines
		case strings.HasPrefix(line, "+"):
			current.LinesAdded++
			current.BytesAdded += len(line) - 1
		case strings.HasPrefix(line, "-"):
			current.LinesRemoved++
		}
	}
	flush()

	return stats
}

// pathFromDiffGitLine extracts the b/ path from a "diff --git a/P b/P"
// header, falling back to the raw header when the expected a/...b/...
// shape isn't present (unusual prefixes, e.g. --no-prefix diffs).
func pathFromDiffGitLine(line string) string {
	line = strings.TrimPrefix(line, "diff --git ")
	idx := strings.Index(line, " b/")
	if idx == -1 {
		return line
	}
	return line[idx+len(" b/"):]
}
