// Package patchgate guards automated code changes behind a declarative
// contract before they are ever applied to a working tree: it parses a
// diff envelope, evaluates it against a ChangeContract, and only then
// drives the apply/commit pipeline through internal/gitexec.
package patchgate

import (
	"strings"

	"github.com/retrivo/core/internal/errors"
)

const (
	diffBeginMarker = "---BEGIN DIFF---"
	diffEndMarker   = "---END DIFF---"

	defaultBaseRef = "main"
)

// DiffEnvelope is the parsed form of the textual envelope the Patch Gate
// accepts as input: a base ref to diff against, a task identifier, a
// human-readable rationale, and the unified diff body itself.
type DiffEnvelope struct {
	BaseRef   string
	TaskID    string
	Rationale string
	Diff      string
}

// ParseEnvelope parses the strictly-framed envelope format:
//
//	base_ref: <ref>
//	task_id: <id>
//	rationale: "<text>"
//	---BEGIN DIFF---
//	<unified diff>
//	---END DIFF---
//
// base_ref defaults to "main" when absent. The diff body is mandatory;
// its absence is a parse error.
func ParseEnvelope(text string) (*DiffEnvelope, error) {
	beginIdx := strings.Index(text, diffBeginMarker)
	if beginIdx == -1 {
		return nil, errors.ParseError("envelope is missing "+diffBeginMarker, nil)
	}
	endIdx := strings.Index(text, diffEndMarker)
	if endIdx == -1 || endIdx < beginIdx {
		return nil, errors.ParseError("envelope is missing "+diffEndMarker, nil)
	}

	header := text[:beginIdx]
	diff := text[beginIdx+len(diffBeginMarker) : endIdx]
	diff = strings.Trim(diff, "\n")
	diff = strings.TrimPrefix(diff, "\n")

	if strings.TrimSpace(diff) == "" {
		return nil, errors.ParseError("envelope diff body is empty", nil)
	}

	env := &DiffEnvelope{
		BaseRef: defaultBaseRef,
		Diff:    diff,
	}

	for _, line := range strings.Split(header, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)

		switch key {
		case "base_ref":
			if value != "" {
				env.BaseRef = value
			}
		case "task_id":
			env.TaskID = value
		case "rationale":
			env.Rationale = value
		}
	}

	if env.TaskID == "" {
		return nil, errors.ParseError("envelope is missing task_id", nil)
	}
	if !strings.Contains(env.Diff, "diff --git") {
		return nil, errors.ParseError("envelope diff body does not contain a unified diff", nil)
	}

	return env, nil
}
