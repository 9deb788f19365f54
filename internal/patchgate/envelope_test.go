package patchgate

import "testing"

func TestParseEnvelope(t *testing.T) {
	text := "base_ref: develop\n" +
		"task_id: abc-123\n" +
		"rationale: \"fix the thing\"\n" +
		diffBeginMarker + "\n" +
		createdFileDiff +
		"\n" + diffEndMarker + "\n"

	env, err := ParseEnvelope(text)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.BaseRef != "develop" {
		t.Errorf("BaseRef = %q, want develop", env.BaseRef)
	}
	if env.TaskID != "abc-123" {
		t.Errorf("TaskID = %q, want abc-123", env.TaskID)
	}
	if env.Rationale != "fix the thing" {
		t.Errorf("Rationale = %q", env.Rationale)
	}
	if env.Diff == "" {
		t.Error("expected a non-empty diff body")
	}
}

func TestParseEnvelopeDefaultsBaseRef(t *testing.T) {
	text := "task_id: abc-123\n" +
		diffBeginMarker + "\n" +
		createdFileDiff +
		"\n" + diffEndMarker + "\n"

	env, err := ParseEnvelope(text)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.BaseRef != "main" {
		t.Errorf("BaseRef = %q, want default main", env.BaseRef)
	}
}

func TestParseEnvelopeMissingDiffIsError(t *testing.T) {
	text := "task_id: abc-123\nrationale: \"x\"\n"
	if _, err := ParseEnvelope(text); err == nil {
		t.Error("expected an error for an envelope with no diff markers")
	}
}

func TestParseEnvelopeEmptyDiffBodyIsError(t *testing.T) {
	text := "task_id: abc-123\n" + diffBeginMarker + "\n" + diffEndMarker + "\n"
	if _, err := ParseEnvelope(text); err == nil {
		t.Error("expected an error for an empty diff body")
	}
}

func TestParseEnvelopeMissingTaskIDIsError(t *testing.T) {
	text := diffBeginMarker + "\n" + createdFileDiff + "\n" + diffEndMarker + "\n"
	if _, err := ParseEnvelope(text); err == nil {
		t.Error("expected an error for a missing task_id")
	}
}
