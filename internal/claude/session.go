package claude

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// recordTimeFormat is the filename timestamp layout. Colons are not
// valid in filenames on every platform, so the ISO time separators
// become dashes.
const recordTimeFormat = "2006-01-02T15-04-05"

// responsePattern matches persisted response record filenames.
var responsePattern = regexp.MustCompile(`^response_(\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2})\.json$`)

// RecordFileName renders the canonical filename for a record taken at t.
func RecordFileName(t time.Time) string {
	return fmt.Sprintf("response_%s.json", t.UTC().Format(recordTimeFormat))
}

// StepFileName renders a filename for a named workflow step record,
// prefixed with the timestamp so a directory listing sorts chronologically.
func StepFileName(t time.Time, step string) string {
	step = strings.ReplaceAll(step, string(filepath.Separator), "_")
	return fmt.Sprintf("%s_%s.json", t.UTC().Format(recordTimeFormat), step)
}

// PersistRecord writes rec into dir under the canonical response
// filename. The write is atomic: temp file then rename.
func PersistRecord(dir string, rec *ResponseRecord) error {
	return persist(dir, RecordFileName(rec.Timestamp), rec)
}

// PersistStepRecord writes rec under a step-named filename, used by
// workflows that keep per-step transcripts alongside the session log.
func PersistStepRecord(dir, step string, rec *ResponseRecord) error {
	return persist(dir, StepFileName(rec.Timestamp, step), rec)
}

func persist(dir, name string, rec *ResponseRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

// FindLatestSession scans dir for response records and returns the
// session ID of the newest one. Filenames that do not match the strict
// record pattern, or whose timestamp does not parse, are skipped.
// Returns "" with nil error when no usable record exists.
func FindLatestSession(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read session dir: %w", err)
	}

	var latest string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := responsePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if _, perr := time.Parse(recordTimeFormat, m[1]); perr != nil {
			continue
		}
		// The timestamp layout is fixed-width, so lexicographic order
		// on the filename is chronological order.
		if e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", nil
	}

	data, err := os.ReadFile(filepath.Join(dir, latest))
	if err != nil {
		return "", fmt.Errorf("read record %s: %w", latest, err)
	}
	id, err := ExtractSessionID(data)
	if err != nil {
		return "", fmt.Errorf("record %s: %w", latest, err)
	}
	return id, nil
}

// ExtractSessionID pulls a session identifier out of a persisted record
// or raw provider envelope. Several historical record shapes are
// accepted, tried in order:
//
//  1. top-level "session_id"
//  2. top-level "sessionId"
//  3. "raw" object's "session_id"
//  4. "response" object's "session_id"
//
// Returns "" with nil error when the document parses but carries no
// session identifier.
func ExtractSessionID(data []byte) (string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse record: %w", err)
	}

	if id := stringField(doc, "session_id"); id != "" {
		return id, nil
	}
	if id := stringField(doc, "sessionId"); id != "" {
		return id, nil
	}
	for _, nested := range []string{"raw", "response"} {
		raw, ok := doc[nested]
		if !ok {
			continue
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err != nil {
			continue
		}
		if id := stringField(inner, "session_id"); id != "" {
			return id, nil
		}
	}
	return "", nil
}

func stringField(doc map[string]json.RawMessage, key string) string {
	raw, ok := doc[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
