package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const currentSchemaVersion = 2

// snapshotEnvelope is the on-disk shape: version:2 with a runs map keyed
// by runId (spec §6). Generation is a supplemental field (not in spec's
// literal schema) that crosswatch.go uses to tell this process's own
// writes apart from a sibling process's, so it never re-processes its
// own file-change notification as a foreign update.
type snapshotEnvelope struct {
	Version    int                        `json:"version"`
	Generation int64                      `json:"generation,omitempty"`
	Runs       map[string]json.RawMessage `json:"runs"`
}

// store persists the registry snapshot to <stateDir>/subagents/runs.json,
// adapted from the teacher's FileStore.Save write-temp-then-rename
// pattern (src/internal/session/session.go).
type store struct {
	path string
}

func newStore(path string) *store {
	return &store{path: path}
}

// save serialises the entire in-memory map and replaces the file
// atomically. Per spec §4.2/§7, callers must treat a persistence error
// as an operational warning, not a fatal one. The caller-supplied
// generation number is stamped into the written envelope.
func (s *store) save(records map[string]*RunRecord, generation int64) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	runs := make(map[string]json.RawMessage, len(records))
	for id, rec := range records {
		raw, err := marshalRecord(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", id, err)
		}
		runs[id] = raw
	}

	envelope := snapshotEnvelope{Version: currentSchemaVersion, Generation: generation, Runs: runs}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, s.path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename snapshot into place: %w", err)
	}
	return nil
}

// load reads the snapshot, tolerating a missing file (empty map),
// malformed individual records (skipped), and the version-1 schema
// (unknown fields carried through verbatim as extras).
func (s *store) load() (map[string]*RunRecord, int64, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*RunRecord{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var envelope snapshotEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, 0, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	records := make(map[string]*RunRecord, len(envelope.Runs))
	for id, raw := range envelope.Runs {
		rec, err := unmarshalRecord(raw)
		if err != nil {
			// Malformed records are skipped, not fatal (spec §4.2).
			continue
		}
		if rec.RunID == "" {
			rec.RunID = id
		}
		records[id] = rec
	}
	return records, envelope.Generation, nil
}

// knownRecordFields mirrors RunRecord's json tags, used to separate
// known from unknown ("extra") fields on load so a version-1 document's
// unrecognised keys survive an unmarshal/marshal round trip untouched.
var knownRecordFields = map[string]bool{
	"runId": true, "childSessionKey": true, "requesterSessionKey": true,
	"requesterOrigin": true, "requesterDisplayKey": true, "task": true,
	"label": true, "cleanup": true, "createdAt": true, "startedAt": true,
	"endedAt": true, "outcome": true, "archiveAtMs": true,
	"cleanupHandled": true, "cleanupCompletedAt": true, "retryCount": true,
	"maxRetries": true, "nextRetryAt": true, "isRetry": true,
	"verificationAttempted": true, "verificationResult": true,
	"orchestrationConfig": true,
}

func marshalRecord(r *RunRecord) (json.RawMessage, error) {
	// Marshal the known fields via the struct's own tags, then merge in
	// any preserved extras (from a version-1 migration) as sibling keys.
	type alias RunRecord
	base, err := json.Marshal((*alias)(r))
	if err != nil {
		return nil, err
	}
	if len(r.extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.extra {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func unmarshalRecord(raw json.RawMessage) (*RunRecord, error) {
	type alias RunRecord
	var rec alias
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		extra := make(map[string]interface{})
		for k, v := range fields {
			if knownRecordFields[k] {
				continue
			}
			var val interface{}
			if err := json.Unmarshal(v, &val); err == nil {
				extra[k] = val
			}
		}
		if len(extra) > 0 {
			rec.extra = extra
		}
	}

	result := RunRecord(rec)
	return &result, nil
}
