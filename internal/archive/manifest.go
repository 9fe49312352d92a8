package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
)

// Manifest is the metadata document packaged next to the dump. Producers are
// loose about optional fields, so decoding keeps unknown keys out of the way
// and only version/db_name are load-bearing.
type Manifest struct {
	DBName    string   `json:"db_name"`
	Version   string   `json:"version"`
	Modules   []string `json:"modules,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// ManifestPatch carries the fields rewritten after a successful migration.
// Nil fields are left untouched.
type ManifestPatch struct {
	Version   *string
	Timestamp *string
}

// ManifestError indicates the manifest was readable but unusable.
type ManifestError struct {
	Path   string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %s", e.Path, e.Reason)
}

// ParseManifest reads and validates manifest.json. The file is probed with
// gjson first so a manifest with extra producer-specific structure still
// yields the fields we care about before the strict decode runs.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, &ManifestError{Path: path, Reason: "not valid JSON"}
	}
	if !gjson.GetBytes(data, "version").Exists() {
		return nil, &ManifestError{Path: path, Reason: "missing required field \"version\""}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Path: path, Reason: err.Error()}
	}
	if m.Version == "" {
		return nil, &ManifestError{Path: path, Reason: "empty \"version\""}
	}
	return &m, nil
}

// UpdateManifest merges a patch into the manifest file and rewrites it. The
// patch is applied to the raw JSON document, not the typed struct, so
// producer-specific keys outside the known fields survive the rewrite.
func UpdateManifest(path string, patch ManifestPatch) (*Manifest, error) {
	m, err := ParseManifest(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ManifestError{Path: path, Reason: err.Error()}
	}

	if patch.Version != nil {
		m.Version = *patch.Version
		raw["version"] = m.Version
	}
	switch {
	case patch.Timestamp != nil:
		m.Timestamp = *patch.Timestamp
		raw["timestamp"] = m.Timestamp
	case patch.Version != nil:
		// A version bump without an explicit timestamp still records when it happened.
		m.Timestamp = time.Now().UTC().Format(time.RFC3339)
		raw["timestamp"] = m.Timestamp
	}

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o600); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}
