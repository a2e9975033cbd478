// Package filestore reads and writes the JSON snapshots behind the file
// persistence mode. Callers hold their own lock around Load and Save.
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load decodes the snapshot at path into v. A missing or empty file leaves v
// untouched.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Save writes v to path through a temp file and rename, so readers never
// see a partial snapshot.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Path creates dataDir if needed and returns the snapshot path for name.
func Path(dataDir, name string) (string, error) {
	if dataDir == "" {
		return "", fmt.Errorf("data directory required for file persistence")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return filepath.Join(dataDir, name), nil
}
