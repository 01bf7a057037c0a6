// Package filestore persists application state as JSON documents on the
// local filesystem. There is no transactional engine underneath: atomicity
// comes from writing the full document to a temp file and renaming it over
// the previous one, so a crash mid-write leaves the prior state intact.
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON replaces the document at path with v. The rename is the commit
// point: callers may treat a nil return as "fully durable".
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// ReadJSON loads the document at path into v. A missing file is reported
// as os.ErrNotExist so callers can start from an empty state.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode state file %s: %w", path, err)
	}
	return nil
}
