package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestFile = "manifest.json"

// Manifest records metadata about a diary data directory.
type Manifest struct {
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReadManifest loads manifest.json from dataDir.
func ReadManifest(dataDir string) (*Manifest, error) {
	f, err := os.Open(filepath.Join(dataDir, manifestFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m Manifest
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest writes m to manifest.json inside dataDir.
func WriteManifest(dataDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, manifestFile), append(data, '\n'), 0o644)
}

// ensureManifest checks that dataDir was created with the current schema,
// writing a fresh manifest when none exists.
func ensureManifest(dataDir string) (*Manifest, error) {
	m, err := ReadManifest(dataDir)
	if errors.Is(err, os.ErrNotExist) {
		m = &Manifest{SchemaVersion: SchemaVersion, CreatedAt: time.Now().UTC()}
		if err := WriteManifest(dataDir, m); err != nil {
			return nil, fmt.Errorf("write manifest: %w", err)
		}
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if m.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: data dir has version %d, want %d", ErrSchemaVersion, m.SchemaVersion, SchemaVersion)
	}
	return m, nil
}
