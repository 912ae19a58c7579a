// Package artifacts locates and describes the files produced by the training
// pipeline: model weights, the fitted scaler and an optional manifest.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Default file names inside an artifacts directory.
const (
	DefaultModelFile    = "insomnia_cnn_lstm_model.json"
	DefaultScalerFile   = "insomnia_scaler.yaml"
	DefaultManifestFile = "manifest.json"
)

// Manifest records the schema an artifact set was produced with.
type Manifest struct {
	Format       string   `json:"format" yaml:"format"`
	Version      string   `json:"version" yaml:"version"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Created      string   `json:"created,omitempty" yaml:"created,omitempty"`
	SeqLen       int      `json:"seq_len,omitempty" yaml:"seq_len,omitempty"`
	FeatureNames []string `json:"feature_names,omitempty" yaml:"feature_names,omitempty"`
}

// Paths lists where each artifact lives.
type Paths struct {
	Dir      string
	Model    string
	Scaler   string
	Manifest string
}

// Resolve fills empty paths with the default file names inside Dir.
func (p Paths) Resolve() Paths {
	if p.Model == "" {
		p.Model = filepath.Join(p.Dir, DefaultModelFile)
	}
	if p.Scaler == "" {
		p.Scaler = filepath.Join(p.Dir, DefaultScalerFile)
	}
	if p.Manifest == "" {
		p.Manifest = filepath.Join(p.Dir, DefaultManifestFile)
	}
	return p
}

// LoadManifest reads a manifest. A missing file is not an error and returns
// nil.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
