package artifacts

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unzips an artifact archive into targetDir and returns the
// directory holding the model file. Archives may wrap their files in a
// single root folder.
func Extract(zipPath, targetDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("could not open zip: %w", err)
	}
	defer r.Close()

	if len(r.File) == 0 {
		return "", fmt.Errorf("empty zip archive")
	}

	targetDir, err = filepath.Abs(targetDir)
	if err != nil {
		return "", fmt.Errorf("could not resolve %s: %w", targetDir, err)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create directory: %w", err)
	}
	root := targetDir + string(os.PathSeparator)

	for _, f := range r.File {
		// reject entries that would escape targetDir
		destPath := filepath.Join(targetDir, f.Name)
		if !strings.HasPrefix(destPath, root) {
			return "", fmt.Errorf("illegal file path in zip: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return "", fmt.Errorf("could not create directory: %w", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return "", fmt.Errorf("could not create directory: %w", err)
		}
		if err := extractFile(f, destPath); err != nil {
			return "", err
		}
	}

	return locateModelDir(targetDir)
}

func extractFile(f *zip.File, destPath string) error {
	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer outFile.Close()

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("could not open zip entry: %w", err)
	}
	defer rc.Close()

	if _, err := io.Copy(outFile, rc); err != nil {
		return fmt.Errorf("could not extract %s: %w", f.Name, err)
	}
	return nil
}

// locateModelDir returns dir when it holds weights directly, otherwise its
// only subdirectory that does.
func locateModelDir(dir string) (string, error) {
	if hasWeights(dir) {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() && hasWeights(filepath.Join(dir, e.Name())) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("archive has no model weights")
}

func hasWeights(dir string) bool {
	for _, name := range []string{DefaultModelFile, "insomnia_cnn_lstm_model.gob"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
