package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kartoza/somnia/internal/artifacts"
	"github.com/kartoza/somnia/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"ARTIFACTS_DIR", "MODEL_PATH", "SCALER_PATH", "SEQ_LEN", "FEATURE_NAMES"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), append([]string{"somniactl"}, args...))
	return out.String(), err
}

func writeRequest(t *testing.T, days int) string {
	t.Helper()
	req := models.PredictRequest{PersonID: "p1", Days: make([]models.DayRecord, days)}
	for i := range req.Days {
		req.Days[i].SleepHours = models.Float(6.5)
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInitAndInspect(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")

	out, err := run(t, "init", "--dir", dir, "--seed", "3")
	require.NoError(t, err)

	var manifest artifacts.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &manifest))
	assert.Equal(t, 21, manifest.SeqLen)
	assert.Len(t, manifest.FeatureNames, 13)

	out, err = run(t, "--format", "yaml", "inspect", "--artifacts-dir", dir)
	require.NoError(t, err)

	var result struct {
		Model  map[string]interface{} `yaml:"model"`
		Scaler scalerInfo             `yaml:"scaler"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	assert.Equal(t, 13, result.Model["input_dim"])
	assert.Equal(t, 32, result.Model["channels"])
	assert.Equal(t, 13, result.Scaler.NFeatures)
	assert.Equal(t, "affine", result.Scaler.Kind)
}

func TestPredictZeroArtifacts(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "init", "--dir", dir, "--zero")
	require.NoError(t, err)

	out, err := run(t, "predict", "--artifacts-dir", dir, "--request", writeRequest(t, 21))
	require.NoError(t, err)

	var resp models.PredictResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "p1", resp.PersonID)
	assert.Equal(t, 0.5, resp.InsomniaRisk)
}

func TestPredictEmptyPersonID(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "init", "--dir", dir, "--zero")
	require.NoError(t, err)

	req := models.PredictRequest{Days: make([]models.DayRecord, 21)}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := run(t, "predict", "--artifacts-dir", dir, "--request", path)
	require.NoError(t, err)

	var resp models.PredictResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "", resp.PersonID)
	assert.Equal(t, 0.5, resp.InsomniaRisk)
}

func TestPredictWrongLength(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "init", "--dir", dir, "--zero")
	require.NoError(t, err)

	_, err = run(t, "predict", "--artifacts-dir", dir, "--request", writeRequest(t, 7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "You must send exactly 21 days, got 7")
}

func TestPredictSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "init", "--dir", dir, "--zero")
	require.NoError(t, err)

	_, err = run(t, "predict", "--artifacts-dir", dir, "--seq-len", "14", "--request", writeRequest(t, 14))
	assert.Error(t, err)
}

func TestConvertToGob(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "init", "--dir", dir)
	require.NoError(t, err)

	gob := filepath.Join(dir, "model.gob")
	_, err = run(t, "convert", "--in", filepath.Join(dir, artifacts.DefaultModelFile), "--out", gob)
	require.NoError(t, err)
	assert.FileExists(t, gob)

	out, err := run(t, "inspect", "--artifacts-dir", dir, "--model", gob)
	require.NoError(t, err)
	assert.Contains(t, out, `"hidden_dim": 64`)
}

func TestInstallArchive(t *testing.T) {
	src := t.TempDir()
	_, err := run(t, "init", "--dir", src, "--zero")
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{artifacts.DefaultModelFile, artifacts.DefaultScalerFile, artifacts.DefaultManifestFile} {
		data, err := os.ReadFile(filepath.Join(src, name))
		require.NoError(t, err)
		w, err := zw.Create("release/" + name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	target := filepath.Join(t.TempDir(), "installed")
	out, err := run(t, "install", "--archive", archive, "--dir", target)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("installed", "release"))
}

func TestUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--format", "xml", "init", "--dir", dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "xml"), fmt.Sprint(err))
}
