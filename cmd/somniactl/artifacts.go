package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kartoza/somnia/internal/artifacts"
	"github.com/kartoza/somnia/internal/nn"
	"github.com/kartoza/somnia/internal/normalize"
	"github.com/kartoza/somnia/internal/predict"
)

const manifestFormat = "somnia-artifacts"

type scalerInfo struct {
	Kind         string   `json:"kind" yaml:"kind"`
	NFeatures    int      `json:"n_features" yaml:"n_features"`
	FeatureNames []string `json:"feature_names,omitempty" yaml:"feature_names,omitempty"`
}

type inspectResult struct {
	Model    map[string]interface{} `json:"model" yaml:"model"`
	Scaler   scalerInfo             `json:"scaler" yaml:"scaler"`
	Manifest *artifacts.Manifest    `json:"manifest,omitempty" yaml:"manifest,omitempty"`
}

func dirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "dir",
		Usage:    "Target artifacts directory",
		Required: true,
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Write placeholder model, scaler and manifest for local testing",
		Action: cmdInit,
		Flags: append([]cli.Flag{
			dirFlag(),
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Random seed for placeholder weights",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "zero",
				Usage: "Write all-zero weights (every prediction is 0.5)",
			},
		}, schemaFlags()...),
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:   "inspect",
		Usage:  "Print artifact dimensions",
		Action: cmdInspect,
		Flags:  artifactFlags(),
	}
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:   "convert",
		Usage:  "Validate weights and rewrite them in another format",
		Action: cmdConvert,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "in",
				Usage:    "Source weights (JSON state dict or .gob)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "out",
				Usage:    "Destination weights; format follows the extension",
				Required: true,
			},
		},
	}
}

func installCommand() *cli.Command {
	return &cli.Command{
		Name:   "install",
		Usage:  "Unpack an artifact archive and verify it loads",
		Action: cmdInstall,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "archive",
				Usage:    "Zip archive containing artifacts",
				Required: true,
			},
			dirFlag(),
		}, schemaFlags()...),
	}
}

func cmdInit(ctx context.Context, cmd *cli.Command) error {
	s, err := schemaFromFlags(cmd)
	if err != nil {
		return err
	}
	dir := cmd.String("dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	cfg := nn.DefaultConfig()
	cfg.InputDim = s.Len()
	w := nn.ZeroWeights(cfg)
	if !cmd.Bool("zero") {
		w = nn.XavierWeights(cfg, rand.New(rand.NewSource(cmd.Int64("seed"))))
	}

	mean := make([]float64, s.Len())
	std := make([]float64, s.Len())
	for j := range std {
		std[j] = 1
	}
	sc, err := normalize.NewStandard(mean, std)
	if err != nil {
		return err
	}
	if sc, err = sc.WithFeatureNames(s.Names()); err != nil {
		return err
	}

	manifest := &artifacts.Manifest{
		Format:       manifestFormat,
		Version:      version,
		Description:  "placeholder artifacts",
		Created:      time.Now().UTC().Format(time.RFC3339),
		SeqLen:       s.SeqLen(),
		FeatureNames: s.Names(),
	}

	paths := artifacts.Paths{Dir: dir}.Resolve()
	if err := w.Save(paths.Model); err != nil {
		return err
	}
	if err := sc.Save(paths.Scaler); err != nil {
		return err
	}
	if err := manifest.Save(paths.Manifest); err != nil {
		return err
	}
	logger.Debug("artifacts written", zap.String("dir", dir))

	return encode(cmd, manifest)
}

func cmdInspect(ctx context.Context, cmd *cli.Command) error {
	paths := artifacts.Paths{
		Dir:    cmd.String(flagArtifactsDir),
		Model:  cmd.String(flagModel),
		Scaler: cmd.String(flagScaler),
	}.Resolve()

	w, err := nn.LoadWeights(paths.Model)
	if err != nil {
		return err
	}
	m, err := nn.NewRiskModel(w)
	if err != nil {
		return fmt.Errorf("invalid weights in %s: %w", paths.Model, err)
	}
	sc, err := normalize.Load(paths.Scaler)
	if err != nil {
		return err
	}
	manifest, err := artifacts.LoadManifest(paths.Manifest)
	if err != nil {
		return err
	}

	return encode(cmd, inspectResult{
		Model: m.Info(),
		Scaler: scalerInfo{
			Kind:         string(sc.Kind()),
			NFeatures:    sc.Len(),
			FeatureNames: sc.FeatureNames(),
		},
		Manifest: manifest,
	})
}

func cmdConvert(ctx context.Context, cmd *cli.Command) error {
	in, out := cmd.String("in"), cmd.String("out")

	w, err := nn.LoadWeights(in)
	if err != nil {
		return err
	}
	m, err := nn.NewRiskModel(w)
	if err != nil {
		return fmt.Errorf("invalid weights in %s: %w", in, err)
	}
	if err := w.Save(out); err != nil {
		return err
	}
	logger.Debug("weights converted", zap.String("in", in), zap.String("out", out))

	return encode(cmd, map[string]interface{}{
		"written": out,
		"model":   m.Info(),
	})
}

func cmdInstall(ctx context.Context, cmd *cli.Command) error {
	s, err := schemaFromFlags(cmd)
	if err != nil {
		return err
	}

	modelDir, err := artifacts.Extract(cmd.String("archive"), cmd.String("dir"))
	if err != nil {
		return fmt.Errorf("failed to extract archive: %w", err)
	}

	b, err := predict.LoadBundle(ctx, s, artifacts.Paths{Dir: modelDir})
	if err != nil {
		return fmt.Errorf("installed artifacts do not load: %w", err)
	}

	abs, err := filepath.Abs(modelDir)
	if err != nil {
		abs = modelDir
	}
	result := map[string]interface{}{
		"artifacts_dir": abs,
		"model":         b.Model.Info(),
	}
	if b.Manifest != nil {
		result["version"] = b.Manifest.Version
	}
	return encode(cmd, result)
}
