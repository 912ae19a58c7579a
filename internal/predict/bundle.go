package predict

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kartoza/somnia/internal/artifacts"
	"github.com/kartoza/somnia/internal/nn"
	"github.com/kartoza/somnia/internal/normalize"
	"github.com/kartoza/somnia/internal/schema"
)

// Bundle holds everything inference needs. It is built once at startup and
// never modified afterwards.
type Bundle struct {
	Schema   *schema.Schema
	Scaler   *normalize.Scaler
	Model    *nn.RiskModel
	Manifest *artifacts.Manifest
}

// NewBundle checks that the pieces agree with each other before returning
// them as a bundle. manifest may be nil.
func NewBundle(s *schema.Schema, sc *normalize.Scaler, m *nn.RiskModel, manifest *artifacts.Manifest) (*Bundle, error) {
	b := &Bundle{Schema: s, Scaler: sc, Model: m, Manifest: manifest}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadBundle reads the model, scaler and manifest concurrently and validates
// them against s. A cancelled ctx aborts before or after the reads.
func LoadBundle(ctx context.Context, s *schema.Schema, paths artifacts.Paths) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths = paths.Resolve()

	var (
		model    *nn.RiskModel
		scaler   *normalize.Scaler
		manifest *artifacts.Manifest
	)

	var g errgroup.Group
	g.Go(func() error {
		w, err := nn.LoadWeights(paths.Model)
		if err != nil {
			return err
		}
		model, err = nn.NewRiskModel(w)
		if err != nil {
			return fmt.Errorf("build model from %s: %w", paths.Model, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		scaler, err = normalize.Load(paths.Scaler)
		return err
	})
	g.Go(func() error {
		var err error
		manifest, err = artifacts.LoadManifest(paths.Manifest)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return NewBundle(s, scaler, model, manifest)
}

// Validate reports the first disagreement between schema, scaler, model and
// manifest.
func (b *Bundle) Validate() error {
	if b.Schema == nil || b.Scaler == nil || b.Model == nil {
		return fmt.Errorf("bundle is incomplete")
	}

	f := b.Schema.Len()
	if b.Scaler.Len() != f {
		return fmt.Errorf("scaler has %d features, schema has %d", b.Scaler.Len(), f)
	}
	if names := b.Scaler.FeatureNames(); len(names) > 0 && !b.Schema.Equal(names) {
		return fmt.Errorf("scaler feature names %v do not match schema %v", names, b.Schema.Names())
	}
	if b.Model.InputDim() != f {
		return fmt.Errorf("model expects %d features, schema has %d", b.Model.InputDim(), f)
	}

	if m := b.Manifest; m != nil {
		if m.SeqLen != 0 && m.SeqLen != b.Schema.SeqLen() {
			return fmt.Errorf("manifest seq_len %d, configured %d", m.SeqLen, b.Schema.SeqLen())
		}
		if len(m.FeatureNames) > 0 && !b.Schema.Equal(m.FeatureNames) {
			return fmt.Errorf("manifest feature names %v do not match schema %v", m.FeatureNames, b.Schema.Names())
		}
	}
	return nil
}
