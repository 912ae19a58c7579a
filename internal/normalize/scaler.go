// Package normalize applies the per-feature rescaling fitted during training.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind names the fitting procedure a scaler artifact came from.
type Kind string

const (
	KindStandard Kind = "standard"
	KindMinMax   Kind = "minmax"
	KindAffine   Kind = "affine"
)

// ErrDimension is returned when a matrix does not have one column per feature.
var ErrDimension = errors.New("column count does not match scaler")

// Scaler computes (x - offset[j]) * scale[j] column-wise. It is never
// mutated after construction.
type Scaler struct {
	kind         Kind
	offset       []float64
	scale        []float64
	featureNames []string
}

// artifact is the on-disk scaler document. JSON exports parse as YAML too.
type artifact struct {
	Kind         Kind      `yaml:"kind"`
	NFeatures    int       `yaml:"n_features,omitempty"`
	FeatureNames []string  `yaml:"feature_names,omitempty"`
	Mean         []float64 `yaml:"mean,omitempty"`
	Min          []float64 `yaml:"min,omitempty"`
	Offset       []float64 `yaml:"offset,omitempty"`
	Scale        []float64 `yaml:"scale"`
}

// NewAffine builds a scaler from offset and multiplier vectors.
func NewAffine(offset, scale []float64) (*Scaler, error) {
	if len(offset) == 0 {
		return nil, errors.New("scaler has no features")
	}
	if len(offset) != len(scale) {
		return nil, fmt.Errorf("offset has %d entries, scale has %d", len(offset), len(scale))
	}
	if err := checkFinite("offset", offset); err != nil {
		return nil, err
	}
	if err := checkFinite("scale", scale); err != nil {
		return nil, err
	}
	s := &Scaler{
		kind:   KindAffine,
		offset: append([]float64(nil), offset...),
		scale:  append([]float64(nil), scale...),
	}
	return s, nil
}

func checkFinite(field string, v []float64) error {
	for j, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%s[%d] is not finite", field, j)
		}
	}
	return nil
}

// NewStandard builds a scaler from fitted means and standard deviations.
// A zero deviation leaves the centred column unscaled.
func NewStandard(mean, std []float64) (*Scaler, error) {
	if len(mean) != len(std) {
		return nil, fmt.Errorf("mean has %d entries, scale has %d", len(mean), len(std))
	}
	if err := checkFinite("scale", std); err != nil {
		return nil, err
	}
	mul := make([]float64, len(std))
	for j, sd := range std {
		if sd == 0 {
			mul[j] = 1
			continue
		}
		mul[j] = 1 / sd
	}
	s, err := NewAffine(mean, mul)
	if err != nil {
		return nil, err
	}
	s.kind = KindStandard
	return s, nil
}

// NewMinMax builds a scaler from a fitted x*scale + min transform.
func NewMinMax(min, scale []float64) (*Scaler, error) {
	if len(min) != len(scale) {
		return nil, fmt.Errorf("min has %d entries, scale has %d", len(min), len(scale))
	}
	offset := make([]float64, len(min))
	for j, sc := range scale {
		if sc == 0 {
			return nil, fmt.Errorf("feature %d has zero min-max scale", j)
		}
		offset[j] = -min[j] / sc
	}
	s, err := NewAffine(offset, scale)
	if err != nil {
		return nil, err
	}
	s.kind = KindMinMax
	return s, nil
}

// Load reads a scaler artifact from a YAML or JSON file.
func Load(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}

	var a artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode scaler %s: %w", path, err)
	}

	var s *Scaler
	switch a.Kind {
	case KindStandard:
		s, err = NewStandard(a.Mean, a.Scale)
	case KindMinMax:
		s, err = NewMinMax(a.Min, a.Scale)
	case KindAffine, "":
		s, err = NewAffine(a.Offset, a.Scale)
	default:
		return nil, fmt.Errorf("unsupported scaler kind %q", a.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("scaler %s: %w", path, err)
	}

	if a.NFeatures != 0 && a.NFeatures != s.Len() {
		return nil, fmt.Errorf("scaler %s declares %d features but carries %d", path, a.NFeatures, s.Len())
	}
	if len(a.FeatureNames) > 0 {
		if len(a.FeatureNames) != s.Len() {
			return nil, fmt.Errorf("scaler %s names %d features but carries %d", path, len(a.FeatureNames), s.Len())
		}
		s.featureNames = a.FeatureNames
	}

	return s, nil
}

// Save writes the scaler in affine form.
func (s *Scaler) Save(path string) error {
	a := artifact{
		Kind:         KindAffine,
		NFeatures:    s.Len(),
		FeatureNames: s.featureNames,
		Offset:       s.offset,
		Scale:        s.scale,
	}
	data, err := yaml.Marshal(&a)
	if err != nil {
		return fmt.Errorf("encode scaler: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// WithFeatureNames returns a copy of s that records the column names it was
// fitted on.
func (s *Scaler) WithFeatureNames(names []string) (*Scaler, error) {
	if len(names) != s.Len() {
		return nil, fmt.Errorf("%d names for %d features", len(names), s.Len())
	}
	c := *s
	c.featureNames = append([]string(nil), names...)
	return &c, nil
}

// Kind returns the procedure the scaler was fitted with.
func (s *Scaler) Kind() Kind { return s.kind }

// Len returns the number of features the scaler was fitted on.
func (s *Scaler) Len() int { return len(s.offset) }

// FeatureNames returns the fitted column names, or nil when the artifact did
// not record them.
func (s *Scaler) FeatureNames() []string {
	if s.featureNames == nil {
		return nil
	}
	return append([]string(nil), s.featureNames...)
}

// Transform rescales every row of raw into a new matrix.
func (s *Scaler) Transform(raw [][]float64) ([][]float64, error) {
	out := make([][]float64, len(raw))
	for i, row := range raw {
		if len(row) != len(s.offset) {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), len(s.offset), ErrDimension)
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.offset[j]) * s.scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}
