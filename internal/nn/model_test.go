package nn

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testConfig() Config {
	return Config{InputDim: 3, Channels: 8, HiddenDim: 5, Layers: 1}
}

func rampSequence(days, features int) [][]float64 {
	x := make([][]float64, days)
	for t := range x {
		row := make([]float64, features)
		for j := range row {
			row[j] = float64(t+1) * float64(j+1) / 10
		}
		x[t] = row
	}
	return x
}

func reversed(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i := range x {
		out[len(x)-1-i] = x[i]
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 13, cfg.InputDim)
	assert.Equal(t, 32, cfg.Channels)
	assert.Equal(t, 64, cfg.HiddenDim)
	assert.Equal(t, 1, cfg.Layers)
}

func TestNewRiskModelDimensions(t *testing.T) {
	cfg := Config{InputDim: 4, Channels: 6, HiddenDim: 3, Layers: 2}
	m, err := NewRiskModel(XavierWeights(cfg, rand.New(rand.NewSource(1))))
	require.NoError(t, err)

	assert.Equal(t, 4, m.InputDim())
	assert.Equal(t, 6, m.Channels())
	assert.Equal(t, 3, m.HiddenDim())
	assert.Equal(t, 2, m.Layers())
	assert.Equal(t, 6, m.Info()["channels"])
}

func TestNewRiskModelRejectsBadWeights(t *testing.T) {
	base := func() Weights { return ZeroWeights(testConfig()) }

	tests := []struct {
		name   string
		mutate func(w Weights)
	}{
		{"missing conv", func(w Weights) { delete(w, convWeightKey) }},
		{"missing recurrent", func(w Weights) { delete(w, lstmKey("weight_hh", 0)) }},
		{"wrong kernel", func(w Weights) { w[convWeightKey] = Tensor{Shape: []int{8, 3, 5}, Data: make([]float64, 120)} }},
		{"short data", func(w Weights) { w[convBiasKey] = Tensor{Shape: []int{8}, Data: make([]float64, 2)} }},
		{"ih width", func(w Weights) { w[lstmKey("weight_ih", 0)] = Tensor{Shape: []int{20, 7}, Data: make([]float64, 140)} }},
		{"missing bias", func(w Weights) { delete(w, lstmKey("bias_hh", 0)) }},
		{"head width", func(w Weights) { w[fcWeightKey] = Tensor{Shape: []int{1, 4}, Data: make([]float64, 4)} }},
		{"head bias", func(w Weights) { delete(w, fcBiasKey) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := base()
			tt.mutate(w)
			_, err := NewRiskModel(w)
			assert.Error(t, err)
		})
	}
}

func TestForwardRejectsBadInput(t *testing.T) {
	m, err := NewRiskModel(ZeroWeights(testConfig()))
	require.NoError(t, err)

	_, err = m.Forward(nil)
	assert.True(t, errors.Is(err, ErrInputShape))

	_, err = m.Forward([][]float64{{1, 2}})
	assert.True(t, errors.Is(err, ErrInputShape))
}

func TestForwardZeroWeightsGivesZeroLogit(t *testing.T) {
	cfg := DefaultConfig()
	m, err := NewRiskModel(ZeroWeights(cfg))
	require.NoError(t, err)

	x := make([][]float64, 21)
	for i := range x {
		x[i] = make([]float64, cfg.InputDim)
	}
	logit, err := m.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, 0.0, logit)
}

func TestConvZeroPadsEdges(t *testing.T) {
	conv, err := newConv1d(
		Tensor{Shape: []int{1, 1, 3}, Data: []float64{1, 2, 3}},
		Tensor{Shape: []int{1}, Data: []float64{0}},
	)
	require.NoError(t, err)

	in := []*mat.VecDense{
		mat.NewVecDense(1, []float64{1}),
		mat.NewVecDense(1, []float64{2}),
		mat.NewVecDense(1, []float64{3}),
	}
	out := conv.forward(in)

	require.Len(t, out, 3)
	assert.Equal(t, 8.0, out[0].AtVec(0))
	assert.Equal(t, 14.0, out[1].AtVec(0))
	assert.Equal(t, 8.0, out[2].AtVec(0))
}

func TestConvTapLayoutAndRectify(t *testing.T) {
	// two input features, two channels; channel 1 has negative weights
	conv, err := newConv1d(
		Tensor{Shape: []int{2, 2, 3}, Data: []float64{
			0, 1, 0, 0, 2, 0,
			0, -1, 0, 0, -1, 0,
		}},
		Tensor{Shape: []int{2}, Data: []float64{0.5, 0}},
	)
	require.NoError(t, err)

	out := conv.forward([]*mat.VecDense{mat.NewVecDense(2, []float64{1, 10})})
	assert.Equal(t, 21.5, out[0].AtVec(0))
	assert.Equal(t, 0.0, out[0].AtVec(1))
}

func TestForwardSingleStepByHand(t *testing.T) {
	w := Weights{
		convWeightKey:           {Shape: []int{1, 1, 3}, Data: []float64{9, 0.5, 9}},
		convBiasKey:             {Shape: []int{1}, Data: []float64{0.1}},
		lstmKey("weight_ih", 0): {Shape: []int{4, 1}, Data: []float64{0.3, -0.2, 0.7, 0.4}},
		lstmKey("weight_hh", 0): {Shape: []int{4, 1}, Data: []float64{0.9, 0.9, 0.9, 0.9}},
		lstmKey("bias_ih", 0):   {Shape: []int{4}, Data: []float64{0.05, 0, -0.1, 0.2}},
		lstmKey("bias_hh", 0):   {Shape: []int{4}, Data: []float64{0.05, 0, 0, 0}},
		fcWeightKey:             {Shape: []int{1, 1}, Data: []float64{1.5}},
		fcBiasKey:               {Shape: []int{1}, Data: []float64{-0.25}},
	}
	m, err := NewRiskModel(w)
	require.NoError(t, err)

	logit, err := m.Forward([][]float64{{2}})
	require.NoError(t, err)

	// a single day only sees the centre tap
	y := 0.1 + 0.5*2
	i := sigmoid(0.3*y + 0.1)
	g := math.Tanh(0.7*y - 0.1)
	o := sigmoid(0.4*y + 0.2)
	c := i * g
	h := o * math.Tanh(c)
	want := 1.5*h - 0.25

	assert.InDelta(t, want, logit, 1e-12)
}

func TestForwardDeterministic(t *testing.T) {
	m, err := NewRiskModel(XavierWeights(testConfig(), rand.New(rand.NewSource(42))))
	require.NoError(t, err)

	x := rampSequence(21, 3)
	a, err := m.Forward(x)
	require.NoError(t, err)
	b, err := m.Forward(x)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestForwardOrderSensitive(t *testing.T) {
	m, err := NewRiskModel(XavierWeights(testConfig(), rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	x := rampSequence(21, 3)
	forward, err := m.Forward(x)
	require.NoError(t, err)
	backward, err := m.Forward(reversed(x))
	require.NoError(t, err)

	assert.NotEqual(t, forward, backward)
}

func TestForwardConcurrent(t *testing.T) {
	m, err := NewRiskModel(XavierWeights(testConfig(), rand.New(rand.NewSource(3))))
	require.NoError(t, err)

	x := rampSequence(21, 3)
	want, err := m.Forward(x)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]float64, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.Forward(x)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, want, r)
	}
}

func TestStackedLayersForward(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	cfg := testConfig()
	cfg.Layers = 2
	m, err := NewRiskModel(XavierWeights(cfg, rng))
	require.NoError(t, err)

	logit, err := m.Forward(rampSequence(21, 3))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(logit))
}

func TestWeightsSaveLoad(t *testing.T) {
	w := XavierWeights(testConfig(), rand.New(rand.NewSource(5)))
	m, err := NewRiskModel(w)
	require.NoError(t, err)
	x := rampSequence(21, 3)
	want, err := m.Forward(x)
	require.NoError(t, err)

	for _, name := range []string{"model.gob", "model.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, w.Save(path))

			loaded, err := LoadWeights(path)
			require.NoError(t, err)

			m2, err := NewRiskModel(loaded)
			require.NoError(t, err)
			got, err := m2.Forward(x)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadWeightsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadWeights(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, Weights{}.Save(empty))
	_, err = LoadWeights(empty)
	assert.Error(t, err)
}

func TestWeightsConfig(t *testing.T) {
	cfg := Config{InputDim: 13, Channels: 32, HiddenDim: 64, Layers: 2}
	got, err := ZeroWeights(cfg).Config()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = Weights{}.Config()
	assert.Error(t, err)
}
