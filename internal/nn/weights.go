package nn

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// Parameter names follow the training framework's state dict.
const (
	convWeightKey = "conv1.weight"
	convBiasKey   = "conv1.bias"
	fcWeightKey   = "fc.weight"
	fcBiasKey     = "fc.bias"
)

func lstmKey(kind string, layer int) string {
	return fmt.Sprintf("lstm.%s_l%d", kind, layer)
}

// Tensor is a dense row-major array.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Size returns the number of elements the shape describes.
func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t Tensor) hasShape(dims ...int) bool {
	if len(t.Shape) != len(dims) {
		return false
	}
	for i, d := range dims {
		if t.Shape[i] != d {
			return false
		}
	}
	return true
}

// Weights is a state dict keyed by parameter name.
type Weights map[string]Tensor

// Config describes the model dimensions.
type Config struct {
	InputDim  int
	Channels  int
	HiddenDim int
	Layers    int
	Dropout   float64
}

// DefaultConfig returns the dimensions the production model was trained with.
func DefaultConfig() Config {
	return Config{
		InputDim:  13,
		Channels:  32,
		HiddenDim: 64,
		Layers:    1,
		Dropout:   0.2,
	}
}

// LoadWeights reads a state dict. Files ending in .gob use the native
// encoding, everything else is read as a JSON export.
func LoadWeights(path string) (Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()

	var w Weights
	if strings.EqualFold(filepath.Ext(path), ".gob") {
		err = gob.NewDecoder(f).Decode(&w)
	} else {
		err = json.NewDecoder(f).Decode(&w)
	}
	if err != nil {
		return nil, fmt.Errorf("decode weights %s: %w", path, err)
	}
	if len(w) == 0 {
		return nil, fmt.Errorf("weights %s are empty", path)
	}
	return w, nil
}

// Save writes the state dict, choosing the encoding from the extension the
// same way LoadWeights does.
func (w Weights) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".gob") {
		return gob.NewEncoder(f).Encode(w)
	}
	return json.NewEncoder(f).Encode(w)
}

// Config infers model dimensions from tensor shapes.
func (w Weights) Config() (Config, error) {
	conv, ok := w[convWeightKey]
	if !ok || len(conv.Shape) != 3 {
		return Config{}, fmt.Errorf("%s missing or not 3-dimensional", convWeightKey)
	}
	hh, ok := w[lstmKey("weight_hh", 0)]
	if !ok || len(hh.Shape) != 2 {
		return Config{}, fmt.Errorf("%s missing or not 2-dimensional", lstmKey("weight_hh", 0))
	}

	layers := 0
	for {
		if _, ok := w[lstmKey("weight_ih", layers)]; !ok {
			break
		}
		layers++
	}

	return Config{
		InputDim:  conv.Shape[1],
		Channels:  conv.Shape[0],
		HiddenDim: hh.Shape[1],
		Layers:    layers,
	}, nil
}

// ZeroWeights returns a state dict of the given dimensions with every
// parameter set to zero.
func ZeroWeights(cfg Config) Weights {
	return buildWeights(cfg, func(int, int) float64 { return 0 })
}

// XavierWeights returns randomly initialised weights. Biases start at zero.
func XavierWeights(cfg Config, rng *rand.Rand) Weights {
	return buildWeights(cfg, func(fanIn, fanOut int) float64 {
		if fanIn == 0 {
			return 0
		}
		scale := math.Sqrt(2.0 / float64(fanIn+fanOut))
		return (rng.Float64()*2 - 1) * scale
	})
}

// buildWeights fills every tensor with init(fanIn, fanOut); biases get
// fanIn 0.
func buildWeights(cfg Config, init func(fanIn, fanOut int) float64) Weights {
	tensor := func(fanIn, fanOut int, shape ...int) Tensor {
		t := Tensor{Shape: shape}
		t.Data = make([]float64, t.Size())
		for i := range t.Data {
			t.Data[i] = init(fanIn, fanOut)
		}
		return t
	}

	const k = kernelSize
	h := cfg.HiddenDim
	w := Weights{
		convWeightKey: tensor(cfg.InputDim*k, cfg.Channels*k, cfg.Channels, cfg.InputDim, k),
		convBiasKey:   tensor(0, 0, cfg.Channels),
		fcWeightKey:   tensor(h, 1, 1, h),
		fcBiasKey:     tensor(0, 0, 1),
	}

	in := cfg.Channels
	for l := 0; l < cfg.Layers; l++ {
		w[lstmKey("weight_ih", l)] = tensor(in, h, 4*h, in)
		w[lstmKey("weight_hh", l)] = tensor(h, h, 4*h, h)
		w[lstmKey("bias_ih", l)] = tensor(0, 0, 4*h)
		w[lstmKey("bias_hh", l)] = tensor(0, 0, 4*h)
		in = h
	}
	return w
}
