// Package nn implements inference for the insomnia risk network: a 1D
// convolution over days, stacked LSTM layers and a linear head.
package nn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrInputShape is returned when Forward receives an empty sequence or rows
// of the wrong width.
var ErrInputShape = errors.New("input shape does not match model")

// RiskModel is a frozen network. It holds no per-call state, so Forward is
// safe to call from many goroutines at once.
type RiskModel struct {
	conv *conv1d
	lstm []*lstm
	fc   *linear
}

// NewRiskModel validates every tensor in w and builds the network.
func NewRiskModel(w Weights) (*RiskModel, error) {
	cfg, err := w.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Layers == 0 {
		return nil, fmt.Errorf("no lstm layers in weights")
	}

	conv, err := newConv1d(w[convWeightKey], w[convBiasKey])
	if err != nil {
		return nil, err
	}

	m := &RiskModel{conv: conv}
	in := conv.channels()
	for l := 0; l < cfg.Layers; l++ {
		layer, err := newLSTM(l, in,
			w[lstmKey("weight_ih", l)],
			w[lstmKey("weight_hh", l)],
			w[lstmKey("bias_ih", l)],
			w[lstmKey("bias_hh", l)],
		)
		if err != nil {
			return nil, err
		}
		m.lstm = append(m.lstm, layer)
		in = layer.hidden
	}

	m.fc, err = newLinear(w[fcWeightKey], w[fcBiasKey], in)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Forward maps a normalized T x F sequence, oldest day first, to a logit.
// Dropout is the identity at inference and is not applied.
func (m *RiskModel) Forward(x [][]float64) (float64, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("empty sequence: %w", ErrInputShape)
	}
	f := m.InputDim()
	seq := make([]*mat.VecDense, len(x))
	for t, row := range x {
		if len(row) != f {
			return 0, fmt.Errorf("day %d has %d features, want %d: %w", t, len(row), f, ErrInputShape)
		}
		seq[t] = mat.NewVecDense(f, append([]float64(nil), row...))
	}

	h := m.conv.forward(seq)
	for _, layer := range m.lstm {
		h = layer.forward(h)
	}
	return m.fc.forward(h[len(h)-1]), nil
}

// InputDim returns the number of features per day.
func (m *RiskModel) InputDim() int { return m.conv.inputDim() }

// Channels returns the number of convolution output channels.
func (m *RiskModel) Channels() int { return m.conv.channels() }

// HiddenDim returns the size of the final hidden state.
func (m *RiskModel) HiddenDim() int { return m.lstm[len(m.lstm)-1].hidden }

// Layers returns the number of stacked LSTM layers.
func (m *RiskModel) Layers() int { return len(m.lstm) }

// Info returns the model dimensions for introspection endpoints.
func (m *RiskModel) Info() map[string]interface{} {
	return map[string]interface{}{
		"input_dim":   m.InputDim(),
		"channels":    m.Channels(),
		"hidden_dim":  m.HiddenDim(),
		"lstm_layers": m.Layers(),
		"kernel_size": kernelSize,
	}
}
